// Package metrics provides Prometheus metrics collection for dtool-irods components.
//
// All metrics are optional - if not initialized, components use no-op implementations
// that have zero overhead. The broker and its transports run identically with or
// without metrics collection enabled.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	remoteMetrics := metrics.NewRemoteMetrics()
//	cacheMetrics := metrics.NewCacheMetrics()
//
//	// Export once the command is done (node_exporter textfile collector)
//	_ = metrics.WriteTextfile("/var/lib/node_exporter/dtool_irods.prom")
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry for all dtool-irods metrics
	// Protected by registryOnce for write-once, read-many pattern
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// This must be called before creating any metrics instances. It's safe to call
// multiple times - subsequent calls are ignored.
//
// If not called, GetRegistry() will return nil and all metrics constructors
// will return no-op implementations.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global Prometheus registry.
//
// Returns nil if InitRegistry() has not been called, indicating metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if metrics collection is enabled.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// WriteTextfile writes the current state of the global registry to path in
// the Prometheus text exposition format.
//
// dtool-irods runs as short-lived commands rather than a server, so metrics
// are handed to a node_exporter textfile collector instead of being scraped.
func WriteTextfile(path string) error {
	if !IsEnabled() {
		return fmt.Errorf("metrics are not enabled")
	}
	if err := prometheus.WriteToTextfile(path, GetRegistry()); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}

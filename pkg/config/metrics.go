package config

import (
	"github.com/marmos91/dtool-irods/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Remote records remote operations (never nil, uses noop if disabled)
	Remote metrics.RemoteMetrics

	// Cache records item cache hits and misses (never nil, uses noop if disabled)
	Cache metrics.CacheMetrics

	// Textfile is where Flush writes the collected metrics ("" = nowhere)
	Textfile string
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Remote: metrics.NewNoopRemoteMetrics(),
			Cache:  metrics.NewNoopCacheMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Remote:   metrics.NewRemoteMetrics(),
		Cache:    metrics.NewCacheMetrics(),
		Textfile: cfg.Metrics.Textfile,
	}
}

// Flush writes the collected metrics to the configured textfile, if any.
func (r *MetricsResult) Flush() error {
	if r.Textfile == "" || !metrics.IsEnabled() {
		return nil
	}
	return metrics.WriteTextfile(r.Textfile)
}

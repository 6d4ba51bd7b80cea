package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RemoteMetrics records remote store operations.
//
// For the icommands transport the operation is the icommand name ("ils",
// "iput", ...). Other transports use their primitive name ("Put", "Stat").
type RemoteMetrics interface {
	// RecordOperation records one completed operation and its outcome.
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes moved to ("upload") or from
	// ("download") the remote store.
	RecordBytes(direction string, bytes int64)
}

type remoteMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewRemoteMetrics creates a Prometheus-backed RemoteMetrics on the global
// registry, or a no-op implementation if metrics are not enabled.
func NewRemoteMetrics() RemoteMetrics {
	if !IsEnabled() {
		return NewNoopRemoteMetrics()
	}
	return NewRemoteMetricsWith(GetRegistry())
}

// NewRemoteMetricsWith creates a RemoteMetrics registered on reg.
func NewRemoteMetricsWith(reg prometheus.Registerer) RemoteMetrics {
	return &remoteMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dtool_irods_remote_operations_total",
				Help: "Total number of remote store operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dtool_irods_remote_operation_duration_seconds",
				Help: "Duration of remote store operations in seconds",
				Buckets: []float64{
					0.01, // 10ms
					0.05, // 50ms
					0.1,  // 100ms
					0.25, // 250ms
					0.5,  // 500ms
					1.0,  // 1s
					2.5,  // 2.5s
					5.0,  // 5s
					10.0, // 10s
					30.0, // 30s
					120,  // 2m, large iput/iget
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dtool_irods_remote_bytes_total",
				Help: "Total payload bytes transferred to or from the remote store",
			},
			[]string{"direction"},
		),
	}
}

func (m *remoteMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *remoteMetrics) RecordBytes(direction string, bytes int64) {
	if bytes <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

type noopRemoteMetrics struct{}

// NewNoopRemoteMetrics returns a RemoteMetrics that discards everything.
func NewNoopRemoteMetrics() RemoteMetrics {
	return noopRemoteMetrics{}
}

func (noopRemoteMetrics) RecordOperation(string, time.Duration, error) {}
func (noopRemoteMetrics) RecordBytes(string, int64)                    {}

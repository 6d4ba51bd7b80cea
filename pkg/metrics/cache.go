package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CacheMetrics records local item cache activity.
type CacheMetrics interface {
	// RecordHit records a fetch served from the local cache.
	RecordHit()

	// RecordMiss records a fetch that required a download of bytes.
	RecordMiss(bytes int64)
}

type cacheMetrics struct {
	lookups         *prometheus.CounterVec
	downloadedBytes prometheus.Counter
}

// NewCacheMetrics creates a Prometheus-backed CacheMetrics on the global
// registry, or a no-op implementation if metrics are not enabled.
func NewCacheMetrics() CacheMetrics {
	if !IsEnabled() {
		return NewNoopCacheMetrics()
	}
	return NewCacheMetricsWith(GetRegistry())
}

// NewCacheMetricsWith creates a CacheMetrics registered on reg.
func NewCacheMetricsWith(reg prometheus.Registerer) CacheMetrics {
	return &cacheMetrics{
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dtool_irods_cache_lookups_total",
				Help: "Total number of item cache lookups by result (hit or miss)",
			},
			[]string{"result"},
		),
		downloadedBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dtool_irods_cache_downloaded_bytes_total",
				Help: "Total bytes downloaded into the item cache",
			},
		),
	}
}

func (m *cacheMetrics) RecordHit() {
	m.lookups.WithLabelValues("hit").Inc()
}

func (m *cacheMetrics) RecordMiss(bytes int64) {
	m.lookups.WithLabelValues("miss").Inc()
	if bytes > 0 {
		m.downloadedBytes.Add(float64(bytes))
	}
}

type noopCacheMetrics struct{}

// NewNoopCacheMetrics returns a CacheMetrics that discards everything.
func NewNoopCacheMetrics() CacheMetrics {
	return noopCacheMetrics{}
}

func (noopCacheMetrics) RecordHit()       {}
func (noopCacheMetrics) RecordMiss(int64) {}

package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/prcore/prcore/metric"
)

// cacheMetrics exposes cache statistics as Prometheus metrics.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

func newCacheMetrics(reg *metric.MetricsRegistry, prefix string) (*cacheMetrics, error) {
	m := &cacheMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_cache_hits_total",
			Help: "Total cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_cache_misses_total",
			Help: "Total cache misses",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_cache_evictions_total",
			Help: "Total entries evicted by TTL sweep",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_cache_size",
			Help: "Current cache entry count",
		}),
	}

	for name, c := range map[string]prometheus.Collector{
		"hits":      m.hits,
		"misses":    m.misses,
		"evictions": m.evictions,
		"size":      m.size,
	} {
		if err := reg.Register(prefix, name, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *cacheMetrics) recordHit()      { m.hits.Inc() }
func (m *cacheMetrics) recordMiss()     { m.misses.Inc() }
func (m *cacheMetrics) recordEviction() { m.evictions.Inc() }
func (m *cacheMetrics) updateSize(n int) {
	m.size.Set(float64(n))
}

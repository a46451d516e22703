package cache

import (
	"github.com/prcore/prcore/metric"
)

// cacheOptions holds optional configuration applied at construction.
type cacheOptions[V any] struct {
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
	evictCallback EvictCallback[V]
}

// Option configures a cache at construction time.
type Option[V any] func(*cacheOptions[V])

// WithMetrics exposes cache statistics as Prometheus metrics under the given
// prefix (e.g. "dedup", "pending").
func WithMetrics[V any](reg *metric.MetricsRegistry, prefix string) Option[V] {
	return func(o *cacheOptions[V]) {
		o.metricsReg = reg
		o.metricsPrefix = prefix
	}
}

// WithEvictCallback invokes fn for every entry removed by the sweep.
func WithEvictCallback[V any](fn EvictCallback[V]) Option[V] {
	return func(o *cacheOptions[V]) {
		o.evictCallback = fn
	}
}

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/prcore/prcore/errors"
)

// ttlEntry represents an entry in the TTL cache.
type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e *ttlEntry[V]) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// ttlCache is a thread-safe TTL cache. Expired entries are invisible to Get
// immediately and physically removed by the periodic sweep.
type ttlCache[V any] struct {
	mu            sync.RWMutex
	ttl           time.Duration
	sweepInterval time.Duration
	items         map[string]*ttlEntry[V]
	stats         *Statistics
	metrics       *cacheMetrics
	evictFn       EvictCallback[V]

	shutdown chan struct{}
	done     chan struct{}
	closeMu  sync.Once
}

func newTTLCache[V any](
	ctx context.Context, ttl, sweepInterval time.Duration, opts *cacheOptions[V],
) (*ttlCache[V], error) {
	if ttl <= 0 {
		return nil, errors.WrapInvalid(errors.New("ttl must be positive"), "cache", "newTTLCache", "validate ttl")
	}
	if sweepInterval <= 0 {
		sweepInterval = ttl / 3
	}

	var metrics *cacheMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapInvalid(err, "cache", "newTTLCache", "metrics registration")
		}
	}

	c := &ttlCache[V]{
		ttl:           ttl,
		sweepInterval: sweepInterval,
		items:         make(map[string]*ttlEntry[V]),
		stats:         NewStatistics(),
		metrics:       metrics,
		evictFn:       opts.evictCallback,
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}

	go c.sweepLoop(ctx)

	return c, nil
}

// Get retrieves a value by key, checking for expiration.
func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, exists := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !exists || entry.isExpired(time.Now()) {
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		return zero, false
	}

	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
	return entry.value, true
}

// Set stores a value and resets its expiration.
func (c *ttlCache[V]) Set(key string, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, existed := c.items[key]
	c.items[key] = &ttlEntry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}

	c.stats.UpdateSize(int64(len(c.items)))
	if c.metrics != nil {
		c.metrics.updateSize(len(c.items))
	}
	return !existed
}

// Delete removes an entry by key.
func (c *ttlCache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists {
		return false
	}
	delete(c.items, key)
	c.stats.UpdateSize(int64(len(c.items)))
	if c.metrics != nil {
		c.metrics.updateSize(len(c.items))
	}
	return true
}

// Size returns the current entry count.
func (c *ttlCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns all keys currently stored.
func (c *ttlCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	return keys
}

// Stats returns cache statistics.
func (c *ttlCache[V]) Stats() *Statistics {
	return c.stats
}

// Close stops the sweep goroutine. Safe to call more than once.
func (c *ttlCache[V]) Close() error {
	c.closeMu.Do(func() {
		close(c.shutdown)
		<-c.done
	})
	return nil
}

// sweepLoop periodically removes expired entries.
func (c *ttlCache[V]) sweepLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes all expired entries, invoking the evict callback outside the
// lock to avoid deadlocks when callbacks touch the cache.
func (c *ttlCache[V]) sweep() {
	now := time.Now()

	type evicted struct {
		key   string
		value V
	}
	var removed []evicted

	c.mu.Lock()
	for k, e := range c.items {
		if e.isExpired(now) {
			removed = append(removed, evicted{key: k, value: e.value})
			delete(c.items, k)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	for range removed {
		c.stats.Eviction()
	}
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		for range removed {
			c.metrics.recordEviction()
		}
		c.metrics.updateSize(size)
	}

	if c.evictFn != nil {
		for _, e := range removed {
			c.evictFn(e.key, e.value)
		}
	}
}

// Package cache provides a generic, thread-safe TTL cache with background
// eviction. It backs the coordinator's idempotency service (15m TTL) and the
// pending-request garbage collector (30m TTL). Statistics are always enabled;
// Prometheus metrics are opt-in via functional options.
package cache

import (
	"context"
	"time"
)

// Cache represents a generic cache interface parameterized by value type V.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the zero value and false when the
	// key is absent or expired.
	Get(key string) (V, bool)

	// Set stores a value with the given key, resetting its TTL. Returns true
	// if a new entry was created, false if an existing one was updated.
	Set(key string, value V) bool

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) bool

	// Size returns the current number of entries, expired ones included
	// until the next sweep.
	Size() int

	// Keys returns all keys currently in the cache.
	Keys() []string

	// Stats returns cache statistics.
	Stats() *Statistics

	// Close stops the background sweep goroutine.
	Close() error
}

// EvictCallback is called when an entry is evicted by the sweep.
type EvictCallback[V any] func(key string, value V)

// NewTTL creates a TTL cache that evicts entries older than ttl, sweeping
// every sweepInterval. The sweep goroutine stops when ctx is cancelled or
// Close is called.
func NewTTL[V any](ctx context.Context, ttl, sweepInterval time.Duration, opts ...Option[V]) (Cache[V], error) {
	o := &cacheOptions[V]{}
	for _, opt := range opts {
		opt(o)
	}
	return newTTLCache[V](ctx, ttl, sweepInterval, o)
}

// Package dedup is the idempotency cache shared by every inbound message
// handler. Message ids are remembered for a TTL; a handler that sees a known
// id drops the delivery, which makes at-least-once transport behave as
// at-most-once for the application. A redelivery racing an eviction can still
// slip through the window, an accepted bound.
package dedup

import (
	"context"
	"time"

	"github.com/prcore/prcore/errors"
	"github.com/prcore/prcore/pkg/cache"
)

// Service wraps a TTL cache keyed by message id.
type Service struct {
	seen cache.Cache[time.Time]
}

// NewService creates the cache with the given retention and sweep interval.
func NewService(ctx context.Context, ttl, sweep time.Duration, opts ...cache.Option[time.Time]) (*Service, error) {
	c, err := cache.NewTTL[time.Time](ctx, ttl, sweep, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "dedup", "NewService", "create cache")
	}
	return &Service{seen: c}, nil
}

// Seen reports whether the message id was already handled.
func (s *Service) Seen(id string) bool {
	_, ok := s.seen.Get(id)
	return ok
}

// MarkSeen records the message id as handled.
func (s *Service) MarkSeen(id string) {
	s.seen.Set(id, time.Now())
}

// CheckAndMark reports whether the id was already handled and marks it in
// one step. Handlers call this before any side-effecting work.
func (s *Service) CheckAndMark(id string) bool {
	if id == "" {
		return false
	}
	if s.Seen(id) {
		return true
	}
	s.MarkSeen(id)
	return false
}

// Size returns the number of remembered ids.
func (s *Service) Size() int {
	return s.seen.Size()
}

// Close stops the sweep goroutine.
func (s *Service) Close() error {
	return s.seen.Close()
}

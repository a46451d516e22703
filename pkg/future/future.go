// Package future provides a one-shot value future: completed at most once,
// awaited with a timeout. It replaces sleep-based polling for cross-process
// waits; the waiter is unblocked exactly once with either a value or a
// terminal failure.
package future

import (
	"context"
	"sync"
	"time"

	"github.com/prcore/prcore/errors"
)

// Future holds a value produced by another goroutine.
type Future[T any] struct {
	ch   chan T
	once sync.Once
}

// New returns an incomplete future.
func New[T any]() *Future[T] {
	return &Future[T]{ch: make(chan T, 1)}
}

// Complete fulfills the future. Only the first call wins; it reports whether
// this call was the one that completed it.
func (f *Future[T]) Complete(v T) bool {
	won := false
	f.once.Do(func() {
		f.ch <- v
		won = true
	})
	return won
}

// Wait blocks until the future completes, the timeout elapses or ctx is
// cancelled. A non-positive timeout waits on ctx alone.
func (f *Future[T]) Wait(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case v := <-f.ch:
		return v, nil
	case <-expired:
		return zero, errors.WrapTransient(errors.ErrWaitTimeout, "future", "Wait", "await completion")
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// TryGet returns the value if the future already completed.
func (f *Future[T]) TryGet() (T, bool) {
	select {
	case v := <-f.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

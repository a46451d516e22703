package stream

import (
	"context"
	"sync"

	"github.com/prcore/prcore/message"
)

// defaultFeedCapacity bounds the per-session result buffer. A fast producer
// against a slow reader drops the oldest results rather than growing without
// bound or blocking the dispatch loop.
const defaultFeedCapacity = 256

// feed is the server-push result buffer of one session: bounded, drop-oldest,
// at most one concurrent reader.
type feed struct {
	mu       sync.Mutex
	buf      []*message.StreamingPrescriptionResult
	capacity int
	dropped  int64
	signal   chan struct{}
}

func newFeed(capacity int) *feed {
	if capacity <= 0 {
		capacity = defaultFeedCapacity
	}
	return &feed{
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// push appends a result, dropping the oldest entry when full. Never blocks.
func (f *feed) push(r *message.StreamingPrescriptionResult) {
	f.mu.Lock()
	if len(f.buf) == f.capacity {
		f.buf = f.buf[1:]
		f.dropped++
	}
	f.buf = append(f.buf, r)
	f.mu.Unlock()

	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// next pops the oldest buffered result, blocking until one arrives or ctx is
// cancelled.
func (f *feed) next(ctx context.Context) (*message.StreamingPrescriptionResult, error) {
	for {
		f.mu.Lock()
		if len(f.buf) > 0 {
			r := f.buf[0]
			f.buf = f.buf[1:]
			f.mu.Unlock()
			return r, nil
		}
		f.mu.Unlock()

		select {
		case <-f.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (f *feed) droppedCount() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

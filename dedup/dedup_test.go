package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, ttl time.Duration) *Service {
	t.Helper()
	s, err := NewService(context.Background(), ttl, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCheckAndMark(t *testing.T) {
	s := newTestService(t, time.Minute)

	assert.False(t, s.CheckAndMark("msg-1"), "first delivery passes")
	assert.True(t, s.CheckAndMark("msg-1"), "redelivery is dropped")
	assert.False(t, s.CheckAndMark("msg-2"), "distinct id passes")
}

func TestEmptyIDNeverDuplicate(t *testing.T) {
	s := newTestService(t, time.Minute)

	// Messages without an id header cannot be deduplicated; they pass through.
	assert.False(t, s.CheckAndMark(""))
	assert.False(t, s.CheckAndMark(""))
	assert.Equal(t, 0, s.Size())
}

func TestExpiryReopensWindow(t *testing.T) {
	s := newTestService(t, 20*time.Millisecond)

	assert.False(t, s.CheckAndMark("msg-1"))
	time.Sleep(40 * time.Millisecond)
	assert.False(t, s.CheckAndMark("msg-1"), "expired id is treated as new")
}

func TestSeenMarkSeen(t *testing.T) {
	s := newTestService(t, time.Minute)

	assert.False(t, s.Seen("msg-1"))
	s.MarkSeen("msg-1")
	assert.True(t, s.Seen("msg-1"))
	assert.Equal(t, 1, s.Size())
}

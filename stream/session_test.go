package stream

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prcore/prcore/errors"
	"github.com/prcore/prcore/eventlog"
	"github.com/prcore/prcore/message"
)

// collector records emitted events.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) emit(_ context.Context, _ string, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) at(i int) Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[i]
}

func eventTable(n int, caseID string) *eventlog.Table {
	t := eventlog.NewTable(eventlog.ColumnCaseID, eventlog.ColumnActivity)
	for i := 0; i < n; i++ {
		t.Rows = append(t.Rows, eventlog.Row{
			eventlog.ColumnCaseID:   caseID,
			eventlog.ColumnActivity: fmt.Sprintf("act-%d", i),
		})
	}
	return t
}

func testConfig() Config {
	return Config{
		Interval:      time.Millisecond,
		SimulationCap: 100000,
		IdleRead:      time.Minute,
		IdleUnread:    time.Minute,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSessionEmitsAllEventsWithGrowingPrefix(t *testing.T) {
	c := &collector{}
	m := NewManager(testConfig(), c.emit, nil, nil)

	require.NoError(t, m.Start(context.Background(), "p1", eventTable(3, "c1"), false))
	waitFor(t, func() bool { return c.len() == 3 })

	s, ok := m.Session("p1")
	require.True(t, ok)
	waitFor(t, func() bool { return s.State() == StateFinished })

	for i := 0; i < 3; i++ {
		ev := c.at(i)
		assert.Equal(t, "c1", ev.CaseID)
		assert.NotEmpty(t, ev.EventID)
		assert.Equal(t, i+1, ev.Prefix.Len(), "prefix grows with the case")
	}
}

func TestDuplicateStartRejected(t *testing.T) {
	c := &collector{}
	m := NewManager(testConfig(), c.emit, nil, nil)

	// Large table so the session is still running.
	require.NoError(t, m.Start(context.Background(), "p1", eventTable(1000, "c1"), false))
	err := m.Start(context.Background(), "p1", eventTable(2, "c1"), false)
	assert.True(t, errors.Is(err, errors.ErrAlreadyStarted))

	require.NoError(t, m.Stop(context.Background(), "p1"))
}

func TestStopCancelsAndNotifies(t *testing.T) {
	c := &collector{}
	var stopMu sync.Mutex
	var stopped []string
	m := NewManager(testConfig(), c.emit, func(_ context.Context, projectID string) {
		stopMu.Lock()
		stopped = append(stopped, projectID)
		stopMu.Unlock()
	}, nil)

	require.NoError(t, m.Start(context.Background(), "p1", eventTable(1000, "c1"), false))
	require.NoError(t, m.Stop(context.Background(), "p1"))

	s, _ := m.Session("p1")
	waitFor(t, func() bool { return s.State() == StateFinished })
	stopMu.Lock()
	assert.Equal(t, []string{"p1"}, stopped)
	stopMu.Unlock()
}

func TestStopUnknownSession(t *testing.T) {
	m := NewManager(testConfig(), (&collector{}).emit, nil, nil)
	err := m.Stop(context.Background(), "nope")
	assert.True(t, errors.Is(err, errors.ErrSessionNotFound))
}

func TestSimulationCap(t *testing.T) {
	cfg := testConfig()
	cfg.SimulationCap = 5
	c := &collector{}
	m := NewManager(cfg, c.emit, nil, nil)

	require.NoError(t, m.Start(context.Background(), "p1", eventTable(100, "c1"), true))
	s, _ := m.Session("p1")
	waitFor(t, func() bool { return s.State() == StateFinished })
	assert.Equal(t, 5, c.len())
}

func TestFeedSingleReaderAndOrder(t *testing.T) {
	c := &collector{}
	m := NewManager(testConfig(), c.emit, nil, nil)
	require.NoError(t, m.Start(context.Background(), "p1", eventTable(1000, "c1"), false))
	defer m.Stop(context.Background(), "p1")

	reader, err := m.OpenReader("p1")
	require.NoError(t, err)

	_, err = m.OpenReader("p1")
	assert.True(t, errors.Is(err, errors.ErrDuplicateReader))

	m.Push("p1", &message.StreamingPrescriptionResult{EventID: "e1"})
	m.Push("p1", &message.StreamingPrescriptionResult{EventID: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	first, err := reader.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "e1", first.EventID)
	second, err := reader.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "e2", second.EventID)

	// Closing frees the slot for a new reader.
	reader.Close()
	again, err := m.OpenReader("p1")
	require.NoError(t, err)
	again.Close()
}

func TestFeedDropsOldestWhenFull(t *testing.T) {
	f := newFeed(2)
	f.push(&message.StreamingPrescriptionResult{EventID: "e1"})
	f.push(&message.StreamingPrescriptionResult{EventID: "e2"})
	f.push(&message.StreamingPrescriptionResult{EventID: "e3"})

	ctx := context.Background()
	r, err := f.next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "e2", r.EventID, "oldest was dropped")
	assert.Equal(t, int64(1), f.droppedCount())
}

func TestPushToUnknownSessionIsDropped(t *testing.T) {
	m := NewManager(testConfig(), (&collector{}).emit, nil, nil)
	// Must not panic.
	m.Push("nope", &message.StreamingPrescriptionResult{EventID: "e1"})
}

func TestWatchdogReapsUnreadSession(t *testing.T) {
	cfg := testConfig()
	cfg.IdleUnread = 10 * time.Millisecond
	c := &collector{}
	m := NewManager(cfg, c.emit, nil, nil)

	require.NoError(t, m.Start(context.Background(), "p1", eventTable(100000, "c1"), false))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx, 5*time.Millisecond)

	s, _ := m.Session("p1")
	waitFor(t, func() bool { return s.State() == StateFinished })
}

func TestWatchdogSparesActiveReader(t *testing.T) {
	cfg := testConfig()
	cfg.IdleRead = 10 * time.Millisecond
	cfg.IdleUnread = 10 * time.Millisecond
	c := &collector{}
	m := NewManager(cfg, c.emit, nil, nil)

	require.NoError(t, m.Start(context.Background(), "p1", eventTable(100000, "c1"), false))
	reader, err := m.OpenReader("p1")
	require.NoError(t, err)
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	s, _ := m.Session("p1")
	assert.Equal(t, StateRunning, s.State(), "attached reader keeps the session alive")
	require.NoError(t, m.Stop(context.Background(), "p1"))
}

func TestShutdownStopsEverything(t *testing.T) {
	c := &collector{}
	m := NewManager(testConfig(), c.emit, nil, nil)
	require.NoError(t, m.Start(context.Background(), "p1", eventTable(100000, "c1"), false))
	require.NoError(t, m.Start(context.Background(), "p2", eventTable(100000, "c2"), false))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.Shutdown(ctx)

	for _, id := range []string{"p1", "p2"} {
		s, ok := m.Session(id)
		require.True(t, ok)
		assert.Equal(t, StateFinished, s.State())
	}
}

// Package stream runs live and simulated event streams: each session walks a
// processed table row by row, hands every event to an emit callback (which
// publishes the prescription requests) and buffers replies in a server-push
// feed. Sessions are cancelled cooperatively through their context; a
// watchdog terminates sessions nobody reads.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prcore/prcore/errors"
	"github.com/prcore/prcore/eventlog"
	"github.com/prcore/prcore/message"
)

// State is a session's lifecycle state.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateFinished
)

// String returns the logging representation.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event is one emitted stream event: the row just observed plus the case
// prefix seen so far, identified for reply correlation.
type Event struct {
	EventID string
	CaseID  string
	Prefix  *eventlog.Table
}

// EmitFunc publishes the prescription requests for one event.
type EmitFunc func(ctx context.Context, projectID string, ev Event) error

// StopFunc notifies plugins that a project stopped streaming.
type StopFunc func(ctx context.Context, projectID string)

// Session is one live or simulated run bound to a project.
type Session struct {
	ProjectID  string
	Simulation bool

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	startedAt time.Time
	lastRead  time.Time
	everRead  bool
	reading   bool
	feed      *feed
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Config carries the streaming policy knobs.
type Config struct {
	// Interval between emitted events.
	Interval time.Duration
	// SimulationCap hard-limits simulation iterations as a runaway guard.
	SimulationCap int
	// IdleRead is the watchdog grace for sessions read at least once.
	IdleRead time.Duration
	// IdleUnread is the grace for sessions never read.
	IdleUnread time.Duration
	// FeedCapacity bounds each session's result buffer.
	FeedCapacity int
}

// Manager owns all streaming sessions.
type Manager struct {
	cfg    Config
	emit   EmitFunc
	stop   StopFunc
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	wg sync.WaitGroup
}

// NewManager creates a session manager. emit is required; stop may be nil.
func NewManager(cfg Config, emit EmitFunc, stop StopFunc, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Manager{
		cfg:      cfg,
		emit:     emit,
		stop:     stop,
		logger:   logger.With("component", "stream"),
		sessions: make(map[string]*Session),
	}
}

// Start launches a session walking the given processed table. One session
// per project; starting while one runs returns ErrAlreadyStarted.
func (m *Manager) Start(ctx context.Context, projectID string, events *eventlog.Table, simulation bool) error {
	m.mu.Lock()
	if existing, ok := m.sessions[projectID]; ok && existing.State() == StateRunning {
		m.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "stream", "Start", "project "+projectID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		ProjectID:  projectID,
		Simulation: simulation,
		state:      StateRunning,
		cancel:     cancel,
		startedAt:  time.Now(),
		feed:       newFeed(m.cfg.FeedCapacity),
	}
	m.sessions[projectID] = s
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(runCtx, s, events)
	m.logger.Info("session started",
		"project_id", projectID, "simulation", simulation, "rows", events.Len())
	return nil
}

// run is the session loop: one event per interval, prefix per case, until
// cancellation, input exhaustion or the simulation cap.
func (m *Manager) run(ctx context.Context, s *Session, events *eventlog.Table) {
	defer m.wg.Done()
	defer m.finish(s)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	prefixes := make(map[string][]eventlog.Row)
	for i, row := range events.Rows {
		if s.Simulation && m.cfg.SimulationCap > 0 && i >= m.cfg.SimulationCap {
			m.logger.Warn("simulation iteration cap reached",
				"project_id", s.ProjectID, "cap", m.cfg.SimulationCap)
			return
		}

		caseID, _ := row[eventlog.ColumnCaseID].(string)
		if caseID == "" {
			continue
		}
		prefixes[caseID] = append(prefixes[caseID], row)
		ev := Event{
			EventID: uuid.NewString(),
			CaseID:  caseID,
			Prefix: &eventlog.Table{
				Columns: events.Columns,
				Rows:    prefixes[caseID],
			},
		}
		if err := m.emit(ctx, s.ProjectID, ev); err != nil {
			m.logger.Error("emit failed", "project_id", s.ProjectID, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) finish(s *Session) {
	s.mu.Lock()
	s.state = StateFinished
	s.mu.Unlock()
	m.logger.Info("session finished", "project_id", s.ProjectID,
		"dropped_results", s.feed.droppedCount())
}

// Stop cancels a session and notifies plugins so they can evict cached model
// state. Stopping an unknown or finished session is an error the caller can
// surface.
func (m *Manager) Stop(ctx context.Context, projectID string) error {
	m.mu.Lock()
	s, ok := m.sessions[projectID]
	m.mu.Unlock()
	if !ok {
		return errors.WrapInvalid(errors.ErrSessionNotFound, "stream", "Stop", "project "+projectID)
	}

	s.cancel()
	if m.stop != nil {
		m.stop(ctx, projectID)
	}
	return nil
}

// Push merges a plugin's streaming reply into the session feed. Replies for
// unknown sessions are dropped; fire-and-forget means late results after a
// stop are normal.
func (m *Manager) Push(projectID string, result *message.StreamingPrescriptionResult) {
	m.mu.Lock()
	s, ok := m.sessions[projectID]
	m.mu.Unlock()
	if !ok {
		m.logger.Debug("dropping result for unknown session", "project_id", projectID)
		return
	}
	s.feed.push(result)
}

// Reader consumes one session's feed.
type Reader struct {
	session *Session
}

// OpenReader attaches the single permitted reader to a session feed.
func (m *Manager) OpenReader(projectID string) (*Reader, error) {
	m.mu.Lock()
	s, ok := m.sessions[projectID]
	m.mu.Unlock()
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrSessionNotFound, "stream", "OpenReader", "project "+projectID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reading {
		return nil, errors.WrapInvalid(errors.ErrDuplicateReader, "stream", "OpenReader", "project "+projectID)
	}
	s.reading = true
	s.everRead = true
	s.lastRead = time.Now()
	return &Reader{session: s}, nil
}

// Next returns the oldest unread result, blocking until one arrives.
func (r *Reader) Next(ctx context.Context) (*message.StreamingPrescriptionResult, error) {
	res, err := r.session.feed.next(ctx)
	if err != nil {
		return nil, err
	}
	r.session.mu.Lock()
	r.session.lastRead = time.Now()
	r.session.mu.Unlock()
	return res, nil
}

// Close releases the reader slot.
func (r *Reader) Close() {
	r.session.mu.Lock()
	r.session.reading = false
	r.session.lastRead = time.Now()
	r.session.mu.Unlock()
}

// Watch runs the idle watchdog until ctx is cancelled: sessions past their
// read grace (or never-read grace) are auto-terminated so orphaned background
// work does not accumulate.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapIdle(ctx)
		}
	}
}

func (m *Manager) reapIdle(ctx context.Context) {
	now := time.Now()
	m.mu.Lock()
	var idle []string
	for id, s := range m.sessions {
		s.mu.Lock()
		running := s.state == StateRunning
		var deadline time.Time
		if s.everRead {
			deadline = s.lastRead.Add(m.cfg.IdleRead)
		} else {
			deadline = s.startedAt.Add(m.cfg.IdleUnread)
		}
		reading := s.reading
		s.mu.Unlock()

		if running && !reading && now.After(deadline) {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	for _, id := range idle {
		m.logger.Warn("terminating idle session", "project_id", id)
		if err := m.Stop(ctx, id); err != nil {
			m.logger.Warn("idle stop failed", "project_id", id, "error", err)
		}
	}
}

// Session returns the session for a project, if any.
func (m *Manager) Session(projectID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[projectID]
	return s, ok
}

// Remove drops a finished session record.
func (m *Manager) Remove(projectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[projectID]; ok && s.State() != StateRunning {
		delete(m.sessions, projectID)
	}
}

// Shutdown cancels every session and waits for their loops to exit.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	for _, s := range m.sessions {
		s.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eternisai/leadgen-assistant/internal/logger"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many active sessions")
	ErrManagerShutdown = errors.New("session manager is shut down")
)

// Manager owns the live generation sessions.
//
// Responsibilities:
//   - Create sessions with shared options
//   - Limit concurrent sessions, evicting the oldest finished one at the limit
//   - Expire idle sessions
//   - Close sessions (stopping their pollers) on delete and on shutdown
//
// Thread-safety: All methods are thread-safe.
type Manager struct {
	sessions   map[string]*Session
	sessionsMu sync.RWMutex
	backend    JobBackend
	opts       Options
	maxActive  int
	onChange   func(active int)
	base       *logger.Logger
	logger     *logger.Logger
	now        func() time.Time
	shutdown   bool

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// NewManager creates a session manager. maxActive <= 0 disables the limit.
func NewManager(jobs JobBackend, opts Options, maxActive int, log *logger.Logger) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		backend:   jobs,
		opts:      opts,
		maxActive: maxActive,
		base:      log,
		logger:    log.WithComponent("session_manager"),
		now:       opts.withDefaults().Now,
	}
}

// OnActiveChange registers fn to receive the session count after every change.
func (m *Manager) OnActiveChange(fn func(active int)) {
	m.sessionsMu.Lock()
	m.onChange = fn
	m.sessionsMu.Unlock()
}

// Create starts a new session for userID. At the limit the least recently
// updated finished session is evicted; without one the call fails.
func (m *Manager) Create(userID string) (*Session, error) {
	m.sessionsMu.Lock()

	if m.shutdown {
		m.sessionsMu.Unlock()
		return nil, ErrManagerShutdown
	}

	var evicted *Session
	if m.maxActive > 0 && len(m.sessions) >= m.maxActive {
		evicted = m.oldestFinishedLocked()
		if evicted == nil {
			active := len(m.sessions)
			m.sessionsMu.Unlock()
			m.logger.Error("too many active sessions",
				slog.Int("active", active),
				slog.Int("max", m.maxActive))
			return nil, fmt.Errorf("%w: %d/%d", ErrTooManySessions, active, m.maxActive)
		}
		delete(m.sessions, evicted.ID())
	}

	s := NewSession(userID, m.backend, m.opts, m.base)
	m.sessions[s.ID()] = s
	active, onChange := len(m.sessions), m.onChange
	m.sessionsMu.Unlock()

	if evicted != nil {
		evicted.Close()
		m.logger.Info("evicted finished session",
			slog.String("session_id", evicted.ID()),
			slog.String("reason", "session limit"))
	}

	if onChange != nil {
		onChange(active)
	}

	m.logger.Info("created generation session",
		slog.String("session_id", s.ID()),
		slog.String("user_id", userID),
		slog.Int("active_sessions", active))

	return s, nil
}

func (m *Manager) oldestFinishedLocked() *Session {
	var (
		oldest   *Session
		oldestAt time.Time
	)
	for _, s := range m.sessions {
		phase, updatedAt := s.activity()
		if phase != PhaseDone {
			continue
		}
		if oldest == nil || updatedAt.Before(oldestAt) {
			oldest, oldestAt = s, updatedAt
		}
	}
	return oldest
}

// ExpireIdle closes sessions not updated for ttl. Sessions with a job in
// flight are kept; their polling is bounded by the poll timeout. It returns
// the number of expired sessions.
func (m *Manager) ExpireIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-ttl)

	m.sessionsMu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		phase, updatedAt := s.activity()
		if phase == PhaseSubmitting || phase == PhasePolling {
			continue
		}
		if updatedAt.Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	active, onChange := len(m.sessions), m.onChange
	m.sessionsMu.Unlock()

	if len(expired) == 0 {
		return 0
	}

	for _, s := range expired {
		s.Close()
	}
	if onChange != nil {
		onChange(active)
	}

	m.logger.Info("expired idle sessions",
		slog.Int("expired", len(expired)),
		slog.Int("active_sessions", active))
	return len(expired)
}

// StartSweeper runs ExpireIdle every interval until Shutdown. ttl <= 0 disables it.
func (m *Manager) StartSweeper(ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	m.sessionsMu.Lock()
	if m.shutdown || m.sweepStop != nil {
		m.sessionsMu.Unlock()
		return
	}
	stop, done := make(chan struct{}), make(chan struct{})
	m.sweepStop, m.sweepDone = stop, done
	m.sessionsMu.Unlock()

	m.logger.Info("starting idle session sweeper",
		slog.Duration("ttl", ttl),
		slog.Duration("interval", interval))

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.ExpireIdle(ttl)
			case <-stop:
				return
			}
		}
	}()
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete closes and forgets a session.
func (m *Manager) Delete(id string) error {
	m.sessionsMu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	active, onChange := len(m.sessions), m.onChange
	m.sessionsMu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	s.Close()
	if onChange != nil {
		onChange(active)
	}

	m.logger.Info("deleted generation session",
		slog.String("session_id", id),
		slog.Int("active_sessions", active))
	return nil
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()
	return len(m.sessions)
}

// Status returns debug information about live sessions: session id → phase.
func (m *Manager) Status() map[string]Phase {
	m.sessionsMu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessionsMu.RUnlock()

	status := make(map[string]Phase, len(sessions))
	for _, s := range sessions {
		status[s.ID()] = s.Snapshot().Phase
	}
	return status
}

// Shutdown closes every session and waits for their pollers, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.sessionsMu.Lock()
	m.shutdown = true
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	onChange := m.onChange
	sweepStop, sweepDone := m.sweepStop, m.sweepDone
	m.sweepStop = nil
	m.sessionsMu.Unlock()

	if sweepStop != nil {
		close(sweepStop)
		<-sweepDone
	}

	m.logger.Info("shutting down session manager", slog.Int("active_sessions", len(sessions)))

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if onChange != nil {
		onChange(0)
	}

	select {
	case <-done:
		m.logger.Info("all sessions shut down successfully")
		return nil
	case <-ctx.Done():
		m.logger.Warn("session manager shutdown timed out, some pollers may still be running")
		return fmt.Errorf("shutdown session manager: %w", ctx.Err())
	}
}

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"news-orchestrator/internal/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is returned for unknown or ended session ids.
var ErrNotFound = errors.New("session not found")

// Manager keeps the live sessions of the process. The least recently used session is
// ended when capacity is exceeded.
type Manager struct {
	sessions *lru.Cache[string, *Session]
	encoder  domain.VectorEncoder
	maxTurns int
	logger   *slog.Logger
	onChange func(live int)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLiveSessionsHook is called with the number of live sessions after every change.
func WithLiveSessionsHook(fn func(live int)) ManagerOption {
	return func(m *Manager) { m.onChange = fn }
}

// NewManager creates a registry holding at most capacity sessions.
func NewManager(capacity int, encoder domain.VectorEncoder, maxTurns int, logger *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{encoder: encoder, maxTurns: maxTurns, logger: logger, onChange: func(int) {}}
	for _, opt := range opts {
		opt(m)
	}
	cache, err := lru.NewWithEvict(capacity, func(id string, s *Session) {
		s.End()
		m.logger.Info("session_closed", slog.String("session_id", id))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session registry: %w", err)
	}
	m.sessions = cache
	return m, nil
}

// Start opens a new session.
func (m *Manager) Start() *Session {
	s := New(NewMemory(m.encoder, m.maxTurns, m.logger))
	m.sessions.Add(s.ID, s)
	m.onChange(m.sessions.Len())
	m.logger.Info("session_started", slog.String("session_id", s.ID))
	return s
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok || s.Ended() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// End closes a session and discards its state.
func (m *Manager) End(id string) error {
	// Remove fires the evict callback, which ends the session.
	if !m.sessions.Remove(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.onChange(m.sessions.Len())
	return nil
}

func (m *Manager) Len() int { return m.sessions.Len() }

// EndIdle ends every session that is not busy and was last active before cutoff.
// It returns the number of sessions ended.
func (m *Manager) EndIdle(cutoff time.Time) int {
	ended := 0
	for _, id := range m.sessions.Keys() {
		s, ok := m.sessions.Peek(id)
		if !ok || s.Busy() || !s.LastActive().Before(cutoff) {
			continue
		}
		if m.sessions.Remove(id) {
			ended++
		}
	}
	if ended > 0 {
		m.onChange(m.sessions.Len())
	}
	return ended
}

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"news-orchestrator/internal/domain"

	"github.com/google/uuid"
)

// ErrSessionEnded is returned when a turn is attempted on an ended session.
var ErrSessionEnded = errors.New("session ended")

// Session owns the conversational state of one user. Turns on a session are strictly ordered.
type Session struct {
	ID        string
	StartedAt time.Time

	memory *Memory
	// turnLock is a one-slot semaphore so waiting for a turn can be cancelled.
	turnLock chan struct{}

	mu         sync.RWMutex
	seq        int64
	lastTurn   *domain.ConversationTurn
	lastBundle *domain.EvidenceBundle

	ended      atomic.Bool
	lastActive atomic.Int64
	now        func() time.Time
}

// New creates a session with a fresh id.
func New(memory *Memory) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		memory:    memory,
		turnLock:  make(chan struct{}, 1),
		now:       time.Now,
	}
	s.touch()
	return s
}

// Acquire blocks until the caller owns the session's turn, or ctx is done.
func (s *Session) Acquire(ctx context.Context) (release func(), err error) {
	if s.ended.Load() {
		return nil, ErrSessionEnded
	}
	select {
	case s.turnLock <- struct{}{}:
		if s.ended.Load() {
			<-s.turnLock
			s.resetIfIdle()
			return nil, ErrSessionEnded
		}
		s.touch()
		return func() {
			s.touch()
			<-s.turnLock
			if s.ended.Load() {
				s.resetIfIdle()
			}
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) touch() { s.lastActive.Store(s.now().UnixNano()) }

// LastActive is when a turn last started or finished on the session.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// Busy reports whether a turn is in progress.
func (s *Session) Busy() bool { return len(s.turnLock) > 0 }

func (s *Session) Memory() *Memory { return s.memory }

// LastTurn returns a copy of the most recently recorded turn, or nil.
func (s *Session) LastTurn() *domain.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastTurn == nil {
		return nil
	}
	t := *s.lastTurn
	return &t
}

// LastBundle returns a copy of the evidence of the most recent turn, or nil.
func (s *Session) LastBundle() *domain.EvidenceBundle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastBundle.Clone()
}

// Record completes a turn: it assigns the sequence number and timestamp, appends the turn
// to memory and makes it the last turn. bundle becomes the evidence follow-ups can reuse;
// a bundle without evidence keeps the previous one.
func (s *Session) Record(ctx context.Context, turn domain.ConversationTurn, bundle *domain.EvidenceBundle) domain.ConversationTurn {
	s.mu.Lock()
	s.seq++
	turn.Sequence = s.seq
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}
	s.mu.Unlock()

	if s.memory != nil {
		s.memory.Append(ctx, turn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := turn
	s.lastTurn = &t
	if bundle.HasEvidence() {
		s.lastBundle = bundle.Clone()
	}
	return turn
}

// Reset clears memory and the prior turn and evidence. The session stays usable.
func (s *Session) Reset() {
	if s.memory != nil {
		s.memory.Clear()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTurn = nil
	s.lastBundle = nil
}

// End rejects further turns and resets the session. A turn in progress keeps
// its state until it releases; the reset runs then.
func (s *Session) End() {
	s.ended.Store(true)
	s.resetIfIdle()
}

// resetIfIdle resets the session unless a turn holds it.
func (s *Session) resetIfIdle() {
	select {
	case s.turnLock <- struct{}{}:
		s.Reset()
		<-s.turnLock
	default:
	}
}

func (s *Session) Ended() bool { return s.ended.Load() }

// Turns is the number of turns recorded since the last reset.
func (s *Session) Turns() int {
	if s.memory == nil {
		return 0
	}
	return s.memory.Len()
}

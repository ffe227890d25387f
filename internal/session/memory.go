package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"news-orchestrator/internal/adapter/vectorindex"
	"news-orchestrator/internal/domain"
)

// Memory is a session's conversation memory. It is searchable by similarity and lives in its
// own vector namespace, so lookups only ever yield conversation turns.
type Memory struct {
	encoder  domain.VectorEncoder
	store    *vectorindex.Store
	maxTurns int
	logger   *slog.Logger

	mu    sync.RWMutex
	turns []domain.ConversationTurn
}

// NewMemory creates an empty memory. maxTurns <= 0 keeps every turn.
func NewMemory(encoder domain.VectorEncoder, maxTurns int, logger *slog.Logger) *Memory {
	return &Memory{
		encoder:  encoder,
		store:    vectorindex.NewStore(vectorindex.NamespaceConversation),
		maxTurns: maxTurns,
		logger:   logger,
	}
}

func turnKey(seq int64) string { return fmt.Sprintf("turn:%d", seq) }

// Append records a completed turn. An embedding failure still stores the turn text.
func (m *Memory) Append(ctx context.Context, turn domain.ConversationTurn) {
	text := turn.MemoryText()
	if m.encoder != nil && len(turn.Embedding) == 0 {
		vectors, err := m.encoder.Encode(ctx, []string{text})
		if err != nil || len(vectors) == 0 {
			attrs := []any{slog.Int64("turn_seq", turn.Sequence)}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			m.logger.Warn("memory_embedding_failed", attrs...)
		} else {
			turn.Embedding = vectors[0]
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Upsert(vectorindex.Record{
		ID:        turnKey(turn.Sequence),
		Namespace: vectorindex.NamespaceConversation,
		Vector:    turn.Embedding,
		Text:      text,
	}); err != nil {
		m.logger.Warn("memory_store_failed",
			slog.Int64("turn_seq", turn.Sequence),
			slog.String("error", err.Error()))
		_ = m.store.Upsert(vectorindex.Record{ID: turnKey(turn.Sequence), Text: text})
		turn.Embedding = nil
	}
	m.turns = append(m.turns, turn)

	if m.maxTurns > 0 && len(m.turns) > m.maxTurns {
		evicted := m.turns[0]
		m.turns = m.turns[1:]
		m.store.Delete(turnKey(evicted.Sequence))
	}
}

// MostRelevant returns up to limit turns ranked by similarity to query.
// When the query cannot be embedded, or no turn has a vector, the newest turns are returned instead.
func (m *Memory) MostRelevant(ctx context.Context, query string, limit int) []domain.ConversationTurn {
	if limit <= 0 {
		return nil
	}

	var queryVec []float32
	if m.encoder != nil {
		vectors, err := m.encoder.Encode(ctx, []string{query})
		if err != nil {
			m.logger.Warn("memory_lookup_embedding_failed", slog.String("error", err.Error()))
		} else if len(vectors) > 0 {
			queryVec = vectors[0]
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(queryVec) > 0 {
		matches, err := m.store.Search(queryVec, limit)
		if err != nil {
			m.logger.Warn("memory_lookup_failed", slog.String("error", err.Error()))
		} else if len(matches) > 0 {
			bySeq := make(map[string]domain.ConversationTurn, len(m.turns))
			for _, t := range m.turns {
				bySeq[turnKey(t.Sequence)] = t
			}
			out := make([]domain.ConversationTurn, 0, len(matches))
			for _, match := range matches {
				if t, ok := bySeq[match.ID]; ok {
					out = append(out, t)
				}
			}
			return out
		}
	}
	return m.recentLocked(limit)
}

func (m *Memory) recentLocked(limit int) []domain.ConversationTurn {
	out := make([]domain.ConversationTurn, 0, limit)
	for i := len(m.turns) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.turns[i])
	}
	return out
}

// Turns returns every remembered turn in append order.
func (m *Memory) Turns() []domain.ConversationTurn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ConversationTurn, len(m.turns))
	copy(out, m.turns)
	return out
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// Clear forgets every turn.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
	m.store.Clear()
}

package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"news-orchestrator/internal/domain"
	"news-orchestrator/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// keywordEncoder maps text to a 3-d vector by keyword presence.
type keywordEncoder struct {
	fail bool
}

func (e *keywordEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	if e.fail {
		return nil, errors.New("encoder down")
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		t = strings.ToLower(t)
		v := []float32{0.01, 0.01, 0.01}
		if strings.Contains(t, "solar") {
			v[0] = 1
		}
		if strings.Contains(t, "football") {
			v[1] = 1
		}
		if strings.Contains(t, "election") {
			v[2] = 1
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *keywordEncoder) Version() string { return "keyword" }

func turn(in, out string) domain.ConversationTurn {
	return domain.ConversationTurn{InputText: in, OutputText: out, Route: domain.RouteNewSemantic}
}

func TestMemory_MostRelevantBySimilarity(t *testing.T) {
	s := session.New(session.NewMemory(&keywordEncoder{}, 0, discardLogger()))
	ctx := context.Background()
	s.Record(ctx, turn("solar records", "Spain set a solar record."), nil)
	s.Record(ctx, turn("football scores", "Two matches."), nil)
	s.Record(ctx, turn("election news", "Polls opened."), nil)

	got := s.Memory().MostRelevant(ctx, "tell me more about solar", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "solar records", got[0].InputText)
	assert.Equal(t, int64(1), got[0].Sequence)
}

func TestMemory_FallsBackToRecencyWhenEncoderFails(t *testing.T) {
	enc := &keywordEncoder{}
	mem := session.NewMemory(enc, 0, discardLogger())
	s := session.New(mem)
	ctx := context.Background()
	s.Record(ctx, turn("a", "1"), nil)
	s.Record(ctx, turn("b", "2"), nil)
	s.Record(ctx, turn("c", "3"), nil)

	enc.fail = true
	got := mem.MostRelevant(ctx, "anything", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].InputText)
	assert.Equal(t, "b", got[1].InputText)

	s.Record(ctx, turn("d", "4"), nil)
	assert.Equal(t, 4, mem.Len(), "append still stores the turn without an embedding")
}

func TestMemory_RingBufferWhenBounded(t *testing.T) {
	mem := session.NewMemory(&keywordEncoder{}, 2, discardLogger())
	s := session.New(mem)
	ctx := context.Background()
	s.Record(ctx, turn("solar one", "x"), nil)
	s.Record(ctx, turn("football two", "y"), nil)
	s.Record(ctx, turn("election three", "z"), nil)

	turns := mem.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "football two", turns[0].InputText)

	for _, got := range mem.MostRelevant(ctx, "solar", 5) {
		assert.NotEqual(t, "solar one", got.InputText)
	}
}

func TestMemory_UnboundedByDefault(t *testing.T) {
	mem := session.NewMemory(&keywordEncoder{}, 0, discardLogger())
	s := session.New(mem)
	for i := 0; i < 50; i++ {
		s.Record(context.Background(), turn("q", "a"), nil)
	}
	assert.Equal(t, 50, mem.Len())
}

func TestSession_RecordAssignsMonotonicSequence(t *testing.T) {
	s := session.New(session.NewMemory(nil, 0, discardLogger()))
	first := s.Record(context.Background(), turn("a", "1"), nil)
	second := s.Record(context.Background(), turn("b", "2"), nil)

	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, int64(2), second.Sequence)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, second.CreatedAt.IsZero())
	assert.Equal(t, "b", s.LastTurn().InputText)
}

func TestSession_LastBundleKeepsLastEvidence(t *testing.T) {
	s := session.New(session.NewMemory(nil, 0, discardLogger()))
	bundle := &domain.EvidenceBundle{StructuredRows: []domain.StructuredRow{{"article_id": "7"}}, Pipeline: domain.PipelineSemantic}

	s.Record(context.Background(), turn("a", "1"), bundle)
	s.Record(context.Background(), turn("b", "none"), domain.NewEmptyBundle(domain.PipelineSemantic))

	got := s.LastBundle()
	require.NotNil(t, got)
	assert.Equal(t, []string{"7"}, got.ArticleIDs())

	got.StructuredRows[0]["article_id"] = "mutated"
	assert.Equal(t, []string{"7"}, s.LastBundle().ArticleIDs())
}

func TestSession_ResetClearsState(t *testing.T) {
	s := session.New(session.NewMemory(&keywordEncoder{}, 0, discardLogger()))
	s.Record(context.Background(), turn("a", "1"), &domain.EvidenceBundle{StructuredRows: []domain.StructuredRow{{"article_id": "7"}}})

	s.Reset()

	assert.Nil(t, s.LastTurn())
	assert.Nil(t, s.LastBundle())
	assert.Equal(t, 0, s.Turns())
}

func TestSession_AcquireSerializesTurns(t *testing.T) {
	s := session.New(session.NewMemory(nil, 0, discardLogger()))
	release, err := s.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release2, err := s.Acquire(context.Background())
	require.NoError(t, err)
	release2()

	s.End()
	_, err = s.Acquire(context.Background())
	assert.ErrorIs(t, err, session.ErrSessionEnded)
}

func TestSession_EndDuringTurnResetsOnRelease(t *testing.T) {
	s := session.New(session.NewMemory(nil, 0, discardLogger()))
	release, err := s.Acquire(context.Background())
	require.NoError(t, err)

	s.End()
	assert.True(t, s.Ended())
	s.Record(context.Background(), turn("a", "1"), &domain.EvidenceBundle{StructuredRows: []domain.StructuredRow{{"article_id": "7"}}})
	require.NotNil(t, s.LastTurn(), "the running turn keeps its state")
	assert.Equal(t, 1, s.Turns())

	release()

	assert.Nil(t, s.LastTurn())
	assert.Nil(t, s.LastBundle())
	assert.Equal(t, 0, s.Turns())
	assert.False(t, s.Busy())
}

func TestManager_Lifecycle(t *testing.T) {
	var live []int
	m, err := session.NewManager(2, nil, 0, discardLogger(), session.WithLiveSessionsHook(func(n int) { live = append(live, n) }))
	require.NoError(t, err)

	a := m.Start()
	b := m.Start()
	got, err := m.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	require.NoError(t, m.End(b.ID))
	assert.True(t, b.Ended())
	_, err = m.Get(b.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.ErrorIs(t, m.End(b.ID), session.ErrNotFound)
	assert.Equal(t, []int{1, 2, 1}, live)
}

func TestManager_EvictsLeastRecentlyUsed(t *testing.T) {
	m, err := session.NewManager(2, nil, 0, discardLogger())
	require.NoError(t, err)

	a := m.Start()
	b := m.Start()
	_, _ = m.Get(a.ID)
	c := m.Start()

	assert.True(t, b.Ended())
	assert.False(t, a.Ended())
	assert.False(t, c.Ended())
	assert.Equal(t, 2, m.Len())
}

func TestManager_EvictedBusySessionFinishesTurn(t *testing.T) {
	m, err := session.NewManager(1, nil, 0, discardLogger())
	require.NoError(t, err)

	a := m.Start()
	release, err := a.Acquire(context.Background())
	require.NoError(t, err)
	a.Record(context.Background(), turn("solar", "x"), nil)

	m.Start()

	assert.True(t, a.Ended())
	assert.True(t, a.Busy())
	require.NotNil(t, a.LastTurn())
	assert.Equal(t, "solar", a.LastTurn().InputText)

	release()

	assert.Nil(t, a.LastTurn())
	assert.Equal(t, 0, a.Turns())
	_, err = a.Acquire(context.Background())
	assert.ErrorIs(t, err, session.ErrSessionEnded)
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	m, err := session.NewManager(4, &keywordEncoder{}, 0, discardLogger())
	require.NoError(t, err)
	a, b := m.Start(), m.Start()

	a.Record(context.Background(), turn("solar", "x"), nil)

	assert.Equal(t, 1, a.Turns())
	assert.Equal(t, 0, b.Turns())
	assert.Nil(t, b.LastTurn())
}

func TestManager_EndIdleSkipsBusySessions(t *testing.T) {
	var live []int
	m, err := session.NewManager(4, nil, 0, discardLogger(), session.WithLiveSessionsHook(func(n int) { live = append(live, n) }))
	require.NoError(t, err)

	idle := m.Start()
	busy := m.Start()
	release, err := busy.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	assert.Equal(t, 0, m.EndIdle(time.Now().Add(-time.Hour)), "nothing is older than an hour")

	n := m.EndIdle(time.Now().Add(time.Minute))
	assert.Equal(t, 1, n)
	assert.True(t, idle.Ended())
	assert.False(t, busy.Ended())
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, live[len(live)-1])
}

func TestSession_LastActiveAdvancesOnTurn(t *testing.T) {
	s := session.New(nil)
	before := s.LastActive()

	time.Sleep(2 * time.Millisecond)
	release, err := s.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Busy())
	release()

	assert.False(t, s.Busy())
	assert.True(t, s.LastActive().After(before))
}

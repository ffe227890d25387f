package usecase_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"news-orchestrator/internal/domain"
	"news-orchestrator/internal/session"
	"news-orchestrator/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type answerFixture struct {
	structured *MockStructuredStore
	summaries  *MockSummaryStore
	index      *MockEmbeddingIndex
	llm        *mockLLMClient
	observer   *recordingObserver
	uc         usecase.AnswerQueryUsecase
	sess       *session.Session
}

// newAnswerFixture scores every query against the last turn with similarity.
func newAnswerFixture(t *testing.T, similarity float64) *answerFixture {
	t.Helper()
	f := &answerFixture{
		structured: new(MockStructuredStore),
		summaries:  new(MockSummaryStore),
		index:      new(MockEmbeddingIndex),
		llm:        new(mockLLMClient),
		observer:   &recordingObserver{},
	}
	cfg := usecase.DefaultRetrievalConfig()
	classifier := usecase.NewQueryClassifier(
		usecase.NewSimilarityFollowUpDetector(func(string, string) float64 { return similarity }, 0.4),
		usecase.HeuristicSplitter{},
		discardLogger(),
	)
	retrieve := usecase.NewRetrieveEvidenceUsecase(f.structured, f.summaries, f.index, cfg, discardLogger())
	composer := usecase.NewAnswerComposer(usecase.NewXMLPromptBuilder(), f.llm, 512, discardLogger())
	grounding := usecase.DefaultGroundingConfig()
	grounding.Enabled = false
	validator := usecase.NewGroundingValidator(nil, grounding, discardLogger())

	f.uc = usecase.NewAnswerQueryUsecase(classifier, retrieve, composer, validator, cfg, discardLogger(),
		usecase.WithAnswerObserver(f.observer))
	f.sess = session.New(session.NewMemory(nil, 0, discardLogger()))
	return f
}

func (f *answerFixture) expectRenewableRetrieval() {
	f.index.On("Search", mock.Anything, "articles about renewable energy", 5).
		Return([]domain.ScoredID{{ID: "7", Score: 0.9}, {ID: "12", Score: 0.8}}, nil).Once()
	f.structured.On("Query", mock.Anything, "", idFilter("7", "12")).Return(renewableRows(), nil).Once()
	f.summaries.On("Fetch", mock.Anything, []string{"7", "12"}).
		Return(map[string]string{"7": "Renewable solar output hit a record.", "12": "A renewable wind farm opened."}, nil).Once()
}

func (f *answerFixture) assertNoGatewayCalls(t *testing.T) {
	t.Helper()
	f.index.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
	f.structured.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
	f.summaries.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestAnswer_ExitPerformsNoGatewayCalls(t *testing.T) {
	f := newAnswerFixture(t, 0)

	ans, err := f.uc.Answer(context.Background(), "exit", f.sess)

	require.NoError(t, err)
	assert.Equal(t, usecase.ClosingMessage, ans.Text)
	assert.True(t, ans.Terminated)
	assert.Empty(t, ans.References)
	f.assertNoGatewayCalls(t)
	f.llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, f.sess.Turns())
}

func TestAnswer_SemanticThenSummarizeReusesBundle(t *testing.T) {
	f := newAnswerFixture(t, 0.9)
	f.expectRenewableRetrieval()
	f.llm.On("Chat", mock.Anything, mock.Anything, 512).Return(&domain.LLMResponse{Text: "Two renewable articles.", Done: true}, nil)

	first, err := f.uc.Answer(context.Background(), "articles about renewable energy", f.sess)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteNewSemantic, first.Route)
	require.Len(t, first.References, 2)
	assert.Equal(t, "https://news.example/7", first.References[0].URL)

	second, err := f.uc.Answer(context.Background(), "summarize that", f.sess)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteFollowUp, second.Route)
	assert.Equal(t, first.References, second.References)

	f.index.AssertNumberOfCalls(t, "Search", 1)
	f.structured.AssertNumberOfCalls(t, "Query", 1)
	f.summaries.AssertNumberOfCalls(t, "Fetch", 1)

	lastCall := f.llm.Calls[len(f.llm.Calls)-1]
	msgs := lastCall.Arguments.Get(1).([]domain.Message)
	assert.Contains(t, msgs[0].Content, "point by point")
	assert.Equal(t, 2, f.sess.Turns())
	assert.Equal(t, int64(2), second.TurnSeq)
}

func TestAnswer_ReusedBundleKeepsOriginalPipelineOnTurn(t *testing.T) {
	f := newAnswerFixture(t, 0.9)
	f.expectRenewableRetrieval()
	f.llm.On("Chat", mock.Anything, mock.Anything, 512).Return(&domain.LLMResponse{Text: "Two renewable articles.", Done: true}, nil)

	_, err := f.uc.Answer(context.Background(), "articles about renewable energy", f.sess)
	require.NoError(t, err)
	second, err := f.uc.Answer(context.Background(), "summarize that", f.sess)
	require.NoError(t, err)

	assert.Equal(t, domain.PipelineFollowUp, second.Pipeline)
	require.NotNil(t, f.sess.LastTurn())
	assert.Equal(t, domain.PipelineSemantic, f.sess.LastTurn().Pipeline)
	assert.Equal(t, domain.PipelineSemantic, f.sess.LastBundle().Pipeline)

	third, err := f.uc.Answer(context.Background(), "in short please", f.sess)
	require.NoError(t, err)
	assert.Equal(t, second.References, third.References)
	assert.Equal(t, domain.PipelineSemantic, f.sess.LastTurn().Pipeline)
	f.index.AssertNumberOfCalls(t, "Search", 1)
}

func TestAnswer_RefineFollowUpRoutesOnItsOwnText(t *testing.T) {
	f := newAnswerFixture(t, 0.9)
	f.expectRenewableRetrieval()
	f.llm.On("Chat", mock.Anything, mock.Anything, 512).Return(&domain.LLMResponse{Text: "Here you go.", Done: true}, nil)

	query := "what about other articles written by Dana"
	f.structured.On("Query", mock.Anything, query, noFilter()).Return([]domain.StructuredRow{
		{"article_id": "21", "title": "Grid storage", "author": "Dana Reyes", "reference_link": "https://news.example/21"},
	}, nil).Once()
	f.summaries.On("Fetch", mock.Anything, []string{"21"}).Return(map[string]string{"21": "Batteries scaled up."}, nil).Once()

	first, err := f.uc.Answer(context.Background(), "articles about renewable energy", f.sess)
	require.NoError(t, err)
	assert.Equal(t, domain.PipelineSemantic, first.Pipeline)

	second, err := f.uc.Answer(context.Background(), query, f.sess)
	require.NoError(t, err)

	assert.Equal(t, domain.RouteFollowUp, second.Route)
	assert.Equal(t, domain.PipelineStructured, second.Pipeline)
	require.Len(t, second.References, 1)
	assert.Equal(t, "https://news.example/21", second.References[0].URL)
	f.structured.AssertCalled(t, "Query", mock.Anything, query, noFilter())
	f.index.AssertNumberOfCalls(t, "Search", 1)
	assert.Equal(t, domain.PipelineStructured, f.sess.LastTurn().Pipeline)
}

func TestAnswer_FirstQueryIsNeverFollowUp(t *testing.T) {
	f := newAnswerFixture(t, 1.0)
	f.expectRenewableRetrieval()
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything).Return(&domain.LLMResponse{Text: "ok"}, nil)

	ans, err := f.uc.Answer(context.Background(), "articles about renewable energy", f.sess)

	require.NoError(t, err)
	assert.Equal(t, domain.RouteNewSemantic, ans.Route)
}

func TestAnswer_EmptyEvidenceStillRecordsTurn(t *testing.T) {
	f := newAnswerFixture(t, 0)
	f.index.On("Search", mock.Anything, "packaging technology", 5).Return([]domain.ScoredID{}, nil)
	f.index.On("Search", mock.Anything, "packaging", 5).Return([]domain.ScoredID{}, nil)

	ans, err := f.uc.Answer(context.Background(), "packaging technology", f.sess)

	require.NoError(t, err)
	assert.Equal(t, usecase.NoResultsMessage, ans.Text)
	assert.Equal(t, usecase.OutcomeNoResults, ans.Outcome)
	assert.Equal(t, 1, f.sess.Turns())
	assert.Equal(t, usecase.NoResultsMessage, f.sess.LastTurn().OutputText)
	assert.Equal(t, []string{"no_results"}, f.observer.grounding)
	f.llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnswer_CancelledTurnIsNotRecorded(t *testing.T) {
	f := newAnswerFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	f.index.On("Search", mock.Anything, "renewable energy", 5).
		Run(func(mock.Arguments) { cancel() }).
		Return([]domain.ScoredID{}, nil)

	ans, err := f.uc.Answer(ctx, "renewable energy", f.sess)

	assert.Nil(t, ans)
	assert.ErrorIs(t, err, domain.ErrTurnCancelled)
	assert.Equal(t, 0, f.sess.Turns())
	assert.Nil(t, f.sess.LastTurn())
}

func TestAnswer_WaitingForBusySessionCanBeCancelled(t *testing.T) {
	f := newAnswerFixture(t, 0)
	release, err := f.sess.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.uc.Answer(ctx, "renewable energy", f.sess)

	assert.ErrorIs(t, err, domain.ErrTurnCancelled)
	f.assertNoGatewayCalls(t)
}

func TestAnswer_ExitResetsConversation(t *testing.T) {
	f := newAnswerFixture(t, 0.9)
	f.expectRenewableRetrieval()
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything).Return(&domain.LLMResponse{Text: "ok"}, nil)

	_, err := f.uc.Answer(context.Background(), "articles about renewable energy", f.sess)
	require.NoError(t, err)
	_, err = f.uc.Answer(context.Background(), "bye", f.sess)
	require.NoError(t, err)

	assert.Nil(t, f.sess.LastTurn())
	assert.Nil(t, f.sess.LastBundle())
	assert.Equal(t, 0, f.sess.Turns())
}

func TestAnswer_RejectsEmptyQuery(t *testing.T) {
	f := newAnswerFixture(t, 0)
	_, err := f.uc.Answer(context.Background(), "   ", f.sess)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrTurnCancelled)
}

func TestRenderAnswer(t *testing.T) {
	out := usecase.RenderAnswer(&usecase.Answer{
		Text:       "Solar set a record.",
		References: []usecase.Reference{{Title: "Solar records", URL: oddLink}},
	})
	assert.True(t, strings.HasPrefix(out, "Solar set a record.\n\n**Related Articles:**\n"))
	assert.Contains(t, out, "- [Solar records]("+oddLink+")")

	assert.Equal(t, "plain", usecase.RenderAnswer(&usecase.Answer{Text: "plain"}))
}

func TestDetectFollowUpIntent(t *testing.T) {
	assert.Equal(t, usecase.IntentSummarize, usecase.DetectFollowUpIntent("summarize that"))
	assert.Equal(t, usecase.IntentSummarize, usecase.DetectFollowUpIntent("give me a summary"))
	assert.Equal(t, usecase.IntentRefine, usecase.DetectFollowUpIntent("show me more articles like these"))
	assert.Equal(t, usecase.IntentRefine, usecase.DetectFollowUpIntent("what about wind?"))
	assert.Equal(t, usecase.IntentClarify, usecase.DetectFollowUpIntent("who wrote the second one?"))
}

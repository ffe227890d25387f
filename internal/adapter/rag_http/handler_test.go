package rag_http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"news-orchestrator/internal/adapter/rag_http"
	"news-orchestrator/internal/domain"
	"news-orchestrator/internal/session"
	"news-orchestrator/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flatEncoder struct{}

func (flatEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (flatEncoder) Version() string { return "flat" }

type stubAnswerUsecase struct {
	answer *usecase.Answer
	err    error
	seen   []string
}

func (s *stubAnswerUsecase) Answer(_ context.Context, query string, sess *session.Session) (*usecase.Answer, error) {
	s.seen = append(s.seen, sess.ID+":"+query)
	return s.answer, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newServer(t *testing.T, uc usecase.AnswerQueryUsecase, opts ...rag_http.HandlerOption) (*echo.Echo, *session.Manager) {
	t.Helper()
	mgr, err := session.NewManager(8, flatEncoder{}, 0, testLogger())
	require.NoError(t, err)
	e := echo.New()
	rag_http.NewHandler(uc, mgr, testLogger(), opts...).Register(e)
	return e, mgr
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_SessionLifecycle(t *testing.T) {
	uc := &stubAnswerUsecase{answer: &usecase.Answer{
		Text:       "Solar capacity grew.",
		References: []usecase.Reference{{ArticleID: "7", Title: "Solar", URL: "https://news.example/7"}},
		Route:      domain.RouteNewSemantic,
		Pipeline:   domain.PipelineSemantic,
		Outcome:    usecase.OutcomeGrounded,
		TurnSeq:    1,
	}}
	e, mgr := newServer(t, uc)

	rec := do(e, http.MethodPost, "/v1/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var started struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.SessionID)
	assert.Equal(t, 1, mgr.Len())

	rec = do(e, http.MethodPost, "/v1/sessions/"+started.SessionID+"/messages", `{"query":"renewable energy"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Solar capacity grew.", got["answer"])
	assert.Contains(t, got["rendered"], "[Solar](https://news.example/7)")
	assert.Equal(t, "new_semantic", got["route"])
	assert.Equal(t, "grounded", got["outcome"])
	refs := got["references"].([]any)
	require.Len(t, refs, 1)
	assert.Equal(t, "https://news.example/7", refs[0].(map[string]any)["url"])
	assert.Equal(t, []string{started.SessionID + ":renewable energy"}, uc.seen)

	rec = do(e, http.MethodDelete, "/v1/sessions/"+started.SessionID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, mgr.Len())

	rec = do(e, http.MethodPost, "/v1/sessions/"+started.SessionID+"/messages", `{"query":"more"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_PostMessage_Validation(t *testing.T) {
	e, mgr := newServer(t, &stubAnswerUsecase{})
	s := mgr.Start()

	rec := do(e, http.MethodPost, "/v1/sessions/"+s.ID+"/messages", `{"query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/v1/sessions/"+s.ID+"/messages", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/v1/sessions/unknown/messages", `{"query":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"cancelled", domain.ErrTurnCancelled, http.StatusServiceUnavailable},
		{"ended", session.ErrSessionEnded, http.StatusGone},
		{"other", errors.New("query is required"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, mgr := newServer(t, &stubAnswerUsecase{err: tt.err})
			s := mgr.Start()

			rec := do(e, http.MethodPost, "/v1/sessions/"+s.ID+"/messages", `{"query":"hello"}`)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestHandler_Ask_UsesThrowawaySession(t *testing.T) {
	var recorded []domain.RouteKind
	uc := &stubAnswerUsecase{answer: &usecase.Answer{Text: "x", Route: domain.RouteNewStructured}}
	e, mgr := newServer(t, uc, rag_http.WithTurnRecorder(func(route domain.RouteKind, _ time.Duration) {
		recorded = append(recorded, route)
	}))

	rec := do(e, http.MethodPost, "/v1/ask", `{"query":"articles by Jane Doe"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, mgr.Len())
	assert.Equal(t, []domain.RouteKind{domain.RouteNewStructured}, recorded)
}

func TestHandler_Terminated(t *testing.T) {
	uc := &stubAnswerUsecase{answer: &usecase.Answer{Text: usecase.ClosingMessage, Route: domain.RouteTerminate, Terminated: true}}
	e, mgr := newServer(t, uc)
	s := mgr.Start()

	rec := do(e, http.MethodPost, "/v1/sessions/"+s.ID+"/messages", `{"query":"bye"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, true, got["terminated"])
	assert.Equal(t, usecase.ClosingMessage, got["rendered"])
}

func TestHandler_Readiness(t *testing.T) {
	e, _ := newServer(t, &stubAnswerUsecase{},
		rag_http.WithReadinessCheck("graph", func(context.Context) error { return nil }),
		rag_http.WithReadinessCheck("summaries", func(context.Context) error { return errors.New("no primary") }),
	)

	rec := do(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no primary")
}

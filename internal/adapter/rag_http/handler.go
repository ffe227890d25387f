package rag_http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"news-orchestrator/internal/domain"
	"news-orchestrator/internal/infra/logger"
	"news-orchestrator/internal/session"
	"news-orchestrator/internal/usecase"

	"github.com/labstack/echo/v4"
)

// SessionStore is satisfied by *session.Manager.
type SessionStore interface {
	Start() *session.Session
	Get(id string) (*session.Session, error)
	End(id string) error
}

// ReadinessCheck reports whether a backend is usable.
type ReadinessCheck func(ctx context.Context) error

type Handler struct {
	answerUsecase usecase.AnswerQueryUsecase
	sessions      SessionStore
	readiness     map[string]ReadinessCheck
	onTurn        func(route domain.RouteKind, elapsed time.Duration)
	logger        *logger.ContextLogger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithReadinessCheck adds a named backend check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HandlerOption {
	return func(h *Handler) { h.readiness[name] = check }
}

// WithTurnRecorder is called after every answered turn.
func WithTurnRecorder(fn func(route domain.RouteKind, elapsed time.Duration)) HandlerOption {
	return func(h *Handler) { h.onTurn = fn }
}

func NewHandler(answerUsecase usecase.AnswerQueryUsecase, sessions SessionStore, base *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		answerUsecase: answerUsecase,
		sessions:      sessions,
		readiness:     map[string]ReadinessCheck{},
		onTurn:        func(domain.RouteKind, time.Duration) {},
		logger:        logger.NewContextLogger(base),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the routes on e.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/v1/sessions", h.StartSession)
	e.POST("/v1/sessions/:id/messages", h.PostMessage)
	e.DELETE("/v1/sessions/:id", h.EndSession)
	e.POST("/v1/ask", h.Ask)
	e.GET("/healthz", h.Healthz)
	e.GET("/readyz", h.Readyz)
}

type messageRequest struct {
	Query string `json:"query"`
}

type sessionResponse struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

type referenceResponse struct {
	ArticleID string `json:"article_id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
}

type answerResponse struct {
	SessionID  string              `json:"session_id,omitempty"`
	Answer     string              `json:"answer"`
	Rendered   string              `json:"rendered"`
	References []referenceResponse `json:"references"`
	Route      string              `json:"route"`
	Pipeline   string              `json:"pipeline,omitempty"`
	Outcome    string              `json:"outcome,omitempty"`
	Fallbacks  []string            `json:"fallbacks,omitempty"`
	Terminated bool                `json:"terminated"`
	TurnSeq    int64               `json:"turn_seq,omitempty"`
}

// Start a conversation
// (POST /v1/sessions)
func (h *Handler) StartSession(ctx echo.Context) error {
	s := h.sessions.Start()
	return ctx.JSON(http.StatusCreated, sessionResponse{SessionID: s.ID, StartedAt: s.StartedAt})
}

// Answer one message within a conversation
// (POST /v1/sessions/:id/messages)
func (h *Handler) PostMessage(ctx echo.Context) error {
	query, err := bindQuery(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	sess, err := h.sessions.Get(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	return h.answer(ctx, query, sess)
}

// End a conversation and discard its memory
// (DELETE /v1/sessions/:id)
func (h *Handler) EndSession(ctx echo.Context) error {
	if err := h.sessions.End(ctx.Param("id")); err != nil {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Answer a single question without keeping a conversation
// (POST /v1/ask)
func (h *Handler) Ask(ctx echo.Context) error {
	query, err := bindQuery(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	sess := h.sessions.Start()
	defer func() { _ = h.sessions.End(sess.ID) }()

	return h.answer(ctx, query, sess)
}

func (h *Handler) Healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(ctx echo.Context) error {
	failures := map[string]string{}
	for name, check := range h.readiness {
		if err := check(ctx.Request().Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]any{"status": "not ready", "errors": failures})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) answer(ctx echo.Context, query string, sess *session.Session) error {
	start := time.Now()
	reqCtx := logger.WithSessionID(ctx.Request().Context(), sess.ID)
	out, err := h.answerUsecase.Answer(reqCtx, query, sess)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionEnded):
			return ctx.JSON(http.StatusGone, map[string]string{"error": "session ended"})
		case errors.Is(err, domain.ErrTurnCancelled):
			h.logger.WithContext(reqCtx).WarnContext(reqCtx, "turn_cancelled",
				slog.Duration("elapsed", time.Since(start)))
			return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "turn cancelled"})
		default:
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
	}
	h.onTurn(out.Route, time.Since(start))

	reqCtx = logger.WithTurnSeq(logger.WithPipeline(reqCtx, string(out.Pipeline)), out.TurnSeq)
	h.logger.WithContext(reqCtx).InfoContext(reqCtx, "turn_served",
		slog.String("route", string(out.Route)),
		slog.Duration("elapsed", time.Since(start)))

	refs := make([]referenceResponse, 0, len(out.References))
	for _, r := range out.References {
		refs = append(refs, referenceResponse{ArticleID: r.ArticleID, Title: r.Title, URL: r.URL})
	}

	return ctx.JSON(http.StatusOK, answerResponse{
		SessionID:  sess.ID,
		Answer:     out.Text,
		Rendered:   usecase.RenderAnswer(out),
		References: refs,
		Route:      string(out.Route),
		Pipeline:   string(out.Pipeline),
		Outcome:    string(out.Outcome),
		Fallbacks:  out.Fallbacks,
		Terminated: out.Terminated,
		TurnSeq:    out.TurnSeq,
	})
}

func bindQuery(ctx echo.Context) (string, error) {
	var req messageRequest
	if err := ctx.Bind(&req); err != nil {
		return "", errors.New("invalid request")
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return "", errors.New("query is required")
	}
	return query, nil
}

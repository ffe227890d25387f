package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
)

const serviceName = "news-orchestrator"

// New creates a JSON logger on stdout with trace correlation.
func New(level string) *slog.Logger {
	return NewWithOTel(level, false)
}

// NewWithOTel creates a logger with optional OTel export.
func NewWithOTel(level string, enableOTel bool) *slog.Logger {
	logger := slog.New(newHandler(os.Stdout, parseLevel(level), enableOTel))
	logger.Info("logger_initialized", slog.Bool("otel_enabled", enableOTel))
	return logger
}

// NewWithWriter writes JSON to w. Used by the CLI to keep logs off the REPL.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	return slog.New(newHandler(w, parseLevel(level), false))
}

func newHandler(w io.Writer, level slog.Level, enableOTel bool) slog.Handler {
	jsonHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	stdoutHandler := NewTraceContextHandler(jsonHandler)
	if !enableOTel {
		return stdoutHandler
	}

	// otelslog reads trace context from the record's context itself.
	otelHandler := otelslog.NewHandler(
		serviceName,
		otelslog.WithLoggerProvider(global.GetLoggerProvider()),
	)
	return NewMultiHandler(stdoutHandler, otelHandler)
}

// MultiHandler sends logs to multiple handlers
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			_ = handler.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: newHandlers}
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithGroup(name)
	}
	return &MultiHandler{handlers: newHandlers}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

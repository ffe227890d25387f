package logger

import (
	"context"
	"log/slog"
)

type ContextKey string

// Business context keys, following OpenTelemetry naming with a 'news.' prefix.
const (
	SessionIDKey ContextKey = "news.session.id"
	TurnSeqKey   ContextKey = "news.turn.seq"
	PipelineKey  ContextKey = "news.pipeline"
)

// ContextLogger adds session and turn context to every record.
type ContextLogger struct {
	logger *slog.Logger
}

func NewContextLogger(base *slog.Logger) *ContextLogger {
	return &ContextLogger{logger: base.With("service", serviceName)}
}

// WithContext returns a logger with context values extracted and added as fields
func (cl *ContextLogger) WithContext(ctx context.Context) *slog.Logger {
	logger := cl.logger

	var fields []any
	if sessionID := ctx.Value(SessionIDKey); sessionID != nil {
		fields = append(fields, string(SessionIDKey), sessionID)
	}
	if seq := ctx.Value(TurnSeqKey); seq != nil {
		fields = append(fields, string(TurnSeqKey), seq)
	}
	if pipeline := ctx.Value(PipelineKey); pipeline != nil {
		fields = append(fields, string(PipelineKey), pipeline)
	}

	if len(fields) > 0 {
		logger = logger.With(fields...)
	}
	return logger
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

func WithTurnSeq(ctx context.Context, seq int64) context.Context {
	return context.WithValue(ctx, TurnSeqKey, seq)
}

func WithPipeline(ctx context.Context, pipeline string) context.Context {
	return context.WithValue(ctx, PipelineKey, pipeline)
}

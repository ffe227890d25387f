package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"news-orchestrator/internal/infra/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLast(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var out map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func TestTraceContextHandler_AddsIDsForValidSpan(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "info")

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "turn")
	log.InfoContext(ctx, "turn_started")
	span.End()

	rec := decodeLast(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), rec["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), rec["span_id"])
}

func TestTraceContextHandler_NoSpanNoIDs(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "info")

	log.InfoContext(context.Background(), "plain")

	rec := decodeLast(t, &buf)
	assert.NotContains(t, rec, "trace_id")
	assert.Equal(t, "plain", rec["msg"])
}

func TestNewWithWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "warn")

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.Equal(t, "kept", decodeLast(t, &buf)["msg"])
}

func TestContextLogger_WithContext(t *testing.T) {
	var buf bytes.Buffer
	cl := logger.NewContextLogger(logger.NewWithWriter(&buf, "debug"))

	ctx := logger.WithSessionID(context.Background(), "s-1")
	ctx = logger.WithTurnSeq(ctx, 3)
	ctx = logger.WithPipeline(ctx, "semantic")
	cl.WithContext(ctx).Info("turn_completed")

	rec := decodeLast(t, &buf)
	assert.Equal(t, "news-orchestrator", rec["service"])
	assert.Equal(t, "s-1", rec["news.session.id"])
	assert.Equal(t, float64(3), rec["news.turn.seq"])
	assert.Equal(t, "semantic", rec["news.pipeline"])
}

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := logger.NewMultiHandler(
		slog.NewJSONHandler(&a, nil),
		slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	log := slog.New(h).With("k", "v")

	log.Info("info_event")
	assert.Equal(t, "v", decodeLast(t, &a)["k"])
	assert.Zero(t, b.Len())

	log.Error("error_event")
	assert.Equal(t, "error_event", decodeLast(t, &b)["msg"])
}

package retrieval

import (
	"context"
	"log/slog"
	"time"

	"news-orchestrator/internal/domain"

	"golang.org/x/sync/errgroup"
)

// Enrichment is the result of resolving index ids against both stores.
type Enrichment struct {
	Rows          []domain.StructuredRow
	Summaries     map[string]string
	StructuredErr error
	SummaryErr    error
}

// Enrich fetches structured rows (filtered to ids only) and summaries concurrently.
// Both calls are bounded by timeout. Failures are recorded, never returned.
func Enrich(
	ctx context.Context,
	ids []string,
	structured domain.StructuredStore,
	summaries domain.SummaryStore,
	timeout time.Duration,
	logger *slog.Logger,
) Enrichment {
	var out Enrichment
	g, gctx := errgroup.WithContext(ctx)

	// goroutine A: structured rows by id
	g.Go(func() error {
		callCtx, cancel := WithTimeout(gctx, timeout)
		defer cancel()
		rows, err := structured.Query(callCtx, "", &domain.IDFilter{IDs: ids})
		if err != nil {
			out.StructuredErr = ClassifyGatewayError(callCtx, "structured", err)
			logger.Warn("enrich_structured_failed",
				slog.Int("id_count", len(ids)),
				slog.String("error", out.StructuredErr.Error()))
			return nil // non-fatal
		}
		out.Rows = rows
		return nil
	})

	// goroutine B: summaries
	g.Go(func() error {
		callCtx, cancel := WithTimeout(gctx, timeout)
		defer cancel()
		sums, err := summaries.Fetch(callCtx, ids)
		if err != nil {
			out.SummaryErr = ClassifyGatewayError(callCtx, "summary", err)
			logger.Warn("enrich_summaries_failed",
				slog.Int("id_count", len(ids)),
				slog.String("error", out.SummaryErr.Error()))
			return nil // non-fatal
		}
		out.Summaries = sums
		return nil
	})

	_ = g.Wait()
	if out.Summaries == nil {
		out.Summaries = map[string]string{}
	}
	return out
}

// WithTimeout bounds a single gateway call. A non-positive timeout leaves ctx unbounded.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// ClassifyGatewayError wraps err as a GatewayError, marking it a timeout when the call deadline passed.
func ClassifyGatewayError(callCtx context.Context, gateway string, err error) error {
	timeout := callCtx.Err() == context.DeadlineExceeded
	return &domain.GatewayError{Gateway: gateway, Timeout: timeout, Err: err}
}

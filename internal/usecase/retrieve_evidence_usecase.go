package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"news-orchestrator/internal/domain"
	"news-orchestrator/internal/usecase/retrieval"
)

// Fallback step names recorded on bundles and reported to the observer.
const (
	FallbackStructuredToSemantic = "structured_to_semantic"
	FallbackSimplifiedQuery      = "simplified_query"
	FallbackSemanticEmpty        = "semantic_empty"
	FallbackEnrichmentEmpty      = "enrichment_empty"
)

// RetrieveEvidenceUsecase produces the evidence bundle for a routed query.
// It never returns an error: every gateway failure is absorbed by the fallback chain.
type RetrieveEvidenceUsecase interface {
	Retrieve(ctx context.Context, query string, decision domain.RoutingDecision) *domain.EvidenceBundle
}

type retrieveEvidenceUsecase struct {
	structured domain.StructuredStore
	summaries  domain.SummaryStore
	index      domain.EmbeddingIndex
	cfg        RetrievalConfig
	observer   Observer
	logger     *slog.Logger
}

// RetrieveOption configures the retrieval usecase.
type RetrieveOption func(*retrieveEvidenceUsecase)

// WithRetrieveObserver reports fallbacks and gateway calls to o.
func WithRetrieveObserver(o Observer) RetrieveOption {
	return func(u *retrieveEvidenceUsecase) { u.observer = observerOrNoop(o) }
}

// NewRetrieveEvidenceUsecase wires the three gateways into the retrieval pipelines.
func NewRetrieveEvidenceUsecase(
	structured domain.StructuredStore,
	summaries domain.SummaryStore,
	index domain.EmbeddingIndex,
	cfg RetrievalConfig,
	logger *slog.Logger,
	opts ...RetrieveOption,
) RetrieveEvidenceUsecase {
	u := &retrieveEvidenceUsecase{
		structured: structured,
		summaries:  summaries,
		index:      index,
		cfg:        cfg,
		observer:   noopObserver{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *retrieveEvidenceUsecase) Retrieve(ctx context.Context, query string, decision domain.RoutingDecision) *domain.EvidenceBundle {
	switch decision.Kind {
	case domain.RouteNewStructured:
		return u.structuredPipeline(ctx, query)
	case domain.RouteNewSemantic:
		return u.semanticPipeline(ctx, query)
	case domain.RouteFollowUp:
		if ref := decision.ReferenceTurn; ref != nil && ref.Pipeline == domain.PipelineStructured {
			return u.structuredPipeline(ctx, query)
		}
		return u.semanticPipeline(ctx, query)
	default:
		return domain.NewEmptyBundle(domain.PipelineNone)
	}
}

func (u *retrieveEvidenceUsecase) structuredPipeline(ctx context.Context, query string) *domain.EvidenceBundle {
	start := time.Now()
	callCtx, cancel := retrieval.WithTimeout(ctx, u.cfg.GatewayTimeout)
	rows, err := u.structured.Query(callCtx, query, nil)
	if err != nil {
		err = retrieval.ClassifyGatewayError(callCtx, "structured", err)
	}
	cancel()
	u.recordCall("structured", err, len(rows), time.Since(start))

	if err != nil || len(rows) == 0 {
		attrs := []any{slog.String("query", query), slog.Int("rows", len(rows))}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		u.logger.Warn("retrieval_fallback", append(attrs, slog.String("step", FallbackStructuredToSemantic))...)
		u.observer.FallbackTaken(FallbackStructuredToSemantic)

		bundle := u.semanticPipeline(ctx, query)
		bundle.Fallbacks = append([]string{FallbackStructuredToSemantic}, bundle.Fallbacks...)
		return bundle
	}

	ids := retrieval.RowIDs(rows)
	summaries := u.fetchSummaries(ctx, ids)
	bundle := retrieval.MergeStructured(rows, summaries)

	u.logger.Info("structured_pipeline_completed",
		slog.Int("rows", len(bundle.StructuredRows)),
		slog.Int("summaries", len(bundle.Summaries)))
	return bundle
}

func (u *retrieveEvidenceUsecase) semanticPipeline(ctx context.Context, query string) *domain.EvidenceBundle {
	if bundle := u.semanticAttempt(ctx, query); bundle != nil {
		return bundle
	}

	simplified, changed := retrieval.SimplifyQuery(query, u.cfg.StopWords)
	if changed {
		u.logger.Info("retrieval_fallback",
			slog.String("step", FallbackSimplifiedQuery),
			slog.String("query", query),
			slog.String("simplified", simplified))
		u.observer.FallbackTaken(FallbackSimplifiedQuery)

		if bundle := u.semanticAttempt(ctx, simplified); bundle != nil {
			bundle.Fallbacks = append(bundle.Fallbacks, FallbackSimplifiedQuery)
			return bundle
		}
	}

	u.logger.Info("retrieval_empty", slog.String("query", query), slog.Bool("simplified", changed))
	u.observer.FallbackTaken(FallbackSemanticEmpty)
	fallbacks := []string{}
	if changed {
		fallbacks = append(fallbacks, FallbackSimplifiedQuery)
	}
	return domain.NewEmptyBundle(domain.PipelineSemantic, append(fallbacks, FallbackSemanticEmpty)...)
}

// semanticAttempt returns nil when the index produced no ids, so the caller may retry.
func (u *retrieveEvidenceUsecase) semanticAttempt(ctx context.Context, query string) *domain.EvidenceBundle {
	start := time.Now()
	callCtx, cancel := retrieval.WithTimeout(ctx, u.cfg.GatewayTimeout)
	hits, err := u.index.Search(callCtx, query, u.cfg.TopK)
	if err != nil {
		err = retrieval.ClassifyGatewayError(callCtx, "embedding", err)
	}
	cancel()
	u.recordCall("embedding", err, len(hits), time.Since(start))

	if err != nil {
		u.logger.Warn("embedding_search_failed",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return nil
	}

	ids := retrieval.RankedIDs(hits, u.cfg.TopK)
	if len(ids) == 0 {
		return nil
	}

	enrichStart := time.Now()
	enriched := retrieval.Enrich(ctx, ids, u.structured, u.summaries, u.cfg.GatewayTimeout, u.logger)
	u.recordCall("structured", enriched.StructuredErr, len(enriched.Rows), time.Since(enrichStart))
	u.recordCall("summary", enriched.SummaryErr, len(enriched.Summaries), time.Since(enrichStart))

	bundle := retrieval.MergeSemantic(ids, enriched.Rows, enriched.Summaries)
	if bundle.Empty {
		u.logger.Warn("retrieval_fallback",
			slog.String("step", FallbackEnrichmentEmpty),
			slog.String("ids", strings.Join(ids, ",")))
		u.observer.FallbackTaken(FallbackEnrichmentEmpty)
		bundle.Fallbacks = append(bundle.Fallbacks, FallbackEnrichmentEmpty)
	}

	u.logger.Info("semantic_pipeline_completed",
		slog.Int("index_ids", len(ids)),
		slog.Int("rows", len(bundle.StructuredRows)),
		slog.Int("summaries", len(bundle.Summaries)))
	return bundle
}

func (u *retrieveEvidenceUsecase) fetchSummaries(ctx context.Context, ids []string) map[string]string {
	if len(ids) == 0 {
		return map[string]string{}
	}
	start := time.Now()
	callCtx, cancel := retrieval.WithTimeout(ctx, u.cfg.GatewayTimeout)
	defer cancel()
	sums, err := u.summaries.Fetch(callCtx, ids)
	if err != nil {
		err = retrieval.ClassifyGatewayError(callCtx, "summary", err)
		u.recordCall("summary", err, 0, time.Since(start))
		u.logger.Warn("summary_fetch_failed", slog.String("error", err.Error()))
		return map[string]string{}
	}
	u.recordCall("summary", nil, len(sums), time.Since(start))
	return sums
}

func (u *retrieveEvidenceUsecase) recordCall(gateway string, err error, n int, elapsed time.Duration) {
	outcome := "ok"
	switch {
	case errors.Is(err, domain.ErrGatewayTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	case n == 0:
		outcome = "empty"
	}
	u.observer.GatewayCall(gateway, outcome, elapsed)
}

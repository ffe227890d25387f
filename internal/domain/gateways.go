package domain

import "context"

// IDFilter restricts a structured query to articles whose id is a member of IDs.
// No other predicate is combined with it.
type IDFilter struct {
	IDs []string
}

// StructuredStore translates a natural-language ask into a constrained graph query and runs it.
type StructuredStore interface {
	// Query returns rows for ask, or for the filter's ids when filter is non-nil (ask is then ignored).
	// Fails with ErrQueryGeneration or ErrExecution.
	Query(ctx context.Context, ask string, filter *IDFilter) ([]StructuredRow, error)
}

// SummaryStore fetches precomputed article summaries.
type SummaryStore interface {
	// Fetch returns summaries keyed by article id. Unknown ids are simply absent.
	Fetch(ctx context.Context, ids []string) (map[string]string, error)
}

// ScoredID is an embedding-index hit. Higher scores are closer.
type ScoredID struct {
	ID    string
	Score float64
}

// EmbeddingIndex is a nearest-neighbour search over article embeddings.
type EmbeddingIndex interface {
	// Search returns at most k hits ordered by decreasing similarity.
	// Fails with ErrIndexUnavailable when the index cannot be used.
	Search(ctx context.Context, text string, k int) ([]ScoredID, error)
}

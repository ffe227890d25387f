package domain

import (
	"context"
)

// ArticleEmbedding is one article vector as persisted in the server-side index.
type ArticleEmbedding struct {
	ArticleID string
	Model     string
	Vector    []float32
}

// ArticleEmbeddingRepository persists article vectors and searches them by cosine distance.
type ArticleEmbeddingRepository interface {
	EmbeddingIndex

	// ReplaceAll swaps the stored vectors for the given set.
	// Must run inside RunInTx so readers never see a partial index.
	ReplaceAll(ctx context.Context, embeddings []ArticleEmbedding) (int64, error)

	// Count returns the number of stored vectors for model.
	Count(ctx context.Context, model string) (int64, error)
}

// TransactionManager defines the interface for handling database transactions.
type TransactionManager interface {
	// RunInTx executes the given function within a transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

package vectorindex

import (
	"context"
	"fmt"

	"news-orchestrator/internal/domain"
)

// Index answers article searches against an article-namespace store.
type Index struct {
	store   *Store
	encoder domain.VectorEncoder
}

// NewIndex checks the store holds articles and, when model is set, that encoder produces the same model.
func NewIndex(store *Store, encoder domain.VectorEncoder, model string) (*Index, error) {
	if store.Namespace() != NamespaceArticles {
		return nil, fmt.Errorf("%w: index needs %q, got %q", ErrNamespaceMismatch, NamespaceArticles, store.Namespace())
	}
	if model != "" && encoder.Version() != model {
		return nil, fmt.Errorf("snapshot embedded with %q but encoder is %q", model, encoder.Version())
	}
	return &Index{store: store, encoder: encoder}, nil
}

func (i *Index) Search(ctx context.Context, text string, k int) ([]domain.ScoredID, error) {
	vectors, err := i.encoder.Encode(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode query: %v", domain.ErrIndexUnavailable, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", domain.ErrIndexUnavailable)
	}
	matches, err := i.store.Search(vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	out := make([]domain.ScoredID, 0, len(matches))
	for _, m := range matches {
		out = append(out, domain.ScoredID{ID: m.ID, Score: m.Score})
	}
	return out, nil
}

var _ domain.EmbeddingIndex = (*Index)(nil)

package rag_augur

import (
	"context"
	"fmt"
	"news-orchestrator/internal/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEncoder memoizes embeddings per text in a bounded LRU.
// Conversation memory re-embeds the same questions often; the cache keeps that off the network.
type CachedEncoder struct {
	inner domain.VectorEncoder
	cache *lru.Cache[string, []float32]
}

var _ domain.VectorEncoder = (*CachedEncoder)(nil)

// NewCachedEncoder wraps inner with a cache of at most size vectors.
func NewCachedEncoder(inner domain.VectorEncoder, size int) (*CachedEncoder, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEncoder{inner: inner, cache: cache}, nil
}

// Encode returns cached vectors and batches the misses into one call to the wrapped encoder.
func (c *CachedEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, text := range texts {
		if vec, ok := c.cache.Get(text); ok {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Encode(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("encoder returned %d vectors for %d texts", len(vectors), len(missTexts))
	}
	for j, vec := range vectors {
		out[missIdx[j]] = vec
		c.cache.Add(missTexts[j], vec)
	}
	return out, nil
}

func (c *CachedEncoder) Version() string {
	return c.inner.Version()
}

// Len reports the number of cached vectors.
func (c *CachedEncoder) Len() int {
	return c.cache.Len()
}

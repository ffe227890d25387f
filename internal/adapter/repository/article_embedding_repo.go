package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"news-orchestrator/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

const (
	searchEmbeddingsSQL = `SELECT article_id, 1 - (embedding <=> $1) AS score
FROM article_embeddings
WHERE model = $2
ORDER BY embedding <=> $1
LIMIT $3`

	deleteEmbeddingsSQL = `DELETE FROM article_embeddings WHERE model = $1`

	countEmbeddingsSQL = `SELECT count(*) FROM article_embeddings WHERE model = $1`

	createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS vector`

	createEmbeddingsTableSQL = `CREATE TABLE IF NOT EXISTS article_embeddings (
    article_id TEXT NOT NULL,
    model      TEXT NOT NULL,
    embedding  vector(%d) NOT NULL,
    PRIMARY KEY (article_id, model)
)`
)

// DBExecutor is the subset of pgxpool.Pool used by the repository.
type DBExecutor interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// EnsureSchema creates the pgvector extension and the embeddings table for vectors of the given dimension.
func EnsureSchema(ctx context.Context, db DBExecutor, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	if tx := txFromContext(ctx); tx != nil {
		db = tx
	}
	if _, err := db.Exec(ctx, createExtensionSQL); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	if _, err := db.Exec(ctx, fmt.Sprintf(createEmbeddingsTableSQL, dimension)); err != nil {
		return fmt.Errorf("failed to create article_embeddings: %w", err)
	}
	return nil
}

type articleEmbeddingRepository struct {
	pool    DBExecutor
	encoder domain.VectorEncoder
	model   string
	logger  *slog.Logger
}

var _ domain.ArticleEmbeddingRepository = (*articleEmbeddingRepository)(nil)

// NewArticleEmbeddingRepository creates a pgvector-backed article index.
// Search embeds the query with encoder; only rows stored under model are considered.
func NewArticleEmbeddingRepository(pool DBExecutor, encoder domain.VectorEncoder, model string, logger *slog.Logger) domain.ArticleEmbeddingRepository {
	return &articleEmbeddingRepository{pool: pool, encoder: encoder, model: model, logger: logger}
}

func (r *articleEmbeddingRepository) getExecutor(ctx context.Context) DBExecutor {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *articleEmbeddingRepository) Search(ctx context.Context, text string, k int) ([]domain.ScoredID, error) {
	if k <= 0 {
		return nil, nil
	}
	if r.encoder == nil {
		return nil, fmt.Errorf("%w: no query encoder configured", domain.ErrIndexUnavailable)
	}
	vectors, err := r.encoder.Encode(ctx, []string{text})
	if err != nil {
		return nil, errors.Join(domain.ErrIndexUnavailable, fmt.Errorf("failed to encode query: %w", err))
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: encoder returned no vector", domain.ErrIndexUnavailable)
	}

	rows, err := r.getExecutor(ctx).Query(ctx, searchEmbeddingsSQL, pgvector.NewVector(vectors[0]), r.model, k)
	if err != nil {
		return nil, errors.Join(domain.ErrIndexUnavailable, fmt.Errorf("failed to search embeddings: %w", err))
	}
	defer rows.Close()

	var hits []domain.ScoredID
	for rows.Next() {
		var hit domain.ScoredID
		if err := rows.Scan(&hit.ID, &hit.Score); err != nil {
			return nil, errors.Join(domain.ErrIndexUnavailable, fmt.Errorf("failed to scan embedding hit: %w", err))
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(domain.ErrIndexUnavailable, fmt.Errorf("failed to iterate embedding hits: %w", err))
	}

	r.logger.DebugContext(ctx, "embedding_search_completed",
		slog.Int("k", k),
		slog.Int("hits", len(hits)))
	return hits, nil
}

func (r *articleEmbeddingRepository) ReplaceAll(ctx context.Context, embeddings []domain.ArticleEmbedding) (int64, error) {
	exec := r.getExecutor(ctx)

	if _, err := exec.Exec(ctx, deleteEmbeddingsSQL, r.model); err != nil {
		return 0, fmt.Errorf("failed to clear embeddings: %w", err)
	}
	if len(embeddings) == 0 {
		return 0, nil
	}

	rows := make([][]interface{}, 0, len(embeddings))
	for _, e := range embeddings {
		model := e.Model
		if model == "" {
			model = r.model
		}
		if model != r.model {
			return 0, fmt.Errorf("embedding %s has model %q, repository serves %q", e.ArticleID, model, r.model)
		}
		rows = append(rows, []interface{}{e.ArticleID, model, pgvector.NewVector(e.Vector)})
	}

	n, err := exec.CopyFrom(
		ctx,
		pgx.Identifier{"article_embeddings"},
		[]string{"article_id", "model", "embedding"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy embeddings: %w", err)
	}

	r.logger.InfoContext(ctx, "embeddings_replaced",
		slog.String("model", r.model),
		slog.Int64("count", n))
	return n, nil
}

func (r *articleEmbeddingRepository) Count(ctx context.Context, model string) (int64, error) {
	var n int64
	if err := r.getExecutor(ctx).QueryRow(ctx, countEmbeddingsSQL, model).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return n, nil
}

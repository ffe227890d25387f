package repository_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"news-orchestrator/internal/adapter/repository"
	"news-orchestrator/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEncoder struct {
	vec []float32
	err error
}

func (s stubEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func (s stubEncoder) Version() string { return "nomic-embed-text" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArticleEmbeddingRepository_Search(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := repository.NewArticleEmbeddingRepository(mock, stubEncoder{vec: []float32{0.1, 0.2, 0.3}}, "nomic-embed-text", testLogger())

	mock.ExpectQuery("SELECT article_id").
		WithArgs(pgxmock.AnyArg(), "nomic-embed-text", 5).
		WillReturnRows(pgxmock.NewRows([]string{"article_id", "score"}).
			AddRow("7", 0.92).
			AddRow("12", 0.81))

	hits, err := repo.Search(context.Background(), "renewable energy", 5)
	require.NoError(t, err)
	assert.Equal(t, []domain.ScoredID{{ID: "7", Score: 0.92}, {ID: "12", Score: 0.81}}, hits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArticleEmbeddingRepository_SearchFailuresAreIndexUnavailable(t *testing.T) {
	t.Run("query error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewArticleEmbeddingRepository(mock, stubEncoder{vec: []float32{1}}, "m", testLogger())
		mock.ExpectQuery("SELECT article_id").
			WithArgs(pgxmock.AnyArg(), "m", 3).
			WillReturnError(errors.New("connection reset"))

		_, err = repo.Search(context.Background(), "q", 3)
		assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("encoder error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewArticleEmbeddingRepository(mock, stubEncoder{err: errors.New("ollama down")}, "m", testLogger())

		_, err = repo.Search(context.Background(), "q", 3)
		assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive k makes no query", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewArticleEmbeddingRepository(mock, stubEncoder{vec: []float32{1}}, "m", testLogger())

		hits, err := repo.Search(context.Background(), "q", 0)
		require.NoError(t, err)
		assert.Empty(t, hits)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestArticleEmbeddingRepository_ReplaceAllInTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := repository.NewArticleEmbeddingRepository(mock, nil, "m", testLogger())
	txManager := repository.NewPostgresTransactionManager(mock)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM article_embeddings").
		WithArgs("m").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"article_embeddings"}, []string{"article_id", "model", "embedding"}).
		WillReturnResult(2)
	mock.ExpectCommit()

	var copied int64
	err = txManager.RunInTx(context.Background(), func(ctx context.Context) error {
		var err error
		copied, err = repo.ReplaceAll(ctx, []domain.ArticleEmbedding{
			{ArticleID: "7", Vector: []float32{1, 0}},
			{ArticleID: "12", Model: "m", Vector: []float32{0, 1}},
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), copied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArticleEmbeddingRepository_ReplaceAllRollsBackOnModelMismatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := repository.NewArticleEmbeddingRepository(mock, nil, "m", testLogger())
	txManager := repository.NewPostgresTransactionManager(mock)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM article_embeddings").
		WithArgs("m").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err = txManager.RunInTx(context.Background(), func(ctx context.Context) error {
		_, err := repo.ReplaceAll(ctx, []domain.ArticleEmbedding{{ArticleID: "7", Model: "other", Vector: []float32{1}}})
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "other")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArticleEmbeddingRepository_Count(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := repository.NewArticleEmbeddingRepository(mock, nil, "m", testLogger())
	mock.ExpectQuery(`SELECT count\(\*\) FROM article_embeddings`).
		WithArgs("m").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := repo.Count(context.Background(), "m")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS vector`).
		WillReturnResult(pgxmock.NewResult("CREATE EXTENSION", 0))
	mock.ExpectExec(`(?s)CREATE TABLE IF NOT EXISTS article_embeddings \(.*vector\(384\)`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, repository.EnsureSchema(context.Background(), mock, 384))
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Error(t, repository.EnsureSchema(context.Background(), mock, 0))
}

func TestRunInTx_NestedCallsJoinOuterTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	txManager := repository.NewPostgresTransactionManager(mock)
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err = txManager.RunInTx(context.Background(), func(ctx context.Context) error {
		return txManager.RunInTx(ctx, func(ctx context.Context) error {
			calls++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_CommitFailureIsReturned(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	txManager := repository.NewPostgresTransactionManager(mock)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))
	mock.ExpectRollback()

	err = txManager.RunInTx(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
}

func TestRunInTx_BeginFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	txManager := repository.NewPostgresTransactionManager(mock)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err = txManager.RunInTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

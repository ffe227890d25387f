package usecase_test

import (
	"context"
	"io"
	"log/slog"

	"news-orchestrator/internal/domain"

	"github.com/stretchr/testify/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type mockLLMClient struct {
	mock.Mock
}

func (m *mockLLMClient) Generate(ctx context.Context, prompt string, maxTokens int) (*domain.LLMResponse, error) {
	args := m.Called(ctx, prompt, maxTokens)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LLMResponse), args.Error(1)
}

func (m *mockLLMClient) Chat(ctx context.Context, messages []domain.Message, maxTokens int) (*domain.LLMResponse, error) {
	args := m.Called(ctx, messages, maxTokens)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LLMResponse), args.Error(1)
}

func (m *mockLLMClient) Version() string {
	return "mock"
}

type MockStructuredStore struct {
	mock.Mock
}

func (m *MockStructuredStore) Query(ctx context.Context, ask string, filter *domain.IDFilter) ([]domain.StructuredRow, error) {
	args := m.Called(ctx, ask, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StructuredRow), args.Error(1)
}

type MockSummaryStore struct {
	mock.Mock
}

func (m *MockSummaryStore) Fetch(ctx context.Context, ids []string) (map[string]string, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

type MockEmbeddingIndex struct {
	mock.Mock
}

func (m *MockEmbeddingIndex) Search(ctx context.Context, text string, k int) ([]domain.ScoredID, error) {
	args := m.Called(ctx, text, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ScoredID), args.Error(1)
}

type MockVectorEncoder struct {
	mock.Mock
}

func (m *MockVectorEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockVectorEncoder) Version() string {
	return "mock-embed"
}

// idFilter matches a structured call restricted to exactly ids.
func idFilter(ids ...string) interface{} {
	return mock.MatchedBy(func(f *domain.IDFilter) bool {
		if f == nil || len(f.IDs) != len(ids) {
			return false
		}
		for i := range ids {
			if f.IDs[i] != ids[i] {
				return false
			}
		}
		return true
	})
}

// noFilter matches a free-form structured call.
func noFilter() interface{} {
	return mock.MatchedBy(func(f *domain.IDFilter) bool { return f == nil })
}

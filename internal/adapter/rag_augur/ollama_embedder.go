package rag_augur

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"news-orchestrator/internal/domain"
)

const defaultEmbedBatchSize = 64

// OllamaEmbedder embeds texts through Ollama's /api/embed, splitting large inputs into batches.
type OllamaEmbedder struct {
	endpoint  string
	model     string
	client    *http.Client
	batchSize int
	logger    *slog.Logger
}

var _ domain.VectorEncoder = (*OllamaEmbedder)(nil)

// EmbedderOption configures an OllamaEmbedder.
type EmbedderOption func(*OllamaEmbedder)

// WithBatchSize caps the number of texts per request.
func WithBatchSize(n int) EmbedderOption {
	return func(e *OllamaEmbedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

func NewOllamaEmbedder(baseURL, model string, client *http.Client, logger *slog.Logger, opts ...EmbedderOption) *OllamaEmbedder {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	e := &OllamaEmbedder{
		endpoint:  strings.TrimRight(baseURL, "/") + "/api/embed",
		model:     model,
		client:    client,
		batchSize: defaultEmbedBatchSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func (e *OllamaEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	start := time.Now()

	out := make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += e.batchSize {
		hi := min(lo+e.batchSize, len(texts))
		vectors, err := e.embedBatch(ctx, texts[lo:hi])
		if err != nil {
			e.logger.WarnContext(ctx, "ollama_embed_failed",
				slog.String("model", e.model),
				slog.Int("batch_start", lo),
				slog.String("error", err.Error()),
				slog.Duration("elapsed", time.Since(start)))
			return nil, err
		}
		out = append(out, vectors...)
	}

	e.logger.DebugContext(ctx, "ollama_embed_completed",
		slog.String("model", e.model),
		slog.Int("text_count", len(texts)),
		slog.Duration("elapsed", time.Since(start)))
	return out, nil
}

func (e *OllamaEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: batch})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var parsed embedResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && parsed.Error != "" {
			return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, parsed.Error)
		}
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if len(parsed.Embeddings) != len(batch) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(parsed.Embeddings), len(batch))
	}
	return parsed.Embeddings, nil
}

func (e *OllamaEmbedder) Version() string {
	return e.model
}

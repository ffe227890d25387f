package rag_augur

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"news-orchestrator/internal/domain"
)

const (
	generationTemperature = 0.0
	defaultNumCtx         = 8192
	keepAliveSeconds      = 600
	maxStreamLineBytes    = 1 << 20
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string                 `json:"model"`
	Messages  []chatMessage          `json:"messages"`
	Stream    bool                   `json:"stream"`
	KeepAlive int                    `json:"keep_alive"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

type chatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// GeneratorOption customizes an OllamaGenerator.
type GeneratorOption func(*OllamaGenerator)

// WithNumCtx overrides the context window requested from Ollama.
func WithNumCtx(n int) GeneratorOption {
	return func(g *OllamaGenerator) {
		if n > 0 {
			g.numCtx = n
		}
	}
}

// OllamaGenerator sends chat requests to Ollama's /api/chat endpoint and aggregates the streamed reply.
type OllamaGenerator struct {
	BaseURL string
	Model   string
	Client  *http.Client

	numCtx int
	logger *slog.Logger
}

// NewOllamaGenerator constructs a generator using the provided endpoint and model name.
// A nil client falls back to one with a two minute timeout.
func NewOllamaGenerator(baseURL, model string, client *http.Client, logger *slog.Logger, opts ...GeneratorOption) *OllamaGenerator {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	g := &OllamaGenerator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  client,
		numCtx:  defaultNumCtx,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *OllamaGenerator) buildOptions(maxTokens int) map[string]interface{} {
	opts := map[string]interface{}{
		"temperature": generationTemperature,
		"num_ctx":     g.numCtx,
	}
	if maxTokens > 0 {
		opts["num_predict"] = maxTokens
	}
	return opts
}

// Generate sends a single user prompt.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (*domain.LLMResponse, error) {
	return g.Chat(ctx, []domain.Message{{Role: domain.RoleUser, Content: prompt}}, maxTokens)
}

// Chat sends the conversation and returns the concatenated assistant message.
func (g *OllamaGenerator) Chat(ctx context.Context, messages []domain.Message, maxTokens int) (*domain.LLMResponse, error) {
	if len(messages) == 0 {
		return nil, errors.New("chat requires at least one message")
	}

	reqBody := chatRequest{
		Model:     g.Model,
		Messages:  make([]chatMessage, 0, len(messages)),
		Stream:    true,
		KeepAlive: keepAliveSeconds,
		Options:   g.buildOptions(maxTokens),
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", g.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.Client.Do(req)
	if err != nil {
		g.logger.WarnContext(ctx, "ollama_chat_failed",
			slog.String("model", g.Model),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)))
		return nil, fmt.Errorf("failed to call generation endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("generation endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var (
		text strings.Builder
		done bool
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("failed to decode generation chunk: %w", err)
		}
		if chunk.Error != "" {
			return nil, fmt.Errorf("generation endpoint error: %s", chunk.Error)
		}
		text.WriteString(chunk.Message.Content)
		if chunk.Done {
			done = true
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read generation stream: %w", err)
	}

	g.logger.DebugContext(ctx, "ollama_chat_completed",
		slog.String("model", g.Model),
		slog.Int("messages", len(messages)),
		slog.Bool("done", done),
		slog.Duration("elapsed", time.Since(start)))

	return &domain.LLMResponse{
		Text: strings.TrimSpace(text.String()),
		Done: done,
	}, nil
}

// Version returns the wrapped model name.
func (g *OllamaGenerator) Version() string {
	return g.Model
}

var _ domain.LLMClient = (*OllamaGenerator)(nil)

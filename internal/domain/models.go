package domain

import "context"

// Chat roles understood by the generation backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn handed to the generator.
type Message struct {
	Role    string
	Content string
}

// LLMResponse is a completed generation. Done is false when the backend stopped before finishing.
type LLMResponse struct {
	Text string
	Done bool
}

// LLMClient is the text generator used for drafting, Cypher generation, classification and grounding.
// maxTokens <= 0 leaves the output length to the backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (*LLMResponse, error)
	Chat(ctx context.Context, messages []Message, maxTokens int) (*LLMResponse, error)
	Version() string
}

// VectorEncoder embeds texts, returning one vector per input in input order.
// Version names the embedding model; vectors from different versions are not comparable.
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Version() string
}

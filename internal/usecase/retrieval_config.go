package usecase

import (
	"fmt"
	"time"

	"news-orchestrator/internal/usecase/retrieval"
)

// RetrievalConfig holds tunable parameters for evidence retrieval.
type RetrievalConfig struct {
	// TopK is the number of nearest article ids requested from the embedding index.
	TopK int
	// GatewayTimeout bounds every single gateway call. A timeout counts as an empty result.
	GatewayTimeout time.Duration
	// StopWords are stripped from a query before the one semantic retry.
	StopWords []string
	// MemoryLookupLimit is the number of past turns recalled for a follow-up.
	MemoryLookupLimit int
}

// DefaultRetrievalConfig returns the reference defaults.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:              5,
		GatewayTimeout:    10 * time.Second,
		StopWords:         retrieval.DefaultStopWords,
		MemoryLookupLimit: 5,
	}
}

// Validate checks if the configuration values are within acceptable ranges.
func (c RetrievalConfig) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("topK must be positive, got %d", c.TopK)
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive, got %v", c.GatewayTimeout)
	}
	if c.MemoryLookupLimit <= 0 {
		return fmt.Errorf("memory lookup limit must be positive, got %d", c.MemoryLookupLimit)
	}
	return nil
}

// Follow-up detection modes.
const (
	FollowUpModeSimilarity = "similarity"
	FollowUpModeLLM        = "llm"
)

// Structured/semantic split modes.
const (
	SplitModeHeuristic = "heuristic"
	SplitModeLLM       = "llm"
)

// ClassifierConfig selects how queries are routed.
type ClassifierConfig struct {
	FollowUpMode string
	SplitMode    string
	// SimilarityThreshold is the minimum similarity for a follow-up.
	SimilarityThreshold float64
	// Timeout bounds each classification LLM call.
	Timeout time.Duration
}

func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		FollowUpMode:        FollowUpModeSimilarity,
		SplitMode:           SplitModeHeuristic,
		SimilarityThreshold: 0.4,
		Timeout:             15 * time.Second,
	}
}

func (c ClassifierConfig) Validate() error {
	switch c.FollowUpMode {
	case FollowUpModeSimilarity, FollowUpModeLLM:
	default:
		return fmt.Errorf("unknown follow-up mode %q", c.FollowUpMode)
	}
	switch c.SplitMode {
	case SplitModeHeuristic, SplitModeLLM:
	default:
		return fmt.Errorf("unknown split mode %q", c.SplitMode)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [0.0, 1.0], got %f", c.SimilarityThreshold)
	}
	return nil
}

// GroundingConfig holds settings for the grounding pass.
type GroundingConfig struct {
	// Enabled controls whether the rewrite call is made. Link sanitation always runs.
	Enabled   bool
	Timeout   time.Duration
	MaxTokens int
}

func DefaultGroundingConfig() GroundingConfig {
	return GroundingConfig{
		Enabled:   true,
		Timeout:   60 * time.Second,
		MaxTokens: 1024,
	}
}

func (c GroundingConfig) Validate() error {
	if c.Enabled && c.Timeout <= 0 {
		return fmt.Errorf("grounding timeout must be positive, got %v", c.Timeout)
	}
	return nil
}

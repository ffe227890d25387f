package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"news-orchestrator/internal/domain"
)

// OutputValidator parses the grounding reply and checks it only references bundle articles.
type OutputValidator struct{}

// NewOutputValidator creates a validator instance (currently stateless).
func NewOutputValidator() OutputValidator {
	return OutputValidator{}
}

// Validate parses the JSON emitted by the LLM. Article ids that are not in evidence are dropped.
func (v OutputValidator) Validate(raw string, evidence *domain.EvidenceBundle) (*GroundingReply, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("llm response is empty")
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, errors.New("llm response is not a JSON object")
	}

	var reply GroundingReply
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse llm response: %w", err)
	}
	reply.Answer = strings.TrimSpace(reply.Answer)
	if reply.Answer == "" && !reply.Fallback {
		return nil, errors.New("missing answer in response")
	}

	allowed := make(map[string]struct{})
	for _, id := range evidence.ArticleIDs() {
		allowed[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(reply.ArticleIDs))
	kept := reply.ArticleIDs[:0]
	for _, id := range reply.ArticleIDs {
		id = strings.TrimSpace(id)
		if _, ok := allowed[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		kept = append(kept, id)
	}
	reply.ArticleIDs = kept

	return &reply, nil
}

// GroundingReply models the JSON output the grounding prompt enforces.
type GroundingReply struct {
	Answer     string   `json:"answer"`
	ArticleIDs []string `json:"article_ids"`
	Fallback   bool     `json:"fallback"`
	Reason     string   `json:"reason"`
}

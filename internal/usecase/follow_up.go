package usecase

import (
	"regexp"
	"strings"

	"news-orchestrator/internal/domain"
)

// FollowUpIntent is what a follow-up asks of the previous evidence.
type FollowUpIntent string

const (
	// IntentSummarize explains the prior evidence again.
	IntentSummarize FollowUpIntent = "summarize"
	// IntentClarify answers about the prior evidence.
	IntentClarify FollowUpIntent = "clarify"
	// IntentRefine asks for different or additional articles and re-runs retrieval.
	IntentRefine FollowUpIntent = "refine"
)

var (
	summarizePattern = regexp.MustCompile(`(?i)\b(summar(y|ies|ize|ise|ized|ised)|recap|tl;?dr|in short|briefly|point by point)\b`)
	refinePattern    = regexp.MustCompile(`(?i)\b(more|other|another|similar|else|newer|older|different)\s+(articles?|news|stories|ones?|pieces?)\b|\b(what|how)\s+about\b`)
)

// DetectFollowUpIntent classifies a follow-up by its wording.
func DetectFollowUpIntent(query string) FollowUpIntent {
	switch {
	case summarizePattern.MatchString(query):
		return IntentSummarize
	case refinePattern.MatchString(query):
		return IntentRefine
	default:
		return IntentClarify
	}
}

// ContextualizeQuery prefixes query with the recalled exchanges it refers to.
func ContextualizeQuery(query string, history []domain.ConversationTurn) string {
	if len(history) == 0 {
		return query
	}
	var sb strings.Builder
	for _, t := range history {
		sb.WriteString(t.InputText)
		sb.WriteString(". ")
	}
	sb.WriteString(query)
	return sb.String()
}

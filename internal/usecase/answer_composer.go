package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"news-orchestrator/internal/domain"
)

// NoResultsMessage is the answer for an empty evidence bundle.
const NoResultsMessage = "I could not find any news articles related to your question."

// ComposeInput is everything the composer may draw on.
type ComposeInput struct {
	Query    string
	Mode     ComposeMode
	Evidence *domain.EvidenceBundle
	History  []domain.ConversationTurn
}

// AnswerComposer drafts prose from an evidence bundle.
type AnswerComposer interface {
	Compose(ctx context.Context, input ComposeInput) string
}

type answerComposer struct {
	builder   PromptBuilder
	llm       domain.LLMClient
	maxTokens int
	logger    *slog.Logger
}

// NewAnswerComposer drafts with llm. A failed generation yields a listing of the evidence.
func NewAnswerComposer(builder PromptBuilder, llm domain.LLMClient, maxTokens int, logger *slog.Logger) AnswerComposer {
	return &answerComposer{builder: builder, llm: llm, maxTokens: maxTokens, logger: logger}
}

func (c *answerComposer) Compose(ctx context.Context, input ComposeInput) string {
	if !input.Evidence.HasEvidence() {
		return NoResultsMessage
	}

	messages, err := c.builder.Build(PromptInput{
		Query:    input.Query,
		Mode:     input.Mode,
		Evidence: input.Evidence,
		History:  input.History,
	})
	if err != nil {
		c.logger.Warn("compose_prompt_failed", slog.String("error", err.Error()))
		return EvidenceDigest(input.Evidence)
	}

	resp, err := c.llm.Chat(ctx, messages, c.maxTokens)
	if err != nil {
		c.logger.Warn("compose_generation_failed",
			slog.String("mode", string(input.Mode)),
			slog.String("error", err.Error()))
		return EvidenceDigest(input.Evidence)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		c.logger.Warn("compose_generation_empty", slog.String("mode", string(input.Mode)))
		return EvidenceDigest(input.Evidence)
	}
	return text
}

// EvidenceDigest lists the evidence deterministically, one line per article.
func EvidenceDigest(evidence *domain.EvidenceBundle) string {
	if !evidence.HasEvidence() {
		return NoResultsMessage
	}
	var sb strings.Builder
	sb.WriteString("Here is what the matching articles say:\n")
	for _, row := range evidence.StructuredRows {
		title := row.Title()
		if title == "" {
			title = "Article " + row.ArticleID()
		}
		sb.WriteString("- ")
		sb.WriteString(title)
		if author := row.Author(); author != "" {
			sb.WriteString(fmt.Sprintf(" (by %s)", author))
		}
		if summary := strings.TrimSpace(evidence.Summaries[row.ArticleID()]); summary != "" {
			sb.WriteString(": ")
			sb.WriteString(summary)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

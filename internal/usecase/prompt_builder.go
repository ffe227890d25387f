package usecase

import (
	"fmt"
	"strings"

	"news-orchestrator/internal/domain"
)

// ComposeMode selects how the draft answer is written.
type ComposeMode string

const (
	// ComposeAnswer answers a fresh question from its evidence.
	ComposeAnswer ComposeMode = "answer"
	// ComposeSummary explains the prior evidence point by point.
	ComposeSummary ComposeMode = "summary"
	// ComposeFollowUp answers from prior evidence plus relevant past exchanges.
	ComposeFollowUp ComposeMode = "follow_up"
)

// PromptInput contains the pieces that feed into the prompt builder.
type PromptInput struct {
	Query    string
	Mode     ComposeMode
	Evidence *domain.EvidenceBundle
	History  []domain.ConversationTurn
}

// PromptBuilder builds the chat messages sent to the LLM.
type PromptBuilder interface {
	Build(input PromptInput) ([]domain.Message, error)
}

// XMLPromptBuilder creates structured prompts that separate evidence, history, instructions and query.
type XMLPromptBuilder struct {
	additionalInstructions []string
}

// NewXMLPromptBuilder creates a prompt builder with optional extra instructions appended.
func NewXMLPromptBuilder(additionalInstructions ...string) PromptBuilder {
	return &XMLPromptBuilder{
		additionalInstructions: additionalInstructions,
	}
}

// Build renders the Messages for Chat API.
func (b *XMLPromptBuilder) Build(input PromptInput) ([]domain.Message, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if !input.Evidence.HasEvidence() {
		return nil, fmt.Errorf("evidence is required")
	}

	// 1. System message (instructions)
	var sysSb strings.Builder
	sysSb.WriteString("<instructions>\n")
	for _, inst := range append(modeInstructions(input.Mode), b.additionalInstructions...) {
		sysSb.WriteString("  <line>")
		sysSb.WriteString(escape(inst))
		sysSb.WriteString("</line>\n")
	}
	sysSb.WriteString("</instructions>\n")

	// 2. User message (evidence + history + query)
	var userSb strings.Builder
	userSb.WriteString("<evidence>\n")
	for _, row := range input.Evidence.StructuredRows {
		id := row.ArticleID()
		userSb.WriteString("  <article>\n")
		writeTag(&userSb, "article_id", id)
		writeTag(&userSb, "title", row.Title())
		writeTag(&userSb, "author", row.Author())
		writeTag(&userSb, "category", row.Category())
		writeTag(&userSb, "reference_link", row.ReferenceLink())
		writeTag(&userSb, "summary", input.Evidence.Summaries[id])
		userSb.WriteString("  </article>\n")
	}
	userSb.WriteString("</evidence>\n\n")

	if len(input.History) > 0 {
		userSb.WriteString("<history>\n")
		for _, turn := range input.History {
			userSb.WriteString("  <turn>\n")
			writeTag(&userSb, "input", turn.InputText)
			writeTag(&userSb, "output", turn.OutputText)
			userSb.WriteString("  </turn>\n")
		}
		userSb.WriteString("</history>\n\n")
	}

	userSb.WriteString("<query>\n")
	userSb.WriteString(escape(input.Query))
	userSb.WriteString("\n</query>\n")

	return []domain.Message{
		{Role: domain.RoleSystem, Content: sysSb.String()},
		{Role: domain.RoleUser, Content: userSb.String()},
	}, nil
}

func modeInstructions(mode ComposeMode) []string {
	base := []string{
		"You answer questions about news articles using ONLY the <evidence>.",
		"Never invent titles, authors, categories, dates or links.",
		"Do not write URLs; references are attached separately.",
	}
	switch mode {
	case ComposeSummary:
		return append(base,
			"The user asks for a summary of the articles discussed so far.",
			"Explain each article point by point, one short paragraph per article, in evidence order.",
		)
	case ComposeFollowUp:
		return append(base,
			"The <history> holds earlier exchanges relevant to the query.",
			"Answer the follow-up using the evidence; use the history only to resolve what the user refers to.",
		)
	default:
		return append(base,
			"Answer the <query> concisely, mentioning the articles that support each statement by title.",
			"If the evidence does not address the query, say so plainly.",
		)
	}
}

func writeTag(sb *strings.Builder, tag, value string) {
	sb.WriteString("    <")
	sb.WriteString(tag)
	sb.WriteString(">")
	sb.WriteString(escape(value))
	sb.WriteString("</")
	sb.WriteString(tag)
	sb.WriteString(">\n")
}

func escape(value string) string {
	s := strings.TrimSpace(value)
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(s)
}

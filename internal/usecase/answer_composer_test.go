package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"news-orchestrator/internal/domain"
	"news-orchestrator/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAnswerComposer_EmptyEvidence(t *testing.T) {
	llm := new(mockLLMClient)
	c := usecase.NewAnswerComposer(usecase.NewXMLPromptBuilder(), llm, 512, discardLogger())

	out := c.Compose(context.Background(), usecase.ComposeInput{Query: "q", Evidence: domain.NewEmptyBundle(domain.PipelineSemantic)})

	assert.Equal(t, usecase.NoResultsMessage, out)
	llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnswerComposer_UsesLLMDraft(t *testing.T) {
	llm := new(mockLLMClient)
	llm.On("Chat", mock.Anything, mock.MatchedBy(func(msgs []domain.Message) bool {
		return len(msgs) == 2 && strings.Contains(msgs[1].Content, "<article_id>7</article_id>")
	}), 512).Return(&domain.LLMResponse{Text: "  Solar output set a record.  ", Done: true}, nil)

	c := usecase.NewAnswerComposer(usecase.NewXMLPromptBuilder(), llm, 512, discardLogger())
	out := c.Compose(context.Background(), usecase.ComposeInput{Query: "solar", Mode: usecase.ComposeAnswer, Evidence: solarBundle()})

	assert.Equal(t, "Solar output set a record.", out)
	llm.AssertExpectations(t)
}

func TestAnswerComposer_GenerationFailureUsesDigest(t *testing.T) {
	llm := new(mockLLMClient)
	llm.On("Chat", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("down"))

	c := usecase.NewAnswerComposer(usecase.NewXMLPromptBuilder(), llm, 512, discardLogger())
	out := c.Compose(context.Background(), usecase.ComposeInput{Query: "solar", Evidence: solarBundle()})

	assert.Equal(t, usecase.EvidenceDigest(solarBundle()), out)
	assert.Contains(t, out, "Solar records (by Ben): Solar generation in Spain set a new record.")
	assert.NotContains(t, out, "http")
}

func TestXMLPromptBuilder_SummaryModeAndHistory(t *testing.T) {
	builder := usecase.NewXMLPromptBuilder("Answer in English.")
	msgs, err := builder.Build(usecase.PromptInput{
		Query:    "summarize that",
		Mode:     usecase.ComposeSummary,
		Evidence: solarBundle(),
		History:  []domain.ConversationTurn{{InputText: "articles about <renewable> energy", OutputText: "two found"}},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "point by point")
	assert.Contains(t, msgs[0].Content, "Answer in English.")
	assert.Contains(t, msgs[1].Content, "<history>")
	assert.Contains(t, msgs[1].Content, "articles about &lt;renewable&gt; energy")
	assert.Contains(t, msgs[1].Content, "<reference_link>https://news.example/7?ref=feed&amp;x=%20y</reference_link>")
}

func TestXMLPromptBuilder_RequiresEvidence(t *testing.T) {
	_, err := usecase.NewXMLPromptBuilder().Build(usecase.PromptInput{Query: "q", Evidence: domain.NewEmptyBundle(domain.PipelineSemantic)})
	assert.Error(t, err)

	_, err = usecase.NewXMLPromptBuilder().Build(usecase.PromptInput{Query: " ", Evidence: solarBundle()})
	assert.Error(t, err)
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"news-orchestrator/internal/domain"
	"news-orchestrator/internal/usecase/retrieval"
)

// exitVocabulary ends a session. Matching is on the normalized query.
var exitVocabulary = map[string]struct{}{
	"exit":  {},
	"quit":  {},
	"bye":   {},
	"happy": {},
}

// IsTerminationToken reports whether query is a member of the exit vocabulary.
func IsTerminationToken(query string) bool {
	_, ok := exitVocabulary[normalizeQuery(query)]
	return ok
}

func normalizeQuery(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	return strings.TrimRight(q, ".!?")
}

// QueryClassifier routes a query given the session's last turn.
type QueryClassifier interface {
	Classify(ctx context.Context, query string, lastTurn *domain.ConversationTurn) domain.RoutingDecision
}

// FollowUpDetector decides whether query continues last.
type FollowUpDetector interface {
	IsFollowUp(ctx context.Context, query string, last domain.ConversationTurn) bool
}

// IntentSplitter chooses between the structured and semantic routes for a new query.
type IntentSplitter interface {
	Split(ctx context.Context, query string) (domain.RouteKind, error)
}

type queryClassifier struct {
	followUp FollowUpDetector
	splitter IntentSplitter
	logger   *slog.Logger
}

// NewQueryClassifier builds a classifier from a follow-up detector and an intent splitter.
func NewQueryClassifier(followUp FollowUpDetector, splitter IntentSplitter, logger *slog.Logger) QueryClassifier {
	return &queryClassifier{followUp: followUp, splitter: splitter, logger: logger}
}

// NewQueryClassifierFromConfig picks detector and splitter implementations by mode.
func NewQueryClassifierFromConfig(cfg ClassifierConfig, llm domain.LLMClient, logger *slog.Logger) (QueryClassifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var detector FollowUpDetector = NewSimilarityFollowUpDetector(SequenceRatio, cfg.SimilarityThreshold)
	if cfg.FollowUpMode == FollowUpModeLLM {
		if llm == nil {
			return nil, fmt.Errorf("follow-up mode %q requires an llm client", cfg.FollowUpMode)
		}
		detector = NewLLMFollowUpDetector(llm, cfg.Timeout, logger)
	}
	splitter, err := NewIntentSplitterFromConfig(cfg, llm)
	if err != nil {
		return nil, err
	}
	return NewQueryClassifier(detector, splitter, logger), nil
}

// NewIntentSplitterFromConfig returns the splitter selected by cfg.SplitMode.
func NewIntentSplitterFromConfig(cfg ClassifierConfig, llm domain.LLMClient) (IntentSplitter, error) {
	if cfg.SplitMode != SplitModeLLM {
		return HeuristicSplitter{}, nil
	}
	if llm == nil {
		return nil, fmt.Errorf("split mode %q requires an llm client", cfg.SplitMode)
	}
	return NewLLMSplitter(llm, cfg.Timeout), nil
}

func (c *queryClassifier) Classify(ctx context.Context, query string, lastTurn *domain.ConversationTurn) domain.RoutingDecision {
	if IsTerminationToken(query) {
		return domain.TerminateDecision()
	}

	if lastTurn != nil && c.followUp.IsFollowUp(ctx, query, *lastTurn) {
		ref := *lastTurn
		return domain.FollowUpDecision(&ref)
	}

	kind, err := c.splitter.Split(ctx, query)
	if err != nil {
		c.logger.Warn("classification_ambiguous",
			slog.String("query", query),
			slog.String("error", err.Error()))
		d := domain.NewSemanticDecision()
		d.Ambiguous = true
		return d
	}
	if kind == domain.RouteNewStructured {
		return domain.NewStructuredDecision()
	}
	return domain.NewSemanticDecision()
}

// similarityFollowUpDetector compares the query with the last turn's input and output text.
type similarityFollowUpDetector struct {
	score     TextSimilarity
	threshold float64
}

// NewSimilarityFollowUpDetector treats a query as a follow-up when its best score reaches threshold.
func NewSimilarityFollowUpDetector(score TextSimilarity, threshold float64) FollowUpDetector {
	return &similarityFollowUpDetector{score: score, threshold: threshold}
}

func (d *similarityFollowUpDetector) IsFollowUp(_ context.Context, query string, last domain.ConversationTurn) bool {
	best := d.score(query, last.InputText)
	if last.OutputText != "" {
		if s := d.score(query, last.OutputText); s > best {
			best = s
		}
	}
	return best >= d.threshold
}

type llmFollowUpDetector struct {
	llm     domain.LLMClient
	timeout time.Duration
	logger  *slog.Logger
}

// NewLLMFollowUpDetector delegates the decision to a constrained completion answering FOLLOWUP or NEW.
// A call that fails or outlives timeout counts as a new query.
func NewLLMFollowUpDetector(llm domain.LLMClient, timeout time.Duration, logger *slog.Logger) FollowUpDetector {
	return &llmFollowUpDetector{llm: llm, timeout: timeout, logger: logger}
}

func (d *llmFollowUpDetector) IsFollowUp(ctx context.Context, query string, last domain.ConversationTurn) bool {
	prompt := fmt.Sprintf(`Decide whether the new question continues the previous exchange.
Previous question: %s
Previous answer: %s
New question: %s

Reply with exactly one word: FOLLOWUP or NEW.`, last.InputText, truncate(last.OutputText, 1500), query)

	callCtx, cancel := retrieval.WithTimeout(ctx, d.timeout)
	defer cancel()
	resp, err := d.llm.Generate(callCtx, prompt, 8)
	if err != nil {
		d.logger.Warn("followup_detection_failed", slog.String("error", err.Error()))
		return false
	}
	switch normalizeLabel(resp.Text) {
	case "FOLLOWUP":
		return true
	case "NEW":
		return false
	default:
		d.logger.Warn("followup_detection_invalid_label", slog.String("label", resp.Text))
		return false
	}
}

var (
	structuredCuePattern = regexp.MustCompile(`(?i)\b(authors?|written by|wrote|writers?|categor(y|ies)|article[\s_-]*ids?|id\s*[:#]?\s*\d+|belongs? to|published by)\b`)
	byNamePattern        = regexp.MustCompile(`\bby\s+\p{Lu}\p{L}+`)
)

// HeuristicSplitter routes to the structured pipeline when the query names an entity
// the graph can resolve directly: an author, a category, an article id or a relationship.
type HeuristicSplitter struct{}

func (HeuristicSplitter) Split(_ context.Context, query string) (domain.RouteKind, error) {
	if structuredCuePattern.MatchString(query) || byNamePattern.MatchString(query) {
		return domain.RouteNewStructured, nil
	}
	return domain.RouteNewSemantic, nil
}

type llmSplitter struct {
	llm     domain.LLMClient
	timeout time.Duration
}

// NewLLMSplitter delegates the split to a constrained completion answering STRUCTURED or SEMANTIC.
// Each call is bounded by timeout; zero leaves only the caller's deadline.
func NewLLMSplitter(llm domain.LLMClient, timeout time.Duration) IntentSplitter {
	return &llmSplitter{llm: llm, timeout: timeout}
}

func (s *llmSplitter) Split(ctx context.Context, query string) (domain.RouteKind, error) {
	prompt := fmt.Sprintf(`Classify the question about news articles.
STRUCTURED: it names an author, a category, an article id, or asks how articles, authors and categories relate.
SEMANTIC: it asks about a topic, keyword or trend.

Question: %s

Reply with exactly one word: STRUCTURED or SEMANTIC.`, query)

	callCtx, cancel := retrieval.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.llm.Generate(callCtx, prompt, 8)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrClassificationAmbiguous, err)
	}
	switch normalizeLabel(resp.Text) {
	case "STRUCTURED":
		return domain.RouteNewStructured, nil
	case "SEMANTIC":
		return domain.RouteNewSemantic, nil
	default:
		return "", fmt.Errorf("%w: unexpected label %q", domain.ErrClassificationAmbiguous, resp.Text)
	}
}

func normalizeLabel(text string) string {
	return strings.ToUpper(strings.Trim(strings.TrimSpace(text), "\"'`.*"))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"news-orchestrator/internal/domain"
	"news-orchestrator/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ClosingMessage is returned for exit tokens.
const ClosingMessage = "Conversation ended. You can start a new query any time."

var tracer = otel.Tracer("news-orchestrator/usecase")

// Answer is the user-visible result of one turn.
type Answer struct {
	Text       string
	References []Reference
	Route      domain.RouteKind
	Pipeline   domain.Pipeline
	Outcome    ValidationOutcome
	Fallbacks  []string
	// Terminated is true when the query ended the conversation.
	Terminated bool
	TurnSeq    int64
}

// AnswerQueryUsecase answers one query within a session.
type AnswerQueryUsecase interface {
	// Answer only fails on empty input, ended sessions, or cancellation (ErrTurnCancelled).
	Answer(ctx context.Context, query string, sess *session.Session) (*Answer, error)
}

type answerQueryUsecase struct {
	classifier QueryClassifier
	retrieve   RetrieveEvidenceUsecase
	composer   AnswerComposer
	validator  GroundingValidator
	splitter   IntentSplitter
	cfg        RetrievalConfig
	observer   Observer
	logger     *slog.Logger
}

// AnswerOption configures the answer usecase.
type AnswerOption func(*answerQueryUsecase)

// WithAnswerObserver reports routes and grounding outcomes to o.
func WithAnswerObserver(o Observer) AnswerOption {
	return func(u *answerQueryUsecase) { u.observer = observerOrNoop(o) }
}

// WithFollowUpSplitter routes refine follow-ups by the content of the follow-up itself.
func WithFollowUpSplitter(s IntentSplitter) AnswerOption {
	return func(u *answerQueryUsecase) {
		if s != nil {
			u.splitter = s
		}
	}
}

// NewAnswerQueryUsecase wires classification, retrieval, composition and grounding.
func NewAnswerQueryUsecase(
	classifier QueryClassifier,
	retrieve RetrieveEvidenceUsecase,
	composer AnswerComposer,
	validator GroundingValidator,
	cfg RetrievalConfig,
	logger *slog.Logger,
	opts ...AnswerOption,
) AnswerQueryUsecase {
	u := &answerQueryUsecase{
		classifier: classifier,
		retrieve:   retrieve,
		composer:   composer,
		validator:  validator,
		splitter:   HeuristicSplitter{},
		cfg:        cfg,
		observer:   noopObserver{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *answerQueryUsecase) Answer(ctx context.Context, query string, sess *session.Session) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if sess == nil {
		return nil, fmt.Errorf("session is required")
	}

	release, err := sess.Acquire(ctx)
	if err != nil {
		if errors.Is(err, session.ErrSessionEnded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTurnCancelled, err)
	}
	defer release()

	ctx, span := tracer.Start(ctx, "answer", trace.WithAttributes(attribute.String("session.id", sess.ID)))
	defer span.End()
	logger := u.logger.With(slog.String("session_id", sess.ID))
	start := time.Now()

	// 1. Classify
	decision := u.classifier.Classify(ctx, query, sess.LastTurn())
	u.observer.RouteDecided(decision.Kind, decision.Ambiguous)
	span.SetAttributes(attribute.String("route", string(decision.Kind)))
	logger.Info("query_classified",
		slog.String("route", string(decision.Kind)),
		slog.Bool("ambiguous", decision.Ambiguous))

	if decision.Kind == domain.RouteTerminate {
		sess.Reset()
		logger.Info("session_reset", slog.String("reason", "exit_token"))
		return &Answer{Text: ClosingMessage, Route: domain.RouteTerminate, Terminated: true}, nil
	}

	// 2. Retrieve
	ev := u.gather(ctx, query, decision, sess, logger)
	bundle := ev.bundle
	if err := ctx.Err(); err != nil {
		return nil, u.cancelled(logger, "retrieve", err)
	}

	// 3. Compose
	composeCtx, composeSpan := tracer.Start(ctx, "compose")
	draft := u.composer.Compose(composeCtx, ComposeInput{Query: query, Mode: ev.mode, Evidence: bundle, History: ev.history})
	composeSpan.End()
	if err := ctx.Err(); err != nil {
		return nil, u.cancelled(logger, "compose", err)
	}

	// 4. Validate
	validateCtx, validateSpan := tracer.Start(ctx, "validate")
	result := u.validator.Validate(validateCtx, query, draft, bundle)
	validateSpan.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	validateSpan.End()
	if err := ctx.Err(); err != nil {
		return nil, u.cancelled(logger, "validate", err)
	}
	u.observer.GroundingOutcome(string(result.Outcome))

	// 5. Record
	turn := sess.Record(context.WithoutCancel(ctx), domain.ConversationTurn{
		InputText:  query,
		OutputText: result.Text,
		Route:      decision.Kind,
		Pipeline:   ev.recorded.Pipeline,
	}, ev.recorded)

	logger.Info("turn_completed",
		slog.Int64("turn_seq", turn.Sequence),
		slog.String("route", string(decision.Kind)),
		slog.String("pipeline", string(bundle.Pipeline)),
		slog.String("outcome", string(result.Outcome)),
		slog.Int("references", len(result.References)),
		slog.Duration("elapsed", time.Since(start)))

	return &Answer{
		Text:       result.Text,
		References: result.References,
		Route:      decision.Kind,
		Pipeline:   bundle.Pipeline,
		Outcome:    result.Outcome,
		Fallbacks:  bundle.Fallbacks,
		TurnSeq:    turn.Sequence,
	}, nil
}

// gathered is the evidence for one turn. recorded is what the session keeps;
// it differs from bundle only when earlier evidence is reused for a follow-up.
type gathered struct {
	bundle   *domain.EvidenceBundle
	recorded *domain.EvidenceBundle
	mode     ComposeMode
	history  []domain.ConversationTurn
}

// gather returns the evidence for the turn together with the composition mode and any recalled history.
func (u *answerQueryUsecase) gather(
	ctx context.Context,
	query string,
	decision domain.RoutingDecision,
	sess *session.Session,
	logger *slog.Logger,
) gathered {
	ctx, span := tracer.Start(ctx, "retrieve")
	defer span.End()

	if decision.Kind != domain.RouteFollowUp {
		b := u.retrieve.Retrieve(ctx, query, decision)
		return gathered{bundle: b, recorded: b, mode: ComposeAnswer}
	}

	history := sess.Memory().MostRelevant(ctx, query, u.cfg.MemoryLookupLimit)
	intent := DetectFollowUpIntent(query)
	prior := sess.LastBundle()

	if intent != IntentRefine && prior.HasEvidence() {
		logger.Info("follow_up_reused_evidence",
			slog.String("intent", string(intent)),
			slog.String("pipeline", string(prior.Pipeline)),
			slog.Int("rows", len(prior.StructuredRows)),
			slog.Int("history", len(history)))
		mode := ComposeFollowUp
		if intent == IntentSummarize {
			mode = ComposeSummary
		}
		reused := prior.Clone()
		reused.Pipeline = domain.PipelineFollowUp
		return gathered{bundle: reused, recorded: prior, mode: mode, history: history}
	}

	// Refinements are routed on their own text.
	kind, err := u.splitter.Split(ctx, query)
	if err != nil {
		logger.Warn("follow_up_split_failed", slog.String("error", err.Error()))
		kind = domain.RouteNewSemantic
	}

	var b *domain.EvidenceBundle
	if kind == domain.RouteNewStructured {
		logger.Info("follow_up_retrieval",
			slog.String("intent", string(intent)),
			slog.String("pipeline", string(domain.PipelineStructured)),
			slog.String("query", query))
		b = u.retrieve.Retrieve(ctx, query, domain.NewStructuredDecision())
	} else {
		contextual := ContextualizeQuery(query, history)
		logger.Info("follow_up_retrieval",
			slog.String("intent", string(intent)),
			slog.String("pipeline", string(domain.PipelineSemantic)),
			slog.String("query", contextual))
		b = u.retrieve.Retrieve(ctx, contextual, domain.NewSemanticDecision())
	}
	return gathered{bundle: b, recorded: b, mode: ComposeFollowUp, history: history}
}

func (u *answerQueryUsecase) cancelled(logger *slog.Logger, stage string, err error) error {
	logger.Warn("turn_cancelled", slog.String("stage", stage), slog.String("error", err.Error()))
	return fmt.Errorf("%w: %v", domain.ErrTurnCancelled, err)
}

// RenderAnswer formats an answer and its references as Markdown.
func RenderAnswer(a *Answer) string {
	if a == nil {
		return ""
	}
	if len(a.References) == 0 {
		return a.Text
	}
	var sb strings.Builder
	sb.WriteString(a.Text)
	sb.WriteString("\n\n**Related Articles:**\n")
	for _, ref := range a.References {
		sb.WriteString(fmt.Sprintf("- [%s](%s)\n", ref.Title, ref.URL))
	}
	return strings.TrimRight(sb.String(), "\n")
}

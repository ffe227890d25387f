package domain

// RouteKind tags a RoutingDecision.
type RouteKind string

const (
	RouteNewStructured RouteKind = "new_structured"
	RouteNewSemantic   RouteKind = "new_semantic"
	RouteFollowUp      RouteKind = "follow_up"
	// RouteTerminate is the session-termination signal. It is not a retrieval route.
	RouteTerminate RouteKind = "terminate"
)

// RoutingDecision is computed fresh for every query and never persisted.
type RoutingDecision struct {
	Kind RouteKind
	// ReferenceTurn is set only for RouteFollowUp.
	ReferenceTurn *ConversationTurn
	// Ambiguous is true when the classifier could not decide and used its default.
	Ambiguous bool
}

func NewStructuredDecision() RoutingDecision { return RoutingDecision{Kind: RouteNewStructured} }

func NewSemanticDecision() RoutingDecision { return RoutingDecision{Kind: RouteNewSemantic} }

// FollowUpDecision references the turn the query continues.
func FollowUpDecision(reference *ConversationTurn) RoutingDecision {
	return RoutingDecision{Kind: RouteFollowUp, ReferenceTurn: reference}
}

func TerminateDecision() RoutingDecision { return RoutingDecision{Kind: RouteTerminate} }

// IsRetrieval reports whether the decision names one of the three retrieval variants.
func (d RoutingDecision) IsRetrieval() bool {
	switch d.Kind {
	case RouteNewStructured, RouteNewSemantic, RouteFollowUp:
		return true
	default:
		return false
	}
}

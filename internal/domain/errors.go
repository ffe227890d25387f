package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrClassificationAmbiguous is recovered by the classifier, which then routes NEW/SEMANTIC.
	ErrClassificationAmbiguous = errors.New("classification ambiguous")
	// ErrGatewayTimeout marks a gateway call that exceeded its deadline.
	ErrGatewayTimeout = errors.New("gateway timeout")
	// ErrGateway marks any other gateway failure.
	ErrGateway = errors.New("gateway error")
	// ErrQueryGeneration means no valid constrained graph query could be produced.
	ErrQueryGeneration = errors.New("query generation failed")
	// ErrExecution means the backing store failed while running a query.
	ErrExecution = errors.New("query execution failed")
	// ErrIndexUnavailable means the embedding index cannot be loaded or queried.
	ErrIndexUnavailable = errors.New("embedding index unavailable")
	// ErrEvidenceEmpty means retrieval produced nothing that can be presented.
	ErrEvidenceEmpty = errors.New("evidence empty")
	// ErrGroundingRejected means the draft could not be grounded in the evidence.
	ErrGroundingRejected = errors.New("grounding rejected")
	// ErrValidatorUnavailable means the grounding call failed and the draft was used as-is.
	ErrValidatorUnavailable = errors.New("validator unavailable")
	// ErrTurnCancelled means the turn was abandoned before it completed. Nothing was recorded.
	ErrTurnCancelled = errors.New("turn cancelled")
)

// GatewayError records which gateway failed. It unwraps to both ErrGateway
// (or ErrGatewayTimeout) and the underlying cause.
type GatewayError struct {
	Gateway string
	Timeout bool
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s gateway: %v", e.Gateway, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	kind := ErrGateway
	if e.Timeout {
		kind = ErrGatewayTimeout
	}
	return []error{kind, e.Err}
}

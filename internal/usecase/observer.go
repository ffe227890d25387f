package usecase

import (
	"time"

	"news-orchestrator/internal/domain"
)

// Observer receives pipeline events. Implementations must be safe for concurrent use.
type Observer interface {
	RouteDecided(kind domain.RouteKind, ambiguous bool)
	FallbackTaken(step string)
	GatewayCall(gateway, outcome string, elapsed time.Duration)
	GroundingOutcome(outcome string)
}

type noopObserver struct{}

func (noopObserver) RouteDecided(domain.RouteKind, bool) {}
func (noopObserver) FallbackTaken(string) {}
func (noopObserver) GatewayCall(string, string, time.Duration) {}
func (noopObserver) GroundingOutcome(string) {}

func observerOrNoop(o Observer) Observer {
	if o == nil {
		return noopObserver{}
	}
	return o
}

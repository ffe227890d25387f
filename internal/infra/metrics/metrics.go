// Package metrics provides Prometheus metrics for the news orchestrator.
package metrics

import (
	"time"

	"news-orchestrator/internal/domain"
	"news-orchestrator/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "news_orchestrator"

// Metrics holds the service collectors. It implements usecase.Observer.
type Metrics struct {
	RouteDecisions   *prometheus.CounterVec
	Fallbacks        *prometheus.CounterVec
	GatewayCalls     *prometheus.CounterVec
	GatewayDuration  *prometheus.HistogramVec
	GroundingResults *prometheus.CounterVec
	TurnDuration     *prometheus.HistogramVec
	LiveSessions     prometheus.Gauge
}

var _ usecase.Observer = (*Metrics)(nil)

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RouteDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "route_decisions_total",
				Help:      "Routing decisions by kind",
			},
			[]string{"kind", "ambiguous"},
		),
		Fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_fallbacks_total",
				Help:      "Retrieval fallbacks taken by step",
			},
			[]string{"step"},
		),
		GatewayCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_calls_total",
				Help:      "Gateway calls by gateway and outcome",
			},
			[]string{"gateway", "outcome"},
		),
		GatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_duration_seconds",
				Help:      "Duration of gateway calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"gateway"},
		),
		GroundingResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grounding_outcomes_total",
				Help:      "Grounding validator outcomes",
			},
			[]string{"outcome"},
		),
		TurnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end turn duration in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"route"},
		),
		LiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_sessions",
				Help:      "Number of live conversation sessions",
			},
		),
	}
}

func (m *Metrics) RouteDecided(kind domain.RouteKind, ambiguous bool) {
	a := "false"
	if ambiguous {
		a = "true"
	}
	m.RouteDecisions.WithLabelValues(string(kind), a).Inc()
}

func (m *Metrics) FallbackTaken(step string) {
	m.Fallbacks.WithLabelValues(step).Inc()
}

func (m *Metrics) GatewayCall(gateway, outcome string, elapsed time.Duration) {
	m.GatewayCalls.WithLabelValues(gateway, outcome).Inc()
	m.GatewayDuration.WithLabelValues(gateway).Observe(elapsed.Seconds())
}

func (m *Metrics) GroundingOutcome(outcome string) {
	m.GroundingResults.WithLabelValues(outcome).Inc()
}

// RecordTurn records a completed turn.
func (m *Metrics) RecordTurn(route domain.RouteKind, elapsed time.Duration) {
	m.TurnDuration.WithLabelValues(string(route)).Observe(elapsed.Seconds())
}

// SetLiveSessions matches the session.Manager hook signature.
func (m *Metrics) SetLiveSessions(n int) {
	m.LiveSessions.Set(float64(n))
}

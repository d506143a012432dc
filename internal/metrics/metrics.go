// ABOUTME: Prometheus collectors for interaction handling, policy denials and faults
// ABOUTME: Registered on the default registry and served from /metrics by the gateway

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stingray"

// Outcome labels for Interactions.
const (
	OutcomeHandled  = "handled"
	OutcomeDenied   = "denied"
	OutcomeExpired  = "expired"
	OutcomeNotOwner = "not_owner"
	OutcomeUnknown  = "unknown"
	OutcomeFault    = "fault"
)

var (
	// Interactions counts dispatched events by kind and outcome.
	Interactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interactions_total",
		Help:      "Interaction events dispatched, by kind and outcome.",
	}, []string{"kind", "outcome"})

	// PolicyDenials counts command denials by reason.
	PolicyDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "policy_denials_total",
		Help:      "Command invocations refused by policy, by reason.",
	}, []string{"reason"})

	// HandlerFaults counts handler errors and panics recovered by the supervisor.
	HandlerFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handler_faults_total",
		Help:      "Handler failures caught by the supervisor, by kind (error or panic).",
	}, []string{"kind"})

	// SessionsActive tracks in-flight flows held by the in-process session store.
	// The database-backed session store leaves it at zero.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Multi-step flows currently awaiting user input.",
	})

	// PolicyStoreErrors counts settings reads that failed.
	PolicyStoreErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "policy_store_errors_total",
		Help:      "Workspace settings reads that failed and fell back to the store error mode.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the request workflow.
type Metrics struct {
	RequestsCreated    *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	IdempotentReplays  prometheus.Counter
}

// New creates a new Metrics instance with all workflow metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "archivist_requests_created_total",
			Help: "Total requests created, by type",
		}, []string{"type"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "archivist_request_transitions_total",
			Help: "Request transitions by action and outcome (error code or ok)",
		}, []string{"action", "outcome"}),
		TransitionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "archivist_request_transition_duration_seconds",
			Help:    "Duration of a transition unit of work, including credential re-verification",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"action"}),
		IdempotentReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "archivist_request_idempotent_replays_total",
			Help: "Create submissions answered from an earlier result",
		}),
	}
}

func (m *Metrics) IncrementCreated(requestType string) {
	m.RequestsCreated.WithLabelValues(requestType).Inc()
}

// ObserveTransition records the outcome and duration of one transition.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveTransition(action, outcome string, start time.Time) {
	m.Transitions.WithLabelValues(action, outcome).Inc()
	m.TransitionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementReplays() {
	m.IdempotentReplays.Inc()
}

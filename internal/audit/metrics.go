package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks audit appends by action.
type Metrics struct {
	Appended        *prometheus.CounterVec
	PersistFailures prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Appended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "archivist_audit_entries_appended_total",
			Help: "Total audit entries appended, by action",
		}, []string{"action"}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "archivist_audit_persist_failures_total",
			Help: "Total audit appends that failed to persist",
		}),
	}
}

func (m *Metrics) IncAppended(action Action) {
	m.Appended.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

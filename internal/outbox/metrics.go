package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Claimed     prometheus.Counter
	Deliveries  *prometheus.CounterVec
	CircuitOpen *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Claimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "archivist_outbox_events_claimed_total",
			Help: "Total outbox events claimed for dispatch",
		}),
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "archivist_outbox_deliveries_total",
			Help: "Outbox deliveries by sink and outcome",
		}, []string{"sink", "outcome"}),
		CircuitOpen: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "archivist_outbox_sink_circuit_open",
			Help: "1 while a sink's circuit breaker is open",
		}, []string{"sink"}),
	}
}

func (m *Metrics) ObserveClaimed(n int) {
	m.Claimed.Add(float64(n))
}

func (m *Metrics) ObserveDelivery(sink, outcome string) {
	m.Deliveries.WithLabelValues(sink, outcome).Inc()
}

func (m *Metrics) SetCircuitOpen(sink string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.CircuitOpen.WithLabelValues(sink).Set(v)
}

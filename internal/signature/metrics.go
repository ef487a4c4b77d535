package signature

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for signing and verification.
type Metrics struct {
	Created            *prometheus.CounterVec
	CredentialChecks   *prometheus.CounterVec
	IntegrityChecks    *prometheus.CounterVec
	CredentialDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		Created: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "archivist_signatures_created_total",
			Help: "Total signatures created, by action type",
		}, []string{"action_type"}),
		CredentialChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "archivist_signature_credential_checks_total",
			Help: "Credential re-verifications at signing time, by outcome",
		}, []string{"outcome"}),
		IntegrityChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "archivist_signature_integrity_checks_total",
			Help: "Signature integrity verifications, by result",
		}, []string{"result"}),
		CredentialDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "archivist_signature_credential_check_duration_seconds",
			Help:    "Time spent re-verifying signer credentials",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}
}

func (m *Metrics) ObserveCreated(action ActionType) {
	m.Created.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) ObserveCredentialCheck(ok bool, seconds float64) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.CredentialChecks.WithLabelValues(outcome).Inc()
	m.CredentialDuration.Observe(seconds)
}

func (m *Metrics) ObserveIntegrity(valid bool) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.IntegrityChecks.WithLabelValues(result).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the accreditation cascade and direct issuance.
type Metrics struct {
	CascadeRuns     *prometheus.CounterVec
	GrantsCreated   *prometheus.CounterVec
	DirectIssuances *prometheus.CounterVec
	ChainsScheduled *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		CascadeRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcissuer_accreditation_cascade_runs_total",
			Help: "Accreditation cascade runs by kind and outcome",
		}, []string{"kind", "outcome"}), // outcome: "granted", "duplicate", "onboard_only", "withdrawn"
		GrantsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcissuer_accreditation_grants_created_total",
			Help: "Accreditation grants created by kind",
		}, []string{"kind"}),
		DirectIssuances: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcissuer_accreditation_direct_issuances_total",
			Help: "Direct accreditation offers by kind and outcome",
		}, []string{"kind", "outcome"}),
		ChainsScheduled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcissuer_accreditation_chains_scheduled_total",
			Help: "Onboarding chains scheduled by the cascade",
		}, []string{"chain", "outcome"}),
	}
}

func (m *Metrics) IncrementCascade(kind, outcome string) {
	if m == nil {
		return
	}
	m.CascadeRuns.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) AddGrants(kind string, n int) {
	if m == nil {
		return
	}
	m.GrantsCreated.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) IncrementDirectIssuance(kind, outcome string) {
	if m == nil {
		return
	}
	m.DirectIssuances.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) IncrementChainScheduled(chain string, ok bool) {
	if m == nil {
		return
	}
	outcome := "scheduled"
	if !ok {
		outcome = "rejected"
	}
	m.ChainsScheduled.WithLabelValues(chain, outcome).Inc()
}

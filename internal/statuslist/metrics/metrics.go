package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers status list allocation and revocation.
type Metrics struct {
	Allocations        prometheus.Counter
	ListsCreated       prometheus.Counter
	Revocations        *prometheus.CounterVec
	AllocationDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Allocations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vcissuer_statuslist_allocations_total",
			Help: "Status list slots reserved for issued credentials",
		}),
		ListsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vcissuer_statuslist_lists_created_total",
			Help: "Status lists created",
		}),
		Revocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcissuer_statuslist_revocations_total",
			Help: "Status list bit updates by outcome",
		}, []string{"outcome"}), // outcome: "set", "already_set"
		AllocationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vcissuer_statuslist_allocation_duration_seconds",
			Help:    "Duration of the serialized slot allocation",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) ObserveAllocation(d time.Duration, newList bool) {
	if m == nil {
		return
	}
	m.Allocations.Inc()
	if newList {
		m.ListsCreated.Inc()
	}
	m.AllocationDuration.Observe(d.Seconds())
}

func (m *Metrics) IncrementListsCreated() {
	if m != nil {
		m.ListsCreated.Inc()
	}
}

func (m *Metrics) IncrementRevocation(changed bool) {
	if m == nil {
		return
	}
	outcome := "set"
	if !changed {
		outcome = "already_set"
	}
	m.Revocations.WithLabelValues(outcome).Inc()
}

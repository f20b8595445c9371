package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers credential recording and revocation.
type Metrics struct {
	Recorded *prometheus.CounterVec
	Revoked  *prometheus.CounterVec
	Deleted  prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Recorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcissuer_credentials_recorded_total",
			Help: "Issued credentials recorded, by outcome",
		}, []string{"outcome"}), // outcome: "inserted", "duplicate"
		Revoked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcissuer_credentials_revoked_total",
			Help: "Issued credentials revoked, by mechanism",
		}, []string{"revocation_type"}),
		Deleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vcissuer_credentials_deleted_total",
			Help: "Issued credential records deleted",
		}),
	}
}

func (m *Metrics) IncrementRecorded(inserted bool) {
	if m == nil {
		return
	}
	if inserted {
		m.Recorded.WithLabelValues("inserted").Inc()
		return
	}
	m.Recorded.WithLabelValues("duplicate").Inc()
}

func (m *Metrics) IncrementRevoked(revocationType string) {
	if m == nil {
		return
	}
	m.Revoked.WithLabelValues(revocationType).Inc()
}

func (m *Metrics) IncrementDeleted() {
	if m == nil {
		return
	}
	m.Deleted.Inc()
}

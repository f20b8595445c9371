package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the issuance protocol.
type Metrics struct {
	Requests        *prometheus.CounterVec
	Issued          *prometheus.CounterVec
	Reservations    prometheus.Counter
	Orphaned        prometheus.Counter
	UpstreamRejects *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcissuer_openid_requests_total",
			Help: "Protocol operations by operation and outcome",
		}, []string{"operation", "outcome"}), // outcome: "ok", "rejected", "upstream_error", "error"
		Issued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcissuer_openid_credentials_issued_total",
			Help: "Credentials returned by the signer by delivery mode",
		}, []string{"mode"}), // mode: "immediate", "deferred"
		Reservations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vcissuer_openid_status_reservations_total",
			Help: "Status list slots reserved ahead of signing",
		}),
		Orphaned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vcissuer_openid_status_reservations_orphaned_total",
			Help: "Reserved status list slots missing from the signed credential",
		}),
		UpstreamRejects: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcissuer_openid_upstream_rejections_total",
			Help: "Non-success upstream responses by operation and status",
		}, []string{"operation", "status"}),
	}
}

func (m *Metrics) IncrementRequest(operation, outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) IncrementIssued(deferred bool) {
	if m == nil {
		return
	}
	mode := "immediate"
	if deferred {
		mode = "deferred"
	}
	m.Issued.WithLabelValues(mode).Inc()
}

func (m *Metrics) IncrementReservations() {
	if m == nil {
		return
	}
	m.Reservations.Inc()
}

func (m *Metrics) IncrementOrphanedReservation() {
	if m == nil {
		return
	}
	m.Orphaned.Inc()
}

func (m *Metrics) IncrementUpstreamReject(operation, status string) {
	if m == nil {
		return
	}
	m.UpstreamRejects.WithLabelValues(operation, status).Inc()
}

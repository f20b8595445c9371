package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers outbox emission and relay delivery.
type Metrics struct {
	Emitted         *prometheus.CounterVec
	Published       prometheus.Counter
	PublishFailures prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Emitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcissuer_outbox_events_emitted_total",
			Help: "Events written to the outbox by type",
		}, []string{"event_type"}),
		Published: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vcissuer_outbox_events_published_total",
			Help: "Outbox events delivered by the relay",
		}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vcissuer_outbox_publish_failures_total",
			Help: "Relay batches that stopped on a delivery error",
		}),
	}
}

func (m *Metrics) IncrementEmitted(eventType string) {
	if m != nil {
		m.Emitted.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) AddPublished(n int) {
	if m != nil && n > 0 {
		m.Published.Add(float64(n))
	}
}

func (m *Metrics) IncrementPublishFailures() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}

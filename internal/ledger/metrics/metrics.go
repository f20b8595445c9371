package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers ledger RPC calls and registry reads.
type Metrics struct {
	RPCCalls      *prometheus.CounterVec
	RPCDuration   *prometheus.HistogramVec
	RegistryReads *prometheus.CounterVec
	BreakerOpen   prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		RPCCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcissuer_ledger_rpc_calls_total",
			Help: "Ledger JSON-RPC calls by method and outcome",
		}, []string{"method", "outcome"}),
		RPCDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vcissuer_ledger_rpc_duration_seconds",
			Help:    "Duration of ledger JSON-RPC calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
		RegistryReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcissuer_ledger_registry_reads_total",
			Help: "DID and trusted issuer registry reads by registry and source",
		}, []string{"registry", "source"}), // source: "cache", "upstream", "fallback"
		BreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vcissuer_ledger_registry_breaker_open",
			Help: "1 while the registry circuit breaker is open",
		}),
	}
}

func (m *Metrics) ObserveRPC(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCCalls.WithLabelValues(method, outcome).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) IncrementRegistryRead(registry, source string) {
	if m != nil {
		m.RegistryReads.WithLabelValues(registry, source).Inc()
	}
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}

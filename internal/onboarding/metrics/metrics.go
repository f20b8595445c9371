package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the onboarding worker pool.
type Metrics struct {
	ChainsTotal   *prometheus.CounterVec
	StepAttempts  *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
	QueueDepth    prometheus.Gauge
	ChainsRunning prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		ChainsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcissuer_onboarding_chains_total",
			Help: "Finished onboarding chains by chain and outcome",
		}, []string{"chain", "outcome"}), // outcome: "completed", "failed", "aborted"
		StepAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vcissuer_onboarding_step_attempts_total",
			Help: "Onboarding step attempts by chain, step and outcome",
		}, []string{"chain", "step", "outcome"}),
		StepDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vcissuer_onboarding_step_duration_seconds",
			Help:    "Duration of a single onboarding step attempt",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"chain", "step"}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vcissuer_onboarding_queue_depth",
			Help: "Chains waiting for a worker",
		}),
		ChainsRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vcissuer_onboarding_chains_running",
			Help: "Chains currently executing",
		}),
	}
}

func (m *Metrics) IncrementChain(chain, outcome string) {
	if m == nil {
		return
	}
	m.ChainsTotal.WithLabelValues(chain, outcome).Inc()
}

func (m *Metrics) ObserveStep(chain, step string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.StepAttempts.WithLabelValues(chain, step, outcome).Inc()
	m.StepDuration.WithLabelValues(chain, step).Observe(d.Seconds())
}

func (m *Metrics) SetQueueDepth(n int64) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) SetRunning(n int64) {
	if m == nil {
		return
	}
	m.ChainsRunning.Set(float64(n))
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the provisioning gateway
type Metrics struct {
	PhaseTotal     *prometheus.CounterVec
	PhaseDuration  *prometheus.HistogramVec
	SessionRecords prometheus.Gauge
	AuthFailures   prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PhaseTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provisioning_login_phase_total",
			Help: "Login phase calls by phase and outcome errcode",
		}, []string{"phase", "outcome"}),
		PhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provisioning_login_phase_duration_seconds",
			Help:    "Time spent in the remote login worker per phase",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
		SessionRecords: factory.NewGauge(prometheus.GaugeOpts{
			Name: "provisioning_session_records",
			Help: "Session records held in memory",
		}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "provisioning_auth_failures_total",
			Help: "Requests rejected for an invalid shared secret",
		}),
	}
}

func (m *Metrics) ObservePhase(phase, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PhaseTotal.WithLabelValues(phase, outcome).Inc()
	m.PhaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

func (m *Metrics) SetSessionRecords(n int) {
	if m == nil {
		return
	}
	m.SessionRecords.Set(float64(n))
}

func (m *Metrics) IncrementAuthFailures() {
	if m == nil {
		return
	}
	m.AuthFailures.Inc()
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePhase("code", "ok", 10*time.Millisecond)
	m.ObservePhase("code", "ok", 20*time.Millisecond)
	m.ObservePhase("code", "phone_code_invalid", time.Millisecond)
	m.SetSessionRecords(3)
	m.IncrementAuthFailures()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PhaseTotal.WithLabelValues("code", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PhaseTotal.WithLabelValues("code", "phone_code_invalid")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthFailures))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePhase("code", "ok", time.Second)
		m.SetSessionRecords(1)
		m.IncrementAuthFailures()
	})
}

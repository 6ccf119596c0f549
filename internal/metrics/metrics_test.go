package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Payment("accepted")
	m.Payment("accepted")
	m.Payment("rejected")
	m.Reward("referral", "duplicate")
	m.Transition("confirmed", "awaiting_code")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.payments.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payments.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rewards.WithLabelValues("referral", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("confirmed", "awaiting_code")))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `attestation_payments_total{result="accepted"} 2`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Payment("accepted")
		m.Transition("a", "b")
		m.Email("sent")
		m.Attestation("posted")
		m.Reward("attestation", "paid")
		m.Sweep("ok")
		m.Message("in")
	})
}

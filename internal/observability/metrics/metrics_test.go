package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConversationMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)

	m.ObserveTurn("ok", "greeting")
	m.ObserveTurn("ok", "greeting")
	m.ObserveTurn("nlu_failed", "collecting_info")
	m.ObserveNLULatency(0.25)
	m.ObserveWebhook("confirmed", "applied")
	m.ObserveSubmission("ok")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.turnsTotal.WithLabelValues("ok", "greeting")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.turnsTotal.WithLabelValues("nlu_failed", "collecting_info")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.webhookTotal.WithLabelValues("confirmed", "applied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.bookingsTotal.WithLabelValues("ok")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["bookline_conversation_turns_total"])
	assert.True(t, names["bookline_conversation_nlu_latency_seconds"])
	assert.True(t, names["bookline_scheduling_webhook_total"])
	assert.True(t, names["bookline_booking_submissions_total"])
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *ConversationMetrics

	assert.NotPanics(t, func() {
		m.ObserveTurn("ok", "greeting")
		m.ObserveNLULatency(0.1)
		m.ObserveWebhook("confirmed", "applied")
		m.ObserveSubmission("failed")
	})
}

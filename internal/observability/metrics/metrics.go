package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the turn pipeline and
// the scheduling webhook.
type ConversationMetrics struct {
	turnsTotal    *prometheus.CounterVec
	nluLatency    prometheus.Histogram
	webhookTotal  *prometheus.CounterVec
	bookingsTotal *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total processed user turns",
		}, []string{"outcome", "state"}),
		nluLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bookline",
			Subsystem: "conversation",
			Name:      "nlu_latency_seconds",
			Help:      "Latency of NLU suggestion calls",
			Buckets:   prometheus.DefBuckets,
		}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "scheduling",
			Name:      "webhook_total",
			Help:      "Total scheduling status webhooks",
		}, []string{"status", "result"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Total draft submissions to the scheduling service",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.nluLatency, m.webhookTotal, m.bookingsTotal)
	return m
}

func (m *ConversationMetrics) ObserveTurn(outcome, state string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome, state).Inc()
}

func (m *ConversationMetrics) ObserveNLULatency(seconds float64) {
	if m == nil {
		return
	}
	m.nluLatency.Observe(seconds)
}

func (m *ConversationMetrics) ObserveWebhook(status, result string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(status, result).Inc()
}

func (m *ConversationMetrics) ObserveSubmission(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

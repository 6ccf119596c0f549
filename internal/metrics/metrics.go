package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts workflow outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	payments     *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	emails       *prometheus.CounterVec
	attestations *prometheus.CounterVec
	rewards      *prometheus.CounterVec
	sweeps       *prometheus.CounterVec
	messages     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attestation_payments_total",
			Help: "Incoming payments by outcome.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attestation_transitions_total",
			Help: "Transaction state transitions.",
		}, []string{"from", "to"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attestation_verification_emails_total",
			Help: "Verification email deliveries by outcome.",
		}, []string{"result"}),
		attestations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attestation_posts_total",
			Help: "Attestation postings by outcome.",
		}, []string{"result"}),
		rewards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attestation_rewards_total",
			Help: "Reward records and payouts by kind and outcome.",
		}, []string{"kind", "result"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attestation_sweeps_total",
			Help: "Funds consolidation runs by outcome.",
		}, []string{"result"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attestation_chat_messages_total",
			Help: "Chat messages handled.",
		}, []string{"direction"}),
	}
	reg.MustRegister(m.payments, m.transitions, m.emails, m.attestations, m.rewards, m.sweeps, m.messages)
	return m
}

// Handler serves the metrics registered in gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Payment(result string) {
	if m != nil {
		m.payments.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Transition(from, to string) {
	if m != nil {
		m.transitions.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) Email(result string) {
	if m != nil {
		m.emails.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Attestation(result string) {
	if m != nil {
		m.attestations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Reward(kind, result string) {
	if m != nil {
		m.rewards.WithLabelValues(kind, result).Inc()
	}
}

func (m *Metrics) Sweep(result string) {
	if m != nil {
		m.sweeps.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Message(direction string) {
	if m != nil {
		m.messages.WithLabelValues(direction).Inc()
	}
}

package web

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts authentication outcomes for the /metrics endpoint.
type Metrics struct {
	loginAttempts    *prometheus.CounterVec
	usersRegistered  prometheus.Counter
	secretsSubmitted prometheus.Counter
}

// NewMetrics creates the counters and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whisperwall_login_attempts_total",
			Help: "Login attempts by provider and outcome",
		}, []string{"provider", "outcome"}),
		usersRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whisperwall_users_registered_total",
			Help: "Users created by local registration",
		}),
		secretsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whisperwall_secrets_submitted_total",
			Help: "Secret submissions persisted",
		}),
	}

	reg.MustRegister(
		m.loginAttempts,
		m.usersRegistered,
		m.secretsSubmitted,
	)

	return m
}

func (m *Metrics) RecordLogin(provider, outcome string) {
	m.loginAttempts.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordRegistration() {
	m.usersRegistered.Inc()
}

func (m *Metrics) RecordSecretSubmitted() {
	m.secretsSubmitted.Inc()
}

// MetricsHandler returns the Prometheus scrape handler for the gatherer.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Package metrics defines the Prometheus collectors exported by the bot.
// All methods are safe on a nil *Metrics so components can run without metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event outcomes recorded by ObserveEvent.
const (
	OutcomeOK        = "ok"
	OutcomeRecovered = "recovered" // validation error turned into a re-prompt
	OutcomeUnhandled = "unhandled"
	OutcomeError     = "error"
)

// Metrics holds the bot's collectors and the registry they are registered in.
type Metrics struct {
	registry        *prometheus.Registry
	events          *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	tokenRenewals   prometheus.Counter
}

// New creates collectors on a fresh registry, including Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopbot_events_total",
			Help: "Chat events dispatched through the conversation state machine.",
		}, []string{"kind", "outcome"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shopbot_backend_request_duration_seconds",
			Help:    "Latency of requests to the commerce backend.",
			Buckets: prometheus.DefBuckets,
		}, []string{"code", "method"}),
		tokenRenewals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopbot_token_renewals_total",
			Help: "Access token renewals against the backend token endpoint.",
		}),
	}

	reg.MustRegister(
		m.events,
		m.backendDuration,
		m.tokenRenewals,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveEvent counts one dispatched chat event.
func (m *Metrics) ObserveEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, outcome).Inc()
}

// TokenRenewed counts one token renewal.
func (m *Metrics) TokenRenewed() {
	if m == nil {
		return
	}
	m.tokenRenewals.Inc()
}

// InstrumentRoundTripper records backend latency by status code and method.
func (m *Metrics) InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	if m == nil {
		return next
	}
	return promhttp.InstrumentRoundTripperDuration(m.backendDuration, next)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

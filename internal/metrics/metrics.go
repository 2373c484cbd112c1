// Package metrics holds the Prometheus collectors shared by the feed, proxy
// and HTTP layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups dashd's collectors. A nil *Metrics is valid and records
// nothing, so components can be built without one in tests.
type Metrics struct {
	FeedFetches   *prometheus.CounterVec
	GenAIRequests *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FeedFetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dashd_feed_fetch_total",
			Help: "Feed fetches by outcome (ok, http_error, transport_error, breaker_open, parse_empty).",
		}, []string{"outcome"}),

		GenAIRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dashd_genai_requests_total",
			Help: "Generative-text proxy calls by result kind.",
		}, []string{"kind"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dashd_http_requests_total",
			Help: "HTTP requests by route pattern and status code.",
		}, []string{"method", "route", "status"}),

		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashd_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) FeedFetch(outcome string) {
	if m == nil {
		return
	}
	m.FeedFetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) GenAIRequest(kind string) {
	if m == nil {
		return
	}
	m.GenAIRequests.WithLabelValues(kind).Inc()
}

func (m *Metrics) HTTPRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}

// Package metrics exposes Prometheus collectors for query handling and
// calendar source health.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "freebusy"

// Metrics groups the collectors recorded by the HTTP surface and the
// calendar provider. A nil *Metrics is valid and records nothing.
type Metrics struct {
	queries          *prometheus.CounterVec
	queryDuration    *prometheus.HistogramVec
	providerFailures *prometheus.CounterVec
	refreshes        *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// MustNew registers the collectors with reg. A nil reg uses a fresh
// registry. Registration errors panic, like the promauto helpers.
func MustNew(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Answered availability queries by outcome and intent.",
		}, []string{"availability", "intent"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time spent answering a query, including calendar lookups.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"intent"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Calendar source fetch or parse failures.",
		}, []string{"source"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Scheduled calendar refresh runs by status.",
		}, []string{"status"}),
		gatherer: reg,
	}
	reg.MustRegister(m.queries, m.queryDuration, m.providerFailures, m.refreshes)
	return m
}

// ObserveQuery records one answered query.
func (m *Metrics) ObserveQuery(intent, availability string, d time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(availability, intent).Inc()
	m.queryDuration.WithLabelValues(intent).Observe(d.Seconds())
}

// ProviderFailure counts a failed source.
func (m *Metrics) ProviderFailure(sourceID string, _ error) {
	if m == nil {
		return
	}
	m.providerFailures.WithLabelValues(sourceID).Inc()
}

// Refresh counts a scheduled refresh run.
func (m *Metrics) Refresh(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.refreshes.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

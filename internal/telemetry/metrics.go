// Package telemetry exports Prometheus metrics for audits and drafts.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rawaudit"

// Metrics holds the service collectors. A nil *Metrics records nothing, so
// callers never need to check whether metrics are enabled.
type Metrics struct {
	AuditsTotal         *prometheus.CounterVec
	PagesCrawled        prometheus.Counter
	IssuesTotal         *prometheus.CounterVec
	DraftsApplied       *prometheus.CounterVec
	SuggestionFallbacks prometheus.Counter
	AuditDuration       prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration on the default registry.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AuditsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audits_total",
			Help:      "Audits that reached a terminal state, by status",
		}, []string{"status"}),
		PagesCrawled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_crawled_total",
			Help:      "Pages fetched by the crawler",
		}),
		IssuesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_total",
			Help:      "Issues recorded, by severity",
		}, []string{"severity"}),
		DraftsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drafts_applied_total",
			Help:      "Drafts applied, by trigger",
		}, []string{"trigger"}),
		SuggestionFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestion_fallbacks_total",
			Help:      "Suggestion calls answered by the rule fallback",
		}),
		AuditDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audit_duration_seconds",
			Help:      "Wall time of an audit run from claim to terminal state",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		gatherer: reg,
	}
}

// Handler serves the registry for /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordAudit records a finished run.
func (m *Metrics) RecordAudit(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AuditsTotal.WithLabelValues(status).Inc()
	m.AuditDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordPageCrawled() {
	if m == nil {
		return
	}
	m.PagesCrawled.Inc()
}

func (m *Metrics) RecordIssue(severity string) {
	if m == nil {
		return
	}
	m.IssuesTotal.WithLabelValues(severity).Inc()
}

func (m *Metrics) RecordDraftApplied(trigger string) {
	if m == nil {
		return
	}
	m.DraftsApplied.WithLabelValues(trigger).Inc()
}

func (m *Metrics) RecordFallback() {
	if m == nil {
		return
	}
	m.SuggestionFallbacks.Inc()
}

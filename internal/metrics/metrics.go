// Package metrics provides Prometheus metrics for the redirector.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"redirector/internal/config"
	"redirector/internal/model"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the redirector.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	AdmissionDecisions *prometheus.CounterVec

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec
	UpstreamErrors    prometheus.Counter

	// pathPrefixes bounds the path_prefix label to configured endpoints.
	pathPrefixes []string
}

// New creates a Metrics instance with a custom registry and all collectors
// registered. pathPrefixes are the only values the path_prefix label takes
// besides "other".
func New(pathPrefixes ...string) *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redirector_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redirector_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redirector_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		AdmissionDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redirector_admission_decisions_total",
			Help: "Admission verdicts by outcome and failing gate.",
		}, []string{"verdict", "reason"}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redirector_upstream_request_duration_seconds",
			Help:    "Upstream call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redirector_upstream_responses_total",
			Help: "Total upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		UpstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redirector_upstream_errors_total",
			Help: "Upstream calls that failed before a response was received.",
		}),

		pathPrefixes: pathPrefixes,
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.AdmissionDecisions,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.UpstreamErrors,
	)

	return m
}

// NewFromConfig creates Metrics whose path labels follow the endpoint allow-list.
func NewFromConfig(cfg *config.Config) *Metrics {
	prefixes := make([]string, 0, len(cfg.Rules.Endpoints))
	for _, spec := range cfg.Rules.Endpoints {
		p := spec.Value
		if spec.Kind == model.ExactSpec {
			p, _, _ = strings.Cut(p, "?")
		}
		prefixes = append(prefixes, p)
	}
	return New(prefixes...)
}

// ObserveVerdict records one admission decision.
func (m *Metrics) ObserveVerdict(v model.Verdict) {
	if v.Allowed {
		m.AdmissionDecisions.WithLabelValues("allowed", "").Inc()
		return
	}
	m.AdmissionDecisions.WithLabelValues("denied", v.Reason).Inc()
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// NormalizePath returns the longest configured prefix that path starts with,
// or "other".
func (m *Metrics) NormalizePath(path string) string {
	best := ""
	for _, prefix := range m.pathPrefixes {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return "other"
	}
	return best
}

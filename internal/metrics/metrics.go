// Package metrics exposes Prometheus counters for the authorization flow.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codegrant"

type Metrics struct {
	registry *prometheus.Registry

	authorizeRequests *prometheus.CounterVec
	consentDecisions  *prometheus.CounterVec
	codesIssued       prometheus.Counter
	codeRedemptions   *prometheus.CounterVec
	tokenValidations  *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// New builds a private registry with the flow counters plus the Go runtime
// and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		authorizeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorize_requests_total",
			Help:      "Authorization requests by outcome (consent or error code).",
		}, []string{"outcome"}),
		consentDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consent_decisions_total",
			Help:      "Consent submissions by decision.",
		}, []string{"decision"}),
		codesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_codes_issued_total",
			Help:      "Authorization codes minted after consent.",
		}),
		codeRedemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "code_redemptions_total",
			Help:      "Token endpoint calls by outcome (issued or error code).",
		}, []string{"outcome"}),
		tokenValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_validations_total",
			Help:      "Bearer token validations by outcome (valid or error code).",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the per-IP rate limiter.",
		}, []string{"route"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	reg.MustRegister(
		m.authorizeRequests,
		m.consentDecisions,
		m.codesIssued,
		m.codeRedemptions,
		m.tokenValidations,
		m.rateLimited,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) AuthorizeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.authorizeRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ConsentDecision(decision string) {
	if m == nil {
		return
	}
	m.consentDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) CodeIssued() {
	if m == nil {
		return
	}
	m.codesIssued.Inc()
}

func (m *Metrics) RedemptionOutcome(outcome string) {
	if m == nil {
		return
	}
	m.codeRedemptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ValidationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.tokenValidations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

// ObserveRequest records one served request. route is the matched pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

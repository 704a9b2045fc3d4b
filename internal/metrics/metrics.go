// Package metrics exposes Prometheus collectors for the HTTP surface, rate
// admission and LLM calls. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amishk599/promptopt/internal/model"
)

const namespace = "promptopt"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	errors       *prometheus.CounterVec
	denials      prometheus.Counter
	llmCalls     *prometheus.HistogramVec
	llmRetries   *prometheus.CounterVec
	trackedPeers prometheus.GaugeFunc
}

// New registers all collectors. trackedClients reports the number of live
// rate windows and may be nil.
func New(trackedClients func() int) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"route"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed operations by error kind.",
		}, []string{"kind"}),
		denials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denials_total",
			Help:      "Requests denied by local rate admission.",
		}),
		llmCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "LLM provider call latency by provider and outcome.",
			Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8, 15, 30},
		}, []string{"provider", "outcome"}),
		llmRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retries_total",
			Help:      "LLM calls retried by provider and triggering error kind.",
		}, []string{"provider", "kind"}),
	}

	reg.MustRegister(m.requests, m.duration, m.errors, m.denials, m.llmCalls, m.llmRetries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if trackedClients != nil {
		m.trackedPeers = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limit_tracked_clients",
			Help:      "Client identities with a live rate window.",
		}, func() float64 { return float64(trackedClients()) })
		reg.MustRegister(m.trackedPeers)
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// IncError counts a failed operation by kind.
func (m *Metrics) IncError(kind model.Kind) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(string(kind)).Inc()
}

// IncDenial counts a local rate-limit denial.
func (m *Metrics) IncDenial() {
	if m == nil {
		return
	}
	m.denials.Inc()
}

// ObserveLLMCall records one provider attempt. An empty kind means success.
func (m *Metrics) ObserveLLMCall(provider string, kind model.Kind, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := string(kind)
	if outcome == "" {
		outcome = "ok"
	}
	m.llmCalls.WithLabelValues(provider, outcome).Observe(elapsed.Seconds())
}

// IncLLMRetry counts a retried provider call.
func (m *Metrics) IncLLMRetry(provider string, kind model.Kind) {
	if m == nil {
		return
	}
	m.llmRetries.WithLabelValues(provider, string(kind)).Inc()
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "query_router"

// Metrics holds the collectors for one process. Each instance owns its own
// registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	planAttempts *prometheus.CounterVec
	queries      *prometheus.CounterVec
	queryLatency prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Plan steps by tool and terminal status.",
		}, []string{"tool", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of executed steps, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 3, 10),
		}, []string{"tool"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_retries_total",
			Help:      "Tool invocations retried after a failure.",
		}, []string{"tool"}),
		planAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_attempts_total",
			Help:      "Planner attempts by outcome.",
		}, []string{"outcome"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Answered queries by outcome.",
		}, []string{"outcome"}),
		queryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end query latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	m.registry.MustRegister(
		m.steps,
		m.stepDuration,
		m.retries,
		m.planAttempts,
		m.queries,
		m.queryLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveStep records a step that reached a terminal status. elapsed is zero
// for steps that never started.
func (m *Metrics) ObserveStep(tool, status string, elapsed time.Duration) {
	m.steps.WithLabelValues(tool, status).Inc()
	if elapsed > 0 {
		m.stepDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveRetry(tool string) {
	m.retries.WithLabelValues(tool).Inc()
}

func (m *Metrics) ObservePlanAttempt(accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	m.planAttempts.WithLabelValues(outcome).Inc()
}

// ObserveQuery records one query. outcome is "answered", "planning_failure"
// or "error".
func (m *Metrics) ObserveQuery(outcome string, elapsed time.Duration) {
	m.queries.WithLabelValues(outcome).Inc()
	m.queryLatency.Observe(elapsed.Seconds())
}

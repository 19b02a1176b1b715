package observability

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the process's Prometheus collectors. All methods are safe on a
// nil receiver so components can run without metrics wired.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpLatency        *prometheus.HistogramVec
	llmRequests        *prometheus.CounterVec
	llmLatency         *prometheus.HistogramVec
	llmTokens          *prometheus.CounterVec
	stageLatency       *prometheus.HistogramVec
	stageOutcomes      *prometheus.CounterVec
	chunkOutcomes      *prometheus.CounterVec
	checkpointFailures *prometheus.CounterVec
	reviewDecisions    *prometheus.CounterVec
	jobOutcomes        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optio_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optio_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optio_llm_requests_total",
			Help: "Model requests by operation and outcome.",
		}, []string{"model", "operation", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optio_llm_request_duration_seconds",
			Help:    "Model request latency including retries.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"model", "operation"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optio_llm_tokens_total",
			Help: "Model tokens by direction.",
		}, []string{"model", "direction"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optio_pipeline_stage_duration_seconds",
			Help:    "Curriculum pipeline stage latency.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		stageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optio_pipeline_stage_total",
			Help: "Curriculum pipeline stage runs by outcome.",
		}, []string{"stage", "outcome"}),
		chunkOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optio_structure_chunks_total",
			Help: "Structure-detection chunk calls by outcome.",
		}, []string{"outcome"}),
		checkpointFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optio_progress_write_failures_total",
			Help: "Best-effort progress/checkpoint writes that failed.",
		}, []string{"kind"}),
		reviewDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optio_review_decisions_total",
			Help: "Human review decisions.",
		}, []string{"decision"}),
		jobOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optio_jobs_total",
			Help: "Background job runs by type and outcome.",
		}, []string{"job_type", "outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpLatency,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.stageLatency, m.stageOutcomes, m.chunkOutcomes,
		m.checkpointFailures, m.reviewDecisions, m.jobOutcomes,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	route = orUnknown(route)
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ObserveLLM(model, operation, status string, dur time.Duration, inTokens, outTokens int) {
	if m == nil {
		return
	}
	model = orUnknown(model)
	operation = orUnknown(operation)
	m.llmRequests.WithLabelValues(model, operation, orUnknown(status)).Inc()
	m.llmLatency.WithLabelValues(model, operation).Observe(dur.Seconds())
	if inTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(inTokens))
	}
	if outTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(outTokens))
	}
}

func (m *Metrics) ObserveStage(stage, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(stage).Observe(dur.Seconds())
	m.stageOutcomes.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) IncChunk(outcome string) {
	if m == nil {
		return
	}
	m.chunkOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncProgressWriteFailure(kind string) {
	if m == nil {
		return
	}
	m.checkpointFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncReviewDecision(decision string) {
	if m == nil {
		return
	}
	m.reviewDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncJob(jobType, outcome string) {
	if m == nil {
		return
	}
	m.jobOutcomes.WithLabelValues(jobType, outcome).Inc()
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}

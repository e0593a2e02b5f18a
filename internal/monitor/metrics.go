package monitor

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the sandbox system.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	SlowExecutions    *prometheus.CounterVec
	ActiveExecutions  prometheus.Gauge
	ToolInvocations   *prometheus.CounterVec
	LintFindings      *prometheus.CounterVec
	ManifestErrors    *prometheus.CounterVec
	RequestsInFlight  prometheus.Gauge
	APIRequests       *prometheus.CounterVec
	APIRequestLatency *prometheus.HistogramVec
	CodeSizeBytes     prometheus.Histogram
	OutputSizeBytes   prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sandbox",
				Name:      "executions_total",
				Help:      "Total number of snippet executions by language and failure category.",
			},
			[]string{"language", "category"},
		),

		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sandbox",
				Name:      "execution_duration_seconds",
				Help:      "Duration of snippet executions in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"language"},
		),

		SlowExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sandbox",
				Name:      "slow_executions_total",
				Help:      "Executions that ran past the advisory time limit.",
			},
			[]string{"language"},
		),

		ActiveExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sandbox",
				Name:      "active_executions",
				Help:      "Number of snippets currently running.",
			},
		),

		ToolInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sandbox",
				Name:      "tool_invocations_total",
				Help:      "Tool invocations by mode and manifest status.",
			},
			[]string{"mode", "status"},
		),

		LintFindings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sandbox",
				Name:      "lint_findings_total",
				Help:      "Lint findings reported, by rule.",
			},
			[]string{"rule"},
		),

		ManifestErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sandbox",
				Name:      "manifest_write_errors_total",
				Help:      "Failed audit manifest writes, by mode.",
			},
			[]string{"mode"},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sandbox",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		APIRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sandbox",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "HTTP requests by tool and status code.",
			},
			[]string{"tool", "code"},
		),

		APIRequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sandbox",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by tool.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),

		CodeSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sandbox",
				Name:      "code_size_bytes",
				Help:      "Size of submitted code in bytes.",
				Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
			},
		),

		OutputSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sandbox",
				Name:      "output_size_bytes",
				Help:      "Size of captured output in bytes.",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),
	}

	// Register all collectors
	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.SlowExecutions,
		m.ActiveExecutions,
		m.ToolInvocations,
		m.LintFindings,
		m.ManifestErrors,
		m.RequestsInFlight,
		m.APIRequests,
		m.APIRequestLatency,
		m.CodeSizeBytes,
		m.OutputSizeBytes,
	)

	return m
}

// RecordExecution records metrics for a completed execution.
func (m *Metrics) RecordExecution(language, category string, durationSec float64) {
	m.ExecutionsTotal.WithLabelValues(language, category).Inc()
	m.ExecutionDuration.WithLabelValues(language).Observe(durationSec)
}

// RecordSlow counts an execution that exceeded the advisory limit.
func (m *Metrics) RecordSlow(language string) {
	m.SlowExecutions.WithLabelValues(language).Inc()
}

// RecordTool counts one tool invocation.
func (m *Metrics) RecordTool(mode, status string) {
	m.ToolInvocations.WithLabelValues(mode, status).Inc()
}

// RecordLintFinding counts a finding by rule name.
func (m *Metrics) RecordLintFinding(rule string) {
	m.LintFindings.WithLabelValues(rule).Inc()
}

// RecordManifestError counts a failed manifest write.
func (m *Metrics) RecordManifestError(mode string) {
	m.ManifestErrors.WithLabelValues(mode).Inc()
}

// RecordRequest counts a finished HTTP request for tool.
func (m *Metrics) RecordRequest(tool string, code int, durationSec float64) {
	m.APIRequests.WithLabelValues(tool, strconv.Itoa(code)).Inc()
	m.APIRequestLatency.WithLabelValues(tool).Observe(durationSec)
}

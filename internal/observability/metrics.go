package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting pipeline metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Plugin execution counts and latency per plugin and outcome
//   - Integrity verification failures by reason
//   - Path containment violations by kind
//   - Output truncation occurrences
//   - LLM request performance for diagram generation
type Metrics struct {
	// PluginExecutionCounter counts plugin runs.
	// Labels: plugin, status (success|error|timeout|crashed)
	PluginExecutionCounter *prometheus.CounterVec

	// PluginExecutionDuration measures plugin wall-clock time in seconds.
	// Labels: plugin
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	PluginExecutionDuration *prometheus.HistogramVec

	// IntegrityFailureCounter counts failed hash verifications.
	// Labels: plugin, reason (mismatch|missing_record|missing_file)
	IntegrityFailureCounter *prometheus.CounterVec

	// PathViolationCounter counts rejected path resolutions.
	// Labels: kind (outside_root|not_found|too_large|not_regular)
	PathViolationCounter *prometheus.CounterVec

	// OutputTruncationCounter counts runs whose captured output hit the cap.
	// Labels: plugin
	OutputTruncationCounter *prometheus.CounterVec

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the default
// registry. Call once at startup.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics with a specific registerer. Tests
// pass a fresh registry to avoid duplicate registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PluginExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "architect_plugin_executions_total",
				Help: "Total number of plugin executions by plugin and status",
			},
			[]string{"plugin", "status"},
		),

		PluginExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "architect_plugin_execution_duration_seconds",
				Help:    "Duration of plugin executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"plugin"},
		),

		IntegrityFailureCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "architect_integrity_failures_total",
				Help: "Total number of failed plugin hash verifications by reason",
			},
			[]string{"plugin", "reason"},
		),

		PathViolationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "architect_path_violations_total",
				Help: "Total number of rejected path resolutions by kind",
			},
			[]string{"kind"},
		),

		OutputTruncationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "architect_output_truncations_total",
				Help: "Total number of plugin runs with truncated captured output",
			},
			[]string{"plugin"},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "architect_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "architect_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
	}
}

// RecordPluginExecution records a completed plugin run.
func (m *Metrics) RecordPluginExecution(plugin, status string, durationSeconds float64) {
	m.PluginExecutionCounter.WithLabelValues(plugin, status).Inc()
	m.PluginExecutionDuration.WithLabelValues(plugin).Observe(durationSeconds)
}

// RecordIntegrityFailure records a failed hash verification.
func (m *Metrics) RecordIntegrityFailure(plugin, reason string) {
	m.IntegrityFailureCounter.WithLabelValues(plugin, reason).Inc()
}

// RecordPathViolation records a rejected path resolution.
func (m *Metrics) RecordPathViolation(kind string) {
	m.PathViolationCounter.WithLabelValues(kind).Inc()
}

// RecordOutputTruncation records a run whose captured output hit the cap.
func (m *Metrics) RecordOutputTruncation(plugin string) {
	m.OutputTruncationCounter.WithLabelValues(plugin).Inc()
}

// RecordLLMRequest records metrics for an LLM API request.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics() *Metrics {
	return NewMetricsWith(prometheus.NewRegistry())
}

func TestRecordPluginExecution(t *testing.T) {
	m := newTestMetrics()

	m.RecordPluginExecution("csv_to_json", "success", 0.2)
	m.RecordPluginExecution("csv_to_json", "success", 0.3)
	m.RecordPluginExecution("render", "timeout", 30.0)

	expected := `
		# HELP architect_plugin_executions_total Total number of plugin executions by plugin and status
		# TYPE architect_plugin_executions_total counter
		architect_plugin_executions_total{plugin="csv_to_json",status="success"} 2
		architect_plugin_executions_total{plugin="render",status="timeout"} 1
	`
	if err := testutil.CollectAndCompare(m.PluginExecutionCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}

	if count := testutil.CollectAndCount(m.PluginExecutionDuration); count != 2 {
		t.Errorf("Expected 2 duration series, got %d", count)
	}
}

func TestRecordIntegrityFailure(t *testing.T) {
	m := newTestMetrics()

	m.RecordIntegrityFailure("csv_to_json", "mismatch")
	m.RecordIntegrityFailure("csv_to_json", "mismatch")
	m.RecordIntegrityFailure("render", "missing_record")

	expected := `
		# HELP architect_integrity_failures_total Total number of failed plugin hash verifications by reason
		# TYPE architect_integrity_failures_total counter
		architect_integrity_failures_total{plugin="csv_to_json",reason="mismatch"} 2
		architect_integrity_failures_total{plugin="render",reason="missing_record"} 1
	`
	if err := testutil.CollectAndCompare(m.IntegrityFailureCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestRecordPathViolation(t *testing.T) {
	m := newTestMetrics()

	m.RecordPathViolation("outside_root")
	m.RecordPathViolation("too_large")
	m.RecordPathViolation("outside_root")

	expected := `
		# HELP architect_path_violations_total Total number of rejected path resolutions by kind
		# TYPE architect_path_violations_total counter
		architect_path_violations_total{kind="outside_root"} 2
		architect_path_violations_total{kind="too_large"} 1
	`
	if err := testutil.CollectAndCompare(m.PathViolationCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestRecordOutputTruncation(t *testing.T) {
	m := newTestMetrics()

	m.RecordOutputTruncation("noisy")

	if got := testutil.ToFloat64(m.OutputTruncationCounter.WithLabelValues("noisy")); got != 1 {
		t.Errorf("truncation counter = %v, want 1", got)
	}
}

func TestRecordLLMRequest(t *testing.T) {
	m := newTestMetrics()

	m.RecordLLMRequest("anthropic", "claude-sonnet-4-20250514", "success", 1.5)
	m.RecordLLMRequest("anthropic", "claude-sonnet-4-20250514", "error", 0.2)

	expected := `
		# HELP architect_llm_requests_total Total number of LLM requests by provider, model, and status
		# TYPE architect_llm_requests_total counter
		architect_llm_requests_total{model="claude-sonnet-4-20250514",provider="anthropic",status="error"} 1
		architect_llm_requests_total{model="claude-sonnet-4-20250514",provider="anthropic",status="success"} 1
	`
	if err := testutil.CollectAndCompare(m.LLMRequestCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

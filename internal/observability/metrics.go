// Package observability provides Prometheus-backed metrics for the
// reasoning loop and its collaborators, scoped to this core's concerns —
// chat turns, tool executions, approval outcomes, and active sessions — not
// the teacher's much larger channel/HTTP/database metrics surface, which has
// no job to do here.
//
// Grounded on internal/observability/metrics.go's promauto-built
// CounterVec/HistogramVec/GaugeVec field shape and its Record*/method
// naming convention.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a turn/tool/approval-scoped Prometheus metrics bundle. A nil
// *Metrics is valid everywhere it's consumed in this core: every Record*
// method on a nil receiver is a no-op, so wiring metrics is always optional.
type Metrics struct {
	// ChatRequests counts chat turns run by the Reasoning Loop, by model and
	// outcome (success|error|iteration_cap).
	ChatRequests *prometheus.CounterVec

	// ChatDuration measures one full turn's wall time in seconds, by model.
	ChatDuration *prometheus.HistogramVec

	// ToolExecutions counts tool invocations by tool name and outcome
	// (success|failed|error|denied|unknown).
	ToolExecutions *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds, by tool name.
	ToolDuration *prometheus.HistogramVec

	// ApprovalOutcomes counts approval rendezvous resolutions by decision
	// (APPROVE|DENY|TIMEOUT).
	ApprovalOutcomes *prometheus.CounterVec

	// ActiveSessions is a gauge of sessions currently cached by the Runtime.
	ActiveSessions prometheus.Gauge

	// ModelIterations records how many model calls one turn took, to watch
	// for turns running close to the iteration cap.
	ModelIterations *prometheus.HistogramVec
}

// NewMetrics builds and registers a Metrics bundle against the default
// Prometheus registry. Call once at process startup.
func NewMetrics() *Metrics {
	return &Metrics{
		ChatRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_chat_requests_total",
				Help: "Total number of chat turns by model and outcome",
			},
			[]string{"model", "outcome"},
		),
		ChatDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_chat_duration_seconds",
				Help:    "Duration of a complete chat turn in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),
		ToolExecutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_executions_total",
				Help: "Total number of tool invocations by tool name and outcome",
			},
			[]string{"tool_name", "outcome"},
		),
		ToolDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_tool_duration_seconds",
				Help:    "Duration of a tool execution in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		ApprovalOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_approval_outcomes_total",
				Help: "Total number of approval rendezvous resolutions by decision",
			},
			[]string{"decision"},
		),
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentcore_active_sessions",
				Help: "Current number of sessions cached by the Runtime",
			},
		),
		ModelIterations: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_model_iterations",
				Help:    "Number of model calls a chat turn took before returning",
				Buckets: []float64{1, 2, 3, 5, 8, 10},
			},
			[]string{"model"},
		),
	}
}

// RecordChat records one completed turn's outcome and duration.
func (m *Metrics) RecordChat(model, outcome string, durationSeconds float64, iterations int) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(model, outcome).Inc()
	m.ChatDuration.WithLabelValues(model).Observe(durationSeconds)
	if iterations > 0 {
		m.ModelIterations.WithLabelValues(model).Observe(float64(iterations))
	}
}

// RecordTool records one tool execution's outcome and duration.
func (m *Metrics) RecordTool(toolName, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(toolName, outcome).Inc()
	m.ToolDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordApproval records one approval rendezvous resolution.
func (m *Metrics) RecordApproval(decision string) {
	if m == nil {
		return
	}
	m.ApprovalOutcomes.WithLabelValues(decision).Inc()
}

// SetActiveSessions sets the active-session gauge to count.
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

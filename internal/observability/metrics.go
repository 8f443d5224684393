package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for message handling, run
// orchestration, tool dispatch and thread resolution.
//
// All methods are safe on a nil receiver so components can run without
// metrics in tests and one-shot CLI commands.
type Metrics struct {
	// MessageCounter tracks handled inbound messages.
	// Labels: outcome (replied|unauthorized|storage_error|run_error|tool_error|error)
	MessageCounter *prometheus.CounterVec

	// RunCounter counts finished runs by terminal status.
	// Labels: status (completed|failed|cancelled|expired|incomplete|tool_error|error)
	RunCounter *prometheus.CounterVec

	// RunDuration measures wall time from message creation to run exit.
	// Buckets: 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s, 300s
	RunDuration prometheus.Histogram

	// RunPolls counts status polls issued by the orchestrator.
	RunPolls prometheus.Counter

	// ToolCallCounter counts tool calls.
	// Labels: function, status (success|error)
	ToolCallCounter *prometheus.CounterVec

	// ToolCallDuration measures tool call latency in seconds.
	// Labels: function
	ToolCallDuration *prometheus.HistogramVec

	// ThreadResolutions counts thread store lookups.
	// Labels: result (hit|created|raced|unauthorized|error)
	ThreadResolutions *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		MessageCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskbot_messages_total",
				Help: "Total number of inbound messages handled by outcome",
			},
			[]string{"outcome"},
		),

		RunCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskbot_runs_total",
				Help: "Total number of assistant runs by terminal status",
			},
			[]string{"status"},
		),

		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "taskbot_run_duration_seconds",
				Help:    "Duration of assistant runs in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),

		RunPolls: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "taskbot_run_polls_total",
				Help: "Total number of run status polls",
			},
		),

		ToolCallCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskbot_tool_calls_total",
				Help: "Total number of tool calls by function and status",
			},
			[]string{"function", "status"},
		),

		ToolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskbot_tool_call_duration_seconds",
				Help:    "Duration of tool calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"function"},
		),

		ThreadResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskbot_thread_resolutions_total",
				Help: "Total number of conversation to thread resolutions by result",
			},
			[]string{"result"},
		),
	}
}

// MessageHandled records the outcome of one inbound message.
func (m *Metrics) MessageHandled(outcome string) {
	if m == nil {
		return
	}
	m.MessageCounter.WithLabelValues(outcome).Inc()
}

// RunFinished records a run exit.
func (m *Metrics) RunFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunCounter.WithLabelValues(status).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

// RunPolled records one status poll.
func (m *Metrics) RunPolled() {
	if m == nil {
		return
	}
	m.RunPolls.Inc()
}

// ToolCalled records a single tool call.
func (m *Metrics) ToolCalled(function string, failed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if failed {
		status = "error"
	}
	m.ToolCallCounter.WithLabelValues(function, status).Inc()
	m.ToolCallDuration.WithLabelValues(function).Observe(elapsed.Seconds())
}

// ThreadResolved records a thread store resolution.
func (m *Metrics) ThreadResolved(result string) {
	if m == nil {
		return
	}
	m.ThreadResolutions.WithLabelValues(result).Inc()
}

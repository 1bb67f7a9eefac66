// Package metrics implements the Host Session's optional Prometheus
// instrumentation, grounded on the teacher corpus's metrics package: a
// registry-scoped set of counters and histograms rather than package-level
// globals, since a Session (unlike a long-lived daemon) may be constructed
// more than once in a process (e.g. in tests).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation names used as the "op" label on toolDuration/toolTotal.
const (
	OpRead       = "read"
	OpReadLines  = "read_lines"
	OpWrite      = "write"
	OpPatchLines = "patch_lines"
	OpList       = "list"
	OpStat       = "stat"
	OpMkdir      = "mkdir"
	OpDelete     = "delete"
	OpSearch     = "search"
	OpExecute    = "execute"
	OpUndo       = "undo"
	OpRedo       = "redo"
	OpRestore    = "restore"
)

// Metrics holds one Session's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	toolTotal      *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	executeResult  *prometheus.CounterVec
	historyEntries prometheus.Gauge
}

// New constructs and registers a fresh set of collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	toolTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentws",
		Subsystem: "session",
		Name:      "tool_calls_total",
		Help:      "Total tool invocations by operation and outcome.",
	}, []string{"op", "outcome"})

	toolDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentws",
		Subsystem: "session",
		Name:      "tool_call_duration_seconds",
		Help:      "Duration of tool invocations by operation.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"op"})

	executeResult := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentws",
		Subsystem: "session",
		Name:      "execute_results_total",
		Help:      "Total js_exec outcomes by result (ok, timeout, error).",
	}, []string{"result"})

	historyEntries := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentws",
		Subsystem: "session",
		Name:      "history_entries",
		Help:      "Current number of Time Machine journal entries.",
	})

	registry.MustRegister(toolTotal, toolDuration, executeResult, historyEntries)

	return &Metrics{
		registry:       registry,
		toolTotal:      toolTotal,
		toolDuration:   toolDuration,
		executeResult:  executeResult,
		historyEntries: historyEntries,
	}
}

// ObserveTool records one tool invocation's outcome and latency.
func (m *Metrics) ObserveTool(op string, err error, duration time.Duration) {
	if m == nil {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	m.toolTotal.WithLabelValues(op, outcome).Inc()
	m.toolDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveExecute records one js_exec outcome.
func (m *Metrics) ObserveExecute(result string) {
	if m == nil {
		return
	}

	m.executeResult.WithLabelValues(result).Inc()
}

// SetHistoryEntries updates the current journal entry count gauge.
func (m *Metrics) SetHistoryEntries(n int) {
	if m == nil {
		return
	}

	m.historyEntries.Set(float64(n))
}

// Handler returns an http.Handler serving this Metrics set in Prometheus
// text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

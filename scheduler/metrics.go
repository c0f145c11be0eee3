package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts scheduler events. A nil *Metrics records nothing.
type Metrics struct {
	branches  prometheus.Counter
	terminals prometheus.Counter
	labels    prometheus.Counter
	abandoned prometheus.Counter
	failures  prometheus.Counter
	runs      prometheus.Counter
}

// NewMetrics registers the scheduler metrics on reg. If pending is non-nil a
// gauge reporting the pool queue length is registered too.
func NewMetrics(reg prometheus.Registerer, pending func() int) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		branches: f.NewCounter(prometheus.CounterOpts{
			Namespace: "battlesim",
			Subsystem: "scheduler",
			Name:      "branches_total",
			Help:      "Branch points split into two paths",
		}),
		terminals: f.NewCounter(prometheus.CounterOpts{
			Namespace: "battlesim",
			Subsystem: "scheduler",
			Name:      "terminals_total",
			Help:      "Paths that reached a terminal node",
		}),
		labels: f.NewCounter(prometheus.CounterOpts{
			Namespace: "battlesim",
			Subsystem: "scheduler",
			Name:      "labels_total",
			Help:      "Label nodes crossed",
		}),
		abandoned: f.NewCounter(prometheus.CounterOpts{
			Namespace: "battlesim",
			Subsystem: "scheduler",
			Name:      "abandoned_paths_total",
			Help:      "Paths dropped at the depth bound or by cancellation",
		}),
		failures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "battlesim",
			Subsystem: "scheduler",
			Name:      "failures_total",
			Help:      "Paths lost to submit errors or panics",
		}),
		runs: f.NewCounter(prometheus.CounterOpts{
			Namespace: "battlesim",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Executions started",
		}),
	}
	if pending != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "battlesim",
			Subsystem: "pool",
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker",
		}, func() float64 { return float64(pending()) })
	}
	return m
}

func (m *Metrics) incBranch() {
	if m != nil {
		m.branches.Inc()
	}
}

func (m *Metrics) incTerminal() {
	if m != nil {
		m.terminals.Inc()
	}
}

func (m *Metrics) incLabel() {
	if m != nil {
		m.labels.Inc()
	}
}

func (m *Metrics) incAbandoned() {
	if m != nil {
		m.abandoned.Inc()
	}
}

func (m *Metrics) incFailure() {
	if m != nil {
		m.failures.Inc()
	}
}

func (m *Metrics) incRun() {
	if m != nil {
		m.runs.Inc()
	}
}

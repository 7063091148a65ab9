package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/recon/internal/ir"
)

// Pass results reported on recon_passes_total.
const (
	resultOK                 = "ok"
	resultLockContention     = "lock_contention"
	resultPlannerUnavailable = "planner_unavailable"
	resultHistoryError       = "history_error"
	resultError              = "error"
)

// Metrics groups the engine's Prometheus instruments. A nil *Metrics
// records nothing.
type Metrics struct {
	Passes         *prometheus.CounterVec
	Outcomes       *prometheus.CounterVec
	AdapterErrors  *prometheus.CounterVec
	LockContention prometheus.Counter
	PassDuration   prometheus.Histogram
	IndexedKeys    prometheus.Gauge
}

// NewMetrics registers the instruments with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Passes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Reconciliation passes by result.",
		}, []string{"result"}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Item outcomes by outcome.",
		}, []string{"outcome"}),
		AdapterErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_errors_total",
			Help:      "Failed adapter calls by adapter and operation.",
		}, []string{"adapter", "op"}),
		LockContention: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_contention_total",
			Help:      "Passes aborted because the pass lock was busy.",
		}),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall time of completed passes.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		IndexedKeys: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_indexed_keys",
			Help:      "Distinct keys in the memory index at the start of the last pass.",
		}),
	}
}

func (m *Metrics) pass(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Passes.WithLabelValues(result).Inc()
	switch result {
	case resultOK:
		m.PassDuration.Observe(d.Seconds())
	case resultLockContention:
		m.LockContention.Inc()
	}
}

func (m *Metrics) outcome(o ir.Outcome) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) adapterError(adapter string, op ir.Operation) {
	if m == nil {
		return
	}
	m.AdapterErrors.WithLabelValues(adapter, string(op)).Inc()
}

func (m *Metrics) indexed(n int) {
	if m == nil {
		return
	}
	m.IndexedKeys.Set(float64(n))
}

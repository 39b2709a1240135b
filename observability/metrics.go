package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExecutorMetrics tracks transaction outcomes produced by the executor.
type ExecutorMetrics struct {
	txs          *prometheus.CounterVec
	rollbacks    *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	callDepth    prometheus.Histogram
	arenaHandles prometheus.Histogram
	gasUsed      prometheus.Histogram
}

var (
	executorMetricsOnce sync.Once
	executorRegistry    *ExecutorMetrics
)

// Executor returns the lazily-initialised executor metrics registry.
func Executor() *ExecutorMetrics {
	executorMetricsOnce.Do(func() {
		executorRegistry = &ExecutorMetrics{
			txs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledgersim",
				Subsystem: "executor",
				Name:      "transactions_total",
				Help:      "Total executed transactions segmented by kind and status.",
			}, []string{"kind", "status"}),
			rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledgersim",
				Subsystem: "executor",
				Name:      "rollbacks_total",
				Help:      "Count of reverted revisions segmented by scope (transaction or nested).",
			}, []string{"scope"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ledgersim",
				Subsystem: "executor",
				Name:      "duration_seconds",
				Help:      "Latency distribution for transaction execution.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
			callDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "ledgersim",
				Subsystem: "executor",
				Name:      "call_depth",
				Help:      "Deepest call stack reached per transaction.",
				Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16, 32},
			}),
			arenaHandles: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "ledgersim",
				Subsystem: "executor",
				Name:      "arena_handles",
				Help:      "Fresh arena handles allocated per call frame.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			}),
			gasUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "ledgersim",
				Subsystem: "executor",
				Name:      "gas_used",
				Help:      "Advisory gas reported per transaction.",
				Buckets:   prometheus.ExponentialBuckets(50_000, 2, 12),
			}),
		}
		prometheus.MustRegister(
			executorRegistry.txs,
			executorRegistry.rollbacks,
			executorRegistry.latency,
			executorRegistry.callDepth,
			executorRegistry.arenaHandles,
			executorRegistry.gasUsed,
		)
	})
	return executorRegistry
}

// ObserveTx records the outcome of one top-level transaction.
func (m *ExecutorMetrics) ObserveTx(kind, status string, depth int, gasUsed uint64, duration time.Duration) {
	if m == nil {
		return
	}
	kind = normalizeLabel(kind)
	m.txs.WithLabelValues(kind, normalizeLabel(status)).Inc()
	m.latency.WithLabelValues(kind).Observe(duration.Seconds())
	if depth > 0 {
		m.callDepth.Observe(float64(depth))
	}
	m.gasUsed.Observe(float64(gasUsed))
}

// RecordRollback increments the rollback counter for scope.
func (m *ExecutorMetrics) RecordRollback(scope string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(normalizeLabel(scope)).Inc()
}

// ObserveArenaFrame records the number of handles a frame allocated.
func (m *ExecutorMetrics) ObserveArenaFrame(handles int) {
	if m == nil {
		return
	}
	m.arenaHandles.Observe(float64(handles))
}

func normalizeLabel(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return strings.ReplaceAll(v, " ", "_")
}

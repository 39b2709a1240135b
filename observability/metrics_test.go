package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExecutorMetricsObserveTx(t *testing.T) {
	m := Executor()
	before := testutil.ToFloat64(m.txs.WithLabelValues("call", "user_error"))
	m.ObserveTx("Call", "user error", 2, 60_000, time.Millisecond)
	after := testutil.ToFloat64(m.txs.WithLabelValues("call", "user_error"))
	if after-before != 1 {
		t.Fatalf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestRollbackCounter(t *testing.T) {
	m := Executor()
	before := testutil.ToFloat64(m.rollbacks.WithLabelValues("nested"))
	m.RecordRollback("nested")
	m.RecordRollback(" Nested ")
	if got := testutil.ToFloat64(m.rollbacks.WithLabelValues("nested")) - before; got != 2 {
		t.Fatalf("expected 2 rollbacks, got %v", got)
	}
}

func TestEventMetrics(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.transfers.WithLabelValues("UNKNOWN"))
	m.RecordTransfer("  ")
	if got := testutil.ToFloat64(m.transfers.WithLabelValues("UNKNOWN")) - before; got != 1 {
		t.Fatalf("expected unknown asset counter to increase, got %v", got)
	}
	var nilMetrics *ExecutorMetrics
	nilMetrics.RecordRollback("transaction")
}

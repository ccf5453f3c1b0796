package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Syriven/netvend/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/healthz", 200, 3*time.Millisecond)
	RecordConnection()
	RecordPacket("batch", "ok")
	RecordCommand("create_pocket", true)
	RecordBatch("all", 2*time.Millisecond)
	RecordFeeSweep(0, 0)
}

func TestCommandCounterIncrements(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(executorCommands.WithLabelValues("pocket_transfer", "error"))
	RecordCommand("pocket_transfer", false)
	RecordCommand("pocket_transfer", false)
	after := testutil.ToFloat64(executorCommands.WithLabelValues("pocket_transfer", "error"))
	if after-before != 2 {
		t.Fatalf("counter delta = %v, want 2", after-before)
	}
}

func TestFeeSweepCounters(t *testing.T) {
	testlog.Start(t)
	sweeps := testutil.ToFloat64(feeSweeps)
	deleted := testutil.ToFloat64(feeFilesDeleted)
	RecordFeeSweep(3, 40)
	if got := testutil.ToFloat64(feeSweeps) - sweeps; got != 1 {
		t.Fatalf("sweeps delta = %v", got)
	}
	if got := testutil.ToFloat64(feeFilesDeleted) - deleted; got != 3 {
		t.Fatalf("files deleted delta = %v", got)
	}
}

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOpMetric(t *testing.T) {
	m := NewOpMetric("test_ops", "op")

	op := m.Start("read")
	if got := testutil.ToFloat64(m.pending.WithLabelValues("read")); got != 1 {
		t.Errorf("pending = %v", got)
	}
	op.End()

	func() (err error) {
		op := m.Start("read")
		defer op.EndErr(&err)
		return errors.New("boom")
	}()

	if got := m.Count("all", "read"); got != 2 {
		t.Errorf("all = %d", got)
	}
	if got := m.Count("failed", "read"); got != 1 {
		t.Errorf("failed = %d", got)
	}
	if got := testutil.ToFloat64(m.pending.WithLabelValues("read")); got != 0 {
		t.Errorf("pending after end = %v", got)
	}
	if n := testutil.CollectAndCount(m.latencies); n != 1 {
		t.Errorf("latency series = %d", n)
	}
}

func TestByteCounters(t *testing.T) {
	before := testutil.ToFloat64(BytesWritten.WithLabelValues("heap"))
	BytesWritten.WithLabelValues("heap").Add(10)
	if got := testutil.ToFloat64(BytesWritten.WithLabelValues("heap")) - before; got != 10 {
		t.Errorf("heap bytes delta = %v", got)
	}
}

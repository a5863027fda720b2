// Package metrics holds the Prometheus metrics exported by the HDF5 layer.
// Everything registers with the default registry on init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// BytesWritten counts bytes written to files, by kind: chunk, meta or heap.
	BytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arf_hdf5_bytes_written_total",
		Help: "Bytes written to HDF5 files.",
	}, []string{"kind"})

	// BytesRead counts bytes read from files, by kind.
	BytesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arf_hdf5_bytes_read_total",
		Help: "Bytes read from HDF5 files.",
	}, []string{"kind"})

	ChunksWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arf_hdf5_chunks_written_total",
		Help: "Dataset chunks written.",
	})

	// Ops tracks file operations: flush, write, append, read.
	Ops = NewOpMetric("arf_hdf5_ops", "op")
)

// OpMetric counts operations and their latencies. It creates three metric
// sets:
//   - a counter with the given name and labels "result" plus any extra
//     labels. Start increments it with result "all" and Failed with
//     result "failed";
//   - a summary named name + "_latency", observed by End unless the
//     operation failed;
//   - a gauge named name + "_pending" holding the operations in flight.
//
// Usage:
//
//	op := metrics.Ops.Start("flush")
//	defer op.End()
//	if err != nil {
//		op.Failed()
//	}
type OpMetric struct {
	counters  *prometheus.CounterVec
	latencies *prometheus.SummaryVec
	pending   *prometheus.GaugeVec
}

// NewOpMetric registers a new op metric.
func NewOpMetric(name string, labels ...string) *OpMetric {
	withResult := append([]string{"result"}, labels...)
	return &OpMetric{
		counters:  promauto.NewCounterVec(prometheus.CounterOpts{Name: name}, withResult),
		latencies: promauto.NewSummaryVec(prometheus.SummaryOpts{Name: name + "_latency"}, labels),
		pending:   promauto.NewGaugeVec(prometheus.GaugeOpts{Name: name + "_pending"}, labels),
	}
}

// Start records the start of an operation.
func (m *OpMetric) Start(values ...string) *Op {
	op := &Op{m: m, values: values}
	m.counters.WithLabelValues(append([]string{"all"}, values...)...).Inc()
	m.pending.WithLabelValues(values...).Inc()
	op.start = time.Now()
	return op
}

// Count returns the counter value for a result.
func (m *OpMetric) Count(result string, values ...string) uint64 {
	var v dto.Metric
	if m.counters.WithLabelValues(append([]string{result}, values...)...).Write(&v) != nil {
		return 0
	}
	return uint64(v.GetCounter().GetValue())
}

// Op is one operation in flight.
type Op struct {
	m      *OpMetric
	values []string
	start  time.Time
	failed bool
}

// Failed marks the operation failed.
func (op *Op) Failed() {
	if op.failed {
		return
	}
	op.failed = true
	op.m.counters.WithLabelValues(append([]string{"failed"}, op.values...)...).Inc()
}

// End records the latency of a successful operation and drops it from
// the pending gauge.
func (op *Op) End() {
	if !op.failed {
		op.m.latencies.WithLabelValues(op.values...).Observe(time.Since(op.start).Seconds())
	}
	op.m.pending.WithLabelValues(op.values...).Dec()
}

// EndErr calls Failed when *err is non-nil, then End. It is meant for
// deferring with a named error result.
func (op *Op) EndErr(err *error) {
	if *err != nil {
		op.Failed()
	}
	op.End()
}

// Package metrics exposes Prometheus instrumentation for ingestion and
// queries.
//
// # Basic Usage
//
//	metrics.LinesDispatched.Add(float64(n))
//
//	timer := metrics.NewTimer("ingest")
//	runPipeline()
//	metrics.IngestDuration.WithLabelValues("ok").Observe(timer.Stop().Seconds())
//
//	tracker := metrics.NewThroughputTracker("ingest")
//	tracker.Increment(1)
//	rps := tracker.GetAndReset()
//
// All collectors register with the default registry through promauto, so
// promhttp.Handler serves them without further setup.
package metrics

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LinesDispatched counts data lines handed to a staging region
	LinesDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "colframe_lines_dispatched_total",
			Help: "Total number of data lines dispatched to workers",
		},
	)

	// RowsDecoded counts rows written into the table, per worker.
	// Labels: worker
	RowsDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colframe_rows_decoded_total",
			Help: "Total number of rows decoded into the table",
		},
		[]string{"worker"},
	)

	// RowsSkipped counts malformed rows dropped under ignore-errors mode.
	// Labels: worker
	RowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colframe_rows_skipped_total",
			Help: "Total number of malformed rows skipped",
		},
		[]string{"worker"},
	)

	// StagingRetries counts lines placed on a worker other than the one
	// round-robin picked because the first choice was full
	StagingRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "colframe_staging_retries_total",
			Help: "Lines redirected to another worker because the assigned staging region was full",
		},
	)

	// BackpressureWaits counts how often the coordinator blocked waiting for
	// staging space.
	// Labels: worker
	BackpressureWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colframe_backpressure_waits_total",
			Help: "Times the coordinator blocked on a full staging region",
		},
		[]string{"worker"},
	)

	// IngestDuration tracks wall time of whole ingestion runs in seconds.
	// Labels: status (ok/error)
	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "colframe_ingest_duration_seconds",
			Help:    "Ingestion run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"status"},
	)

	// QueryDuration tracks groupby/sum latency in seconds.
	// Labels: operation
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "colframe_query_duration_seconds",
			Help:    "Query operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"operation"},
	)

	// ExportBytes counts bytes written by table exports.
	// Labels: format
	ExportBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colframe_export_bytes_total",
			Help: "Total bytes written by table exports",
		},
		[]string{"format"},
	)

	// TableRows is the row count of the last finalized table
	TableRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "colframe_table_rows",
			Help: "Rows in the most recently finalized table",
		},
	)

	// ColumnBytes is the buffer size of each column of the last finalized
	// table.
	// Labels: column, type
	ColumnBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "colframe_column_bytes",
			Help: "Column buffer size in bytes",
		},
		[]string{"column", "type"},
	)

	// Throughput tracks rows per second.
	// Labels: stage
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "colframe_throughput_rows_per_second",
			Help: "Current throughput in rows per second",
		},
		[]string{"stage"},
	)
)

// WorkerLabel formats a worker id for use as a label value
func WorkerLabel(id int) string {
	return strconv.Itoa(id)
}

// Timer measures an operation's duration from creation
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer name
func (t *Timer) Name() string { return t.name }

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks rows per second over a window. Increment is
// lock-free; GetAndReset is meant for a single reporting goroutine.
type ThroughputTracker struct {
	count     atomic.Int64
	lastReset atomic.Int64 // unix nanos
	stage     string
}

// NewThroughputTracker creates a tracker labelled with stage
func NewThroughputTracker(stage string) *ThroughputTracker {
	t := &ThroughputTracker{stage: stage}
	t.lastReset.Store(time.Now().UnixNano())
	return t
}

// Increment adds n to the row count
func (t *ThroughputTracker) Increment(n int64) {
	t.count.Add(n)
}

// GetAndReset returns rows per second since the last reset, publishes it
// to the Throughput gauge and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	now := time.Now().UnixNano()
	elapsed := time.Duration(now - t.lastReset.Swap(now)).Seconds()
	count := t.count.Swap(0)
	if elapsed <= 0 {
		return 0
	}

	throughput := float64(count) / elapsed
	Throughput.WithLabelValues(t.stage).Set(throughput)
	return throughput
}

// Package metrics exposes the ingestion pipeline's Prometheus collectors.
// All metrics register on the default registry at package load; the ingest
// command serves them over /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesConsumed counts raw messages fetched from the log.
	MessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_messages_consumed_total",
			Help: "Total messages fetched from the ingestion log",
		},
		[]string{"topic", "partition"},
	)

	// BytesConsumed counts payload bytes fetched from the log.
	BytesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_bytes_consumed_total",
			Help: "Total payload bytes fetched from the ingestion log",
		},
		[]string{"topic", "partition"},
	)

	// BatchSize tracks how many messages each fetch returned.
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stratum_batch_size_messages",
			Help:    "Messages per fetched batch",
			Buckets: []float64{1, 8, 32, 128, 512, 2048, 8192},
		},
	)

	// RowsProcessed counts rows by terminal status: indexed, failed,
	// skipped or dead_lettered.
	RowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_rows_processed_total",
			Help: "Rows processed by the pipeline, by terminal status",
		},
		[]string{"table", "status"},
	)

	// EncodeLatency tracks the decode-plus-encode cost per row in
	// nanoseconds.
	EncodeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "stratum_encode_latency_nanoseconds",
			Help: "Per-row decode and encode latency in nanoseconds",
			Buckets: []float64{
				100,    // 100ns
				1000,   // 1μs
				10000,  // 10μs
				100000, // 100μs
				1e6,    // 1ms
				1e7,    // 10ms
				1e8,    // 100ms
			},
		},
		[]string{"table"},
	)

	// DictionaryEntries reports the current dictionary size per column of
	// the active segment.
	DictionaryEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stratum_dictionary_entries",
			Help: "Dictionary entries per column of the active segment",
		},
		[]string{"table", "column"},
	)

	// SegmentRows reports the active segment's row count.
	SegmentRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stratum_segment_rows",
			Help: "Rows in the active segment",
		},
		[]string{"table"},
	)

	// SegmentMemoryBytes reports the active segment's memory footprint.
	SegmentMemoryBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stratum_segment_memory_bytes",
			Help: "Forward-index and dictionary bytes held by the active segment",
		},
		[]string{"table"},
	)

	// SegmentsSealed counts seal events by trigger.
	SegmentsSealed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_segments_sealed_total",
			Help: "Segments sealed, by trigger",
		},
		[]string{"table", "reason"},
	)

	// CheckpointPosition reports the last committed log position.
	CheckpointPosition = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stratum_checkpoint_position",
			Help: "Last checkpointed log position",
		},
		[]string{"topic", "partition"},
	)

	// ConsumerLag reports the distance to the partition's high-water mark.
	ConsumerLag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stratum_consumer_lag",
			Help: "Messages between the checkpoint and the partition end",
		},
		[]string{"topic", "partition"},
	)

	// DeadLetters counts payloads parked in the dead-letter queue.
	DeadLetters = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_dead_letters_total",
			Help: "Payloads parked in the dead-letter queue",
		},
		[]string{"table"},
	)
)

// PartitionLabel renders a partition number as a metric label.
func PartitionLabel(partition int32) string {
	return strconv.FormatInt(int64(partition), 10)
}

// Serve exposes /metrics on addr in the background and returns the server
// for shutdown. The error channel receives the listener's exit error.
func Serve(addr string) (*http.Server, <-chan error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	return srv, errCh
}

// Timer measures one operation.
type Timer struct {
	start time.Time
}

// NewTimer starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time since creation.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker computes rows-per-second over reset windows.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
}

// NewThroughputTracker starts an empty window.
func NewThroughputTracker() *ThroughputTracker {
	return &ThroughputTracker{lastReset: time.Now()}
}

// Increment adds n rows to the current window.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns the window's rows-per-second and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}
	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()
	return throughput
}

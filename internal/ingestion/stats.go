package ingestion

import (
	"sync/atomic"
	"time"
)

// Stats tracks the pipeline's lifetime counters. All fields are atomic; the
// run loop writes, anyone may read.
type Stats struct {
	startTime time.Time

	BatchesFetched   atomic.Int64
	MessagesConsumed atomic.Int64
	BytesConsumed    atomic.Int64

	RowsIndexed     atomic.Int64
	RowsSkipped     atomic.Int64
	RowsDeadLetter  atomic.Int64
	SegmentsSealed  atomic.Int64
	LastCheckpoint  atomic.Int64
	ConsumerLag     atomic.Int64
	DictionaryBytes atomic.Int64
}

func newStats() *Stats {
	return &Stats{startTime: time.Now()}
}

// Uptime returns the time since the pipeline started.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Snapshot renders the counters for logs and shutdown summaries.
func (s *Stats) Snapshot() map[string]interface{} {
	uptime := s.Uptime()
	indexed := s.RowsIndexed.Load()

	var throughput float64
	if secs := uptime.Seconds(); secs > 0 {
		throughput = float64(indexed) / secs
	}

	return map[string]interface{}{
		"uptime":            uptime.String(),
		"batches_fetched":   s.BatchesFetched.Load(),
		"messages_consumed": s.MessagesConsumed.Load(),
		"bytes_consumed":    s.BytesConsumed.Load(),
		"rows_indexed":      indexed,
		"rows_skipped":      s.RowsSkipped.Load(),
		"rows_dead_letter":  s.RowsDeadLetter.Load(),
		"segments_sealed":   s.SegmentsSealed.Load(),
		"last_checkpoint":   s.LastCheckpoint.Load(),
		"consumer_lag":      s.ConsumerLag.Load(),
		"dictionary_bytes":  s.DictionaryBytes.Load(),
		"rows_per_second":   throughput,
	}
}

package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsSnapshot(t *testing.T) {
	s := newStats()
	s.BatchesFetched.Add(3)
	s.MessagesConsumed.Add(100)
	s.BytesConsumed.Add(4096)
	s.RowsIndexed.Add(95)
	s.RowsSkipped.Add(4)
	s.RowsDeadLetter.Add(1)
	s.SegmentsSealed.Add(2)
	s.LastCheckpoint.Store(100)
	s.ConsumerLag.Store(7)
	s.DictionaryBytes.Store(2048)

	time.Sleep(time.Millisecond)
	snapshot := s.Snapshot()

	assert.Equal(t, int64(3), snapshot["batches_fetched"])
	assert.Equal(t, int64(100), snapshot["messages_consumed"])
	assert.Equal(t, int64(4096), snapshot["bytes_consumed"])
	assert.Equal(t, int64(95), snapshot["rows_indexed"])
	assert.Equal(t, int64(4), snapshot["rows_skipped"])
	assert.Equal(t, int64(1), snapshot["rows_dead_letter"])
	assert.Equal(t, int64(2), snapshot["segments_sealed"])
	assert.Equal(t, int64(100), snapshot["last_checkpoint"])
	assert.Equal(t, int64(7), snapshot["consumer_lag"])
	assert.Equal(t, int64(2048), snapshot["dictionary_bytes"])
	assert.NotEmpty(t, snapshot["uptime"])

	throughput, ok := snapshot["rows_per_second"].(float64)
	require.True(t, ok)
	assert.Greater(t, throughput, 0.0)
}

func TestStatsUptime(t *testing.T) {
	s := newStats()
	time.Sleep(time.Millisecond)
	assert.Greater(t, s.Uptime(), time.Duration(0))
}

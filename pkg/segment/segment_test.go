package segment

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/models"
	"github.com/stratumdb/stratum/pkg/rowcodec"
	"github.com/stratumdb/stratum/pkg/schema"
)

func eventsSchema(t testing.TB) *schema.Schema {
	t.Helper()
	sch, err := schema.New("events", []schema.Column{
		{Name: "country", Type: schema.TypeString},
		{Name: "tags", Type: schema.TypeString, MultiValued: true},
	})
	require.NoError(t, err)
	return sch
}

func encodeRow(t testing.TB, s *Segment, country string, tags ...string) []int32 {
	t.Helper()
	row := models.GetRow()
	defer row.Release()
	row.Set("country", country)
	values := make([]interface{}, len(tags))
	for i, tag := range tags {
		values[i] = tag
	}
	row.Set("tags", values)

	buf, err := rowcodec.Encode(row, s.Schema(), s.Dictionaries())
	require.NoError(t, err)
	return buf
}

func TestIndexRowAndReadBack(t *testing.T) {
	s := New("events__0__0", eventsSchema(t))

	require.NoError(t, s.IndexRow(encodeRow(t, s, "US", "web", "mobile")))
	require.NoError(t, s.IndexRow(encodeRow(t, s, "DE", "web")))
	require.Equal(t, 2, s.RowCount())

	row0, err := s.Row(0)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"country": "US",
		"tags":    []interface{}{"mobile", "web"},
	}, row0)

	row1, err := s.Row(1)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"country": "DE",
		"tags":    []interface{}{"web"},
	}, row1)
}

func TestIndexRowCorruptBufferLeavesSegmentUnchanged(t *testing.T) {
	s := New("events__0__0", eventsSchema(t))
	require.NoError(t, s.IndexRow(encodeRow(t, s, "US", "web")))

	tests := []struct {
		name string
		buf  []int32
	}{
		{"single column spans two slots", []int32{3, 5, 6, 0, 0, 0}},
		{"offsets escape buffer", []int32{3, 4, 99, 0}},
		{"offsets decrease", []int32{3, 5, 4, 0, 0}},
		{"short buffer", []int32{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.IndexRow(tt.buf)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeCorruptBuffer))
			assert.Equal(t, 1, s.RowCount())
		})
	}

	// The segment keeps accepting valid rows after rejected buffers.
	require.NoError(t, s.IndexRow(encodeRow(t, s, "FR", "api")))
	require.Equal(t, 2, s.RowCount())

	row, err := s.Row(1)
	require.NoError(t, err)
	assert.Equal(t, "FR", row["country"])
}

func TestRowIndexOutOfRange(t *testing.T) {
	s := New("events__0__0", eventsSchema(t))
	require.NoError(t, s.IndexRow(encodeRow(t, s, "US", "web")))

	for _, i := range []int{-1, 1, 50} {
		_, err := s.Row(i)
		require.Error(t, err, "row %d", i)
		assert.True(t, errors.IsType(err, errors.ErrorTypeIndexOutOfRange))
	}
}

func TestColumnCodes(t *testing.T) {
	s := New("events__0__0", eventsSchema(t))
	require.NoError(t, s.IndexRow(encodeRow(t, s, "US", "web", "mobile")))
	require.NoError(t, s.IndexRow(encodeRow(t, s, "US", "web")))

	codes, err := s.ColumnCodes(0, "country")
	require.NoError(t, err)
	assert.Equal(t, []int32{0}, codes)

	// Row 1 reuses country ID 0 and tag "web"'s existing ID.
	codes, err = s.ColumnCodes(1, "country")
	require.NoError(t, err)
	assert.Equal(t, []int32{0}, codes)

	codes, err = s.ColumnCodes(0, "tags")
	require.NoError(t, err)
	assert.Len(t, codes, 2)

	_, err = s.ColumnCodes(0, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnknownColumn))

	_, err = s.ColumnCodes(9, "country")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIndexOutOfRange))
}

func TestSealFreezesSegment(t *testing.T) {
	s := New("events__0__0", eventsSchema(t))
	buf := encodeRow(t, s, "US", "web")
	require.NoError(t, s.IndexRow(buf))
	require.False(t, s.Sealed())

	stats := s.Seal()
	assert.True(t, s.Sealed())
	assert.Equal(t, 1, stats.Rows)
	assert.False(t, stats.SealedAt.IsZero())

	err := s.IndexRow(buf)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
	assert.Contains(t, err.Error(), "sealed")

	// Reads keep working on a sealed segment.
	row, err := s.Row(0)
	require.NoError(t, err)
	assert.Equal(t, "US", row["country"])

	// Sealing again is a no-op that keeps the original seal time.
	again := s.Seal()
	assert.True(t, again.SealedAt.Equal(stats.SealedAt))
}

func TestStatsAccounting(t *testing.T) {
	s := New("events__3__7", eventsSchema(t))
	require.NoError(t, s.IndexRow(encodeRow(t, s, "US", "web", "mobile")))
	require.NoError(t, s.IndexRow(encodeRow(t, s, "DE", "web")))

	stats := s.Stats()
	assert.Equal(t, "events__3__7", stats.Name)
	assert.Equal(t, 2, stats.Rows)
	assert.Equal(t, 2, stats.Columns)
	assert.Equal(t, map[string]int{"country": 2, "tags": 2}, stats.DictionaryEntries)
	assert.Greater(t, stats.DictionaryBytes, int64(0))
	assert.Greater(t, stats.MemoryBytes, stats.DictionaryBytes)
	assert.False(t, stats.CreatedAt.IsZero())
	assert.True(t, stats.SealedAt.IsZero())

	assert.Equal(t, stats.MemoryBytes, s.MemoryUsage())
}

func TestSegmentAccessors(t *testing.T) {
	sch := eventsSchema(t)
	s := New("events__0__0", sch)

	assert.Equal(t, "events__0__0", s.Name())
	assert.Same(t, sch, s.Schema())
	assert.NotNil(t, s.Dictionaries())
	assert.GreaterOrEqual(t, s.Age(), time.Duration(0))
}

func BenchmarkIndexRow(b *testing.B) {
	sch := eventsSchema(b)
	s := New("bench", sch)

	bufs := make([][]int32, 256)
	for i := range bufs {
		bufs[i] = encodeRow(b, s, "country_"+strconv.Itoa(i%13), "tag_"+strconv.Itoa(i%31))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.IndexRow(bufs[i&255]); err != nil {
			b.Fatal(err)
		}
	}
}

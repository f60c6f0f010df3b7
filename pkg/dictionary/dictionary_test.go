package dictionary

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/schema"
)

func TestIDOfAssignsDenseFirstSeenIDs(t *testing.T) {
	d := New()

	assert.Equal(t, int32(0), d.IDOf("alpha"))
	assert.Equal(t, int32(1), d.IDOf("beta"))
	assert.Equal(t, int32(2), d.IDOf("gamma"))

	// Repeat lookups return the original IDs.
	assert.Equal(t, int32(0), d.IDOf("alpha"))
	assert.Equal(t, int32(2), d.IDOf("gamma"))
	assert.Equal(t, int32(1), d.IDOf("beta"))

	assert.Equal(t, 3, d.Len())
}

func TestIDOfTreatsEmptyStringAsValue(t *testing.T) {
	d := New()

	assert.Equal(t, int32(0), d.IDOf(""))
	assert.Equal(t, int32(1), d.IDOf("x"))
	assert.Equal(t, int32(0), d.IDOf(""))

	v, err := d.ValueOf(0)
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestValueOfRoundTrip(t *testing.T) {
	d := New()

	const n = 100
	for i := 0; i < n; i++ {
		id := d.IDOf("value_" + strconv.Itoa(i))
		assert.Equal(t, int32(i), id)
	}

	for i := 0; i < n; i++ {
		v, err := d.ValueOf(int32(i))
		require.NoError(t, err)
		assert.Equal(t, "value_"+strconv.Itoa(i), v)
	}
}

func TestValueOfOutOfRange(t *testing.T) {
	d := New()
	d.IDOf("only")

	tests := []struct {
		name string
		id   int32
	}{
		{"negative", -1},
		{"at size", 1},
		{"beyond size", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.ValueOf(tt.id)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeOutOfRange))
		})
	}
}

func TestValueOfEmptyDictionary(t *testing.T) {
	d := New()

	_, err := d.ValueOf(0)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeOutOfRange))
}

func TestIDsStableAcrossBlockGrowth(t *testing.T) {
	d := New()

	// Enough entries to cross several block boundaries and force directory
	// copies.
	const n = blockSize*3 + 17
	for i := 0; i < n; i++ {
		require.Equal(t, int32(i), d.IDOf("v"+strconv.Itoa(i)))
	}

	assert.Equal(t, n, d.Len())
	for i := 0; i < n; i++ {
		v, err := d.ValueOf(int32(i))
		require.NoError(t, err)
		require.Equal(t, "v"+strconv.Itoa(i), v)
	}
}

func TestBytesAccounting(t *testing.T) {
	d := New()
	assert.Equal(t, int64(0), d.Bytes())

	d.IDOf("ab")
	d.IDOf("cdef")
	d.IDOf("ab") // already present, no growth

	assert.Equal(t, int64(6), d.Bytes())
}

func TestConcurrentReadersDuringWrites(t *testing.T) {
	d := New()

	const total = blockSize * 4
	stop := make(chan struct{})
	errCh := make(chan error, 1)

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				n := d.Len()
				if n == 0 {
					continue
				}
				id := int32(n - 1)
				v, err := d.ValueOf(id)
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
					return
				}
				if v != "v"+strconv.Itoa(int(id)) {
					select {
					case errCh <- errors.Newf(errors.ErrorTypeInternal,
						"id %d resolved to %q", id, v):
					default:
					}
					return
				}
			}
		}()
	}

	for i := 0; i < total; i++ {
		d.IDOf("v" + strconv.Itoa(i))
	}
	close(stop)
	wg.Wait()

	select {
	case err := <-errCh:
		t.Fatalf("reader observed inconsistent state: %v", err)
	default:
	}
}

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.New("events", []schema.Column{
		{Name: "country", Type: schema.TypeString},
		{Name: "tags", Type: schema.TypeString, MultiValued: true},
	})
	require.NoError(t, err)
	return sch
}

func TestSetCreatesOneDictionaryPerColumn(t *testing.T) {
	s := NewSet(testSchema(t))

	country, ok := s.ForColumn("country")
	require.True(t, ok)
	tags, ok := s.ForColumn("tags")
	require.True(t, ok)
	assert.NotSame(t, country, tags)

	_, ok = s.ForColumn("missing")
	assert.False(t, ok)
}

func TestSetSizesAndBytes(t *testing.T) {
	s := NewSet(testSchema(t))

	country, _ := s.ForColumn("country")
	tags, _ := s.ForColumn("tags")
	country.IDOf("US")
	country.IDOf("DE")
	tags.IDOf("a")

	assert.Equal(t, map[string]int{"country": 2, "tags": 1}, s.Sizes())
	assert.Equal(t, int64(5), s.Bytes())
}

func BenchmarkIDOfMiss(b *testing.B) {
	d := New()
	values := make([]string, b.N)
	for i := range values {
		values[i] = "value_" + strconv.Itoa(i)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.IDOf(values[i])
	}
}

func BenchmarkIDOfHit(b *testing.B) {
	d := New()
	values := make([]string, 1024)
	for i := range values {
		values[i] = "value_" + strconv.Itoa(i)
		d.IDOf(values[i])
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.IDOf(values[i&1023])
	}
}

func BenchmarkValueOf(b *testing.B) {
	d := New()
	for i := 0; i < 1024; i++ {
		d.IDOf("value_" + strconv.Itoa(i))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := d.ValueOf(int32(i & 1023)); err != nil {
			b.Fatal(err)
		}
	}
}

// Package dictionary implements the per-column value dictionary used by the
// real-time ingestion path. Each distinct value is assigned a dense int32
// surrogate ID in first-seen order; IDs never change and are never reused for
// the life of the dictionary.
//
// The write side is single-owner: exactly one ingestion goroutine may call
// IDOf. Reads (ValueOf, Len) are lock-free and may run concurrently from any
// number of goroutines while the writer appends. Values live in fixed-size
// blocks that are never reallocated once published, so an ID handed out
// remains dereferenceable forever; the block directory and the size
// watermark are published atomically after each append.
package dictionary

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/schema"
)

const (
	blockShift = 10
	blockSize  = 1 << blockShift
	blockMask  = blockSize - 1
)

// block is an append-only value arena chunk. Slots at or beyond the size
// watermark are unpublished and must not be read.
type block [blockSize]string

type directory []*block

// Dictionary maps raw string values to dense surrogate IDs and back.
type Dictionary struct {
	// index maps xxhash64(value) to the candidate IDs carrying that hash.
	// Owned exclusively by the writer; never touched on the read path.
	index map[uint64][]int32

	dir   atomic.Pointer[directory]
	size  atomic.Int32
	bytes atomic.Int64
}

// New creates an empty dictionary.
func New() *Dictionary {
	d := &Dictionary{
		index: make(map[uint64][]int32),
	}
	dir := make(directory, 0, 4)
	d.dir.Store(&dir)
	return d
}

// IDOf returns the surrogate ID for value, assigning the next dense ID
// (the current size) on first sight. Writer-only: must be called from the
// single ingestion goroutine that owns this dictionary.
func (d *Dictionary) IDOf(value string) int32 {
	h := xxhash.Sum64String(value)
	for _, id := range d.index[h] {
		if d.at(id) == value {
			return id
		}
	}

	id := d.size.Load()
	d.append(id, value)
	d.index[h] = append(d.index[h], id)
	return id
}

// ValueOf returns the value for id, failing with an out_of_range error when
// id is negative or at or beyond the current size. Safe for concurrent use
// with an appending writer; an ID observed via IDOf or a published buffer is
// always resolvable.
func (d *Dictionary) ValueOf(id int32) (string, error) {
	// Load the watermark before the directory: a directory observed after
	// the watermark always covers every published ID.
	n := d.size.Load()
	if id < 0 || id >= n {
		return "", errors.Newf(errors.ErrorTypeOutOfRange,
			"dictionary id %d outside [0, %d)", id, n)
	}
	return d.at(id), nil
}

// Len returns the number of entries; valid IDs are exactly [0, Len()).
func (d *Dictionary) Len() int {
	return int(d.size.Load())
}

// Bytes returns the total size of stored values, for memory accounting.
func (d *Dictionary) Bytes() int64 {
	return d.bytes.Load()
}

// at dereferences a published ID. Callers must have bounds-checked id
// against the size watermark.
func (d *Dictionary) at(id int32) string {
	dir := *d.dir.Load()
	return dir[int(id)>>blockShift][int(id)&blockMask]
}

// append writes value into slot id and publishes it. Slot id is invisible to
// readers until the size watermark moves past it.
func (d *Dictionary) append(id int32, value string) {
	dir := *d.dir.Load()
	bi := int(id) >> blockShift
	if bi == len(dir) {
		// Grow by copying the directory so readers holding the old one
		// still see every block they could legally index.
		grown := make(directory, len(dir)+1)
		copy(grown, dir)
		grown[bi] = new(block)
		d.dir.Store(&grown)
		dir = grown
	}
	dir[bi][int(id)&blockMask] = value
	d.bytes.Add(int64(len(value)))
	d.size.Store(id + 1)
}

// Set holds one dictionary per schema column.
type Set struct {
	byName map[string]*Dictionary
}

// NewSet creates an empty dictionary for every column in the schema.
func NewSet(sch *schema.Schema) *Set {
	byName := make(map[string]*Dictionary, sch.NumColumns())
	for _, col := range sch.Columns() {
		byName[col.Name] = New()
	}
	return &Set{byName: byName}
}

// ForColumn returns the dictionary for a column.
func (s *Set) ForColumn(name string) (*Dictionary, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// Sizes returns the entry count per column, for stats and metrics.
func (s *Set) Sizes() map[string]int {
	sizes := make(map[string]int, len(s.byName))
	for name, d := range s.byName {
		sizes[name] = d.Len()
	}
	return sizes
}

// Bytes returns the total value bytes held across all columns.
func (s *Set) Bytes() int64 {
	var total int64
	for _, d := range s.byName {
		total += d.Bytes()
	}
	return total
}

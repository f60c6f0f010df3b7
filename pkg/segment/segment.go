// Package segment holds the in-memory columnar state of one ingestion
// session: per-column forward indexes of dictionary codes, the column
// dictionaries themselves, and the accounting the pipeline uses to decide
// when to seal and rotate.
package segment

import (
	"sync"
	"time"

	"github.com/stratumdb/stratum/pkg/dictionary"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/rowcodec"
	"github.com/stratumdb/stratum/pkg/schema"
)

// column is one forward index: the dictionary codes of every indexed row.
type column interface {
	append(ids []int32)
	row(i int) []int32
	bytes() int64
}

// singleColumn stores one code per row.
type singleColumn struct {
	codes []int32
}

func (c *singleColumn) append(ids []int32) {
	c.codes = append(c.codes, ids[0])
}

func (c *singleColumn) row(i int) []int32 {
	return c.codes[i : i+1]
}

func (c *singleColumn) bytes() int64 {
	return int64(len(c.codes)) * 4
}

// multiColumn stores variable-length code runs addressed by a row-offset
// table, mirroring the encoded-buffer layout.
type multiColumn struct {
	offsets []int32
	codes   []int32
}

func (c *multiColumn) append(ids []int32) {
	c.codes = append(c.codes, ids...)
	c.offsets = append(c.offsets, int32(len(c.codes)))
}

func (c *multiColumn) row(i int) []int32 {
	return c.codes[c.offsets[i]:c.offsets[i+1]]
}

func (c *multiColumn) bytes() int64 {
	return int64(len(c.codes)+len(c.offsets)) * 4
}

// Segment is the mutable columnar store of one ingestion session. One writer
// appends through IndexRow; readers use Row and the accounting methods.
// After Seal the segment is frozen and only reads are accepted.
type Segment struct {
	name   string
	schema *schema.Schema
	dicts  *dictionary.Set

	mu        sync.RWMutex
	columns   []column
	dictAt    []*dictionary.Dictionary
	scratch   [][]int32
	rows      int
	createdAt time.Time
	sealed    bool
	sealedAt  time.Time
}

// New creates an empty segment for the schema with fresh dictionaries.
func New(name string, sch *schema.Schema) *Segment {
	n := sch.NumColumns()
	s := &Segment{
		name:      name,
		schema:    sch,
		dicts:     dictionary.NewSet(sch),
		columns:   make([]column, n),
		dictAt:    make([]*dictionary.Dictionary, n),
		scratch:   make([][]int32, n),
		createdAt: time.Now(),
	}
	for i, col := range sch.Columns() {
		if col.MultiValued {
			s.columns[i] = &multiColumn{offsets: []int32{0}}
		} else {
			s.columns[i] = &singleColumn{}
		}
		s.dictAt[i], _ = s.dicts.ForColumn(col.Name)
	}
	return s
}

// Name returns the segment's identity for logs and metrics.
func (s *Segment) Name() string {
	return s.name
}

// Schema returns the schema the segment was created against.
func (s *Segment) Schema() *schema.Schema {
	return s.schema
}

// Dictionaries returns the segment's dictionary set. The ingestion writer
// passes it to Encode so dictionary lifetime tracks the segment's.
func (s *Segment) Dictionaries() *dictionary.Set {
	return s.dicts
}

// IndexRow validates an encoded buffer against the schema and appends its
// per-column code runs to the forward indexes. All-or-nothing: a corrupt
// buffer leaves the segment unchanged.
func (s *Segment) IndexRow(encoded []int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return errors.Newf(errors.ErrorTypeInternal, "segment %s is sealed", s.name)
	}

	for i := range s.columns {
		ids, err := rowcodec.DecodeColumnAt(encoded, s.schema, i)
		if err != nil {
			return err
		}
		if !s.schema.ColumnAt(i).MultiValued && len(ids) != 1 {
			return errors.Newf(errors.ErrorTypeCorruptBuffer,
				"single-valued column %q spans %d payload slots",
				s.schema.ColumnAt(i).Name, len(ids))
		}
		s.scratch[i] = ids
	}

	for i, col := range s.columns {
		col.append(s.scratch[i])
		s.scratch[i] = nil
	}
	s.rows++

	return nil
}

// Row reconstructs row i by resolving its codes through the dictionaries.
// Fails with index_out_of_range outside [0, RowCount()).
func (s *Segment) Row(i int) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 || i >= s.rows {
		return nil, errors.Newf(errors.ErrorTypeIndexOutOfRange,
			"row %d outside [0, %d)", i, s.rows)
	}

	out := make(map[string]interface{}, len(s.columns))
	for j, col := range s.schema.Columns() {
		ids := s.columns[j].row(i)
		if col.MultiValued {
			values := make([]interface{}, len(ids))
			for k, id := range ids {
				v, err := s.dictAt[j].ValueOf(id)
				if err != nil {
					return nil, err
				}
				values[k] = v
			}
			out[col.Name] = values
			continue
		}
		v, err := s.dictAt[j].ValueOf(ids[0])
		if err != nil {
			return nil, err
		}
		out[col.Name] = v
	}
	return out, nil
}

// ColumnCodes returns the forward-index code run of one row and column,
// without dictionary resolution.
func (s *Segment) ColumnCodes(row int, column string) ([]int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if row < 0 || row >= s.rows {
		return nil, errors.Newf(errors.ErrorTypeIndexOutOfRange,
			"row %d outside [0, %d)", row, s.rows)
	}
	i, ok := s.schema.Index(column)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeUnknownColumn,
			"schema does not declare column %q", column)
	}
	return s.columns[i].row(row), nil
}

// RowCount returns the number of indexed rows.
func (s *Segment) RowCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows
}

// Age returns the time since the segment was created.
func (s *Segment) Age() time.Duration {
	return time.Since(s.createdAt)
}

// Sealed reports whether Seal has been called.
func (s *Segment) Sealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed
}

// MemoryUsage returns the bytes held by forward indexes and dictionaries.
func (s *Segment) MemoryUsage() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memoryLocked()
}

func (s *Segment) memoryLocked() int64 {
	var total int64
	for _, c := range s.columns {
		total += c.bytes()
	}
	return total + s.dicts.Bytes()
}

// Stats is a point-in-time accounting snapshot.
type Stats struct {
	Name              string         `json:"name"`
	Rows              int            `json:"rows"`
	Columns           int            `json:"columns"`
	MemoryBytes       int64          `json:"memory_bytes"`
	DictionaryBytes   int64          `json:"dictionary_bytes"`
	DictionaryEntries map[string]int `json:"dictionary_entries"`
	CreatedAt         time.Time      `json:"created_at"`
	SealedAt          time.Time      `json:"sealed_at,omitempty"`
}

// Stats snapshots the segment's accounting.
func (s *Segment) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statsLocked()
}

func (s *Segment) statsLocked() Stats {
	return Stats{
		Name:              s.name,
		Rows:              s.rows,
		Columns:           len(s.columns),
		MemoryBytes:       s.memoryLocked(),
		DictionaryBytes:   s.dicts.Bytes(),
		DictionaryEntries: s.dicts.Sizes(),
		CreatedAt:         s.createdAt,
		SealedAt:          s.sealedAt,
	}
}

// Seal freezes the segment: subsequent IndexRow calls fail, reads keep
// working. Idempotent; the first call fixes the sealed-at time.
func (s *Segment) Seal() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sealed {
		s.sealed = true
		s.sealedAt = time.Now()
	}
	return s.statsLocked()
}

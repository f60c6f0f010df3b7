// Package models defines the row representation shared by the message
// decoders, the row codec and the ingestion pipeline.
package models

import (
	"time"

	"github.com/stratumdb/stratum/pkg/pool"
)

// RowMetadata carries the log coordinates a row was parsed from. Position is
// the message's own log position; NextPosition is the position immediately
// after it, which the pipeline checkpoints once the row's batch is fully
// folded into segment state.
type RowMetadata struct {
	Topic        string    `json:"topic,omitempty"`
	Partition    int32     `json:"partition"`
	Position     int64     `json:"position"`
	NextPosition int64     `json:"next_position"`
	Timestamp    time.Time `json:"timestamp"`
}

// Row maps column names to raw values. A value is either a scalar or an
// ordered []interface{} collection for multi-valued columns. Rows are
// produced by a message decoder, consumed by the row codec and recycled
// through the pool.
type Row struct {
	Values   map[string]interface{} `json:"values"`
	Metadata RowMetadata            `json:"metadata"`
}

var rowPool = pool.New(
	func() *Row {
		return &Row{
			Values: make(map[string]interface{}, 16),
		}
	},
	func(r *Row) {
		if r.Values == nil {
			// A decoder may have replaced the map (JSON null does this).
			r.Values = make(map[string]interface{}, 16)
		}
		for k := range r.Values {
			delete(r.Values, k)
		}
		r.Metadata = RowMetadata{}
	},
)

// GetRow returns a pooled row ready for population.
func GetRow() *Row {
	return rowPool.Get()
}

// PutRow recycles a row. The caller must not retain the row or its value map
// afterwards.
func PutRow(r *Row) {
	if r == nil {
		return
	}
	rowPool.Put(r)
}

// Set assigns a column value.
func (r *Row) Set(column string, value interface{}) {
	r.Values[column] = value
}

// Get returns a column value and whether it is present.
func (r *Row) Get(column string) (interface{}, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// Len returns the number of populated columns.
func (r *Row) Len() int {
	return len(r.Values)
}

// Release returns the row to the pool.
func (r *Row) Release() {
	PutRow(r)
}

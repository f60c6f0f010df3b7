// Package rowcodec serializes rows into the flat dictionary-coded integer
// layout consumed by the in-memory columnar store, and reconstructs rows
// from it.
//
// An encoded buffer has two regions. The offset table holds C+1 entries for
// C schema columns: entry i is the start of column i's payload run and entry
// C is the end of the last run. Every offset is biased by the header length
// (C+1) so it indexes the full buffer rather than the payload region. The
// payload holds one surrogate ID per single-valued column and one ID per
// element for multi-valued columns, whose raw values are sorted ascending
// before dictionary lookup.
//
// For schema [dim1 single, dim2 multi] and row {dim1:"A", dim2:["Z","X"]}
// against fresh dictionaries, the buffer is [3, 4, 6, 0, 0, 1]: offsets
// 3..4 carry dim1's single ID and 4..6 carry dim2's two IDs ("X" before "Z").
//
// Encode and decode are positional: both sides must use the identical
// schema ordering. Buffers are immutable once returned and safe to share
// across goroutines.
package rowcodec

import (
	"sort"

	"github.com/stratumdb/stratum/pkg/dictionary"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/models"
	"github.com/stratumdb/stratum/pkg/pool"
	"github.com/stratumdb/stratum/pkg/schema"
	stringpool "github.com/stratumdb/stratum/pkg/strings"
)

// Encode serializes row against the schema's column order, growing the
// per-column dictionaries as new values appear. Multi-valued collections are
// canonicalized by ascending sort before ID assignment; repeated values keep
// their repeated IDs. Fails with unknown_column when the row lacks a value
// for a schema column and type_mismatch when a value's cardinality disagrees
// with the schema. On failure no buffer is returned, though dictionary
// entries assigned for earlier columns remain (IDs are never revoked).
func Encode(row *models.Row, sch *schema.Schema, dicts *dictionary.Set) ([]int32, error) {
	header := sch.NumColumns() + 1

	offsets := make([]int32, 0, header)
	payload := pool.GetIDSlice()
	defer func() { pool.PutIDSlice(payload) }()

	for _, col := range sch.Columns() {
		offsets = append(offsets, int32(header+len(payload)))

		raw, ok := row.Get(col.Name)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeUnknownColumn,
				"row has no value for column %q", col.Name)
		}

		dict, ok := dicts.ForColumn(col.Name)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeUnknownColumn,
				"no dictionary for column %q", col.Name)
		}

		if col.MultiValued {
			ids, err := encodeMulti(col.Name, raw, dict, payload)
			if err != nil {
				return nil, err
			}
			payload = ids
		} else {
			if isCollection(raw) {
				return nil, errors.Newf(errors.ErrorTypeTypeMismatch,
					"column %q is single-valued but row holds a collection", col.Name)
			}
			payload = append(payload, dict.IDOf(stringpool.FormatScalar(raw)))
		}
	}
	offsets = append(offsets, int32(header+len(payload)))

	buf := make([]int32, 0, header+len(payload))
	buf = append(buf, offsets...)
	buf = append(buf, payload...)
	return buf, nil
}

// encodeMulti appends the sorted-value IDs of a multi-valued column to the
// payload. The sort runs on a scratch copy of the canonical string forms so
// the caller's collection is never reordered.
func encodeMulti(column string, raw interface{}, dict *dictionary.Dictionary, payload []int32) ([]int32, error) {
	values := pool.GetStringSlice()
	defer func() { pool.PutStringSlice(values) }()

	switch coll := raw.(type) {
	case []interface{}:
		for _, v := range coll {
			values = append(values, stringpool.FormatScalar(v))
		}
	case []string:
		values = append(values, coll...)
	default:
		return nil, errors.Newf(errors.ErrorTypeTypeMismatch,
			"column %q is multi-valued but row holds a scalar", column)
	}

	sort.Strings(values)
	for _, v := range values {
		payload = append(payload, dict.IDOf(v))
	}
	return payload, nil
}

// isCollection reports whether a raw row value is a multi-value collection.
func isCollection(v interface{}) bool {
	switch v.(type) {
	case []interface{}, []string:
		return true
	default:
		return false
	}
}

// DecodeColumn returns the surrogate-ID run for one column as a subslice of
// buf. Fails with unknown_column when the schema does not declare the column
// and corrupt_buffer when the offset table violates monotonicity or the
// buffer's bounds.
func DecodeColumn(buf []int32, sch *schema.Schema, column string) ([]int32, error) {
	i, ok := sch.Index(column)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeUnknownColumn,
			"schema does not declare column %q", column)
	}
	return DecodeColumnAt(buf, sch, i)
}

// DecodeColumnAt is DecodeColumn addressed by schema position, for callers
// iterating columns in order.
func DecodeColumnAt(buf []int32, sch *schema.Schema, i int) ([]int32, error) {
	if i < 0 || i >= sch.NumColumns() {
		return nil, errors.Newf(errors.ErrorTypeUnknownColumn,
			"schema declares %d columns, index %d", sch.NumColumns(), i)
	}
	column := sch.ColumnAt(i).Name

	header := sch.NumColumns() + 1
	if len(buf) < header {
		return nil, errors.Newf(errors.ErrorTypeCorruptBuffer,
			"buffer holds %d entries, offset table needs %d", len(buf), header)
	}

	start, end := int(buf[i]), int(buf[i+1])
	switch {
	case end < start:
		return nil, errors.Newf(errors.ErrorTypeCorruptBuffer,
			"column %q offsets decrease: start %d, end %d", column, start, end)
	case start < 0 || end > len(buf):
		return nil, errors.Newf(errors.ErrorTypeCorruptBuffer,
			"column %q offsets [%d, %d) escape buffer of %d", column, start, end, len(buf))
	}

	return buf[start:end], nil
}

// Decode reconstructs a row from an encoded buffer, resolving every ID
// through the column's dictionary. Multi-valued columns come back in the
// canonical sorted order chosen at encode time. The returned row is pooled;
// callers release it via Release. On any failure no row is returned.
func Decode(buf []int32, sch *schema.Schema, dicts *dictionary.Set) (*models.Row, error) {
	row := models.GetRow()

	for _, col := range sch.Columns() {
		ids, err := DecodeColumn(buf, sch, col.Name)
		if err != nil {
			row.Release()
			return nil, err
		}

		dict, ok := dicts.ForColumn(col.Name)
		if !ok {
			row.Release()
			return nil, errors.Newf(errors.ErrorTypeUnknownColumn,
				"no dictionary for column %q", col.Name)
		}

		if col.MultiValued {
			values := make([]interface{}, len(ids))
			for j, id := range ids {
				v, err := dict.ValueOf(id)
				if err != nil {
					row.Release()
					return nil, err
				}
				values[j] = v
			}
			row.Set(col.Name, values)
			continue
		}

		if len(ids) != 1 {
			row.Release()
			return nil, errors.Newf(errors.ErrorTypeCorruptBuffer,
				"single-valued column %q spans %d payload slots", col.Name, len(ids))
		}
		v, err := dict.ValueOf(ids[0])
		if err != nil {
			row.Release()
			return nil, err
		}
		row.Set(col.Name, v)
	}

	return row, nil
}

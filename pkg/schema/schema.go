// Package schema describes the ordered dimension columns of an ingested
// table. Column order is fixed for the life of an ingestion session: the row
// codec's offset table is positional, so encode and decode must be handed the
// same Schema.
package schema

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stratumdb/stratum/pkg/errors"
)

// ValueType is the declared scalar type of a dimension column. The codec
// canonicalizes every scalar to its string form before dictionary lookup, so
// the type primarily drives upstream validation and synthetic data shaping.
type ValueType string

const (
	TypeString  ValueType = "STRING"
	TypeInt     ValueType = "INT"
	TypeLong    ValueType = "LONG"
	TypeFloat   ValueType = "FLOAT"
	TypeDouble  ValueType = "DOUBLE"
	TypeBoolean ValueType = "BOOLEAN"
)

var knownTypes = map[ValueType]struct{}{
	TypeString:  {},
	TypeInt:     {},
	TypeLong:    {},
	TypeFloat:   {},
	TypeDouble:  {},
	TypeBoolean: {},
}

// Column describes one dimension column.
type Column struct {
	Name        string    `yaml:"name" json:"name"`
	MultiValued bool      `yaml:"multi" json:"multi"`
	Type        ValueType `yaml:"type" json:"type"`
}

// Schema is an ordered, immutable set of dimension columns with a
// name-to-index lookup.
type Schema struct {
	name    string
	columns []Column
	index   map[string]int
}

// New validates the column list and builds a schema. Column names must be
// unique and non-empty; empty types default to STRING.
func New(name string, columns []Column) (*Schema, error) {
	if len(columns) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "schema requires at least one column")
	}

	index := make(map[string]int, len(columns))
	cols := make([]Column, len(columns))
	for i, col := range columns {
		if col.Name == "" {
			return nil, errors.Newf(errors.ErrorTypeConfig, "column %d has an empty name", i)
		}
		if _, dup := index[col.Name]; dup {
			return nil, errors.Newf(errors.ErrorTypeConfig, "duplicate column %q", col.Name)
		}
		if col.Type == "" {
			col.Type = TypeString
		}
		if _, ok := knownTypes[col.Type]; !ok {
			return nil, errors.Newf(errors.ErrorTypeConfig, "column %q has unknown type %q", col.Name, col.Type)
		}
		index[col.Name] = i
		cols[i] = col
	}

	return &Schema{
		name:    name,
		columns: cols,
		index:   index,
	}, nil
}

// Name returns the table name.
func (s *Schema) Name() string {
	return s.name
}

// NumColumns returns the number of dimension columns.
func (s *Schema) NumColumns() int {
	return len(s.columns)
}

// ColumnAt returns the column at schema position i.
func (s *Schema) ColumnAt(i int) Column {
	return s.columns[i]
}

// Columns returns the columns in declared order. The slice is shared; do not
// mutate.
func (s *Schema) Columns() []Column {
	return s.columns
}

// Index resolves a column name to its schema position.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Has reports whether the schema declares the column.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// file is the on-disk YAML table definition.
type file struct {
	Table   string   `yaml:"table"`
	Columns []Column `yaml:"columns"`
}

// LoadFile reads a table definition from a YAML file.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read schema file")
	}
	return Parse(data)
}

// Parse builds a schema from YAML bytes.
func Parse(data []byte) (*Schema, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse schema file")
	}
	return New(f.Table, f.Columns)
}

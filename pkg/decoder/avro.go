package decoder

import (
	"github.com/linkedin/goavro/v2"

	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/models"
)

// Avro decodes single-record Avro binary payloads against a fixed writer
// schema configured at session start.
type Avro struct {
	codec *goavro.Codec
}

// NewAvro compiles the writer schema. The schema must describe a record.
func NewAvro(schema string) (*Avro, error) {
	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid avro writer schema")
	}
	return &Avro{codec: codec}, nil
}

// Decode parses payload into a pooled row.
func (a *Avro) Decode(payload []byte) (*models.Row, error) {
	native, _, err := a.codec.NativeFromBinary(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "malformed avro payload")
	}

	fields, ok := native.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.ErrorTypeData, "avro payload is not a record")
	}

	row := models.GetRow()
	for name, value := range fields {
		row.Set(name, flattenUnion(value))
	}
	return row, nil
}

// flattenUnion unwraps goavro's union encoding, which wraps the chosen
// branch in a single-entry map keyed by the branch type name. Array elements
// are unwrapped too.
func flattenUnion(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		if len(v) == 1 {
			for _, inner := range v {
				return inner
			}
		}
		return v
	case []interface{}:
		for i, elem := range v {
			v[i] = flattenUnion(elem)
		}
		return v
	default:
		return value
	}
}

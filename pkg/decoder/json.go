package decoder

import (
	"bytes"

	"github.com/stratumdb/stratum/pkg/errors"
	jsonpool "github.com/stratumdb/stratum/pkg/json"
	"github.com/stratumdb/stratum/pkg/models"
)

// JSON decodes one JSON object per payload. Numeric literals decode as
// json.Number so integer dimension values keep their exact text form.
type JSON struct{}

// NewJSON returns the JSON payload decoder.
func NewJSON() *JSON {
	return &JSON{}
}

// Decode parses payload into a pooled row. Decoding into the row's existing
// map reuses its storage across recycled rows.
func (*JSON) Decode(payload []byte) (*models.Row, error) {
	row := models.GetRow()

	dec := jsonpool.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&row.Values); err != nil {
		row.Release()
		return nil, errors.Wrap(err, errors.ErrorTypeData, "malformed JSON payload")
	}
	if row.Values == nil {
		// JSON null decodes to a nil map; normalize so callers can Set.
		row.Release()
		return nil, errors.New(errors.ErrorTypeData, "payload is not a JSON object")
	}

	return row, nil
}

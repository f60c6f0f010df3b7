// Package decoder turns raw message payloads into rows. A RowDecoder is
// chosen per ingestion session from configuration; payloads may additionally
// be compressed by the producer, in which case the format decoder is wrapped
// with the matching decompression codec.
package decoder

import (
	"os"

	"github.com/stratumdb/stratum/pkg/compression"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/models"
)

// Payload formats.
const (
	FormatJSON = "json"
	FormatAvro = "avro"
)

// Config selects the payload format and its options.
type Config struct {
	Format string `yaml:"format"` // json, avro

	// Avro writer schema, inline or from a file. One of the two is required
	// for the avro format; the inline form wins when both are set.
	AvroSchema     string `yaml:"avro_schema"`
	AvroSchemaFile string `yaml:"avro_schema_file"`

	// Compression names the codec producers applied to message bodies.
	Compression string `yaml:"compression"`
}

// RowDecoder parses one message payload into a pooled row. The caller owns
// the returned row and must Release it. Malformed payloads yield data errors.
type RowDecoder interface {
	Decode(payload []byte) (*models.Row, error)
}

// New builds the decoder chain for cfg: a format decoder, wrapped with
// payload decompression when configured.
func New(cfg Config) (RowDecoder, error) {
	var inner RowDecoder

	switch cfg.Format {
	case "", FormatJSON:
		inner = NewJSON()
	case FormatAvro:
		schema := cfg.AvroSchema
		if schema == "" && cfg.AvroSchemaFile != "" {
			data, err := os.ReadFile(cfg.AvroSchemaFile)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrorTypeConfig,
					"failed to read avro schema file %s", cfg.AvroSchemaFile)
			}
			schema = string(data)
		}
		if schema == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "avro format requires a writer schema")
		}
		avro, err := NewAvro(schema)
		if err != nil {
			return nil, err
		}
		inner = avro
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported payload format: %s", cfg.Format)
	}

	algorithm, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if algorithm == compression.None {
		return inner, nil
	}

	codec, err := compression.New(algorithm, compression.Default)
	if err != nil {
		return nil, err
	}
	return NewDecompressing(inner, codec), nil
}

// Decompressing wraps a format decoder with payload decompression.
type Decompressing struct {
	inner RowDecoder
	codec compression.Compressor
}

// NewDecompressing wraps inner so payloads pass through codec.Decompress
// before format parsing.
func NewDecompressing(inner RowDecoder, codec compression.Compressor) *Decompressing {
	return &Decompressing{inner: inner, codec: codec}
}

// Decode decompresses the payload and delegates to the wrapped decoder.
func (d *Decompressing) Decode(payload []byte) (*models.Row, error) {
	raw, err := d.codec.Decompress(payload)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeData,
			"failed to decompress %s payload", d.codec.Algorithm())
	}
	return d.inner.Decode(raw)
}

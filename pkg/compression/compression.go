// Package compression provides the payload codecs used on the message path:
// producers may compress message bodies, and the decoder decompresses them
// before format parsing. All codecs are safe for concurrent use.
//
// Speed (fastest to slowest): LZ4 > Snappy/S2 > Zstd > Gzip.
// Ratio (best to worst): Zstd > Gzip > Snappy/S2 > LZ4.
package compression

import (
	"bytes"
	"compress/gzip"
	"io"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/stratumdb/stratum/pkg/errors"
	stringpool "github.com/stratumdb/stratum/pkg/strings"
)

// Algorithm identifies a payload codec.
type Algorithm string

const (
	// None passes payloads through untouched.
	None Algorithm = "none"
	// Gzip is the widest-compatibility codec.
	Gzip Algorithm = "gzip"
	// Snappy favors speed with moderate compression.
	Snappy Algorithm = "snappy"
	// LZ4 is the fastest codec.
	LZ4 Algorithm = "lz4"
	// Zstd gives the best ratio at good speed.
	Zstd Algorithm = "zstd"
	// S2 is Snappy-compatible with better compression.
	S2 Algorithm = "s2"
)

// Level trades compression speed against ratio.
type Level int

const (
	// Fastest prioritizes latency over ratio.
	Fastest Level = 1
	// Default balances the two.
	Default Level = 5
	// Best maximizes ratio.
	Best Level = 9
)

// Compressor encodes and decodes payload bytes. The input slice is never
// modified.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() Algorithm
}

// ParseAlgorithm validates a configured codec name. The empty string means
// None.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", None:
		return None, nil
	case Gzip, Snappy, LZ4, Zstd, S2:
		return Algorithm(s), nil
	default:
		return None, errors.Newf(errors.ErrorTypeConfig, "unsupported compression algorithm: %s", s)
	}
}

// New creates a codec for the given algorithm at the given level.
func New(algorithm Algorithm, level Level) (Compressor, error) {
	switch algorithm {
	case None, "":
		return &noneCompressor{}, nil
	case Gzip:
		return newGzipCompressor(level), nil
	case Snappy:
		return &snappyCompressor{}, nil
	case LZ4:
		return newLZ4Compressor(level), nil
	case Zstd:
		return newZstdCompressor(level)
	case S2:
		return &s2Compressor{}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported compression algorithm: %s", algorithm)
	}
}

type noneCompressor struct{}

func (*noneCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (*noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
func (*noneCompressor) Algorithm() Algorithm                   { return None }

type gzipCompressor struct {
	writerPool sync.Pool
	readerPool sync.Pool
}

func newGzipCompressor(level Level) *gzipCompressor {
	gzLevel := gzip.DefaultCompression
	switch level {
	case Fastest:
		gzLevel = gzip.BestSpeed
	case Best:
		gzLevel = gzip.BestCompression
	}

	gc := &gzipCompressor{}
	gc.writerPool.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, gzLevel)
		return w
	}
	gc.readerPool.New = func() interface{} {
		return new(gzip.Reader)
	}
	return gc
}

func (gc *gzipCompressor) Compress(data []byte) ([]byte, error) {
	builder := stringpool.GetBuilder()
	defer stringpool.PutBuilder(builder)

	w := gc.writerPool.Get().(*gzip.Writer)
	defer gc.writerPool.Put(w)

	w.Reset(builder)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	result := make([]byte, builder.Len())
	copy(result, builder.Bytes())
	return result, nil
}

func (gc *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	r := gc.readerPool.Get().(*gzip.Reader)
	defer gc.readerPool.Put(r)

	if err := r.Reset(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	builder := stringpool.GetBuilder()
	defer stringpool.PutBuilder(builder)

	if _, err := io.Copy(builder, r); err != nil {
		return nil, err
	}

	result := make([]byte, builder.Len())
	copy(result, builder.Bytes())
	return result, nil
}

func (*gzipCompressor) Algorithm() Algorithm { return Gzip }

type snappyCompressor struct{}

func (*snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (*snappyCompressor) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

func (*snappyCompressor) Algorithm() Algorithm { return Snappy }

type s2Compressor struct{}

func (*s2Compressor) Compress(data []byte) ([]byte, error) {
	return s2.Encode(nil, data), nil
}

func (*s2Compressor) Decompress(data []byte) ([]byte, error) {
	return s2.Decode(nil, data)
}

func (*s2Compressor) Algorithm() Algorithm { return S2 }

type lz4Compressor struct {
	level lz4.CompressionLevel
}

func newLZ4Compressor(level Level) *lz4Compressor {
	lz4Level := lz4.Level5
	switch level {
	case Fastest:
		lz4Level = lz4.Fast
	case Best:
		lz4Level = lz4.Level9
	}
	return &lz4Compressor{level: lz4Level}
}

func (lc *lz4Compressor) Compress(data []byte) ([]byte, error) {
	builder := stringpool.GetBuilder()
	defer stringpool.PutBuilder(builder)

	w := lz4.NewWriter(builder)
	if err := w.Apply(lz4.CompressionLevelOption(lc.level)); err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	result := make([]byte, builder.Len())
	copy(result, builder.Bytes())
	return result, nil
}

func (lc *lz4Compressor) Decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))

	builder := stringpool.GetBuilder()
	defer stringpool.PutBuilder(builder)

	if _, err := io.Copy(builder, r); err != nil {
		return nil, err
	}

	result := make([]byte, builder.Len())
	copy(result, builder.Bytes())
	return result, nil
}

func (*lz4Compressor) Algorithm() Algorithm { return LZ4 }

type zstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdCompressor(level Level) (*zstdCompressor, error) {
	encLevel := zstd.SpeedDefault
	switch level {
	case Fastest:
		encLevel = zstd.SpeedFastest
	case Best:
		encLevel = zstd.SpeedBestCompression
	}

	// EncodeAll/DecodeAll on shared instances are safe for concurrent use.
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	return &zstdCompressor{encoder: enc, decoder: dec}, nil
}

func (zc *zstdCompressor) Compress(data []byte) ([]byte, error) {
	return zc.encoder.EncodeAll(data, nil), nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	return zc.decoder.DecodeAll(data, nil)
}

func (*zstdCompressor) Algorithm() Algorithm { return Zstd }

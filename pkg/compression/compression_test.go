package compression

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/pkg/errors"
)

var allAlgorithms = []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2}

func TestRoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"empty":      {},
		"short":      []byte(`{"country":"US"}`),
		"repetitive": bytes.Repeat([]byte("abcdefgh"), 512),
	}

	for _, algorithm := range allAlgorithms {
		for _, level := range []Level{Fastest, Default, Best} {
			codec, err := New(algorithm, level)
			require.NoError(t, err)

			for name, data := range payloads {
				t.Run(string(algorithm)+"/"+name, func(t *testing.T) {
					compressed, err := codec.Compress(data)
					require.NoError(t, err)

					out, err := codec.Decompress(compressed)
					require.NoError(t, err)
					assert.Equal(t, string(data), string(out))
				})
			}
		}
	}
}

func TestCompressionShrinksRepetitiveData(t *testing.T) {
	data := bytes.Repeat([]byte("stratum ingestion "), 512)

	for _, algorithm := range []Algorithm{Gzip, Snappy, LZ4, Zstd, S2} {
		t.Run(string(algorithm), func(t *testing.T) {
			codec, err := New(algorithm, Default)
			require.NoError(t, err)

			compressed, err := codec.Compress(data)
			require.NoError(t, err)
			assert.Less(t, len(compressed), len(data))
		})
	}
}

func TestNonePassesThrough(t *testing.T) {
	codec, err := New(None, Default)
	require.NoError(t, err)

	data := []byte("raw")
	compressed, err := codec.Compress(data)
	require.NoError(t, err)
	assert.Equal(t, data, compressed)
	assert.Same(t, &data[0], &compressed[0])
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"", None, false},
		{"none", None, false},
		{"gzip", Gzip, false},
		{"snappy", Snappy, false},
		{"lz4", LZ4, false},
		{"zstd", Zstd, false},
		{"s2", S2, false},
		{"brotli", None, true},
		{"GZIP", None, true},
	}

	for _, tt := range tests {
		t.Run("algorithm="+tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewUnknownAlgorithm(t *testing.T) {
	_, err := New("brotli", Default)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestAlgorithmAccessor(t *testing.T) {
	for _, algorithm := range allAlgorithms {
		codec, err := New(algorithm, Default)
		require.NoError(t, err)
		assert.Equal(t, algorithm, codec.Algorithm())
	}
}

func TestDecompressGarbage(t *testing.T) {
	garbage := []byte("definitely not a compressed stream")

	for _, algorithm := range []Algorithm{Gzip, Snappy, LZ4, Zstd, S2} {
		t.Run(string(algorithm), func(t *testing.T) {
			codec, err := New(algorithm, Default)
			require.NoError(t, err)

			_, err = codec.Decompress(garbage)
			assert.Error(t, err)
		})
	}
}

func TestZstdConcurrentUse(t *testing.T) {
	codec, err := New(Zstd, Default)
	require.NoError(t, err)

	data := bytes.Repeat([]byte("concurrent payload "), 64)
	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				compressed, err := codec.Compress(data)
				if err == nil {
					var out []byte
					out, err = codec.Decompress(compressed)
					if err == nil && !bytes.Equal(out, data) {
						err = errors.New(errors.ErrorTypeInternal, "round trip mismatch")
					}
				}
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
					return
				}
			}
		}()
	}
	wg.Wait()

	select {
	case err := <-errCh:
		t.Fatal(err)
	default:
	}
}

func BenchmarkCompress(b *testing.B) {
	data := bytes.Repeat([]byte(`{"country":"US","tags":["web","mobile"]}`), 32)

	for _, algorithm := range []Algorithm{Gzip, Snappy, LZ4, Zstd, S2} {
		codec, err := New(algorithm, Default)
		if err != nil {
			b.Fatal(err)
		}

		b.Run(string(algorithm), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := codec.Compress(data); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDecompress(b *testing.B) {
	data := bytes.Repeat([]byte(`{"country":"US","tags":["web","mobile"]}`), 32)

	for _, algorithm := range []Algorithm{Gzip, Snappy, LZ4, Zstd, S2} {
		codec, err := New(algorithm, Default)
		if err != nil {
			b.Fatal(err)
		}
		compressed, err := codec.Compress(data)
		if err != nil {
			b.Fatal(err)
		}

		b.Run(string(algorithm), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := codec.Decompress(compressed); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

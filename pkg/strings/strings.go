// Package strings provides pooled string building and zero-copy conversions
// for the hot ingestion paths.
package strings

import (
	"fmt"
	"strconv"
	"sync"
	"unsafe"
)

// BytesToString converts a byte slice to a string without allocation.
// The returned string shares memory with the slice; the slice must not be
// modified afterwards.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// StringToBytes converts a string to a byte slice without allocation.
// The returned slice must not be modified.
func StringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// Builder accumulates bytes and yields a string. Obtained from the pool via
// GetBuilder; not safe for concurrent use.
type Builder struct {
	buf []byte
}

// WriteString appends a string.
func (b *Builder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

// WriteByte appends a single byte.
func (b *Builder) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// Write implements io.Writer.
func (b *Builder) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String returns the accumulated bytes as a freshly allocated string. The
// copy is deliberate: the builder's buffer is recycled by PutBuilder.
func (b *Builder) String() string {
	return string(b.buf)
}

// Bytes returns the accumulated bytes. The slice aliases the builder's
// buffer; copy it out before PutBuilder.
func (b *Builder) Bytes() []byte {
	return b.buf
}

// Len returns the number of accumulated bytes.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Reset clears the builder for reuse.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

var builderPool = sync.Pool{
	New: func() interface{} {
		return &Builder{buf: make([]byte, 0, 256)}
	},
}

// GetBuilder returns a pooled builder.
func GetBuilder() *Builder {
	return builderPool.Get().(*Builder)
}

// PutBuilder resets and returns a builder to the pool. Oversized buffers are
// dropped instead of pinned.
func PutBuilder(b *Builder) {
	if cap(b.buf) > 1<<16 {
		return
	}
	b.Reset()
	builderPool.Put(b)
}

// Sprintf formats using a pooled builder instead of fmt.Sprintf's internal
// allocation.
func Sprintf(format string, args ...interface{}) string {
	b := GetBuilder()
	fmt.Fprintf(b, format, args...)
	s := b.String()
	PutBuilder(b)
	return s
}

// FormatScalar renders a scalar column value in its canonical string form.
// A type switch over the common scalar kinds avoids fmt reflection on the
// per-value encode path.
func FormatScalar(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

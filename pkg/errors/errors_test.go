package errors

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRendersTypeAndMessage(t *testing.T) {
	err := New(ErrorTypeConnection, "failed to reach broker")
	assert.Equal(t, "connection: failed to reach broker", err.Error())
	assert.Equal(t, ErrorTypeConnection, err.Type)
	assert.Nil(t, err.Cause)
}

func TestNewfFormats(t *testing.T) {
	err := Newf(ErrorTypeOutOfRange, "dictionary ID %d outside [0, %d)", 7, 3)
	assert.Equal(t, "out_of_range: dictionary ID 7 outside [0, 3)", err.Error())
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeData, "ignored"))
	assert.Nil(t, Wrapf(nil, ErrorTypeData, "ignored %d", 1))
}

func TestWrapForeignError(t *testing.T) {
	err := Wrap(io.ErrUnexpectedEOF, ErrorTypeData, "read failed")

	assert.Equal(t, "data: read failed: unexpected EOF", err.Error())
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Same(t, io.ErrUnexpectedEOF, errors.Unwrap(err))
}

func TestWrapChainRendering(t *testing.T) {
	inner := Newf(ErrorTypeOutOfRange, "dictionary ID %d outside [0, %d)", 7, 3)
	outer := Wrap(inner, ErrorTypeData, "failed to materialize row")

	assert.Equal(t,
		"data: failed to materialize row: out_of_range: dictionary ID 7 outside [0, 3)",
		outer.Error())
}

func TestIsTypeMatchesOutermost(t *testing.T) {
	inner := New(ErrorTypeOutOfRange, "dictionary miss")
	outer := Wrap(inner, ErrorTypeData, "decode failed")

	assert.True(t, IsType(outer, ErrorTypeData))
	// errors.As stops at the outermost *Error, so the wrapped type wins.
	assert.False(t, IsType(outer, ErrorTypeOutOfRange))
	assert.True(t, IsType(inner, ErrorTypeOutOfRange))

	assert.False(t, IsType(io.EOF, ErrorTypeData))
	assert.False(t, IsType(nil, ErrorTypeData))
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrorTypeTimeout, GetType(New(ErrorTypeTimeout, "deadline")))
	assert.Equal(t, ErrorTypeInternal, GetType(io.EOF))
	assert.Equal(t, ErrorTypeInternal, GetType(nil))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    bool
	}{
		{ErrorTypeConnection, true},
		{ErrorTypeTimeout, true},
		{ErrorTypeInternal, false},
		{ErrorTypeConfig, false},
		{ErrorTypeData, false},
		{ErrorTypeUnknownColumn, false},
		{ErrorTypeTypeMismatch, false},
		{ErrorTypeOutOfRange, false},
		{ErrorTypeCorruptBuffer, false},
		{ErrorTypeIndexOutOfRange, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(New(tt.errType, "x")))
		})
	}

	assert.False(t, IsRetryable(io.EOF))
	assert.False(t, IsRetryable(nil))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeData, "bad payload").
		WithDetail("position", int64(42)).
		WithDetail("partition", int32(3))

	assert.Equal(t, int64(42), err.Details["position"])
	assert.Equal(t, int32(3), err.Details["partition"])
}

func TestStackCapturesCaller(t *testing.T) {
	err := New(ErrorTypeInternal, "x")

	require.NotEmpty(t, err.Stack)
	assert.Contains(t, err.Stack[0].Function, "TestStackCapturesCaller")
}

func TestWrapPreservesInnermostStack(t *testing.T) {
	inner := New(ErrorTypeOutOfRange, "miss")
	outer := Wrap(inner, ErrorTypeData, "decode")
	outermost := Wrap(outer, ErrorTypeInternal, "ingest")

	require.NotEmpty(t, outermost.Stack)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.Equal(t, inner.Stack, outermost.Stack)
}

package segment

import (
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyDueRows(t *testing.T) {
	s := New("events__0__0", eventsSchema(t))
	p := Policy{MaxRows: 2}

	require.NoError(t, s.IndexRow(encodeRow(t, s, "US", "web")))
	due, _ := p.Due(s, 0)
	assert.False(t, due)

	require.NoError(t, s.IndexRow(encodeRow(t, s, "DE", "web")))
	due, reason := p.Due(s, 0)
	assert.True(t, due)
	assert.Equal(t, "rows", reason)
}

func TestPolicyDueAge(t *testing.T) {
	s := New("events__0__0", eventsSchema(t))
	p := Policy{MaxAge: model.Duration(time.Nanosecond)}

	time.Sleep(time.Millisecond)
	due, reason := p.Due(s, 0)
	assert.True(t, due)
	assert.Equal(t, "age", reason)
}

func TestPolicyDueMemory(t *testing.T) {
	s := New("events__0__0", eventsSchema(t))
	p := Policy{MaxProcessMemory: 100}

	due, _ := p.Due(s, 99)
	assert.False(t, due)

	due, reason := p.Due(s, 100)
	assert.True(t, due)
	assert.Equal(t, "memory", reason)
}

func TestPolicyZeroThresholdsNeverDue(t *testing.T) {
	s := New("events__0__0", eventsSchema(t))
	require.NoError(t, s.IndexRow(encodeRow(t, s, "US", "web")))

	due, reason := Policy{}.Due(s, 1<<40)
	assert.False(t, due)
	assert.Empty(t, reason)
}

func TestPolicyRowsTriggerWinsOverAge(t *testing.T) {
	s := New("events__0__0", eventsSchema(t))
	p := Policy{MaxRows: 1, MaxAge: model.Duration(time.Nanosecond)}

	require.NoError(t, s.IndexRow(encodeRow(t, s, "US", "web")))
	time.Sleep(time.Millisecond)

	due, reason := p.Due(s, 0)
	require.True(t, due)
	assert.Equal(t, "rows", reason)
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 1_000_000, p.MaxRows)
	assert.Equal(t, model.Duration(6*time.Hour), p.MaxAge)
	assert.Zero(t, p.MaxProcessMemory)
}

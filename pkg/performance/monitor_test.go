package performance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorUsage(t *testing.T) {
	m := NewMonitor()
	require.NotNil(t, m)

	u := m.Usage()
	assert.GreaterOrEqual(t, u.GoroutineCount, 1)
	assert.Greater(t, u.HeapAllocBytes, uint64(0))
}

func TestMonitorRSS(t *testing.T) {
	m := NewMonitor()

	// Sampling must never panic; the value itself is platform-dependent.
	assert.NotPanics(t, func() { m.RSS() })
	assert.NotPanics(t, func() { m.RSS() })
}

func TestMonitorWithoutProcess(t *testing.T) {
	// Process attachment can fail; every sampler must degrade to zeros.
	m := &Monitor{}

	assert.Equal(t, uint64(0), m.RSS())

	u := m.Usage()
	assert.Zero(t, u.MemoryRSS)
	assert.GreaterOrEqual(t, u.GoroutineCount, 1)
}

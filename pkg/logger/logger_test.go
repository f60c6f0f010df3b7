package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "json production",
			cfg:  Config{Level: "info", Encoding: "json"},
		},
		{
			name: "console development",
			cfg:  Config{Level: "debug", Encoding: "console", Development: true},
		},
		{
			name:    "invalid level",
			cfg:     Config{Level: "chatty", Encoding: "json"},
			wantErr: "invalid log level",
		},
		{
			name:    "invalid encoding",
			cfg:     Config{Level: "info", Encoding: "xml"},
			wantErr: "failed to build logger",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := newLogger(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestGetReturnsStableLogger(t *testing.T) {
	first := Get()
	require.NotNil(t, first)
	assert.Same(t, first, Get())
}

func TestInitIsIdempotent(t *testing.T) {
	require.NoError(t, Init(Config{Level: "info", Encoding: "json"}))
	assert.NoError(t, Init(Config{Level: "debug", Encoding: "console"}))
}

func TestWithContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), TableKey, "events")
	ctx = context.WithValue(ctx, SegmentKey, "events__0__3")
	ctx = context.WithValue(ctx, PartitionKey, int32(3))

	logger := WithContext(ctx)
	require.NotNil(t, logger)
	assert.NotSame(t, Get(), logger)

	// Values of the wrong type are skipped, not crashed on.
	ctx = context.WithValue(context.Background(), PartitionKey, "three")
	assert.NotNil(t, WithContext(ctx))
}

func TestPackageLevelHelpers(t *testing.T) {
	assert.NotPanics(t, func() {
		Debug("debug line", zap.String("k", "v"))
		Info("info line")
		Warn("warn line")
		Error("error line", zap.Int("n", 1))
	})

	child := With(zap.String("component", "test"))
	assert.NotNil(t, child)

	// Syncing stdout can fail on some platforms; it must not panic.
	assert.NotPanics(t, func() { _ = Sync() })
}

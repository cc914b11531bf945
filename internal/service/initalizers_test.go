package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitializeStore(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	t.Run("FileDriver", func(t *testing.T) {
		cfg := testConfig(t)

		st, cleanup, err := InitializeStore(ctx, cfg, logger)
		require.NoError(t, err)
		assert.NotNil(t, st)
		require.NotNil(t, cleanup)
		assert.NotPanics(t, cleanup)
	})

	t.Run("UnknownDriver", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.Driver = "redis"

		st, cleanup, err := InitializeStore(ctx, cfg, logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown store driver")
		assert.Nil(t, st)
		assert.Nil(t, cleanup)
	})
}

func TestInitializeGate(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	cfg := testConfig(t)

	st, cleanup, err := InitializeStore(ctx, cfg, logger)
	require.NoError(t, err)
	defer cleanup()

	gate, err := InitializeGate(ctx, st, cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, gate)

	now := time.Now()
	assert.Equal(t, cfg.Session.DailyActionLimit, gate.Remaining(now),
		"a fresh gate starts with the full daily budget")

	// Recorded actions survive a reopen through the same store.
	require.NoError(t, gate.RecordAction(ctx, now))

	reopened, err := InitializeGate(ctx, st, cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, cfg.Session.DailyActionLimit-1, reopened.Remaining(now))
}

package cache

import (
	"context"
	"testing"

	"github.com/labelops/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardsFactory_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("redis disabled", func(t *testing.T) {
		guards, err := NewGuardsFactory().Create(ctx, &config.Config{})
		require.NoError(t, err)
		defer guards.Close()

		assert.IsType(t, &InMemoryIdempotencyStore{}, guards.Store)
		assert.IsType(t, &InMemoryLocker{}, guards.Locker)
		assert.False(t, guards.Distributed())
		assert.NoError(t, guards.Ping(ctx))
	})

	unreachable := &config.Config{Redis: config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}}

	t.Run("unreachable redis falls back", func(t *testing.T) {
		guards, err := NewGuardsFactory(WithInMemoryFallback(true)).Create(ctx, unreachable)
		require.NoError(t, err)
		defer guards.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, guards.Store)
	})

	t.Run("unreachable redis without fallback", func(t *testing.T) {
		_, err := NewGuardsFactory(WithInMemoryFallback(false)).Create(ctx, unreachable)
		assert.Error(t, err)
	})
}

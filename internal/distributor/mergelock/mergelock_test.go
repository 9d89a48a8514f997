package mergelock

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestManager_AcquireThenReleaseAllowsReacquire(t *testing.T) {
	client := setupTestRedis(t)
	m := NewManager(client, DefaultConfig(), nil)
	ctx := context.Background()

	tok, ok, err := m.Acquire(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.Release(ctx, tok))

	tok2, ok2, err := m.Acquire(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok2)
	require.NoError(t, m.Release(ctx, tok2))
}

func TestManager_SecondAcquireFailsWhileHeld(t *testing.T) {
	client := setupTestRedis(t)
	cfg := DefaultConfig()
	cfg.LockConfig.MaxRetries = 0
	m := NewManager(client, cfg, nil)
	ctx := context.Background()

	tok, ok, err := m.Acquire(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok2, err2 := m.Acquire(ctx, 7)
	require.NoError(t, err2)
	assert.False(t, ok2)

	require.NoError(t, m.Release(ctx, tok))
}

func TestManager_DifferentBucketsDoNotContend(t *testing.T) {
	client := setupTestRedis(t)
	m := NewManager(client, DefaultConfig(), nil)
	ctx := context.Background()

	tok1, ok1, err := m.Acquire(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok1)

	tok2, ok2, err := m.Acquire(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok2)

	require.NoError(t, m.Release(ctx, tok1))
	require.NoError(t, m.Release(ctx, tok2))
}

func TestManager_CloseReleasesOutstandingTokens(t *testing.T) {
	client := setupTestRedis(t)
	cfg := DefaultConfig()
	cfg.LockConfig.MaxRetries = 0
	m := NewManager(client, cfg, nil)
	ctx := context.Background()

	_, ok, err := m.Acquire(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.Close(ctx))

	m2 := NewManager(client, cfg, nil)
	_, ok2, err2 := m2.Acquire(ctx, 9)
	require.NoError(t, err2)
	assert.True(t, ok2)
}

package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalIsSingleFlight(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.TryLock(ctx, "sweep", time.Minute)
	assert.False(t, ok)
	ok, _ = l.TryLock(ctx, "recalc", time.Minute)
	assert.True(t, ok, "keys are independent")

	require.NoError(t, l.Unlock(ctx, "sweep"))
	ok, _ = l.TryLock(ctx, "sweep", time.Minute)
	assert.True(t, ok)
}

func TestLocalExpires(t *testing.T) {
	l := NewLocal()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.TryLock(ctx, "sweep", time.Second)
	require.True(t, ok)
	now = now.Add(2 * time.Second)
	ok, _ = l.TryLock(ctx, "sweep", time.Second)
	assert.True(t, ok)
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("PAPER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PAPER_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	prefix := "paper-ledger-test:" + uuid.NewString() + ":"
	a := NewRedis(client, prefix)
	b := NewRedis(client, prefix)
	ctx := context.Background()

	ok, err := a.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	stored, err := client.Get(ctx, prefix+"sweep").Result()
	require.NoError(t, err)
	_, err = uuid.Parse(stored)
	assert.NoError(t, err, "owner token is a uuid")
	assert.Equal(t, a.tokens["sweep"], stored)

	ok, err = b.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Error(t, b.Unlock(ctx, "sweep"), "b never held the lock")

	require.NoError(t, a.Unlock(ctx, "sweep"))
	ok, err = b.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Unlock(ctx, "sweep"))
}

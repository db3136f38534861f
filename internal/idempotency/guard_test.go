package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"paper-ledger/internal/apperr"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	OrderID string `json:"order_id"`
	Seq     int    `json:"seq"`
}

func newGuard(store Store) *Guard {
	return NewGuard(store, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDoReplaysFirstResult(t *testing.T) {
	g := newGuard(NewMemoryStore())
	ctx := context.Background()
	key := Key{UserID: "u1", Endpoint: "market", Value: "abc"}
	var calls int32
	fn := func(ctx context.Context) (result, error) {
		n := atomic.AddInt32(&calls, 1)
		return result{OrderID: "o-1", Seq: int(n)}, nil
	}

	first, replayed, err := Do(ctx, g, key, fn)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := Do(ctx, g, key, fn)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls)
}

func TestDoScopesKeysByUserAndEndpoint(t *testing.T) {
	g := newGuard(NewMemoryStore())
	ctx := context.Background()
	var calls int32
	fn := func(ctx context.Context) (int32, error) { return atomic.AddInt32(&calls, 1), nil }

	for _, k := range []Key{
		{UserID: "u1", Endpoint: "market", Value: "k"},
		{UserID: "u2", Endpoint: "market", Value: "k"},
		{UserID: "u1", Endpoint: "limit", Value: "k"},
	} {
		_, replayed, err := Do(ctx, g, k, fn)
		require.NoError(t, err)
		assert.False(t, replayed, k.String())
	}
	assert.Equal(t, int32(3), calls)
}

func TestDoForgetsFailures(t *testing.T) {
	g := newGuard(NewMemoryStore())
	ctx := context.Background()
	key := Key{UserID: "u1", Endpoint: "market", Value: "retry-me"}
	boom := errors.New("boom")

	_, _, err := Do(ctx, g, key, func(ctx context.Context) (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	got, replayed, err := Do(ctx, g, key, func(ctx context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 7, got)
}

func TestDoRejectsConcurrentDuplicate(t *testing.T) {
	g := newGuard(NewMemoryStore())
	ctx := context.Background()
	key := Key{UserID: "u1", Endpoint: "market", Value: "slow"}
	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, err := Do(ctx, g, key, func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		assert.NoError(t, err)
	}()
	<-started

	_, _, err := Do(ctx, g, key, func(ctx context.Context) (int, error) { return 2, nil })
	assert.ErrorIs(t, err, apperr.ErrConcurrencyConflict)
	assert.True(t, apperr.Retryable(err))

	close(release)
	wg.Wait()
}

func TestDoWithoutKeyAlwaysRuns(t *testing.T) {
	g := newGuard(NewMemoryStore())
	var calls int32
	for i := 0; i < 3; i++ {
		_, replayed, err := Do(context.Background(), g, Key{UserID: "u1", Endpoint: "market"}, func(ctx context.Context) (int32, error) {
			return atomic.AddInt32(&calls, 1), nil
		})
		require.NoError(t, err)
		assert.False(t, replayed)
	}
	assert.Equal(t, int32(3), calls)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_, claimed, err := s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, s.Finish(ctx, "k", []byte(`1`), time.Minute))

	e, claimed, _ := s.Begin(ctx, "k", time.Minute)
	assert.False(t, claimed)
	assert.True(t, e.Done)

	now = now.Add(2 * time.Minute)
	_, claimed, _ = s.Begin(ctx, "k", time.Minute)
	assert.True(t, claimed, "expired keys can be claimed again")

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, s.Sweep())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("PAPER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PAPER_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, "paper-ledger-test:"+uuid.NewString()+":")
	ctx := context.Background()

	_, claimed, err := s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	e, claimed, err := s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.False(t, e.Done)

	require.NoError(t, s.Finish(ctx, "k", []byte(`{"seq":1}`), time.Minute))
	e, _, err = s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, e.Done)
	assert.JSONEq(t, `{"seq":1}`, string(e.Result))

	require.NoError(t, s.Abort(ctx, "k"))
	_, claimed, err = s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
}

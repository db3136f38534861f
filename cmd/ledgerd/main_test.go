package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"paper-ledger/internal/config"
	"paper-ledger/internal/idempotency"
	"paper-ledger/internal/marketdata"
	"paper-ledger/internal/orders"
	"paper-ledger/internal/portfolio"
	"paper-ledger/internal/retry"
	"paper-ledger/internal/store/memstore"
	"paper-ledger/internal/symbols"
	"paper-ledger/internal/types"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStoreFollowsRedis(t *testing.T) {
	keys, local := idempotencyStore(nil)
	require.NotNil(t, local)
	assert.Same(t, local, keys)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	keys, local = idempotencyStore(client)
	assert.Nil(t, local)
	assert.IsType(t, &idempotency.RedisStore{}, keys)
}

func TestWiredEngineDeduplicatesSubmissions(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	rules, err := staticRules([]config.Symbol{{Symbol: "btcusdt", StepSize: "0.0001", MinQty: "0.0001"}})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "BTCUSDT", rules[0].Symbol)
	assert.True(t, rules[0].Active())

	st := memstore.New()
	quotes := marketdata.NewQuoteCache(0)
	quotes.Set("BTCUSDT", decimal.NewFromInt(50000))
	policy := retry.Policy{MaxAttempts: 5, MinBackoff: time.Microsecond, MaxBackoff: time.Millisecond}
	ledger := portfolio.NewLedger(st, quotes, decimal.NewFromInt(10000), policy, log)
	engine := orders.NewEngine(st, symbols.NewStaticSource(rules), quotes, ledger, nil, orders.Config{Retry: policy}, log)

	keys, local := idempotencyStore(nil)
	api := orders.NewIdempotentEngine(engine, idempotency.NewGuard(keys, time.Hour, log))
	req := orders.MarketOrderRequest{UserID: "u1", Symbol: "BTCUSDT", Side: types.OrderSideBuy, Quantity: decimal.RequireFromString("0.01")}

	first, err := api.SubmitMarketOrder(ctx, "retry-1", req)
	require.NoError(t, err)
	second, err := api.SubmitMarketOrder(ctx, "retry-1", req)
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, 1, local.Len())

	list, err := api.ListOrders(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStaticRulesRejectsBadNumbers(t *testing.T) {
	_, err := staticRules([]config.Symbol{{Symbol: "X", StepSize: "tiny"}})
	assert.ErrorContains(t, err, "step_size")
}

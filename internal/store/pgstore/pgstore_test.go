package pgstore

import (
	"context"
	"os"
	"testing"

	"paper-ledger/internal/db"
	"paper-ledger/internal/model"
	"paper-ledger/internal/store"
	"paper-ledger/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PAPER_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("PAPER_TEST_DB_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	s := New(pool)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestPortfolioVersioning(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	user := uuid.NewString()

	p, err := s.GetOrCreatePortfolio(ctx, user, decimal.NewFromInt(10000))
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Version)
	again, err := s.GetOrCreatePortfolio(ctx, user, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, again.CashBalance.Equal(decimal.NewFromInt(10000)))

	p.TotalPnL = decimal.NewFromInt(5)
	saved, err := s.SavePortfolio(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)
	_, err = s.SavePortfolio(ctx, p)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
}

func TestOrderLifecycleAndExecution(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	user := uuid.NewString()
	p, err := s.GetOrCreatePortfolio(ctx, user, decimal.NewFromInt(10000))
	require.NoError(t, err)

	limit := decimal.NewFromInt(45000)
	o, err := s.CreateOrder(ctx, model.Order{
		ExternalID: uuid.NewString(),
		UserID:     user,
		Symbol:     "BTCUSDT",
		Side:       types.OrderSideBuy,
		Type:       types.OrderTypeLimit,
		Status:     types.OrderStatusPending,
		Quantity:   decimal.RequireFromString("0.1"),
		LimitPrice: &limit,
	})
	require.NoError(t, err)
	assert.NotZero(t, o.ID)
	require.NotNil(t, o.LimitPrice)
	assert.True(t, o.LimitPrice.Equal(limit))

	filled := o
	filled.Status = types.OrderStatusFilled
	filled.FilledQuantity = o.Quantity
	filled.AveragePrice = limit
	p.CashBalance = decimal.NewFromInt(5500)
	exec := store.Execution{
		Order:     filled,
		Trade:     model.Trade{ID: uuid.NewString(), OrderID: o.ExternalID, UserID: user, Symbol: "BTCUSDT", Side: types.OrderSideBuy, Quantity: o.Quantity, Price: limit, TotalAmount: decimal.NewFromInt(4500)},
		Holding:   model.Holding{UserID: user, Symbol: "BTCUSDT", Quantity: o.Quantity, TotalCost: decimal.NewFromInt(4500)},
		Portfolio: p,
	}

	stale := exec
	stale.Portfolio.Version = 42
	_, err = s.CommitExecution(ctx, stale)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
	_, err = s.GetHolding(ctx, user, "BTCUSDT")
	assert.ErrorIs(t, err, store.ErrNotFound, "failed commit leaves no holding behind")

	done, err := s.CommitExecution(ctx, exec)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusFilled, done.Order.Status)
	assert.Equal(t, int64(1), done.Holding.Version)

	_, err = s.TransitionOrder(ctx, o, types.OrderStatusCancelled)
	assert.ErrorIs(t, err, store.ErrVersionConflict, "a filled order cannot be cancelled")

	trades, err := s.ListTrades(ctx, user, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
	pending, err := s.ListPendingOrders(ctx, 0)
	require.NoError(t, err)
	for _, po := range pending {
		assert.NotEqual(t, o.ExternalID, po.ExternalID)
	}
}

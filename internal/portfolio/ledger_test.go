package portfolio

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"paper-ledger/internal/apperr"
	"paper-ledger/internal/marketdata"
	"paper-ledger/internal/model"
	"paper-ledger/internal/retry"
	"paper-ledger/internal/store"
	"paper-ledger/internal/store/memstore"
	"paper-ledger/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpdateBalance(t *testing.T) {
	p := model.Portfolio{CashBalance: d("1000")}

	p, err := UpdateBalance(p, d("400"), true)
	require.NoError(t, err)
	assert.True(t, p.CashBalance.Equal(d("600")))
	assert.True(t, p.TotalInvested.Equal(d("400")))

	p, err = UpdateBalance(p, d("250"), false)
	require.NoError(t, err)
	assert.True(t, p.CashBalance.Equal(d("850")))
	assert.True(t, p.TotalInvested.Equal(d("150")))

	// Selling above cost floors invested capital at zero.
	p, err = UpdateBalance(p, d("500"), false)
	require.NoError(t, err)
	assert.True(t, p.CashBalance.Equal(d("1350")))
	assert.True(t, p.TotalInvested.IsZero())
}

func TestUpdateBalanceRefusesOverdraft(t *testing.T) {
	p := model.Portfolio{CashBalance: d("100")}
	got, err := UpdateBalance(p, d("100.00000001"), true)
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.Equal(t, p, got)

	_, err = UpdateBalance(p, d("-1"), false)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestValuate(t *testing.T) {
	p := model.Portfolio{CashBalance: d("9000"), TotalInvested: d("1000")}
	p = Valuate(p, d("1200"), d("10000"))
	assert.True(t, p.TotalMarketValue.Equal(d("1200")))
	assert.True(t, p.TotalPnL.Equal(d("200")))
	assert.True(t, p.TotalPnLPercentage.Equal(d("20")))

	empty := Valuate(model.Portfolio{CashBalance: d("10000")}, decimal.Zero, d("10000"))
	assert.True(t, empty.TotalPnL.IsZero())
	assert.True(t, empty.TotalPnLPercentage.IsZero())
}

type fixture struct {
	store  *memstore.Store
	quotes *marketdata.QuoteCache
	ledger *Ledger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := memstore.New()
	quotes := marketdata.NewQuoteCache(0)
	policy := retry.Policy{MaxAttempts: 5, MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
	return fixture{
		store:  st,
		quotes: quotes,
		ledger: NewLedger(st, quotes, d("10000"), policy, quietLog()),
	}
}

// seedHolding buys qty at cost for user by committing an execution directly.
func (f fixture) seedHolding(t *testing.T, user, symbol string, qty, cost, marketValue decimal.Decimal) {
	t.Helper()
	ctx := context.Background()
	p, err := f.ledger.GetOrCreate(ctx, user)
	require.NoError(t, err)
	p, err = UpdateBalance(p, cost, true)
	require.NoError(t, err)
	h, err := f.store.GetHolding(ctx, user, symbol)
	if err != nil {
		require.ErrorIs(t, err, store.ErrNotFound)
		h = model.Holding{UserID: user, Symbol: symbol}
	}
	h.Quantity = h.Quantity.Add(qty)
	h.TotalCost = h.TotalCost.Add(cost)
	h.MarketValue = marketValue
	_, err = f.store.CommitExecution(ctx, store.Execution{
		Order: model.Order{
			ExternalID: "seed-" + user + "-" + symbol,
			UserID:     user,
			Symbol:     symbol,
			Side:       types.OrderSideBuy,
			Type:       types.OrderTypeMarket,
			Status:     types.OrderStatusFilled,
			Quantity:   qty,
		},
		Trade:     model.Trade{ID: "trade-" + user + "-" + symbol, OrderID: "seed-" + user + "-" + symbol, UserID: user, Symbol: symbol},
		Holding:   h,
		Portfolio: p,
	})
	require.NoError(t, err)
}

func TestRecalculateMarksToMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedHolding(t, "u1", "BTCUSDT", d("0.1"), d("5000"), d("5000"))
	f.seedHolding(t, "u1", "ETHUSDT", d("1"), d("2000"), d("2000"))
	f.quotes.Set("BTCUSDT", d("60000"))
	f.quotes.Set("ETHUSDT", d("2500"))

	p, err := f.ledger.Recalculate(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.CashBalance.Equal(d("3000")))
	assert.True(t, p.TotalMarketValue.Equal(d("8500")), p.TotalMarketValue.String())
	assert.True(t, p.TotalPnL.Equal(d("1500")), p.TotalPnL.String())
	assert.True(t, p.TotalPnLPercentage.Equal(d("21.42857143")), p.TotalPnLPercentage.String())
}

func TestRecalculateFallsBackToLastMarketValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedHolding(t, "u1", "BTCUSDT", d("0.1"), d("5000"), d("5500"))
	f.seedHolding(t, "u1", "ETHUSDT", d("1"), d("2000"), d("2000"))
	f.quotes.Set("ETHUSDT", d("1800"))

	p, err := f.ledger.Recalculate(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.TotalMarketValue.Equal(d("7300")), p.TotalMarketValue.String())
}

func TestRecalculateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedHolding(t, "u1", "BTCUSDT", d("0.1"), d("5000"), d("5000"))
	f.quotes.Set("BTCUSDT", d("52000"))

	first, err := f.ledger.Recalculate(ctx, "u1")
	require.NoError(t, err)
	second, err := f.ledger.Recalculate(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	stored, err := f.store.GetPortfolio(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.Version, stored.Version, "an unchanged valuation is not rewritten")
}

func TestRecalculateCreatesMissingPortfolio(t *testing.T) {
	f := newFixture(t)
	p, err := f.ledger.Recalculate(context.Background(), "fresh")
	require.NoError(t, err)
	assert.True(t, p.CashBalance.Equal(d("10000")))
	assert.True(t, p.TotalPnL.IsZero())
}

func TestRecalculateAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedHolding(t, "u1", "BTCUSDT", d("0.1"), d("5000"), d("5000"))
	f.seedHolding(t, "u2", "BTCUSDT", d("0.2"), d("10000"), d("10000"))
	f.quotes.Set("BTCUSDT", d("40000"))

	failed, err := f.ledger.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, failed)

	u1, _ := f.store.GetPortfolio(ctx, "u1")
	u2, _ := f.store.GetPortfolio(ctx, "u2")
	assert.True(t, u1.TotalPnL.Equal(d("-1000")), u1.TotalPnL.String())
	assert.True(t, u2.TotalPnL.Equal(d("-2000")), u2.TotalPnL.String())
}

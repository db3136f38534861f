// Package portfolio keeps each user's cash balance and aggregate P&L.
//
// TotalInvested is a rough cost-basis tracker: sells subtract their proceeds
// and the figure is floored at zero instead of being reduced lot by lot. P&L
// percentages are relative to it, so they drift from a true lot-accounting
// figure once a user has sold at a profit.
package portfolio

import (
	"context"
	"fmt"
	"log/slog"

	"paper-ledger/internal/apperr"
	"paper-ledger/internal/marketdata"
	"paper-ledger/internal/metrics"
	"paper-ledger/internal/model"
	"paper-ledger/internal/pricing"
	"paper-ledger/internal/retry"
	"paper-ledger/internal/store"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// maxPriceLookups bounds concurrent oracle calls during one valuation.
const maxPriceLookups = 8

// UpdateBalance moves amount between cash and invested capital. A buy that
// would take cash below zero is refused.
func UpdateBalance(p model.Portfolio, amount decimal.Decimal, isBuy bool) (model.Portfolio, error) {
	if amount.IsNegative() {
		return p, apperr.New(apperr.KindValidation, "balance change must not be negative, got %s", amount)
	}
	if isBuy {
		if p.CashBalance.LessThan(amount) {
			return p, apperr.New(apperr.KindInsufficientFunds, "need %s, cash balance is %s", amount, p.CashBalance)
		}
		p.CashBalance = p.CashBalance.Sub(amount)
		p.TotalInvested = p.TotalInvested.Add(amount)
		return p, nil
	}
	p.CashBalance = p.CashBalance.Add(amount)
	p.TotalInvested = decimal.Max(decimal.Zero, p.TotalInvested.Sub(amount))
	return p, nil
}

// Valuate sets the aggregate figures of p from the market value of its
// holdings.
func Valuate(p model.Portfolio, marketValue, initialBalance decimal.Decimal) model.Portfolio {
	p.TotalMarketValue = pricing.Round(marketValue)
	p.TotalPnL = pricing.Round(p.TotalMarketValue.Add(p.CashBalance).Sub(initialBalance))
	p.TotalPnLPercentage = pricing.Percent(p.TotalPnL, p.TotalInvested)
	return p
}

type Ledger struct {
	store          store.Store
	oracle         marketdata.PriceOracle
	initialBalance decimal.Decimal
	retry          retry.Policy
	log            *slog.Logger
}

func NewLedger(st store.Store, oracle marketdata.PriceOracle, initialBalance decimal.Decimal, policy retry.Policy, log *slog.Logger) *Ledger {
	return &Ledger{
		store:          st,
		oracle:         oracle,
		initialBalance: initialBalance,
		retry:          policy,
		log:            log,
	}
}

// GetOrCreate returns the user's portfolio, opening it with the initial
// balance on first use.
func (l *Ledger) GetOrCreate(ctx context.Context, userID string) (model.Portfolio, error) {
	p, err := l.store.GetOrCreatePortfolio(ctx, userID, l.initialBalance)
	if err != nil {
		return model.Portfolio{}, fmt.Errorf("get or create portfolio %s: %w", userID, err)
	}
	return p, nil
}

// MarketValue sums quantity*latest price over holdings with a non-zero
// quantity. A holding without a price contributes its last known market
// value.
func (l *Ledger) MarketValue(ctx context.Context, holdings []model.Holding) (decimal.Decimal, error) {
	values := make([]decimal.Decimal, len(holdings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPriceLookups)
	for i, h := range holdings {
		if h.Quantity.IsZero() {
			continue
		}
		g.Go(func() error {
			price, ok := l.oracle.LatestPrice(gctx, h.Symbol)
			if !ok {
				l.log.Warn("no price for holding, using last market value",
					"user_id", h.UserID, "symbol", h.Symbol, "market_value", h.MarketValue)
				values[i] = h.MarketValue
				return gctx.Err()
			}
			values[i] = pricing.Notional(h.Quantity, price)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total, nil
}

// Revalue returns p valued against holdings at current prices.
func (l *Ledger) Revalue(ctx context.Context, p model.Portfolio, holdings []model.Holding) (model.Portfolio, error) {
	mv, err := l.MarketValue(ctx, holdings)
	if err != nil {
		return p, err
	}
	return Valuate(p, mv, l.initialBalance), nil
}

// Recalculate marks the user's portfolio to market. Running it twice with no
// trade in between leaves the stored portfolio unchanged; the write is
// skipped when no figure moved.
func (l *Ledger) Recalculate(ctx context.Context, userID string) (model.Portfolio, error) {
	var out model.Portfolio
	err := l.retry.Do(ctx, "recalculate", func(ctx context.Context) error {
		p, err := l.GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		holdings, err := l.store.ListHoldings(ctx, userID)
		if err != nil {
			return fmt.Errorf("list holdings %s: %w", userID, err)
		}
		next, err := l.Revalue(ctx, p, holdings)
		if err != nil {
			return err
		}
		if next.SameValuation(p) {
			out = p
			return nil
		}
		saved, err := l.store.SavePortfolio(ctx, next)
		if err != nil {
			return fmt.Errorf("save portfolio %s: %w", userID, err)
		}
		out = saved
		return nil
	})
	if err != nil {
		metrics.RecordRecalculation("error")
		return model.Portfolio{}, err
	}
	metrics.RecordRecalculation("ok")
	return out, nil
}

// RecalculateAll recalculates every known portfolio. A failure for one user is
// logged and does not stop the pass; the number of failures is returned.
func (l *Ledger) RecalculateAll(ctx context.Context) (int, error) {
	users, err := l.store.ListPortfolioUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list portfolio users: %w", err)
	}
	failed := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return failed, ctx.Err()
		}
		if _, err := l.Recalculate(ctx, userID); err != nil {
			failed++
			l.log.Error("portfolio recalculation failed", "user_id", userID, "error", err)
		}
	}
	return failed, nil
}

// Package holdings maintains per-(user, symbol) positions using weighted
// average cost. Functions here compute new holding state; persisting it is
// the caller's job.
package holdings

import (
	"context"
	"log/slog"

	"paper-ledger/internal/apperr"
	"paper-ledger/internal/marketdata"
	"paper-ledger/internal/model"
	"paper-ledger/internal/pricing"

	"github.com/shopspring/decimal"
)

// ApplyBuy adds qty to h. The commission is capitalised into the cost basis.
func ApplyBuy(h model.Holding, qty, gross, commission decimal.Decimal) (model.Holding, error) {
	if !qty.IsPositive() {
		return h, apperr.New(apperr.KindValidation, "buy quantity must be positive, got %s", qty)
	}
	h.Quantity = h.Quantity.Add(qty)
	h.TotalCost = pricing.Round(h.TotalCost.Add(gross).Add(commission))
	h.AverageCost = pricing.Div(h.TotalCost, h.Quantity)
	return h, nil
}

// ApplySell removes qty from h, reducing the cost basis in proportion to the
// quantity sold. It returns the realized P&L of this sale
// (gross - commission - cost reduction), which is also added to the
// holding's running realized total.
func ApplySell(h model.Holding, qty, gross, commission decimal.Decimal) (model.Holding, decimal.Decimal, error) {
	if !qty.IsPositive() {
		return h, decimal.Zero, apperr.New(apperr.KindValidation, "sell quantity must be positive, got %s", qty)
	}
	if h.Quantity.LessThan(qty) {
		return h, decimal.Zero, apperr.New(apperr.KindInsufficientHoldings, "cannot sell %s %s, holding %s", qty, h.Symbol, h.Quantity)
	}
	remaining := h.Quantity.Sub(qty)
	var costReduction decimal.Decimal
	if remaining.IsZero() {
		costReduction = h.TotalCost
	} else {
		costReduction = pricing.Round(h.TotalCost.Mul(qty).Div(h.Quantity))
	}
	realized := pricing.Round(gross.Sub(commission).Sub(costReduction))

	h.Quantity = remaining
	if remaining.IsZero() {
		h.TotalCost = decimal.Zero
		h.AverageCost = decimal.Zero
	} else {
		h.TotalCost = h.TotalCost.Sub(costReduction)
		h.AverageCost = pricing.Div(h.TotalCost, remaining)
	}
	h.RealizedPnL = h.RealizedPnL.Add(realized)
	return h, realized, nil
}

// MarkToMarket values h at price.
func MarkToMarket(h model.Holding, price decimal.Decimal) model.Holding {
	if h.Quantity.IsZero() {
		h.MarketValue = decimal.Zero
		h.UnrealizedPnL = decimal.Zero
		return h
	}
	h.MarketValue = pricing.Notional(h.Quantity, price)
	h.UnrealizedPnL = h.MarketValue.Sub(h.TotalCost)
	return h
}

// Ledger applies trades to holdings and revalues them from the oracle.
type Ledger struct {
	oracle marketdata.PriceOracle
	log    *slog.Logger
}

func NewLedger(oracle marketdata.PriceOracle, log *slog.Logger) *Ledger {
	return &Ledger{oracle: oracle, log: log}
}

func (l *Ledger) Buy(ctx context.Context, h model.Holding, qty, gross, commission decimal.Decimal) (model.Holding, error) {
	h, err := ApplyBuy(h, qty, gross, commission)
	if err != nil {
		return h, err
	}
	return l.Revalue(ctx, h), nil
}

func (l *Ledger) Sell(ctx context.Context, h model.Holding, qty, gross, commission decimal.Decimal) (model.Holding, decimal.Decimal, error) {
	h, realized, err := ApplySell(h, qty, gross, commission)
	if err != nil {
		return h, decimal.Zero, err
	}
	return l.Revalue(ctx, h), realized, nil
}

// Revalue marks h at the latest price. Without a price the previous market
// value and unrealized P&L are kept.
func (l *Ledger) Revalue(ctx context.Context, h model.Holding) model.Holding {
	if h.Quantity.IsZero() {
		return MarkToMarket(h, decimal.Zero)
	}
	price, ok := l.oracle.LatestPrice(ctx, h.Symbol)
	if !ok {
		l.log.Warn("no price to revalue holding, keeping last market value", "user_id", h.UserID, "symbol", h.Symbol)
		return h
	}
	return MarkToMarket(h, price)
}

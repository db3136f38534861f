package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is a user's position in one symbol. Version 0 means the row has
// not been stored yet.
type Holding struct {
	UserID        string          `json:"user_id"`
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	Version       int64           `json:"version"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Portfolio struct {
	UserID             string          `json:"user_id"`
	CashBalance        decimal.Decimal `json:"cash_balance"`
	TotalInvested      decimal.Decimal `json:"total_invested"`
	TotalMarketValue   decimal.Decimal `json:"total_market_value"`
	TotalPnL           decimal.Decimal `json:"total_pnl"`
	TotalPnLPercentage decimal.Decimal `json:"total_pnl_percentage"`
	Version            int64           `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// SameValuation reports whether p and o carry identical balances and
// valuation figures, ignoring version and timestamps.
func (p Portfolio) SameValuation(o Portfolio) bool {
	return p.CashBalance.Equal(o.CashBalance) &&
		p.TotalInvested.Equal(o.TotalInvested) &&
		p.TotalMarketValue.Equal(o.TotalMarketValue) &&
		p.TotalPnL.Equal(o.TotalPnL) &&
		p.TotalPnLPercentage.Equal(o.TotalPnLPercentage)
}

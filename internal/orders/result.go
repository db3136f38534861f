package orders

import (
	"time"

	"paper-ledger/internal/model"
	"paper-ledger/internal/types"

	"github.com/shopspring/decimal"
)

// OrderResult is what callers see of an order.
type OrderResult struct {
	OrderID        string            `json:"order_id"`
	UserID         string            `json:"user_id"`
	Symbol         string            `json:"symbol"`
	Side           types.OrderSide   `json:"side"`
	Type           types.OrderType   `json:"type"`
	Status         types.OrderStatus `json:"status"`
	Quantity       decimal.Decimal   `json:"quantity"`
	LimitPrice     *decimal.Decimal  `json:"limit_price,omitempty"`
	FilledQuantity decimal.Decimal   `json:"filled_quantity"`
	AveragePrice   decimal.Decimal   `json:"average_price"`
	TotalAmount    decimal.Decimal   `json:"total_amount"`
	Commission     decimal.Decimal   `json:"commission"`
	RealizedPnL    *decimal.Decimal  `json:"realized_pnl,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func newOrderResult(o model.Order) OrderResult {
	return OrderResult{
		OrderID:        o.ExternalID,
		UserID:         o.UserID,
		Symbol:         o.Symbol,
		Side:           o.Side,
		Type:           o.Type,
		Status:         o.Status,
		Quantity:       o.Quantity,
		LimitPrice:     o.LimitPrice,
		FilledQuantity: o.FilledQuantity,
		AveragePrice:   o.AveragePrice,
		TotalAmount:    o.TotalAmount,
		Commission:     o.Commission,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func executionResult(o model.Order, t model.Trade) OrderResult {
	r := newOrderResult(o)
	if t.Side == types.OrderSideSell {
		pnl := t.RealizedPnL
		r.RealizedPnL = &pnl
	}
	return r
}

// SweepReport summarises one pass over the pending limit orders.
type SweepReport struct {
	Examined int `json:"examined"`
	Filled   int `json:"filled"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

package model

import (
	"time"

	"paper-ledger/internal/types"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID             int64             `json:"-"`
	ExternalID     string            `json:"id"`
	UserID         string            `json:"user_id"`
	Symbol         string            `json:"symbol"`
	Side           types.OrderSide   `json:"side"`
	Type           types.OrderType   `json:"type"`
	Status         types.OrderStatus `json:"status"`
	Quantity       decimal.Decimal   `json:"quantity"`
	LimitPrice     *decimal.Decimal  `json:"limit_price"`
	FilledQuantity decimal.Decimal   `json:"filled_quantity"`
	AveragePrice   decimal.Decimal   `json:"average_price"`
	TotalAmount    decimal.Decimal   `json:"total_amount"`
	Commission     decimal.Decimal   `json:"commission"`
	Version        int64             `json:"-"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type Trade struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	Symbol      string          `json:"symbol"`
	Side        types.OrderSide `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Commission  decimal.Decimal `json:"commission"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

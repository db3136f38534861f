// Package store defines the persistence contract of the ledger. Every
// holding, portfolio and order row carries a version; writes are conditional
// on the version the caller read and fail with ErrVersionConflict when
// another writer got there first.
package store

import (
	"context"
	"errors"

	"paper-ledger/internal/model"
	"paper-ledger/internal/types"

	"github.com/shopspring/decimal"
)

var (
	ErrVersionConflict = errors.New("version conflict")
	ErrNotFound        = errors.New("not found")
)

// Execution is everything one fill changes. It is committed as a unit.
//
// Order.ID == 0 inserts the order (market orders are born filled);
// otherwise the stored order must still be PENDING at Order.Version.
// Holding.Version == 0 inserts the holding; otherwise it must match.
// Portfolio.Version must match the stored portfolio.
type Execution struct {
	Order     model.Order
	Trade     model.Trade
	Holding   model.Holding
	Portfolio model.Portfolio
}

type Store interface {
	// GetOrCreatePortfolio returns the user's portfolio, creating it with
	// the given opening balance if it does not exist yet.
	GetOrCreatePortfolio(ctx context.Context, userID string, openingBalance decimal.Decimal) (model.Portfolio, error)
	GetPortfolio(ctx context.Context, userID string) (model.Portfolio, error)
	ListPortfolioUsers(ctx context.Context) ([]string, error)
	// SavePortfolio writes p if the stored version equals p.Version and
	// returns it with the new version.
	SavePortfolio(ctx context.Context, p model.Portfolio) (model.Portfolio, error)

	GetHolding(ctx context.Context, userID, symbol string) (model.Holding, error)
	ListHoldings(ctx context.Context, userID string) ([]model.Holding, error)

	// CreateOrder inserts a resting order and assigns its internal id.
	CreateOrder(ctx context.Context, o model.Order) (model.Order, error)
	GetOrder(ctx context.Context, externalID string) (model.Order, error)
	ListOrders(ctx context.Context, userID string, limit int) ([]model.Order, error)
	// ListPendingOrders returns pending orders oldest first.
	ListPendingOrders(ctx context.Context, limit int) ([]model.Order, error)
	// TransitionOrder moves a pending order read at o.Version to status.
	TransitionOrder(ctx context.Context, o model.Order, status types.OrderStatus) (model.Order, error)

	ListTrades(ctx context.Context, userID string, limit int) ([]model.Trade, error)

	// CommitExecution applies e atomically and returns the stored rows.
	CommitExecution(ctx context.Context, e Execution) (Execution, error)
}

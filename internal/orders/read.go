package orders

import (
	"context"
	"fmt"

	"paper-ledger/internal/apperr"
	"paper-ledger/internal/model"
)

const defaultListLimit = 100

// GetOrder returns one of userID's orders.
func (e *Engine) GetOrder(ctx context.Context, userID, orderID string) (OrderResult, error) {
	o, err := e.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return OrderResult{}, err
	}
	return newOrderResult(o), nil
}

// ListOrders returns userID's orders, newest first.
func (e *Engine) ListOrders(ctx context.Context, userID string, limit int) ([]OrderResult, error) {
	if userID == "" {
		return nil, apperr.New(apperr.KindValidation, "user id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	list, err := e.store.ListOrders(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders %s: %w", userID, err)
	}
	out := make([]OrderResult, 0, len(list))
	for _, o := range list {
		out = append(out, newOrderResult(o))
	}
	return out, nil
}

func (e *Engine) ListTrades(ctx context.Context, userID string, limit int) ([]model.Trade, error) {
	if userID == "" {
		return nil, apperr.New(apperr.KindValidation, "user id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	trades, err := e.store.ListTrades(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades %s: %w", userID, err)
	}
	return trades, nil
}

// GetPortfolio returns the user's portfolio as last committed, opening it on
// first access.
func (e *Engine) GetPortfolio(ctx context.Context, userID string) (model.Portfolio, error) {
	if userID == "" {
		return model.Portfolio{}, apperr.New(apperr.KindValidation, "user id is required")
	}
	return e.portfolio.GetOrCreate(ctx, userID)
}

func (e *Engine) ListHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	if userID == "" {
		return nil, apperr.New(apperr.KindValidation, "user id is required")
	}
	hs, err := e.store.ListHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list holdings %s: %w", userID, err)
	}
	return hs, nil
}

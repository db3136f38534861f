package orders

import (
	"context"

	"paper-ledger/internal/idempotency"
)

const (
	endpointMarket = "orders.market"
	endpointLimit  = "orders.limit"
	endpointCancel = "orders.cancel"
)

// IdempotentEngine deduplicates client retries of the mutating calls. A
// repeated key from the same user on the same call returns the first result
// without executing again. An empty key passes straight through.
type IdempotentEngine struct {
	*Engine
	guard *idempotency.Guard
}

func NewIdempotentEngine(engine *Engine, guard *idempotency.Guard) *IdempotentEngine {
	return &IdempotentEngine{Engine: engine, guard: guard}
}

func (e *IdempotentEngine) SubmitMarketOrder(ctx context.Context, key string, req MarketOrderRequest) (OrderResult, error) {
	res, replayed, err := idempotency.Do(ctx, e.guard, idempotency.Key{UserID: req.UserID, Endpoint: endpointMarket, Value: key},
		func(ctx context.Context) (OrderResult, error) { return e.Engine.SubmitMarketOrder(ctx, req) })
	e.logReplay(replayed, req.UserID, endpointMarket, key)
	return res, err
}

func (e *IdempotentEngine) SubmitLimitOrder(ctx context.Context, key string, req LimitOrderRequest) (OrderResult, error) {
	res, replayed, err := idempotency.Do(ctx, e.guard, idempotency.Key{UserID: req.UserID, Endpoint: endpointLimit, Value: key},
		func(ctx context.Context) (OrderResult, error) { return e.Engine.SubmitLimitOrder(ctx, req) })
	e.logReplay(replayed, req.UserID, endpointLimit, key)
	return res, err
}

func (e *IdempotentEngine) CancelOrder(ctx context.Context, key, userID, orderID string) (OrderResult, error) {
	res, replayed, err := idempotency.Do(ctx, e.guard, idempotency.Key{UserID: userID, Endpoint: endpointCancel, Value: key},
		func(ctx context.Context) (OrderResult, error) { return e.Engine.CancelOrder(ctx, userID, orderID) })
	e.logReplay(replayed, userID, endpointCancel, key)
	return res, err
}

func (e *IdempotentEngine) logReplay(replayed bool, userID, endpoint, key string) {
	if replayed {
		e.log.Info("replayed idempotent request", "user_id", userID, "endpoint", endpoint, "key", key)
	}
}

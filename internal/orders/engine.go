// Package orders admits, executes and cancels paper orders. Orders never
// trade against each other; they fill against the reference price from the
// oracle, and each fill commits the order, its trade, the holding and the
// portfolio as one unit.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"paper-ledger/internal/apperr"
	"paper-ledger/internal/events"
	"paper-ledger/internal/holdings"
	"paper-ledger/internal/marketdata"
	"paper-ledger/internal/metrics"
	"paper-ledger/internal/model"
	"paper-ledger/internal/portfolio"
	"paper-ledger/internal/pricing"
	"paper-ledger/internal/retry"
	"paper-ledger/internal/store"
	"paper-ledger/internal/symbols"
	"paper-ledger/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Config struct {
	Commission pricing.Commission
	Slippage   pricing.Slippage
	Retry      retry.Policy
	// SweepBatch caps the pending orders examined per sweep; 0 means all.
	SweepBatch int
}

type Engine struct {
	store     store.Store
	rules     symbols.Source
	oracle    marketdata.PriceOracle
	holdings  *holdings.Ledger
	portfolio *portfolio.Ledger
	events    events.Publisher
	cfg       Config
	log       *slog.Logger
	newID     func() string
}

func NewEngine(st store.Store, rules symbols.Source, oracle marketdata.PriceOracle, ledger *portfolio.Ledger, pub events.Publisher, cfg Config, log *slog.Logger) *Engine {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Engine{
		store:     st,
		rules:     rules,
		oracle:    oracle,
		holdings:  holdings.NewLedger(oracle, log),
		portfolio: ledger,
		events:    pub,
		cfg:       cfg,
		log:       log,
		newID:     uuid.NewString,
	}
}

type MarketOrderRequest struct {
	UserID   string
	Symbol   string
	Side     types.OrderSide
	Quantity decimal.Decimal
}

type LimitOrderRequest struct {
	UserID     string
	Symbol     string
	Side       types.OrderSide
	Quantity   decimal.Decimal
	LimitPrice decimal.Decimal
}

// SubmitMarketOrder fills the order immediately at the reference price
// adjusted for slippage, or fails without touching any state.
func (e *Engine) SubmitMarketOrder(ctx context.Context, req MarketOrderRequest) (OrderResult, error) {
	res, err := e.submitMarket(ctx, req)
	e.recordOrder(types.OrderTypeMarket, req.Side, "filled", err)
	return res, err
}

func (e *Engine) submitMarket(ctx context.Context, req MarketOrderRequest) (OrderResult, error) {
	symbol, rule, err := e.admit(ctx, req.UserID, req.Symbol, req.Side, req.Quantity)
	if err != nil {
		return OrderResult{}, err
	}
	qty := req.Quantity
	ref, ok := e.oracle.LatestPrice(ctx, symbol)
	if !ok {
		return OrderResult{}, apperr.New(apperr.KindPriceUnavailable, "no price available for %s", symbol)
	}
	if err := rule.Validate(qty, ref); err != nil {
		return OrderResult{}, err
	}
	qty = rule.Snap(qty)
	price := e.cfg.Slippage.Apply(req.Side, ref)

	order := model.Order{
		ExternalID: e.newID(),
		UserID:     req.UserID,
		Symbol:     symbol,
		Side:       req.Side,
		Type:       types.OrderTypeMarket,
		Status:     types.OrderStatusPending,
		Quantity:   qty,
	}
	var done store.Execution
	err = e.cfg.Retry.Do(ctx, "market_order", func(ctx context.Context) error {
		exec, err := e.prepareExecution(ctx, order, price)
		if err != nil {
			return err
		}
		done, err = e.commit(ctx, exec)
		return err
	})
	if err != nil {
		return OrderResult{}, err
	}
	e.afterFill(done)
	return executionResult(done.Order, done.Trade), nil
}

// SubmitLimitOrder checks the order against the limit price and rests it as
// PENDING. It has no ledger effect until a sweep fills it.
func (e *Engine) SubmitLimitOrder(ctx context.Context, req LimitOrderRequest) (OrderResult, error) {
	res, err := e.submitLimit(ctx, req)
	e.recordOrder(types.OrderTypeLimit, req.Side, "accepted", err)
	return res, err
}

func (e *Engine) submitLimit(ctx context.Context, req LimitOrderRequest) (OrderResult, error) {
	if !req.LimitPrice.IsPositive() {
		return OrderResult{}, apperr.New(apperr.KindValidation, "limit price must be positive, got %s", req.LimitPrice)
	}
	symbol, rule, err := e.admit(ctx, req.UserID, req.Symbol, req.Side, req.Quantity)
	if err != nil {
		return OrderResult{}, err
	}
	qty := req.Quantity
	if err := rule.Validate(qty, req.LimitPrice); err != nil {
		return OrderResult{}, err
	}
	qty = rule.Snap(qty)
	if err := e.checkCoverage(ctx, req.UserID, symbol, req.Side, qty, req.LimitPrice); err != nil {
		return OrderResult{}, err
	}

	limit := req.LimitPrice
	order, err := e.store.CreateOrder(ctx, model.Order{
		ExternalID:     e.newID(),
		UserID:         req.UserID,
		Symbol:         symbol,
		Side:           req.Side,
		Type:           types.OrderTypeLimit,
		Status:         types.OrderStatusPending,
		Quantity:       qty,
		LimitPrice:     &limit,
		FilledQuantity: decimal.Zero,
		AveragePrice:   decimal.Zero,
	})
	if err != nil {
		return OrderResult{}, fmt.Errorf("create limit order: %w", err)
	}
	e.log.Info("limit order accepted",
		"order_id", order.ExternalID, "user_id", order.UserID, "symbol", order.Symbol,
		"side", order.Side, "quantity", order.Quantity, "limit_price", limit)
	res := newOrderResult(order)
	e.events.Publish(events.Event{Type: types.EventTypeOrderAccepted, Key: order.UserID, Data: res})
	return res, nil
}

// CancelOrder cancels a pending order of userID. Only the status changes.
// If a sweep fills the order first, the cancel fails with InvalidOrderState.
func (e *Engine) CancelOrder(ctx context.Context, userID, orderID string) (OrderResult, error) {
	var cancelled model.Order
	err := e.cfg.Retry.Do(ctx, "cancel_order", func(ctx context.Context) error {
		o, err := e.ownedOrder(ctx, userID, orderID)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return apperr.New(apperr.KindInvalidOrderState, "order %s is %s and cannot be cancelled", orderID, o.Status)
		}
		cancelled, err = e.store.TransitionOrder(ctx, o, types.OrderStatusCancelled)
		if err != nil {
			return fmt.Errorf("cancel order %s: %w", orderID, err)
		}
		return nil
	})
	if err != nil {
		return OrderResult{}, err
	}
	e.log.Info("order cancelled", "order_id", cancelled.ExternalID, "user_id", userID)
	res := newOrderResult(cancelled)
	e.events.Publish(events.Event{Type: types.EventTypeOrderCancelled, Key: userID, Data: res})
	return res, nil
}

// SweepPendingLimitOrders fills every pending limit order whose condition
// holds at the current reference price, oldest first. A BUY fills when the
// price is at or below its limit, a SELL when it is at or above. Fills
// execute at the reference price, not the limit. Failures are logged and
// the order stays pending for the next pass.
func (e *Engine) SweepPendingLimitOrders(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	var report SweepReport
	defer func() {
		metrics.ObserveSweep(time.Since(start), report.Filled, report.Skipped, report.Failed)
	}()

	pending, err := e.store.ListPendingOrders(ctx, e.cfg.SweepBatch)
	if err != nil {
		return report, fmt.Errorf("list pending orders: %w", err)
	}
	for _, o := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Examined++
		filled, err := e.fillIfCrossed(ctx, o)
		switch {
		case err != nil:
			report.Failed++
			e.log.Warn("limit order fill failed",
				"order_id", o.ExternalID, "user_id", o.UserID, "symbol", o.Symbol, "error", err)
		case filled:
			report.Filled++
		default:
			report.Skipped++
		}
	}
	if report.Examined > 0 {
		e.log.Debug("limit sweep finished",
			"examined", report.Examined, "filled", report.Filled,
			"skipped", report.Skipped, "failed", report.Failed, "duration", time.Since(start))
	}
	return report, nil
}

func (e *Engine) fillIfCrossed(ctx context.Context, o model.Order) (bool, error) {
	if o.LimitPrice == nil {
		return false, fmt.Errorf("pending order %s has no limit price", o.ExternalID)
	}
	price, ok := e.oracle.LatestPrice(ctx, o.Symbol)
	if !ok || !crossed(o.Side, price, *o.LimitPrice) {
		return false, nil
	}

	var done store.Execution
	filled := false
	err := e.cfg.Retry.Do(ctx, "limit_fill", func(ctx context.Context) error {
		cur, err := e.store.GetOrder(ctx, o.ExternalID)
		if err != nil {
			return fmt.Errorf("reload order %s: %w", o.ExternalID, err)
		}
		if cur.Status.Terminal() {
			// Cancelled or filled by someone else in the meantime.
			return nil
		}
		exec, err := e.prepareExecution(ctx, cur, price)
		if err != nil {
			return err
		}
		done, err = e.commit(ctx, exec)
		if err != nil {
			return err
		}
		filled = true
		return nil
	})
	if err != nil || !filled {
		return false, err
	}
	e.afterFill(done)
	return true, nil
}

func crossed(side types.OrderSide, price, limit decimal.Decimal) bool {
	if side == types.OrderSideBuy {
		return price.LessThanOrEqual(limit)
	}
	return price.GreaterThanOrEqual(limit)
}

// RecalculatePortfolio marks the user's portfolio to market.
func (e *Engine) RecalculatePortfolio(ctx context.Context, userID string) (model.Portfolio, error) {
	if userID == "" {
		return model.Portfolio{}, apperr.New(apperr.KindValidation, "user id is required")
	}
	return e.portfolio.Recalculate(ctx, userID)
}

// RecalculateAll revalues every portfolio and reports how many could not be
// written.
func (e *Engine) RecalculateAll(ctx context.Context) (int, error) {
	return e.portfolio.RecalculateAll(ctx)
}

// admit runs the checks shared by every submission and returns the
// normalised symbol with its rule.
func (e *Engine) admit(ctx context.Context, userID, symbol string, side types.OrderSide, qty decimal.Decimal) (string, symbols.Rule, error) {
	fail := func(err error) (string, symbols.Rule, error) {
		return "", symbols.Rule{}, err
	}
	if userID == "" {
		return fail(apperr.New(apperr.KindValidation, "user id is required"))
	}
	if !side.Valid() {
		return fail(apperr.New(apperr.KindValidation, "invalid side %q", side))
	}
	if !qty.IsPositive() {
		return fail(apperr.New(apperr.KindValidation, "quantity must be positive, got %s", qty))
	}
	if !qty.Equal(qty.Truncate(pricing.Scale)) {
		return fail(apperr.New(apperr.KindValidation, "quantity %s has more than %d decimal places", qty, pricing.Scale))
	}
	symbol = symbols.Normalize(symbol)
	if symbol == "" {
		return fail(apperr.New(apperr.KindValidation, "symbol is required"))
	}
	rule, err := e.rules.Rule(ctx, symbol)
	if errors.Is(err, symbols.ErrUnknownSymbol) {
		return fail(apperr.New(apperr.KindValidation, "unknown symbol %s", symbol))
	}
	if err != nil {
		return fail(fmt.Errorf("load rules for %s: %w", symbol, err))
	}
	if !rule.Active() {
		return fail(apperr.New(apperr.KindRuleViolation, "symbol %s is not tradable (status %s)", symbol, rule.Status))
	}
	return symbol, rule, nil
}

// checkCoverage verifies the user could pay for (BUY) or deliver (SELL) qty
// at price right now.
func (e *Engine) checkCoverage(ctx context.Context, userID, symbol string, side types.OrderSide, qty, price decimal.Decimal) error {
	if side == types.OrderSideSell {
		h, err := e.holding(ctx, userID, symbol)
		if err != nil {
			return err
		}
		if h.Quantity.LessThan(qty) {
			return apperr.New(apperr.KindInsufficientHoldings, "cannot sell %s %s, holding %s", qty, symbol, h.Quantity)
		}
		return nil
	}
	p, err := e.portfolio.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	total := pricing.Notional(qty, price)
	need := total.Add(e.cfg.Commission.On(total))
	if p.CashBalance.LessThan(need) {
		return apperr.New(apperr.KindInsufficientFunds, "need %s, cash balance is %s", need, p.CashBalance)
	}
	return nil
}

// prepareExecution reads the current holding and portfolio and computes the
// state after filling o at price. Nothing is written.
func (e *Engine) prepareExecution(ctx context.Context, o model.Order, price decimal.Decimal) (store.Execution, error) {
	total := pricing.Notional(o.Quantity, price)
	commission := e.cfg.Commission.On(total)

	p, err := e.portfolio.GetOrCreate(ctx, o.UserID)
	if err != nil {
		return store.Execution{}, err
	}
	h, err := e.holding(ctx, o.UserID, o.Symbol)
	if err != nil {
		return store.Execution{}, err
	}

	realized := decimal.Zero
	switch o.Side {
	case types.OrderSideBuy:
		if p, err = portfolio.UpdateBalance(p, total.Add(commission), true); err != nil {
			return store.Execution{}, err
		}
		if h, err = e.holdings.Buy(ctx, h, o.Quantity, total, commission); err != nil {
			return store.Execution{}, err
		}
	case types.OrderSideSell:
		if h, realized, err = e.holdings.Sell(ctx, h, o.Quantity, total, commission); err != nil {
			return store.Execution{}, err
		}
		if p, err = portfolio.UpdateBalance(p, total.Sub(commission), false); err != nil {
			return store.Execution{}, err
		}
	default:
		return store.Execution{}, apperr.New(apperr.KindValidation, "invalid side %q", o.Side)
	}

	held, err := e.store.ListHoldings(ctx, o.UserID)
	if err != nil {
		return store.Execution{}, fmt.Errorf("list holdings %s: %w", o.UserID, err)
	}
	if p, err = e.portfolio.Revalue(ctx, p, withHolding(held, h)); err != nil {
		return store.Execution{}, err
	}

	o.Status = types.OrderStatusFilled
	o.FilledQuantity = o.Quantity
	o.AveragePrice = price
	o.TotalAmount = total
	o.Commission = commission
	trade := model.Trade{
		ID:          e.newID(),
		OrderID:     o.ExternalID,
		UserID:      o.UserID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Quantity:    o.Quantity,
		Price:       price,
		TotalAmount: total,
		Commission:  commission,
		RealizedPnL: realized,
	}
	return store.Execution{Order: o, Trade: trade, Holding: h, Portfolio: p}, nil
}

func (e *Engine) commit(ctx context.Context, exec store.Execution) (store.Execution, error) {
	done, err := e.store.CommitExecution(ctx, exec)
	if err != nil {
		return store.Execution{}, fmt.Errorf("commit order %s: %w", exec.Order.ExternalID, err)
	}
	return done, nil
}

func (e *Engine) afterFill(done store.Execution) {
	metrics.RecordFill(done.Order.Symbol, string(done.Order.Side))
	e.log.Info("order filled",
		"order_id", done.Order.ExternalID, "user_id", done.Order.UserID, "type", done.Order.Type,
		"symbol", done.Order.Symbol, "side", done.Order.Side, "quantity", done.Order.Quantity,
		"price", done.Trade.Price, "commission", done.Trade.Commission, "cash_balance", done.Portfolio.CashBalance)
	e.events.Publish(events.Event{Type: types.EventTypeTrade, Key: done.Trade.UserID, Data: done.Trade})
}

func (e *Engine) recordOrder(orderType types.OrderType, side types.OrderSide, success string, err error) {
	outcome := success
	if err != nil {
		outcome = string(apperr.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	metrics.RecordOrder(string(orderType), sideLabel(side), outcome)
}

// sideLabel keeps caller-supplied garbage out of metric label values.
func sideLabel(side types.OrderSide) string {
	if !side.Valid() {
		return "invalid"
	}
	return string(side)
}

func (e *Engine) holding(ctx context.Context, userID, symbol string) (model.Holding, error) {
	h, err := e.store.GetHolding(ctx, userID, symbol)
	if errors.Is(err, store.ErrNotFound) {
		return model.Holding{UserID: userID, Symbol: symbol}, nil
	}
	if err != nil {
		return model.Holding{}, fmt.Errorf("get holding %s/%s: %w", userID, symbol, err)
	}
	return h, nil
}

func (e *Engine) ownedOrder(ctx context.Context, userID, orderID string) (model.Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Order{}, apperr.New(apperr.KindNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if o.UserID != userID {
		return model.Order{}, apperr.New(apperr.KindNotOwner, "order %s does not belong to user %s", orderID, userID)
	}
	return o, nil
}

// withHolding returns held with h in place of the stored row for its symbol.
func withHolding(held []model.Holding, h model.Holding) []model.Holding {
	out := make([]model.Holding, 0, len(held)+1)
	replaced := false
	for _, cur := range held {
		if cur.Symbol == h.Symbol {
			out = append(out, h)
			replaced = true
			continue
		}
		out = append(out, cur)
	}
	if !replaced {
		out = append(out, h)
	}
	return out
}

// Package marketdata provides the reference prices orders execute against.
// Acquiring market data is outside this service; implementations here read
// prices that something else keeps current.
package marketdata

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// PriceOracle returns the latest reference price for a symbol. ok is false
// when no usable price exists; callers must not execute in that case.
type PriceOracle interface {
	LatestPrice(ctx context.Context, symbol string) (price decimal.Decimal, ok bool)
}

// TimeoutOracle bounds every lookup of the wrapped oracle. A lookup that
// outlives the timeout is reported as unavailable.
type TimeoutOracle struct {
	inner   PriceOracle
	timeout time.Duration
	log     *slog.Logger
}

func WithTimeout(inner PriceOracle, timeout time.Duration, log *slog.Logger) *TimeoutOracle {
	return &TimeoutOracle{inner: inner, timeout: timeout, log: log}
}

type priceResult struct {
	price decimal.Decimal
	ok    bool
}

func (o *TimeoutOracle) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	if o.timeout <= 0 {
		return o.inner.LatestPrice(ctx, symbol)
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	done := make(chan priceResult, 1)
	go func() {
		p, ok := o.inner.LatestPrice(ctx, symbol)
		done <- priceResult{price: p, ok: ok}
	}()
	select {
	case r := <-done:
		if !r.ok || !r.price.IsPositive() {
			return decimal.Zero, false
		}
		return r.price, true
	case <-ctx.Done():
		o.log.Warn("price lookup timed out", "symbol", symbol, "timeout", o.timeout)
		return decimal.Zero, false
	}
}

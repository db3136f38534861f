// Package pricing holds the money rounding policy, the commission model and
// the slippage model shared by the ledgers and the order engine.
package pricing

import "github.com/shopspring/decimal"

// Scale is the number of decimal places kept for every money and price
// figure. Rounding is half-up (away from zero).
const Scale int32 = 8

var hundred = decimal.NewFromInt(100)

// Round applies the money rounding policy.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Div divides at the money scale. A zero divisor yields zero.
func Div(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.DivRound(b, Scale)
}

// Percent returns a/b*100 at the money scale, or zero when b is not positive.
func Percent(a, b decimal.Decimal) decimal.Decimal {
	if !b.IsPositive() {
		return decimal.Zero
	}
	return Round(a.Mul(hundred).Div(b))
}

// Notional is quantity*price at the money scale.
func Notional(qty, price decimal.Decimal) decimal.Decimal {
	return Round(qty.Mul(price))
}

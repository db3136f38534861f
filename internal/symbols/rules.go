// Package symbols validates order quantities and notionals against the
// per-symbol trading rules.
package symbols

import (
	"strings"

	"paper-ledger/internal/apperr"

	"github.com/shopspring/decimal"
)

// stepEpsilon is the tolerance allowed when checking that a quantity is a
// multiple of the step size.
var stepEpsilon = decimal.New(1, -8)

type Rule struct {
	Symbol      string
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
	Status      string
}

func (r Rule) Active() bool {
	return r.Status == "" || strings.EqualFold(r.Status, "active")
}

// Validate checks qty and qty*price against the rule. price is the
// reference price for market orders and the limit price for limit orders.
// The minimums apply to qty snapped to the step size.
func (r Rule) Validate(qty, price decimal.Decimal) error {
	if !r.Active() {
		return apperr.New(apperr.KindRuleViolation, "symbol %s is not tradable (status %s)", r.Symbol, r.Status)
	}
	if r.StepSize.IsPositive() && !isMultiple(qty, r.StepSize) {
		return apperr.New(apperr.KindRuleViolation, "quantity %s is not a multiple of step size %s for %s", qty, r.StepSize, r.Symbol)
	}
	qty = r.Snap(qty)
	if !qty.IsPositive() {
		return apperr.New(apperr.KindRuleViolation, "quantity is below step size %s for %s", r.StepSize, r.Symbol)
	}
	if r.MinQty.IsPositive() && qty.LessThan(r.MinQty) {
		return apperr.New(apperr.KindRuleViolation, "quantity %s is below minimum quantity %s for %s", qty, r.MinQty, r.Symbol)
	}
	notional := qty.Mul(price)
	if r.MinNotional.IsPositive() && notional.LessThan(r.MinNotional) {
		return apperr.New(apperr.KindRuleViolation, "notional %s is below minimum notional %s for %s", notional, r.MinNotional, r.Symbol)
	}
	return nil
}

// Snap rounds qty to the nearest multiple of the step size. Quantities that
// pass Validate move by at most stepEpsilon.
func (r Rule) Snap(qty decimal.Decimal) decimal.Decimal {
	if !r.StepSize.IsPositive() {
		return qty
	}
	return qty.Div(r.StepSize).Round(0).Mul(r.StepSize)
}

func isMultiple(qty, step decimal.Decimal) bool {
	rem := qty.Mod(step).Abs()
	return rem.LessThanOrEqual(stepEpsilon) || step.Sub(rem).LessThanOrEqual(stepEpsilon)
}

func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

package pricing

import (
	"fmt"

	"paper-ledger/internal/types"

	"github.com/shopspring/decimal"
)

// Slippage moves a reference price against the trader by a fixed percentage:
// buys pay more, sells receive less.
type Slippage struct {
	fraction decimal.Decimal
}

// NewSlippage takes the slippage as a percentage, e.g. 0.05 for 0.05%.
func NewSlippage(percent decimal.Decimal) (Slippage, error) {
	if percent.IsNegative() || percent.GreaterThanOrEqual(hundred) {
		return Slippage{}, fmt.Errorf("slippage percent must be in [0, 100), got %s", percent)
	}
	return Slippage{fraction: percent.Div(hundred)}, nil
}

func (s Slippage) Apply(side types.OrderSide, price decimal.Decimal) decimal.Decimal {
	if s.fraction.IsZero() {
		return price
	}
	one := decimal.NewFromInt(1)
	if side == types.OrderSideBuy {
		return price.Mul(one.Add(s.fraction)).RoundCeil(Scale)
	}
	return price.Mul(one.Sub(s.fraction)).RoundFloor(Scale)
}

package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Commission struct {
	rate decimal.Decimal
}

func NewCommission(rate decimal.Decimal) (Commission, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Commission{}, fmt.Errorf("commission rate must be in [0, 1), got %s", rate)
	}
	return Commission{rate: rate}, nil
}

func (c Commission) Rate() decimal.Decimal {
	return c.rate
}

// On returns amount*rate at the money scale.
func (c Commission) On(amount decimal.Decimal) decimal.Decimal {
	if c.rate.IsZero() {
		return decimal.Zero
	}
	return Round(amount.Mul(c.rate))
}

package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type quoteSnapshot struct {
	Price     decimal.Decimal
	UpdatedAt time.Time
}

// QuoteCache is an in-memory PriceOracle fed by Set. Quotes older than
// maxAge are treated as unavailable; a zero maxAge disables the check.
type QuoteCache struct {
	maxAge time.Duration
	now    func() time.Time

	mu   sync.RWMutex
	data map[string]quoteSnapshot
}

func NewQuoteCache(maxAge time.Duration) *QuoteCache {
	return &QuoteCache{maxAge: maxAge, now: time.Now, data: map[string]quoteSnapshot{}}
}

func (c *QuoteCache) Set(symbol string, price decimal.Decimal) {
	if symbol == "" || !price.IsPositive() {
		return
	}
	c.mu.Lock()
	c.data[symbol] = quoteSnapshot{Price: price, UpdatedAt: c.now()}
	c.mu.Unlock()
}

func (c *QuoteCache) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	q, exists := c.data[symbol]
	c.mu.RUnlock()
	if !exists {
		return decimal.Zero, false
	}
	if c.maxAge > 0 && c.now().Sub(q.UpdatedAt) > c.maxAge {
		return decimal.Zero, false
	}
	return q.Price, true
}

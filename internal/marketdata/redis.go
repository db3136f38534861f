package marketdata

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisOracle reads prices that the market-data service writes under
// "<prefix><SYMBOL>" as decimal strings.
type RedisOracle struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

func NewRedisOracle(client *redis.Client, prefix string, log *slog.Logger) *RedisOracle {
	return &RedisOracle{client: client, prefix: prefix, log: log}
}

func (o *RedisOracle) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	raw, err := o.client.Get(ctx, o.prefix+symbol).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false
	}
	if err != nil {
		o.log.Warn("redis price lookup failed", "symbol", symbol, "error", err)
		return decimal.Zero, false
	}
	p, err := decimal.NewFromString(raw)
	if err != nil || !p.IsPositive() {
		o.log.Warn("invalid price in redis", "symbol", symbol, "value", raw)
		return decimal.Zero, false
	}
	return p, true
}

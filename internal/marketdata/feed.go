package marketdata

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"paper-ledger/internal/events"
	"paper-ledger/internal/types"

	"github.com/shopspring/decimal"
)

type Quote struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Timestamp int64  `json:"ts"`
}

// RandomWalkFeed moves seeded prices by a small random step on every tick
// and writes them to a QuoteCache. It stands in for a real market-data
// source in development.
type RandomWalkFeed struct {
	cache    *QuoteCache
	bus      events.Publisher
	interval time.Duration
	maxStep  float64
	log      *slog.Logger
	rnd      *rand.Rand
	prices   map[string]decimal.Decimal
}

func NewRandomWalkFeed(cache *QuoteCache, bus events.Publisher, seeds map[string]decimal.Decimal, interval time.Duration, log *slog.Logger) *RandomWalkFeed {
	prices := make(map[string]decimal.Decimal, len(seeds))
	for s, p := range seeds {
		prices[s] = p
		cache.Set(s, p)
	}
	return &RandomWalkFeed{
		cache:    cache,
		bus:      bus,
		interval: interval,
		maxStep:  0.002,
		log:      log,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		prices:   prices,
	}
}

// Run blocks until ctx is done.
func (f *RandomWalkFeed) Run(ctx context.Context) {
	f.log.Info("starting random walk feed", "symbols", len(f.prices), "interval", f.interval)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.tick()
		}
	}
}

func (f *RandomWalkFeed) tick() {
	for symbol, p := range f.prices {
		step := (f.rnd.Float64()*2 - 1) * f.maxStep
		next := p.Mul(decimal.NewFromFloat(1 + step)).Round(2)
		if !next.IsPositive() {
			continue
		}
		f.prices[symbol] = next
		f.cache.Set(symbol, next)
		if f.bus != nil {
			f.bus.Publish(events.Event{
				Type: types.EventTypeQuote,
				Key:  symbol,
				Data: Quote{Symbol: symbol, Price: next.String(), Timestamp: time.Now().UnixMilli()},
			})
		}
	}
}

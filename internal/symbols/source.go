package symbols

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrUnknownSymbol = errors.New("unknown symbol")

type Source interface {
	Rule(ctx context.Context, symbol string) (Rule, error)
}

// StaticSource serves rules loaded from configuration.
type StaticSource struct {
	rules map[string]Rule
}

func NewStaticSource(rules []Rule) *StaticSource {
	m := make(map[string]Rule, len(rules))
	for _, r := range rules {
		r.Symbol = Normalize(r.Symbol)
		m[r.Symbol] = r
	}
	return &StaticSource{rules: m}
}

func (s *StaticSource) Rule(ctx context.Context, symbol string) (Rule, error) {
	r, ok := s.rules[Normalize(symbol)]
	if !ok {
		return Rule{}, ErrUnknownSymbol
	}
	return r, nil
}

// PgSource reads rules from the trading_pairs table.
type PgSource struct {
	pool *pgxpool.Pool
}

func NewPgSource(pool *pgxpool.Pool) *PgSource {
	return &PgSource{pool: pool}
}

func (s *PgSource) Rule(ctx context.Context, symbol string) (Rule, error) {
	var r Rule
	var step, minQty, minNotional decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		select symbol, lot_step, min_qty, min_notional, status
		from trading_pairs
		where symbol = $1
	`, Normalize(symbol)).Scan(&r.Symbol, &step, &minQty, &minNotional, &r.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrUnknownSymbol
	}
	if err != nil {
		return Rule{}, fmt.Errorf("load trading pair %s: %w", symbol, err)
	}
	r.StepSize = step
	r.MinQty = minQty
	r.MinNotional = minNotional
	return r, nil
}

// Seed inserts rules for symbols not yet present. Existing rows are left
// alone so operators can edit them in place.
func (s *PgSource) Seed(ctx context.Context, rules []Rule) error {
	for _, r := range rules {
		_, err := s.pool.Exec(ctx, `
			insert into trading_pairs (symbol, lot_step, min_qty, min_notional, status)
			values ($1, $2, $3, $4, $5)
			on conflict (symbol) do nothing
		`, Normalize(r.Symbol), r.StepSize, r.MinQty, r.MinNotional, r.Status)
		if err != nil {
			return fmt.Errorf("seed trading pair %s: %w", r.Symbol, err)
		}
	}
	return nil
}

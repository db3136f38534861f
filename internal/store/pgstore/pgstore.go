// Package pgstore is the PostgreSQL store.Store. Version checks are part of
// each UPDATE's WHERE clause; an update that matches no row lost the race.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"paper-ledger/internal/model"
	"paper-ledger/internal/store"
	"paper-ledger/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const portfolioColumns = "user_id, cash_balance, total_invested, total_market_value, total_pnl, total_pnl_percentage, version, created_at, updated_at"

func scanPortfolio(row pgx.Row) (model.Portfolio, error) {
	var p model.Portfolio
	err := row.Scan(&p.UserID, &p.CashBalance, &p.TotalInvested, &p.TotalMarketValue, &p.TotalPnL, &p.TotalPnLPercentage, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) GetOrCreatePortfolio(ctx context.Context, userID string, openingBalance decimal.Decimal) (model.Portfolio, error) {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, "insert into portfolios (user_id, cash_balance, version, created_at, updated_at) values ($1,$2,1,$3,$3) on conflict (user_id) do nothing", userID, openingBalance, now)
	if err != nil {
		return model.Portfolio{}, err
	}
	return s.GetPortfolio(ctx, userID)
}

func (s *Store) GetPortfolio(ctx context.Context, userID string) (model.Portfolio, error) {
	p, err := scanPortfolio(s.pool.QueryRow(ctx, "select "+portfolioColumns+" from portfolios where user_id = $1", userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Portfolio{}, store.ErrNotFound
	}
	return p, err
}

func (s *Store) ListPortfolioUsers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "select user_id from portfolios order by user_id")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) SavePortfolio(ctx context.Context, p model.Portfolio) (model.Portfolio, error) {
	return updatePortfolio(ctx, s.pool, p, time.Now().UTC())
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func updatePortfolio(ctx context.Context, db execer, p model.Portfolio, now time.Time) (model.Portfolio, error) {
	saved, err := scanPortfolio(db.QueryRow(ctx, "update portfolios set cash_balance = $1, total_invested = $2, total_market_value = $3, total_pnl = $4, total_pnl_percentage = $5, version = version + 1, updated_at = $6 where user_id = $7 and version = $8 returning "+portfolioColumns,
		p.CashBalance, p.TotalInvested, p.TotalMarketValue, p.TotalPnL, p.TotalPnLPercentage, now, p.UserID, p.Version))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Portfolio{}, store.ErrVersionConflict
	}
	return saved, err
}

const holdingColumns = "user_id, symbol, quantity, average_cost, total_cost, market_value, unrealized_pnl, realized_pnl, version, updated_at"

func scanHolding(row pgx.Row) (model.Holding, error) {
	var h model.Holding
	err := row.Scan(&h.UserID, &h.Symbol, &h.Quantity, &h.AverageCost, &h.TotalCost, &h.MarketValue, &h.UnrealizedPnL, &h.RealizedPnL, &h.Version, &h.UpdatedAt)
	return h, err
}

func (s *Store) GetHolding(ctx context.Context, userID, symbol string) (model.Holding, error) {
	h, err := scanHolding(s.pool.QueryRow(ctx, "select "+holdingColumns+" from holdings where user_id = $1 and symbol = $2", userID, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Holding{}, store.ErrNotFound
	}
	return h, err
}

func (s *Store) ListHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	rows, err := s.pool.Query(ctx, "select "+holdingColumns+" from holdings where user_id = $1 order by symbol", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

const orderColumns = "id, external_id, user_id, symbol, side, type, status, quantity, limit_price, filled_quantity, average_price, total_amount, commission, version, created_at, updated_at"

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var side, typ, status string
	var limit *decimal.Decimal
	err := row.Scan(&o.ID, &o.ExternalID, &o.UserID, &o.Symbol, &side, &typ, &status, &o.Quantity, &limit, &o.FilledQuantity, &o.AveragePrice, &o.TotalAmount, &o.Commission, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.Side = types.OrderSide(side)
	o.Type = types.OrderType(typ)
	o.Status = types.OrderStatus(status)
	o.LimitPrice = limit
	return o, nil
}

func (s *Store) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	return insertOrder(ctx, s.pool, o, time.Now().UTC())
}

func insertOrder(ctx context.Context, db execer, o model.Order, now time.Time) (model.Order, error) {
	return scanOrder(db.QueryRow(ctx, "insert into orders (external_id, user_id, symbol, side, type, status, quantity, limit_price, filled_quantity, average_price, total_amount, commission, version, created_at, updated_at) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,1,$13,$13) returning "+orderColumns,
		o.ExternalID, o.UserID, o.Symbol, string(o.Side), string(o.Type), string(o.Status), o.Quantity, o.LimitPrice, o.FilledQuantity, o.AveragePrice, o.TotalAmount, o.Commission, now))
}

func (s *Store) GetOrder(ctx context.Context, externalID string) (model.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, "select "+orderColumns+" from orders where external_id = $1", externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, store.ErrNotFound
	}
	return o, err
}

func (s *Store) queryOrders(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// limitArg maps "no limit" to SQL null, which LIMIT treats as unbounded.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func (s *Store) ListOrders(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	return s.queryOrders(ctx, "select "+orderColumns+" from orders where user_id = $1 order by id desc limit $2", userID, limitArg(limit))
}

func (s *Store) ListPendingOrders(ctx context.Context, limit int) ([]model.Order, error) {
	return s.queryOrders(ctx, "select "+orderColumns+" from orders where status = 'PENDING' order by id asc limit $1", limitArg(limit))
}

func (s *Store) TransitionOrder(ctx context.Context, o model.Order, status types.OrderStatus) (model.Order, error) {
	updated, err := scanOrder(s.pool.QueryRow(ctx, "update orders set status = $1, version = version + 1, updated_at = $2 where external_id = $3 and version = $4 and status = 'PENDING' returning "+orderColumns,
		string(status), time.Now().UTC(), o.ExternalID, o.Version))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetOrder(ctx, o.ExternalID); errors.Is(getErr, store.ErrNotFound) {
			return model.Order{}, store.ErrNotFound
		}
		return model.Order{}, store.ErrVersionConflict
	}
	return updated, err
}

const tradeColumns = "id, order_id, user_id, symbol, side, quantity, price, total_amount, commission, realized_pnl, executed_at"

func (s *Store) ListTrades(ctx context.Context, userID string, limit int) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, "select "+tradeColumns+" from trades where user_id = $1 order by executed_at desc, id desc limit $2", userID, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.OrderID, &t.UserID, &t.Symbol, &side, &t.Quantity, &t.Price, &t.TotalAmount, &t.Commission, &t.RealizedPnL, &t.ExecutedAt); err != nil {
			return nil, err
		}
		t.Side = types.OrderSide(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

// CommitExecution writes the order, holding, portfolio and trade in one
// transaction. Any version mismatch rolls the whole unit back.
func (s *Store) CommitExecution(ctx context.Context, e store.Execution) (store.Execution, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.Execution{}, err
	}
	defer tx.Rollback(ctx)
	now := time.Now().UTC()

	if e.Order.ID == 0 {
		e.Order, err = insertOrder(ctx, tx, e.Order, now)
	} else {
		e.Order, err = scanOrder(tx.QueryRow(ctx, "update orders set status = $1, filled_quantity = $2, average_price = $3, total_amount = $4, commission = $5, version = version + 1, updated_at = $6 where external_id = $7 and version = $8 and status = 'PENDING' returning "+orderColumns,
			string(e.Order.Status), e.Order.FilledQuantity, e.Order.AveragePrice, e.Order.TotalAmount, e.Order.Commission, now, e.Order.ExternalID, e.Order.Version))
	}
	if err != nil {
		return store.Execution{}, conflictOr(err)
	}

	h := e.Holding
	if h.Version == 0 {
		e.Holding, err = scanHolding(tx.QueryRow(ctx, "insert into holdings (user_id, symbol, quantity, average_cost, total_cost, market_value, unrealized_pnl, realized_pnl, version, updated_at) values ($1,$2,$3,$4,$5,$6,$7,$8,1,$9) on conflict (user_id, symbol) do nothing returning "+holdingColumns,
			h.UserID, h.Symbol, h.Quantity, h.AverageCost, h.TotalCost, h.MarketValue, h.UnrealizedPnL, h.RealizedPnL, now))
	} else {
		e.Holding, err = scanHolding(tx.QueryRow(ctx, "update holdings set quantity = $1, average_cost = $2, total_cost = $3, market_value = $4, unrealized_pnl = $5, realized_pnl = $6, version = version + 1, updated_at = $7 where user_id = $8 and symbol = $9 and version = $10 returning "+holdingColumns,
			h.Quantity, h.AverageCost, h.TotalCost, h.MarketValue, h.UnrealizedPnL, h.RealizedPnL, now, h.UserID, h.Symbol, h.Version))
	}
	if err != nil {
		return store.Execution{}, conflictOr(err)
	}

	if e.Portfolio, err = updatePortfolio(ctx, tx, e.Portfolio, now); err != nil {
		return store.Execution{}, err
	}

	t := e.Trade
	t.ExecutedAt = now
	_, err = tx.Exec(ctx, "insert into trades ("+tradeColumns+") values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)",
		t.ID, t.OrderID, t.UserID, t.Symbol, string(t.Side), t.Quantity, t.Price, t.TotalAmount, t.Commission, t.RealizedPnL, t.ExecutedAt)
	if err != nil {
		return store.Execution{}, conflictOr(err)
	}
	e.Trade = t

	if err := tx.Commit(ctx); err != nil {
		return store.Execution{}, err
	}
	return e, nil
}

// conflictOr maps "no row matched" and unique violations to
// store.ErrVersionConflict.
func conflictOr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrVersionConflict
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrVersionConflict
	}
	return err
}

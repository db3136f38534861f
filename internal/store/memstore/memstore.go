// Package memstore is an in-memory store.Store. Reads return copies; every
// write re-checks the versions the caller read under a single mutex, so
// lost updates surface as store.ErrVersionConflict exactly as they would
// against the database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"paper-ledger/internal/model"
	"paper-ledger/internal/store"
	"paper-ledger/internal/types"

	"github.com/shopspring/decimal"
)

type holdingKey struct {
	userID string
	symbol string
}

type Store struct {
	now func() time.Time

	mu          sync.Mutex
	portfolios  map[string]model.Portfolio
	holdings    map[holdingKey]model.Holding
	orders      map[string]model.Order
	orderSeq    int64
	trades      map[string][]model.Trade
	tradeOrders map[string]struct{}
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:         func() time.Time { return time.Now().UTC() },
		portfolios:  make(map[string]model.Portfolio),
		holdings:    make(map[holdingKey]model.Holding),
		orders:      make(map[string]model.Order),
		trades:      make(map[string][]model.Trade),
		tradeOrders: make(map[string]struct{}),
	}
}

func (s *Store) GetOrCreatePortfolio(ctx context.Context, userID string, openingBalance decimal.Decimal) (model.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.portfolios[userID]; ok {
		return p, nil
	}
	now := s.now()
	p := model.Portfolio{
		UserID:      userID,
		CashBalance: openingBalance,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.portfolios[userID] = p
	return p, nil
}

func (s *Store) GetPortfolio(ctx context.Context, userID string) (model.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[userID]
	if !ok {
		return model.Portfolio{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListPortfolioUsers(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.portfolios))
	for id := range s.portfolios {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) SavePortfolio(ctx context.Context, p model.Portfolio) (model.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.portfolios[p.UserID]
	if !ok {
		return model.Portfolio{}, store.ErrNotFound
	}
	if cur.Version != p.Version {
		return model.Portfolio{}, store.ErrVersionConflict
	}
	p.Version++
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = s.now()
	s.portfolios[p.UserID] = p
	return p, nil
}

func (s *Store) GetHolding(ctx context.Context, userID, symbol string) (model.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holdings[holdingKey{userID, symbol}]
	if !ok {
		return model.Holding{}, store.ErrNotFound
	}
	return h, nil
}

func (s *Store) ListHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Holding
	for k, h := range s.holdings {
		if k.userID == userID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *Store) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertOrder(o), nil
}

func (s *Store) insertOrder(o model.Order) model.Order {
	s.orderSeq++
	now := s.now()
	o.ID = s.orderSeq
	o.Version = 1
	o.CreatedAt = now
	o.UpdatedAt = now
	s.orders[o.ExternalID] = o
	return o
}

func (s *Store) GetOrder(ctx context.Context, externalID string) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[externalID]
	if !ok {
		return model.Order{}, store.ErrNotFound
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return truncate(out, limit), nil
}

func (s *Store) ListPendingOrders(ctx context.Context, limit int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.orders {
		if o.Status == types.OrderStatusPending {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return truncate(out, limit), nil
}

func (s *Store) TransitionOrder(ctx context.Context, o model.Order, status types.OrderStatus) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ExternalID]
	if !ok {
		return model.Order{}, store.ErrNotFound
	}
	if cur.Version != o.Version || cur.Status != types.OrderStatusPending {
		return model.Order{}, store.ErrVersionConflict
	}
	cur.Status = status
	cur.Version++
	cur.UpdatedAt = s.now()
	s.orders[cur.ExternalID] = cur
	return cur, nil
}

func (s *Store) ListTrades(ctx context.Context, userID string, limit int) ([]model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.trades[userID]
	out := make([]model.Trade, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return truncate(out, limit), nil
}

func (s *Store) CommitExecution(ctx context.Context, e store.Execution) (store.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check every precondition before touching anything.
	if e.Order.ID != 0 {
		cur, ok := s.orders[e.Order.ExternalID]
		if !ok {
			return store.Execution{}, store.ErrNotFound
		}
		if cur.Version != e.Order.Version || cur.Status != types.OrderStatusPending {
			return store.Execution{}, store.ErrVersionConflict
		}
	}
	hk := holdingKey{e.Holding.UserID, e.Holding.Symbol}
	curHolding, exists := s.holdings[hk]
	if e.Holding.Version == 0 && exists {
		return store.Execution{}, store.ErrVersionConflict
	}
	if e.Holding.Version != 0 && (!exists || curHolding.Version != e.Holding.Version) {
		return store.Execution{}, store.ErrVersionConflict
	}
	curPortfolio, ok := s.portfolios[e.Portfolio.UserID]
	if !ok {
		return store.Execution{}, store.ErrNotFound
	}
	if curPortfolio.Version != e.Portfolio.Version {
		return store.Execution{}, store.ErrVersionConflict
	}
	if _, dup := s.tradeOrders[e.Trade.OrderID]; dup {
		return store.Execution{}, store.ErrVersionConflict
	}

	now := s.now()
	if e.Order.ID == 0 {
		e.Order = s.insertOrder(e.Order)
	} else {
		e.Order.Version++
		e.Order.CreatedAt = s.orders[e.Order.ExternalID].CreatedAt
		e.Order.UpdatedAt = now
		s.orders[e.Order.ExternalID] = e.Order
	}

	e.Holding.Version++
	e.Holding.UpdatedAt = now
	s.holdings[hk] = e.Holding

	e.Portfolio.Version++
	e.Portfolio.CreatedAt = curPortfolio.CreatedAt
	e.Portfolio.UpdatedAt = now
	s.portfolios[e.Portfolio.UserID] = e.Portfolio

	e.Trade.ExecutedAt = now
	s.trades[e.Trade.UserID] = append(s.trades[e.Trade.UserID], e.Trade)
	s.tradeOrders[e.Trade.OrderID] = struct{}{}
	return e, nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

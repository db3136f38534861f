// Package idempotency deduplicates retried requests. A request carries a
// key scoped to (user, endpoint); the first request with a key runs, and a
// repeat within the validity window gets the first result back without
// running again.
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"paper-ledger/internal/apperr"
)

type Key struct {
	UserID   string
	Endpoint string
	Value    string
}

func (k Key) String() string {
	return k.UserID + ":" + k.Endpoint + ":" + k.Value
}

type Guard struct {
	store Store
	ttl   time.Duration
	log   *slog.Logger
}

func NewGuard(store Store, ttl time.Duration, log *slog.Logger) *Guard {
	return &Guard{store: store, ttl: ttl, log: log}
}

// Do runs fn at most once per key. replayed is true when the result comes
// from an earlier request. A key whose first request is still running
// yields a retryable concurrency-conflict error. Failed requests release
// their key, so only successes are remembered. An empty key value disables
// deduplication.
func Do[T any](ctx context.Context, g *Guard, key Key, fn func(ctx context.Context) (T, error)) (result T, replayed bool, err error) {
	if key.Value == "" {
		result, err = fn(ctx)
		return result, false, err
	}
	k := key.String()
	existing, claimed, err := g.store.Begin(ctx, k, g.ttl)
	if err != nil {
		return result, false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if !claimed {
		if !existing.Done {
			return result, false, apperr.New(apperr.KindConcurrencyConflict, "request with idempotency key %q is still in progress", key.Value)
		}
		if err := json.Unmarshal(existing.Result, &result); err != nil {
			return result, false, fmt.Errorf("decode stored result for %q: %w", key.Value, err)
		}
		return result, true, nil
	}

	result, err = fn(ctx)
	if err != nil {
		if abortErr := g.store.Abort(context.WithoutCancel(ctx), k); abortErr != nil {
			g.log.Warn("release idempotency key failed", "key", k, "error", abortErr)
		}
		return result, false, err
	}
	raw, mErr := json.Marshal(result)
	if mErr == nil {
		mErr = g.store.Finish(context.WithoutCancel(ctx), k, raw, g.ttl)
	}
	if mErr != nil {
		// The request took effect; only the replay record is missing.
		g.log.Error("store idempotent result failed", "key", k, "error", mErr)
	}
	return result, false, nil
}

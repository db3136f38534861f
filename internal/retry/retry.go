// Package retry re-runs optimistic read-compute-write operations that lost a
// version race.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paper-ledger/internal/apperr"
	"paper-ledger/internal/metrics"
	"paper-ledger/internal/store"

	"github.com/jpillora/backoff"
)

type Policy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, MinBackoff: 5 * time.Millisecond, MaxBackoff: 200 * time.Millisecond}
}

// Do calls fn until it returns something other than store.ErrVersionConflict,
// sleeping a jittered exponential backoff between attempts. fn must redo its
// reads on every call. When the budget runs out Do returns an
// apperr.KindConcurrencyConflict error.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	b := &backoff.Backoff{Min: p.MinBackoff, Max: p.MaxBackoff, Factor: 2, Jitter: true}
	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		metrics.RecordVersionConflict(op)
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	metrics.RecordRetriesExhausted(op)
	return apperr.Wrap(apperr.KindConcurrencyConflict, err, fmt.Sprintf("%s: gave up after %d attempts", op, attempts))
}


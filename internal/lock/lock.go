// Package lock provides the single-flight locks that keep periodic jobs from
// overlapping, within one process or across instances.
package lock

import (
	"context"
	"sync"
	"time"
)

type Locker interface {
	// TryLock takes key for ttl without waiting. ok is false when someone
	// else holds it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (ok bool, err error)
	// Unlock releases a key taken by this locker.
	Unlock(ctx context.Context, key string) error
}

// Local is an in-process Locker. A held key expires after its ttl so a
// crashed job cannot wedge the scheduler.
type Local struct {
	now func() time.Time

	mu   sync.Mutex
	held map[string]time.Time
}

func NewLocal() *Local {
	return &Local{now: time.Now, held: make(map[string]time.Time)}
}

func (l *Local) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

func (l *Local) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
	return nil
}

package symbols

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type cachedRule struct {
	rule      Rule
	expiresAt time.Time
}

// Cache is a read-through cache in front of a Source. Concurrent misses for
// the same symbol share one load. Unknown symbols are not cached.
type Cache struct {
	src   Source
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu    sync.RWMutex
	items map[string]cachedRule
}

func NewCache(src Source, ttl time.Duration) *Cache {
	return &Cache{src: src, ttl: ttl, now: time.Now, items: make(map[string]cachedRule)}
}

func (c *Cache) Rule(ctx context.Context, symbol string) (Rule, error) {
	key := Normalize(symbol)
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if ok && (c.ttl <= 0 || c.now().Before(item.expiresAt)) {
		return item.rule, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		r, err := c.src.Rule(ctx, key)
		if err != nil {
			return Rule{}, err
		}
		c.mu.Lock()
		c.items[key] = cachedRule{rule: r, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return Rule{}, err
	}
	return v.(Rule), nil
}

func (c *Cache) Invalidate(symbol string) {
	c.mu.Lock()
	delete(c.items, Normalize(symbol))
	c.mu.Unlock()
}

func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.items = make(map[string]cachedRule)
	c.mu.Unlock()
}

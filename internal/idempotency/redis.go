package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares keys between instances. Begin is a SET NX, so exactly
// one instance claims a key.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

var pendingEntry = []byte(`{"done":false}`)

func (s *RedisStore) Begin(ctx context.Context, key string, ttl time.Duration) (Entry, bool, error) {
	k := s.prefix + key
	ok, err := s.client.SetNX(ctx, k, pendingEntry, ttl).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis setnx %s: %w", k, err)
	}
	if ok {
		return Entry{}, true, nil
	}
	raw, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; claim again.
		return s.Begin(ctx, key, ttl)
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get %s: %w", k, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode idempotency entry %s: %w", k, err)
	}
	return e, false, nil
}

func (s *RedisStore) Finish(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	raw, err := json.Marshal(Entry{Done: true, Result: result})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.prefix+key, err)
	}
	return nil
}

func (s *RedisStore) Abort(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", s.prefix+key, err)
	}
	return nil
}

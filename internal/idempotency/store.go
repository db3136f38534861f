package idempotency

import (
	"context"
	"sync"
	"time"
)

// Entry is what a key holds: a claim while the request runs, then the
// encoded result.
type Entry struct {
	Done   bool   `json:"done"`
	Result []byte `json:"result,omitempty"`
}

type Store interface {
	// Begin claims key for ttl. When the key is already held, Begin returns
	// the existing entry and claimed=false.
	Begin(ctx context.Context, key string, ttl time.Duration) (existing Entry, claimed bool, err error)
	// Finish stores the result under a claimed key.
	Finish(ctx context.Context, key string, result []byte, ttl time.Duration) error
	// Abort drops a claim so the request can be retried.
	Abort(ctx context.Context, key string) error
}

type memoryEntry struct {
	Entry
	expiresAt time.Time
}

// MemoryStore keeps keys in process memory. Expired keys are dropped lazily.
type MemoryStore struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Begin(ctx context.Context, key string, ttl time.Duration) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		return e.Entry, false, nil
	}
	s.entries[key] = memoryEntry{expiresAt: now.Add(ttl)}
	return Entry{}, true, nil
}

func (s *MemoryStore) Finish(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{
		Entry:     Entry{Done: true, Result: result},
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Abort(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len reports how many keys are held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired keys and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

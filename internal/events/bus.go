// Package events fans committed ledger events out to subscribers.
package events

import (
	"sync"

	"paper-ledger/internal/types"
)

type Event struct {
	Type types.EventType `json:"type"`
	Key  string          `json:"key"`
	Data any             `json:"data"`
}

type Publisher interface {
	Publish(evt Event)
}

// Bus is an in-process publisher. Slow subscribers drop events rather than
// block the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 100)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}

// Multi publishes to every non-nil publisher in order.
type Multi []Publisher

func (m Multi) Publish(evt Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(evt)
		}
	}
}

type Nop struct{}

func (Nop) Publish(Event) {}

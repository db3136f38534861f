package events

import (
	"testing"

	"paper-ledger/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	b := NewBus()
	a := b.Subscribe()
	c := b.Subscribe()

	b.Publish(Event{Type: types.EventTypeTrade, Key: "u1"})

	for _, ch := range []chan Event{a, c} {
		select {
		case evt := <-ch:
			assert.Equal(t, types.EventTypeTrade, evt.Type)
			assert.Equal(t, "u1", evt.Key)
		default:
			t.Fatal("expected an event")
		}
	}
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	for i := 0; i < 150; i++ {
		b.Publish(Event{Type: types.EventTypeQuote})
	}
	assert.Len(t, ch, 100)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	b.Unsubscribe(ch)
	_, open := <-ch
	require.False(t, open)

	b.Unsubscribe(ch)
	b.Publish(Event{Type: types.EventTypeQuote})
}

type recorder struct{ got []Event }

func (r *recorder) Publish(evt Event) { r.got = append(r.got, evt) }

func TestMultiSkipsNil(t *testing.T) {
	r := &recorder{}
	m := Multi{nil, r, Nop{}}
	m.Publish(Event{Type: types.EventTypeOrderCancelled})
	require.Len(t, r.got, 1)
	assert.Equal(t, types.EventTypeOrderCancelled, r.got[0].Type)
}

package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitSyncDeliversToTypeAndWildcard(t *testing.T) {
	bus := NewEventBus()

	var specific, wildcard []EventType
	bus.Subscribe(EventConnect, SubscriberFunc(func(e Event) { specific = append(specific, e.Type) }))
	bus.Subscribe(All, SubscriberFunc(func(e Event) { wildcard = append(wildcard, e.Type) }))

	bus.EmitSync(Event{Type: EventConnect, Network: "a"})
	bus.EmitSync(Event{Type: EventQuit, Network: "a"})

	assert.Equal(t, []EventType{EventConnect}, specific)
	assert.Equal(t, []EventType{EventConnect, EventQuit}, wildcard)
}

func TestEmitStampsTimestamp(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventError, SubscriberFunc(func(e Event) { got <- e }))

	bus.Emit(Event{Type: EventError})

	select {
	case e := <-got:
		assert.False(t, e.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()

	calls := 0
	sub := bus.Subscribe(EventMessage, SubscriberFunc(func(Event) { calls++ }))
	other := 0
	bus.Subscribe(EventMessage, SubscriberFunc(func(Event) { other++ }))

	bus.EmitSync(Event{Type: EventMessage})
	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)
	bus.EmitSync(Event{Type: EventMessage})

	require.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
}

func TestNilBusIsSilent(t *testing.T) {
	var bus *EventBus
	assert.NotPanics(t, func() {
		bus.Emit(Event{Type: EventConnect})
		bus.EmitSync(Event{Type: EventConnect})
	})
}

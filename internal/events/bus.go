package events

import (
	"sync"
	"time"
)

// EventSource represents the source of an event
type EventSource string

const (
	EventSourceIRC    EventSource = "irc"
	EventSourceRelay  EventSource = "relay"
	EventSourceSystem EventSource = "system"
)

// EventType identifies what happened. Subscribers register per type.
type EventType string

// Lifecycle event types
const (
	EventConnect    EventType = "connection.connect"
	EventRegistered EventType = "connection.registered"
	EventDisconnect EventType = "connection.disconnect"
	EventQuit       EventType = "connection.quit"
)

// Routing event types
const (
	EventMessage      EventType = "message"
	EventBindCreated  EventType = "bind.created"
	EventBindRemoved  EventType = "bind.removed"
	EventError        EventType = "error"
	EventNetworkState EventType = "network.state"
)

// All subscribes to every event type
const All EventType = "*"

// Event represents a generic event. Payload carries the typed value for the
// event (a relay message, a bind) and is nil for lifecycle events.
type Event struct {
	Type      EventType
	Network   string
	Server    string
	Payload   any
	Err       error
	Context   string
	Timestamp time.Time
	Source    EventSource
}

// Subscriber is an interface for event subscribers
type Subscriber interface {
	OnEvent(event Event)
}

// SubscriberFunc adapts a plain function to Subscriber
type SubscriberFunc func(event Event)

// OnEvent calls f(event)
func (f SubscriberFunc) OnEvent(event Event) { f(event) }

// EventBus manages event routing
type EventBus struct {
	subscribers map[EventType][]*subscription
	mu          sync.RWMutex
}

type subscription struct {
	sub Subscriber
}

// Subscription is returned by Subscribe and removes the registration when
// passed to Unsubscribe.
type Subscription struct {
	eventType EventType
	s         *subscription
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]*subscription),
	}
}

// Subscribe subscribes a subscriber to a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	s := &subscription{sub: subscriber}
	eb.subscribers[eventType] = append(eb.subscribers[eventType], s)
	return Subscription{eventType: eventType, s: s}
}

// Unsubscribe removes a subscription
func (eb *EventBus) Unsubscribe(sub Subscription) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[sub.eventType]
	for i, s := range subs {
		if s == sub.s {
			eb.subscribers[sub.eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}

func (eb *EventBus) targets(eventType EventType) []Subscriber {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	specific := eb.subscribers[eventType]
	wildcard := eb.subscribers[All]
	out := make([]Subscriber, 0, len(specific)+len(wildcard))
	for _, s := range specific {
		out = append(out, s.sub)
	}
	for _, s := range wildcard {
		out = append(out, s.sub)
	}
	return out
}

func stamp(event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return event
}

// Emit emits an event to all subscribers, each on its own goroutine
func (eb *EventBus) Emit(event Event) {
	if eb == nil {
		return
	}
	event = stamp(event)
	for _, sub := range eb.targets(event.Type) {
		go sub.OnEvent(event)
	}
}

// EmitSync emits an event synchronously (for testing or when order matters)
func (eb *EventBus) EmitSync(event Event) {
	if eb == nil {
		return
	}
	event = stamp(event)
	for _, sub := range eb.targets(event.Type) {
		sub.OnEvent(event)
	}
}

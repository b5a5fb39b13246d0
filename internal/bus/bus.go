// Package bus carries stage and animation notifications to interested
// components.
package bus

import (
	"sync"
	"time"
)

// EventType identifies different event types
type EventType string

const (
	// Animation events
	EventAnimationStarted    EventType = "animation.started"
	EventAnimationFinished   EventType = "animation.finished"
	EventAnimationIdle       EventType = "animation.idle_changed"
	EventAnimationUnresolved EventType = "animation.unresolved"

	// Stage events
	EventStageLoaded   EventType = "stage.loaded"
	EventStageDisposed EventType = "stage.disposed"

	// Ingress events
	EventIngressConnected    EventType = "ingress.connected"
	EventIngressDisconnected EventType = "ingress.disconnected"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Time time.Time
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

// SubscribeAll adds a handler that receives every event.
func (b *EventBus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.all = append(b.all, handler)
}

func (b *EventBus) snapshot(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := make([]Handler, 0, len(b.handlers[t])+len(b.all))
	handlers = append(handlers, b.handlers[t]...)
	return append(handlers, b.all...)
}

func stamp(event Event) Event {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	return event
}

// Publish sends an event to all subscribed handlers without waiting.
func (b *EventBus) Publish(event Event) {
	event = stamp(event)
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	event = stamp(event)

	var wg sync.WaitGroup
	for _, handler := range b.snapshot(event.Type) {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
	b.all = nil
}

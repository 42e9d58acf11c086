// Package bus provides an internal event bus for lifecycle events.
package bus

import (
	"sync"

	"github.com/sourcegraph/conc"
)

// EventType identifies different event types
type EventType string

const (
	// Asset events
	EventAssetsChanged  EventType = "assets.changed"
	EventAssetsReloaded EventType = "assets.reloaded"
	EventAssetsFailed   EventType = "assets.failed"

	// Rig producer events
	EventRigConnected    EventType = "rig.connected"
	EventRigDisconnected EventType = "rig.disconnected"

	// Motion events
	EventMotionRequested EventType = "motion.requested"

	EventConfigChanged EventType = "config.changed"
)

// AllEvents lists every event type, for subscribers that relay everything.
var AllEvents = []EventType{
	EventAssetsChanged,
	EventAssetsReloaded,
	EventAssetsFailed,
	EventRigConnected,
	EventRigDisconnected,
	EventMotionRequested,
	EventConfigChanged,
}

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

func (b *EventBus) snapshot(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[t]))
	copy(handlers, b.handlers[t])
	return handlers
}

// Publish sends an event to all subscribed handlers without waiting.
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete. A
// panicking handler is re-raised here after the others finish.
func (b *EventBus) PublishSync(event Event) {
	var wg conc.WaitGroup
	for _, handler := range b.snapshot(event.Type) {
		wg.Go(func() { handler(event) })
	}
	wg.Wait()
}

func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}

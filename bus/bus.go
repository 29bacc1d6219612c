// Package bus provides an in-process publish/subscribe event bus.
//
// Fan-out is synchronous: Publish invokes every handler subscribed to the
// event's type before returning, so each subscriber observes events in
// publish order. Handlers that need to do slow work should hand off to
// their own goroutine.
package bus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType names a class of events carried by the bus.
type EventType string

// Event is the unit of communication on the bus.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// Handler consumes events.
type Handler func(Event)

// Bus is the publish/subscribe contract shared by producers and consumers.
type Bus interface {
	Publish(event Event)
	Subscribe(eventType EventType, handler Handler) string
	Unsubscribe(subscriptionID string)
}

// subscriptionCounter generates unique subscription IDs; an atomic counter
// avoids collisions that time.Now().UnixNano() would allow under concurrency.
var subscriptionCounter int64

// InProcBus is a process-local Bus implementation.
type InProcBus struct {
	mu       sync.RWMutex
	handlers map[EventType]map[string]Handler
	logger   *zap.Logger
}

// New creates an in-process event bus.
func New(logger *zap.Logger) *InProcBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InProcBus{
		handlers: make(map[EventType]map[string]Handler),
		logger:   logger.With(zap.String("component", "event_bus")),
	}
}

// Publish delivers the event to every subscriber of its type. The handler
// list is snapshotted before dispatch, so handlers may subscribe or
// unsubscribe (including themselves) without deadlocking, and publishing
// from inside a handler is safe.
func (b *InProcBus) Publish(event Event) {
	b.mu.RLock()
	src := b.handlers[event.Type()]
	handlers := make([]Handler, 0, len(src))
	for _, h := range src {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.dispatch(handler, event)
	}
}

// dispatch invokes a single handler, isolating the bus from handler panics.
func (b *InProcBus) dispatch(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event_type", string(event.Type())),
				zap.Any("recover", r),
			)
		}
	}()
	handler(event)
}

// Subscribe registers a handler for an event type and returns a
// subscription ID for later removal.
func (b *InProcBus) Subscribe(eventType EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}

	id := fmt.Sprintf("%s-%d", eventType, atomic.AddInt64(&subscriptionCounter, 1))
	b.handlers[eventType][id] = handler
	return id
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (b *InProcBus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, handlers := range b.handlers {
		if _, ok := handlers[subscriptionID]; ok {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(b.handlers, eventType)
			}
			return
		}
	}
}

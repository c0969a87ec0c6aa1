package services

import (
	"log"
	"sync"
	"time"

	"engram/internal/models"
)

// EventBus is an in-memory pub/sub for memory-core lifecycle events.
// Delivery is synchronous and in-process: Publish invokes every registered
// listener inline with the mutating call that produced the event, so
// same-kind events for the same entity are observed in emission order.
// Events are not persisted and do not survive a restart.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[string]func(models.Event) // subID → listener
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners: make(map[string]func(models.Event)),
	}
}

// Subscribe registers a listener under a subscription id. The listener
// receives every published event; it must not block.
func (b *EventBus) Subscribe(subID string, listener func(models.Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.listeners[subID] = listener
	log.Printf("[EVENT-BUS] Subscribe: sub=%s (total=%d)", subID, len(b.listeners))
}

// Unsubscribe removes a subscription. Unknown ids are a no-op.
func (b *EventBus) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.listeners, subID)
	log.Printf("[EVENT-BUS] Unsubscribe: sub=%s (remaining=%d)", subID, len(b.listeners))
}

// Publish sends an event to all listeners, synchronously.
func (b *EventBus) Publish(event models.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, listener := range b.listeners {
		listener(event)
	}
}

// SubscriberCount returns the number of active listeners.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.listeners)
}

// publishEntity is a convenience for entity-lifecycle events.
func (b *EventBus) publishEntity(eventType models.EventType, kind, id, projectID string) {
	b.Publish(models.Event{
		Type:      eventType,
		Entity:    &models.EntityPayload{Kind: kind, ID: id, ProjectID: projectID},
		Timestamp: time.Now(),
	})
}

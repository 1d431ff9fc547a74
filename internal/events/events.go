package events

import (
	"fmt"
	"sync"
	"time"

	"lifestory/internal/models"

	"github.com/rs/zerolog"
)

const (
	EventStateChanged  = "state_changed"
	EventItemFinalized = "item_finalized"
	EventItemFailed    = "item_failed"
)

// Event represents a timeline change.
type Event struct {
	Type      string
	State     models.TimelineState
	Item      *models.TimelineItem
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

type subscription struct {
	id      uint64
	handler EventHandler
}

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]subscription
	nextID      uint64
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. A nil logger discards handler failures.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]subscription), logger: logger}
}

// Subscribe registers a handler for a given event type and returns a
// function that removes it. Calling the returned function twice is a no-op.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[eventType]
		for i, sub := range subs {
			if sub.id == id {
				b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// SubscriberCount returns the number of handlers for eventType.
func (b *EventBus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// Publish notifies subscribers of the event type. Handler errors and panics
// are logged and never stop delivery to the remaining handlers.
func (b *EventBus) Publish(event *Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, sub := range subs {
		// Handlers run synchronously; caller decides concurrency model.
		if err := b.deliver(sub.handler, event); err != nil {
			b.logger.Error().Err(err).Str("event", event.Type).Uint64("subscriber", sub.id).Msg("event handler failed")
		}
	}
}

func (b *EventBus) deliver(handler EventHandler, event *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(event)
}

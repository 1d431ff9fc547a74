package events

import (
	"bytes"
	"errors"
	"testing"

	"lifestory/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus(nil)

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe(EventStateChanged, handler)

	state := models.TimelineState{Initialized: true, Items: []models.TimelineItem{{ID: "a"}}}
	bus.Publish(&Event{Type: EventStateChanged, State: state})

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
	if received.Type != EventStateChanged {
		t.Errorf("expected type %s, got %s", EventStateChanged, received.Type)
	}
	if received.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be set")
	}
	if len(received.State.Items) != 1 || received.State.Items[0].ID != "a" {
		t.Errorf("unexpected state: %+v", received.State)
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus(nil)
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	bus.Publish(&Event{Type: "event"})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus(nil)
	// Should not panic
	bus.Publish(&Event{Type: "unknown"})

	var nilBus *EventBus
	nilBus.Publish(&Event{Type: "unknown"})
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(nil)
	var count int

	unsubscribe := bus.Subscribe("event", func(_ *Event) error { count++; return nil })
	bus.Subscribe("event", func(_ *Event) error { return nil })
	assert.Equal(t, 2, bus.SubscriberCount("event"))

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 1, bus.SubscriberCount("event"))

	bus.Publish(&Event{Type: "event"})
	assert.Equal(t, 0, count)
}

func TestEventBusFailingHandlersAreIsolated(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	bus := NewEventBus(&logger)

	var reached int
	bus.Subscribe("event", func(_ *Event) error { panic("listener exploded") })
	bus.Subscribe("event", func(_ *Event) error { return errors.New("listener failed") })
	bus.Subscribe("event", func(_ *Event) error { reached++; return nil })

	assert.NotPanics(t, func() { bus.Publish(&Event{Type: "event"}) })
	assert.Equal(t, 1, reached)
	assert.Contains(t, buf.String(), "listener exploded")
	assert.Contains(t, buf.String(), "listener failed")
}

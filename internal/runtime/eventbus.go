package runtime

import (
	"sync"
	"time"

	"github.com/felixgeelhaar/recall/internal/session"
)

// EventType represents the type of runtime event.
type EventType string

const (
	EventFrameCaptured   EventType = "frame_captured"
	EventFrameDuplicate  EventType = "frame_duplicate"
	EventFrameExcluded   EventType = "frame_excluded"
	EventRecordAppended  EventType = "record_appended"
	EventSummaryFailed   EventType = "summary_failed"
	EventCaptureFailed   EventType = "capture_failed"
	EventSessionComplete EventType = "session_complete"
)

// Event represents a runtime event with associated data.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Iteration int
	Record    *session.Record // set for record_appended
	Err       error           // set for failures
	Data      map[string]any
}

// EventHandler is a function that handles events.
type EventHandler func(Event)

// EventBus fans runtime events out to subscribers. Handlers run
// synchronously on the publishing goroutine and must not block.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	allHandlers []EventHandler
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types.
func (eb *EventBus) SubscribeAll(handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allHandlers = append(eb.allHandlers, handler)
}

// Publish sends an event to all registered handlers. Handlers may
// subscribe further handlers without deadlocking.
func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.RLock()
	targets := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	targets = append(targets, eb.handlers[event.Type]...)
	targets = append(targets, eb.allHandlers...)
	eb.mu.RUnlock()

	for _, handler := range targets {
		handler(event)
	}
}

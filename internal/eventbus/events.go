package eventbus

import (
	"context"
	"time"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventPlanBuilt              EventType = "plan_built"
	EventPlanFallbackSequential EventType = "plan_fallback_sequential"

	EventCatalogValidated EventType = "catalog_validated"
	EventCatalogInvalid   EventType = "catalog_invalid"

	EventBatchStarted   EventType = "batch_started"
	EventBatchCompleted EventType = "batch_completed"
	EventCallStarted    EventType = "call_started"
	EventCallSucceeded  EventType = "call_succeeded"
	EventCallFailed     EventType = "call_failed"
	EventCallCached     EventType = "call_cached"

	EventExecutionStarted   EventType = "execution_started"
	EventExecutionSucceeded EventType = "execution_succeeded"
	EventExecutionFailed    EventType = "execution_failed"
)

// EventHandler receives events. A returned error makes the bus retry the
// delivery.
type EventHandler func(context.Context, Event) error

// Event is a published lifecycle notification. Payloads are owned by the
// event and must be treated as read-only by handlers.
type Event interface {
	Type() EventType
	Payload() interface{}
	Metadata() map[string]interface{}
	// Timestamp is the creation time in Unix nanoseconds.
	Timestamp() int64
	Source() string
}

// EventBus dispatches events to subscribers.
type EventBus interface {
	// Publish queues an event, blocking until there is room or ctx is done.
	Publish(ctx context.Context, event Event) error

	// TryPublish queues an event without blocking. It reports false when the
	// event was dropped because the bus is full or closed.
	TryPublish(ctx context.Context, event Event) bool

	// Subscribe registers a handler for the given types and returns an ID
	// for Unsubscribe.
	Subscribe(eventTypes []EventType, handler EventHandler) (string, error)

	// SubscribeAll registers a handler for every event type.
	SubscribeAll(handler EventHandler) (string, error)

	Unsubscribe(subscriptionID string) error

	Close() error
}

// BaseEvent is the Event produced by NewEvent.
type BaseEvent struct {
	kind     EventType
	payload  interface{}
	metadata map[string]interface{}
	at       int64
	source   string
}

// NewEvent stamps an event with the current time. A nil metadata map is
// replaced with an empty one.
func NewEvent(eventType EventType, payload interface{}, source string, metadata map[string]interface{}) *BaseEvent {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &BaseEvent{
		kind:     eventType,
		payload:  payload,
		metadata: metadata,
		at:       time.Now().UnixNano(),
		source:   source,
	}
}

func (e *BaseEvent) Type() EventType                  { return e.kind }
func (e *BaseEvent) Payload() interface{}             { return e.payload }
func (e *BaseEvent) Metadata() map[string]interface{} { return e.metadata }
func (e *BaseEvent) Timestamp() int64                 { return e.at }
func (e *BaseEvent) Source() string                   { return e.source }

// WithMetadata sets key and returns e for chaining. It must be called before
// the event is published.
func (e *BaseEvent) WithMetadata(key string, value interface{}) *BaseEvent {
	e.metadata[key] = value
	return e
}

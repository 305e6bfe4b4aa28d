package toolplan

import (
	"time"

	"github.com/ZanzyTHEbar/toolplan/internal/eventbus"
)

type (
	EventBus        = eventbus.EventBus
	Event           = eventbus.Event
	EventType       = eventbus.EventType
	EventHandler    = eventbus.EventHandler
	ChannelEventBus = eventbus.ChannelEventBus
	EventBusOption  = eventbus.ChannelEventBusOption
)

const (
	EventPlanBuilt              = eventbus.EventPlanBuilt
	EventPlanFallbackSequential = eventbus.EventPlanFallbackSequential
	EventCatalogValidated       = eventbus.EventCatalogValidated
	EventCatalogInvalid         = eventbus.EventCatalogInvalid
	EventBatchStarted           = eventbus.EventBatchStarted
	EventBatchCompleted         = eventbus.EventBatchCompleted
	EventCallStarted            = eventbus.EventCallStarted
	EventCallSucceeded          = eventbus.EventCallSucceeded
	EventCallFailed             = eventbus.EventCallFailed
	EventCallCached             = eventbus.EventCallCached
	EventExecutionStarted       = eventbus.EventExecutionStarted
	EventExecutionSucceeded     = eventbus.EventExecutionSucceeded
	EventExecutionFailed        = eventbus.EventExecutionFailed
)

// NewEventBus starts a channel-backed event bus. Close it when done.
func NewEventBus(options ...EventBusOption) *ChannelEventBus {
	return eventbus.NewChannelEventBus(options...)
}

// WithEventBufferSize sets how many events may wait for a bus worker.
func WithEventBufferSize(size int) EventBusOption { return eventbus.WithBufferSize(size) }

// WithEventWorkers sets the number of bus dispatch goroutines.
func WithEventWorkers(count int) EventBusOption { return eventbus.WithWorkerCount(count) }

// WithEventRetries sets how often a failing handler is retried.
func WithEventRetries(maxRetries int, interval time.Duration) EventBusOption {
	return eventbus.WithRetries(maxRetries, interval)
}

// WithEventLogger sets the logger used for handler failures.
func WithEventLogger(logger Logger) EventBusOption { return eventbus.WithLogger(logger) }

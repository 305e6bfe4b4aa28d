// Package eventbus carries planning and execution lifecycle events to
// subscribers on a small pool of worker goroutines.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/toolplan/internal/logging"
	"github.com/google/uuid"
)

// ErrClosed is returned by operations on a bus that has been closed.
var ErrClosed = errors.New("event bus is closed")

// subscription is one registered handler. A nil types set receives every
// event type.
type subscription struct {
	types   map[EventType]struct{}
	handler EventHandler
}

func (s subscription) wants(t EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

type envelope struct {
	ctx   context.Context
	event Event
}

// ChannelEventBus is an EventBus backed by a buffered channel. Handlers run
// on worker goroutines, never on the publisher's goroutine.
type ChannelEventBus struct {
	mu     sync.RWMutex // guards subs and closed
	subs   map[string]subscription
	closed bool

	queue chan envelope
	done  chan struct{}
	wg    sync.WaitGroup

	logger        logging.Logger
	bufferSize    int
	workers       int
	maxRetries    int
	retryInterval time.Duration
}

// ChannelEventBusOption configures a ChannelEventBus.
type ChannelEventBusOption func(*ChannelEventBus)

// WithBufferSize sets how many events may wait for a worker.
func WithBufferSize(size int) ChannelEventBusOption {
	return func(eb *ChannelEventBus) { eb.bufferSize = size }
}

// WithWorkerCount sets the number of dispatch goroutines.
func WithWorkerCount(count int) ChannelEventBusOption {
	return func(eb *ChannelEventBus) { eb.workers = count }
}

// WithRetries sets how often a failing handler is retried, and the pause
// between attempts.
func WithRetries(maxRetries int, retryInterval time.Duration) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		eb.maxRetries = maxRetries
		eb.retryInterval = retryInterval
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger(logger logging.Logger) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		if logger != nil {
			eb.logger = logger
		}
	}
}

// NewChannelEventBus starts a bus with its worker goroutines. Call Close to
// stop them.
func NewChannelEventBus(options ...ChannelEventBusOption) *ChannelEventBus {
	eb := &ChannelEventBus{
		subs:          make(map[string]subscription),
		done:          make(chan struct{}),
		logger:        logging.Default(),
		bufferSize:    100,
		workers:       2,
		maxRetries:    3,
		retryInterval: 100 * time.Millisecond,
	}
	for _, option := range options {
		option(eb)
	}
	eb.workers = max(eb.workers, 1)
	eb.bufferSize = max(eb.bufferSize, 0)
	eb.maxRetries = max(eb.maxRetries, 0)

	eb.queue = make(chan envelope, eb.bufferSize)
	for i := 0; i < eb.workers; i++ {
		eb.wg.Add(1)
		go eb.dispatchLoop()
	}
	return eb
}

func (eb *ChannelEventBus) dispatchLoop() {
	defer eb.wg.Done()
	for {
		select {
		case <-eb.done:
			return
		case env := <-eb.queue:
			eb.dispatch(env)
		}
	}
}

func (eb *ChannelEventBus) dispatch(env envelope) {
	if env.ctx.Err() != nil {
		return
	}

	// Handlers run outside the lock so they may subscribe or unsubscribe.
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.subs))
	for _, sub := range eb.subs {
		if sub.wants(env.event.Type()) {
			handlers = append(handlers, sub.handler)
		}
	}
	eb.mu.RUnlock()

	for _, handler := range handlers {
		eb.deliver(env.ctx, env.event, handler)
	}
}

func (eb *ChannelEventBus) deliver(ctx context.Context, event Event, handler EventHandler) {
	var err error
	for attempt := 0; attempt <= eb.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-eb.done:
				return
			case <-time.After(eb.retryInterval):
			}
		}
		if ctx.Err() != nil {
			return
		}
		if err = handler(ctx, event); err == nil {
			return
		}
	}
	eb.logger.Error("Event handler failed", map[string]any{
		"event_type": string(event.Type()),
		"source":     event.Source(),
		"attempts":   eb.maxRetries + 1,
		"error":      err,
	})
}

// Publish queues event, waiting for buffer space until ctx is done.
func (eb *ChannelEventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case eb.queue <- envelope{ctx: ctx, event: event}:
		return nil
	}
}

// TryPublish queues event only if buffer space is free right now.
func (eb *ChannelEventBus) TryPublish(ctx context.Context, event Event) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed || ctx.Err() != nil {
		return false
	}
	select {
	case eb.queue <- envelope{ctx: ctx, event: event}:
		return true
	default:
		return false
	}
}

// Subscribe registers handler for the given event types.
func (eb *ChannelEventBus) Subscribe(eventTypes []EventType, handler EventHandler) (string, error) {
	if len(eventTypes) == 0 {
		return "", fmt.Errorf("at least one event type is required")
	}
	types := make(map[EventType]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = struct{}{}
	}
	return eb.add(subscription{types: types, handler: handler})
}

// SubscribeAll registers handler for every event type.
func (eb *ChannelEventBus) SubscribeAll(handler EventHandler) (string, error) {
	return eb.add(subscription{handler: handler})
}

func (eb *ChannelEventBus) add(sub subscription) (string, error) {
	if sub.handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}
	id := uuid.New().String()

	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return "", ErrClosed
	}
	eb.subs[id] = sub
	return id, nil
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (eb *ChannelEventBus) Unsubscribe(subscriptionID string) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return ErrClosed
	}
	delete(eb.subs, subscriptionID)
	return nil
}

// Close stops the workers. Queued events that no worker picked up are
// dropped. Closing twice is a no-op.
func (eb *ChannelEventBus) Close() error {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		return nil
	}
	eb.closed = true
	eb.mu.Unlock()

	close(eb.done)
	eb.wg.Wait()
	return nil
}

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/ZanzyTHEbar/toolplan/internal/logging"
)

// InMemoryCache provides a simple thread-safe in-memory cache.
type InMemoryCache struct {
	store  map[string]entry
	mutex  sync.RWMutex
	ttl    time.Duration
	logger logging.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// MemoryOption configures an InMemoryCache.
type MemoryOption func(*InMemoryCache)

// WithMemoryLogger sets the cache logger.
func WithMemoryLogger(logger logging.Logger) MemoryOption {
	return func(c *InMemoryCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewInMemoryCache creates a new in-memory cache with a default TTL.
func NewInMemoryCache(defaultTTL time.Duration, opts ...MemoryOption) *InMemoryCache {
	c := &InMemoryCache{
		store:  make(map[string]entry),
		ttl:    defaultTTL,
		logger: logging.Nop(),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Start a background cleanup goroutine
	go c.cleanupLoop(10 * time.Minute)
	return c
}

// Get retrieves an item from the cache.
func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	// Check context cancellation first
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return nil, err
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, found := c.store[key]
	if !found {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item not found", nil))
	}

	if item.expired(time.Now()) {
		// Item expired (lazy cleanup)
		c.logger.Debug("Cache item expired", map[string]any{"key": key})
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item expired", nil))
	}

	return item.Value, nil
}

// Set adds or updates an item in the cache.
func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}) error {
	// Check context cancellation first
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.store[key] = entry{
		Value:      value,
		Expiration: time.Now().Add(c.ttl).UnixNano(),
	}
	c.logger.Debug("Cache item set", map[string]any{"key": key})
	return nil
}

// Len returns the number of stored items, including expired ones not yet swept.
func (c *InMemoryCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.store)
}

// Close stops the background cleanup goroutine.
func (c *InMemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// cleanupLoop periodically removes expired items.
func (c *InMemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep(time.Now())
		}
	}
}

func (c *InMemoryCache) sweep(now time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for key, item := range c.store {
		if item.expired(now) {
			delete(c.store, key)
		}
	}
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/ZanzyTHEbar/toolplan"
	"github.com/ZanzyTHEbar/toolplan/internal/logging"
)

// FileCache is a file-backed result cache. The whole store is rewritten on
// every Set, so it suits small caches of slow idempotent calls. Values
// round-trip through JSON and come back as generic maps and slices.
type FileCache struct {
	store    map[string]entry
	mutex    sync.RWMutex
	ttl      time.Duration
	filePath string
	logger   logging.Logger
}

// NewFileCache opens (or creates on first write) the cache file at filePath.
// A missing file is an empty cache; an unreadable one is an error.
func NewFileCache(defaultTTL time.Duration, filePath string, logger logging.Logger) (*FileCache, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	c := &FileCache{
		store:    make(map[string]entry),
		ttl:      defaultTTL,
		filePath: filePath,
		logger:   logger,
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *FileCache) load() error {
	data, err := os.ReadFile(c.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return toolplan.NewCacheError("cache", "load", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &c.store); err != nil {
		return toolplan.NewCacheError("cache", "load", err)
	}
	return nil
}

// persist writes the store atomically. Callers hold the write lock.
func (c *FileCache) persist() error {
	data, err := json.Marshal(c.store)
	if err != nil {
		return toolplan.NewCacheError("cache", "encode", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.filePath), ".toolplan-cache-*")
	if err != nil {
		return toolplan.NewCacheError("cache", "persist", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return toolplan.NewCacheError("cache", "persist", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return toolplan.NewCacheError("cache", "persist", err)
	}
	if err := os.Rename(tmp.Name(), c.filePath); err != nil {
		os.Remove(tmp.Name())
		return toolplan.NewCacheError("cache", "persist", err)
	}
	return nil
}

// Get retrieves an item from the cache.
func (c *FileCache) Get(ctx context.Context, key string) (interface{}, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return nil, err
	}

	c.mutex.RLock()
	item, found := c.store[key]
	c.mutex.RUnlock()
	if !found {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item not found", nil))
	}
	if item.expired(time.Now()) {
		c.logger.Debug("Persistent cache item expired", map[string]any{"key": key})
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item expired", nil))
	}
	return item.Value, nil
}

// Set adds or updates an item and rewrites the cache file, dropping
// expired items on the way.
func (c *FileCache) Set(ctx context.Context, key string, value interface{}) error {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	for k, item := range c.store {
		if item.expired(now) {
			delete(c.store, k)
		}
	}
	c.store[key] = entry{
		Value:      value,
		Expiration: now.Add(c.ttl).UnixNano(),
	}
	if err := c.persist(); err != nil {
		return err
	}
	c.logger.Debug("Persistent cache item set", map[string]any{"key": key})
	return nil
}

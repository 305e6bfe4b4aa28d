// Package cache stores idempotent tool results between executions.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/ZanzyTHEbar/toolplan"
)

// Cache is the storage contract shared by the cache implementations.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// entry is one stored value. Fields are exported for the file encoding.
type entry struct {
	Value      interface{} `json:"value"`
	Expiration int64       `json:"expiration"`
}

func (e entry) expired(now time.Time) bool {
	return now.UnixNano() > e.Expiration
}

// ResultKey derives the cache key for a tool call. Map keys are encoded in
// sorted order, so equal argument maps always produce the same key.
func ResultKey(tool string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", toolplan.NewCacheError("cache", "key", err)
	}
	sum := sha256.New()
	sum.Write([]byte(tool))
	sum.Write([]byte{0})
	sum.Write(encoded)
	return tool + ":" + hex.EncodeToString(sum.Sum(nil)), nil
}

package cache

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestInMemoryCache_SetAndGet(t *testing.T) {
	cache := NewInMemoryCache(1 * time.Second)
	defer cache.Close()
	ctx := context.Background()
	key := "foo"
	value := "bar"

	err := cache.Set(ctx, key, value)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != value {
		t.Errorf("expected %v, got %v", value, got)
	}
}

func TestInMemoryCache_Expiration(t *testing.T) {
	cache := NewInMemoryCache(50 * time.Millisecond)
	defer cache.Close()
	ctx := context.Background()
	key := "baz"
	value := "qux"

	err := cache.Set(ctx, key, value)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	_, err = cache.Get(ctx, key)
	if err == nil {
		t.Errorf("expected error for expired item, got nil")
	}
}

func TestInMemoryCache_Concurrency(t *testing.T) {
	cache := NewInMemoryCache(1 * time.Second)
	defer cache.Close()
	ctx := context.Background()
	key := "concurrent"
	value := "val"
	setErr := make(chan error, 1)
	getErr := make(chan error, 1)

	go func() {
		setErr <- cache.Set(ctx, key, value)
	}()
	go func() {
		_, err := cache.Get(ctx, key)
		getErr <- err
	}()

	if err := <-setErr; err != nil {
		t.Errorf("Set failed: %v", err)
	}
	if err := <-getErr; err != nil && !strings.Contains(err.Error(), "not found") {
		t.Errorf("unexpected Get error: %v", err)
	}
}

func TestInMemoryCache_Sweep(t *testing.T) {
	cache := NewInMemoryCache(time.Minute)
	defer cache.Close()
	ctx := context.Background()

	if err := cache.Set(ctx, "a", 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	cache.sweep(time.Now().Add(2 * time.Minute))
	if cache.Len() != 0 {
		t.Errorf("expected expired item to be swept, %d left", cache.Len())
	}
}

func TestResultKey(t *testing.T) {
	a, err := ResultKey("metrics_calculation", map[string]any{"team": "EDM", "season": 2024})
	if err != nil {
		t.Fatalf("ResultKey failed: %v", err)
	}
	b, _ := ResultKey("metrics_calculation", map[string]any{"season": 2024, "team": "EDM"})
	if a != b {
		t.Errorf("equal args should give equal keys: %s vs %s", a, b)
	}
	other, _ := ResultKey("game_data_query", map[string]any{"team": "EDM", "season": 2024})
	if a == other {
		t.Error("different tools should give different keys")
	}
	empty, _ := ResultKey("x", nil)
	emptyMap, _ := ResultKey("x", map[string]any{})
	if empty != emptyMap {
		t.Error("nil and empty args should share a key")
	}
	if _, err := ResultKey("x", map[string]any{"bad": make(chan int)}); err == nil {
		t.Error("expected error for unencodable args")
	}
}

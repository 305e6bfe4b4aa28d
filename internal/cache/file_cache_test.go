package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileCache_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	ctx := context.Background()

	first, err := NewFileCache(time.Minute, path, nil)
	if err != nil {
		t.Fatalf("NewFileCache failed: %v", err)
	}
	if _, err := first.Get(ctx, "k"); err == nil {
		t.Error("expected miss on a fresh cache")
	}
	if err := first.Set(ctx, "k", map[string]any{"rows": []any{"a"}}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	second, err := NewFileCache(time.Minute, path, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, err := second.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok || len(m["rows"].([]any)) != 1 {
		t.Errorf("unexpected value after reopen: %#v", got)
	}
}

func TestFileCache_Expiration(t *testing.T) {
	c, err := NewFileCache(20*time.Millisecond, filepath.Join(t.TempDir(), "c.json"), nil)
	if err != nil {
		t.Fatalf("NewFileCache failed: %v", err)
	}
	ctx := context.Background()
	if err := c.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := c.Get(ctx, "k"); err == nil {
		t.Error("expected error for expired item")
	}
}

func TestFileCache_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileCache(time.Minute, path, nil); err == nil {
		t.Error("expected error for corrupt cache file")
	}
}

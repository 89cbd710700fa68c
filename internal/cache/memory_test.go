package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestMemoryCache_BasicOperations(t *testing.T) {
	cache := NewMemoryCache(1024)

	key := "test-key"
	value := []byte("test-value")

	if err := cache.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	retrieved, ok := cache.Get(key)
	if !ok {
		t.Fatal("Get failed: key not found")
	}
	if string(retrieved) != string(value) {
		t.Errorf("Retrieved value mismatch: got %s, want %s", retrieved, value)
	}
	if !cache.Contains(key) {
		t.Error("Contains returned false for existing key")
	}
	if cache.Size() != int64(len(value)) {
		t.Errorf("Size mismatch: got %d, want %d", cache.Size(), len(value))
	}

	if err := cache.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if cache.Contains(key) {
		t.Error("Key still exists after delete")
	}
	if cache.Size() != 0 {
		t.Errorf("Size not zero after delete: %d", cache.Size())
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	cache := NewMemoryCache(100)

	for i := 0; i < 5; i++ {
		if err := cache.Put(fmt.Sprintf("key-%d", i), make([]byte, 20)); err != nil {
			t.Fatalf("Put failed for key-%d: %v", i, err)
		}
	}

	// key-0 and key-1 become the most recently used.
	cache.Get("key-0")
	cache.Get("key-1")

	if err := cache.Put("key-new", make([]byte, 30)); err != nil {
		t.Fatalf("Put failed for new key: %v", err)
	}

	for _, key := range []string{"key-0", "key-1", "key-4", "key-new"} {
		if !cache.Contains(key) {
			t.Errorf("%s should still be cached", key)
		}
	}
	for _, key := range []string{"key-2", "key-3"} {
		if cache.Contains(key) {
			t.Errorf("%s should have been evicted", key)
		}
	}
	if cache.Size() > 100 {
		t.Errorf("Size %d exceeds capacity", cache.Size())
	}
	if got := cache.Stats().Evictions; got != 2 {
		t.Errorf("expected 2 evictions, got %d", got)
	}
}

func TestMemoryCache_ReplaceUpdatesSize(t *testing.T) {
	cache := NewMemoryCache(100)

	_ = cache.Put("key", make([]byte, 40))
	_ = cache.Put("key", make([]byte, 10))

	if cache.Size() != 10 {
		t.Errorf("expected size 10 after replace, got %d", cache.Size())
	}
	if got := cache.Stats().Items; got != 1 {
		t.Errorf("expected 1 item, got %d", got)
	}
}

func TestMemoryCache_ItemTooLarge(t *testing.T) {
	cache := NewMemoryCache(10)

	if err := cache.Put("big", make([]byte, 11)); err != ErrItemTooLarge {
		t.Errorf("expected ErrItemTooLarge, got %v", err)
	}
}

func TestMemoryCache_Stats(t *testing.T) {
	cache := NewMemoryCache(1024)
	_ = cache.Put("a", []byte("1"))

	cache.Get("a")
	cache.Get("a")
	cache.Get("missing")

	stats := cache.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("expected 2 hits and 1 miss, got %d and %d", stats.Hits, stats.Misses)
	}
	if stats.HitRate < 0.66 || stats.HitRate > 0.67 {
		t.Errorf("unexpected hit rate %f", stats.HitRate)
	}
}

func TestMemoryCache_Prune(t *testing.T) {
	cache := NewMemoryCache(1024)
	_ = cache.Put("old", []byte("x"))
	time.Sleep(20 * time.Millisecond)
	_ = cache.Put("new", []byte("y"))

	if pruned := cache.Prune(10 * time.Millisecond); pruned != 1 {
		t.Errorf("expected 1 pruned entry, got %d", pruned)
	}
	if cache.Contains("old") || !cache.Contains("new") {
		t.Error("prune removed the wrong entry")
	}
}

func TestKey(t *testing.T) {
	a := Key("hello", "af_heart", 1.0)
	if len(a) != 32 {
		t.Errorf("expected 32 hex characters, got %d", len(a))
	}
	if a != Key("hello", "af_heart", 1.001) {
		t.Error("speeds equal to two decimals should share a key")
	}
	if a == Key("hello", "af_heart", 1.1) {
		t.Error("different speeds should not share a key")
	}
	if a == Key("hello", "am_adam", 1.0) {
		t.Error("different voices should not share a key")
	}
}

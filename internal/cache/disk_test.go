package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDiskCache_RoundTrip(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	defer dc.Close()

	value := bytes.Repeat([]byte("RIFF-data "), 200)
	if err := dc.Put("clip", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if dc.Size() >= int64(len(value)) {
		t.Errorf("expected compressed size below %d, got %d", len(value), dc.Size())
	}

	got, ok := dc.Get("clip")
	if !ok {
		t.Fatal("expected a hit")
	}
	if !bytes.Equal(got, value) {
		t.Error("value changed through the disk cache")
	}
}

func TestDiskCache_PersistsIndex(t *testing.T) {
	dir := t.TempDir()

	dc, err := NewDiskCache(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	if err := dc.Put("clip", []byte("hello")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := dc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewDiskCache(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, ok := reopened.Get("clip")
	if !ok || string(got) != "hello" {
		t.Errorf("expected persisted value, got %q (hit %v)", got, ok)
	}
}

func TestDiskCache_CorruptFileIsMiss(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	defer dc.Close()

	_ = dc.Put("clip", []byte("hello"))
	if err := os.WriteFile(filepath.Join(dir, "clip.zst"), []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := dc.Get("clip"); ok {
		t.Error("expected a miss for a corrupt file")
	}
	if dc.Stats().Items != 0 {
		t.Error("corrupt entry should be dropped from the index")
	}
}

func TestDiskCache_EvictsLeastRecentlyUsed(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	defer dc.Close()

	_ = dc.Put("a", []byte("first value"))
	time.Sleep(5 * time.Millisecond)
	_ = dc.Put("b", []byte("second value"))
	time.Sleep(5 * time.Millisecond)
	dc.Get("a")

	// Shrink the capacity so the next write must evict one entry.
	dc.mu.Lock()
	dc.capacity = dc.size + 1
	dc.mu.Unlock()

	if err := dc.Put("c", []byte("third value")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, ok := dc.Get("b"); ok {
		t.Error("least recently used entry should have been evicted")
	}
	if _, ok := dc.Get("a"); !ok {
		t.Error("recently used entry should remain")
	}
}

func TestDiskCache_RemoveOlderThan(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	defer dc.Close()

	_ = dc.Put("old", []byte("x"))
	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_ = dc.Put("new", []byte("y"))

	if removed := dc.RemoveOlderThan(cutoff); removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, ok := dc.Get("new"); !ok {
		t.Error("new entry should remain")
	}
}

func TestNewDiskCache_RequiresDir(t *testing.T) {
	if _, err := NewDiskCache("", 1, 3); err == nil {
		t.Error("expected error for empty directory")
	}
}

package cache

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const indexFile = "index.gob"

// DiskCache keeps zstd compressed clips in a directory. An index of
// entries is saved on Close and reloaded on open.
type DiskCache struct {
	dir      string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	index map[string]*diskEntry
	stats Stats
}

// diskEntry is persisted with encoding/gob, so its fields are exported.
type diskEntry struct {
	Key        string
	File       string
	Size       int64 // Compressed size on disk
	RawSize    int64
	Stored     time.Time
	LastAccess time.Time
}

// NewDiskCache opens or creates the store in dir.
func NewDiskCache(dir string, capacity int64, level int) (*DiskCache, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		encoder:  enc,
		decoder:  dec,
		index:    make(map[string]*diskEntry),
		stats:    Stats{Capacity: capacity},
	}
	if err := dc.loadIndex(); err != nil {
		log.Warn("Ignoring unreadable cache index", "dir", dir, "error", err)
		dc.index = make(map[string]*diskEntry)
	}
	for _, e := range dc.index {
		dc.size += e.Size
	}
	return dc, nil
}

// Get returns the decompressed value for key. Missing or corrupt files
// are dropped from the index and reported as misses.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := dc.read(entry)
	if err != nil {
		log.Debug("Dropping cache entry", "key", key, "error", err)
		dc.drop(entry)
		dc.stats.Misses++
		return nil, false
	}
	entry.LastAccess = time.Now()
	dc.stats.Hits++
	return data, true
}

// Put compresses and writes value, evicting least recently used entries
// to stay under capacity.
func (dc *DiskCache) Put(key string, value []byte) error {
	compressed := dc.encoder.EncodeAll(value, nil)
	size := int64(len(compressed))

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if size > dc.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := dc.index[key]; ok {
		dc.drop(existing)
	}
	if dc.size+size > dc.capacity {
		dc.evict(dc.size + size - dc.capacity)
	}

	file := key + ".zst"
	if err := writeFileAtomic(filepath.Join(dc.dir, file), compressed); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := time.Now()
	dc.index[key] = &diskEntry{
		Key:        key,
		File:       file,
		Size:       size,
		RawSize:    int64(len(value)),
		Stored:     now,
		LastAccess: now,
	}
	dc.size += size
	return nil
}

// Delete removes key if present.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if entry, ok := dc.index[key]; ok {
		dc.drop(entry)
	}
	return nil
}

// Clear removes every entry and saves the empty index.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for _, entry := range dc.index {
		dc.drop(entry)
	}
	return dc.saveIndex()
}

// Size returns the compressed bytes on disk.
func (dc *DiskCache) Size() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.size
}

// Stats returns a snapshot of the counters.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	stats := dc.stats
	stats.Size = dc.size
	stats.Items = int64(len(dc.index))
	stats.updateHitRate()
	return stats
}

// RemoveOlderThan drops entries stored before cutoff.
func (dc *DiskCache) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for _, entry := range dc.index {
		if entry.Stored.Before(cutoff) {
			dc.drop(entry)
			removed++
		}
	}
	return removed
}

// Close saves the index and releases the codecs.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	err := dc.saveIndex()
	dc.encoder.Close()
	dc.decoder.Close()
	return err
}

func (dc *DiskCache) read(entry *diskEntry) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(dc.dir, entry.File))
	if err != nil {
		return nil, err
	}
	data, err := dc.decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return data, nil
}

// drop removes entry and its file. The caller holds mu.
func (dc *DiskCache) drop(entry *diskEntry) {
	if err := os.Remove(filepath.Join(dc.dir, entry.File)); err != nil && !os.IsNotExist(err) {
		log.Debug("Failed to remove cache file", "file", entry.File, "error", err)
	}
	delete(dc.index, entry.Key)
	dc.size -= entry.Size
}

// evict frees at least need bytes, least recently used first. The caller
// holds mu.
func (dc *DiskCache) evict(need int64) {
	entries := make([]*diskEntry, 0, len(dc.index))
	for _, e := range dc.index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})

	var freed int64
	for _, e := range entries {
		if freed >= need {
			return
		}
		freed += e.Size
		dc.drop(e)
		dc.stats.Evictions++
	}
}

func (dc *DiskCache) loadIndex() error {
	f, err := os.Open(filepath.Join(dc.dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(&dc.index)
}

func (dc *DiskCache) saveIndex() error {
	path := filepath.Join(dc.dir, indexFile)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(f).Encode(dc.index)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// writeFileAtomic writes to a temporary file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when a stored item cannot be decoded
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Level identifies a cache tier.
type Level int

const (
	// LevelMemory is the in-process LRU.
	LevelMemory Level = iota
	// LevelDisk is the persistent store.
	LevelDisk
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds cache counters.
type Stats struct {
	Capacity  int64 // Maximum size in bytes
	Size      int64 // Current size in bytes
	Items     int64
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64 // hits / (hits + misses)
}

func (s *Stats) updateHitRate() {
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
}

// Cache is a byte store keyed by Key.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Size() int64
	Stats() Stats
}

// Config controls cache sizes and expiry.
type Config struct {
	MemoryCapacity   int64         // Bytes held in memory
	DiskCapacity     int64         // Bytes held on disk
	Dir              string        // Disk store directory
	CompressionLevel int           // zstd level, 1 to 22
	TTL              time.Duration // Age after which entries are dropped, 0 keeps them
	CleanupInterval  time.Duration // How often expired entries are removed, 0 disables
}

// DefaultConfig returns the default cache configuration. Dir is left
// empty and must be set by the caller.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 * 1024 * 1024,
		DiskCapacity:     512 * 1024 * 1024,
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MemoryCapacity <= 0 {
		return fmt.Errorf("memory capacity must be positive, got %d", c.MemoryCapacity)
	}
	if c.DiskCapacity <= 0 {
		return fmt.Errorf("disk capacity must be positive, got %d", c.DiskCapacity)
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 22 {
		return fmt.Errorf("compression level must be between 1 and 22, got %d", c.CompressionLevel)
	}
	if c.TTL < 0 || c.CleanupInterval < 0 {
		return errors.New("ttl and cleanup interval cannot be negative")
	}
	return nil
}

// Key derives the cache key for a synthesis request. Speed is rounded to
// two decimals so 1.0 and 1.001 share an entry.
func Key(text, voice string, speed float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%.2f", text, voice, speed)))
	return hex.EncodeToString(sum[:16])
}

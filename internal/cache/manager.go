package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Manager layers a MemoryCache over a DiskCache. Disk hits are promoted
// to memory. A background routine drops expired entries when
// CleanupInterval and TTL are set.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache
	cfg    Config

	stop    chan struct{}
	wg      sync.WaitGroup
	closeMu sync.Once

	mu         sync.Mutex
	memoryHits int64
	diskHits   int64
	misses     int64
}

// ManagerStats aggregates both tiers.
type ManagerStats struct {
	MemoryHits int64
	DiskHits   int64
	Misses     int64
	HitRate    float64
	Memory     Stats
	Disk       Stats
}

// NewManager opens the tiers described by cfg.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}
	disk, err := NewDiskCache(cfg.Dir, cfg.DiskCapacity, cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		memory: NewMemoryCache(cfg.MemoryCapacity),
		disk:   disk,
		cfg:    cfg,
		stop:   make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 && cfg.TTL > 0 {
		m.wg.Add(1)
		go m.cleanupLoop()
	}
	return m, nil
}

// Get checks memory, then disk.
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.memory.Get(key); ok {
		m.count(LevelMemory)
		return data, true
	}
	if data, ok := m.disk.Get(key); ok {
		m.count(LevelDisk)
		_ = m.memory.Put(key, data)
		return data, true
	}

	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
	return nil, false
}

// Put stores value in both tiers. An item too large for memory is still
// written to disk.
func (m *Manager) Put(key string, value []byte) error {
	if err := m.memory.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("memory cache: %w", err)
	}
	if err := m.disk.Put(key, value); err != nil {
		return fmt.Errorf("disk cache: %w", err)
	}
	return nil
}

// Delete removes key from both tiers.
func (m *Manager) Delete(key string) error {
	return errors.Join(m.memory.Delete(key), m.disk.Delete(key))
}

// Clear empties both tiers.
func (m *Manager) Clear() error {
	return errors.Join(m.memory.Clear(), m.disk.Clear())
}

// Size returns the bytes held on disk, which bounds the total.
func (m *Manager) Size() int64 {
	return m.disk.Size()
}

// Stats returns the combined counters.
func (m *Manager) Stats() Stats {
	s := m.Detailed()
	return Stats{
		Capacity:  s.Disk.Capacity,
		Size:      s.Disk.Size,
		Items:     s.Disk.Items,
		Hits:      s.MemoryHits + s.DiskHits,
		Misses:    s.Misses,
		Evictions: s.Memory.Evictions + s.Disk.Evictions,
		HitRate:   s.HitRate,
	}
}

// Detailed returns per tier counters.
func (m *Manager) Detailed() ManagerStats {
	m.mu.Lock()
	s := ManagerStats{MemoryHits: m.memoryHits, DiskHits: m.diskHits, Misses: m.misses}
	m.mu.Unlock()

	if total := s.MemoryHits + s.DiskHits + s.Misses; total > 0 {
		s.HitRate = float64(s.MemoryHits+s.DiskHits) / float64(total)
	}
	s.Memory = m.memory.Stats()
	s.Disk = m.disk.Stats()
	return s
}

// Cleanup drops entries older than the configured TTL and returns how
// many disk entries were removed.
func (m *Manager) Cleanup() int {
	if m.cfg.TTL <= 0 {
		return 0
	}
	m.memory.Prune(m.cfg.TTL)
	removed := m.disk.RemoveOlderThan(time.Now().Add(-m.cfg.TTL))
	if removed > 0 {
		log.Debug("Removed expired clips", "count", removed)
	}
	return removed
}

// Close stops the cleanup routine and saves the disk index.
func (m *Manager) Close() error {
	var err error
	m.closeMu.Do(func() {
		close(m.stop)
		m.wg.Wait()
		err = m.disk.Close()
	})
	return err
}

func (m *Manager) count(level Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch level {
	case LevelMemory:
		m.memoryHits++
	case LevelDisk:
		m.diskHits++
	}
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.stop:
			return
		}
	}
}

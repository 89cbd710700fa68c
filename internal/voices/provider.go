// Package voices loads voice style tables from disk.
//
// A voice file holds little-endian float32 values, one 256-wide style
// vector per token position. Files may be zstd-compressed (".bin.zst").
// A virtual combined voice mixes base voices with normalized weights.
package voices

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"

	"github.com/dgnsrekt/speakstream/internal/inference"
)

var (
	ErrVoiceNotFound    = errors.New("voice not found")
	ErrInvalidVoiceData = errors.New("voice data length is not a multiple of the style dimension")
	ErrInvalidWeights   = errors.New("combined voice weights must be positive")
	ErrLengthMismatch   = errors.New("combined voices have different lengths")
)

const (
	rawExt        = ".bin"
	compressedExt = ".bin.zst"
)

// Provider serves voice style tables, caching each one after first load.
// It is safe for concurrent use.
type Provider struct {
	dir         string
	combinedID  string
	combinedMix map[string]float64

	mu    sync.RWMutex
	cache map[string][]float32
}

// NewProvider creates a provider reading voices from dir. combinedID names
// the virtual voice built from mix.
func NewProvider(dir, combinedID string, mix map[string]float64) *Provider {
	return &Provider{
		dir:         dir,
		combinedID:  combinedID,
		combinedMix: mix,
		cache:       make(map[string][]float32),
	}
}

// Add registers voice data under id, replacing any cached table.
func (p *Provider) Add(id string, data []float32) error {
	if len(data) == 0 || len(data)%inference.StyleDim != 0 {
		return fmt.Errorf("%w: %s has %d values", ErrInvalidVoiceData, id, len(data))
	}
	p.mu.Lock()
	p.cache[id] = data
	p.mu.Unlock()
	return nil
}

// VoiceData returns the style table for id. The result must not be modified.
func (p *Provider) VoiceData(ctx context.Context, id string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	data, ok := p.cache[id]
	p.mu.RUnlock()
	if ok {
		return data, nil
	}

	if id != "" && id == p.combinedID {
		data, err := p.combine(ctx)
		if err != nil {
			return nil, err
		}
		return p.store(id, data), nil
	}

	data, err := p.load(id)
	if err != nil {
		return nil, err
	}
	return p.store(id, data), nil
}

// List returns the ids of voices available on disk or registered, sorted.
func (p *Provider) List() ([]string, error) {
	seen := make(map[string]struct{})

	p.mu.RLock()
	for id := range p.cache {
		seen[id] = struct{}{}
	}
	p.mu.RUnlock()

	if p.dir != "" {
		entries, err := os.ReadDir(p.dir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			switch {
			case strings.HasSuffix(name, compressedExt):
				seen[strings.TrimSuffix(name, compressedExt)] = struct{}{}
			case strings.HasSuffix(name, rawExt):
				seen[strings.TrimSuffix(name, rawExt)] = struct{}{}
			}
		}
	}
	if p.combinedID != "" && len(p.combinedMix) > 0 {
		seen[p.combinedID] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (p *Provider) store(id string, data []float32) []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.cache[id]; ok {
		return existing
	}
	p.cache[id] = data
	return data
}

func (p *Provider) load(id string) ([]float32, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrVoiceNotFound, id)
	}

	for _, ext := range []string{rawExt, compressedExt} {
		path := filepath.Join(p.dir, id+ext)
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		defer f.Close()

		var r io.Reader = f
		if ext == compressedExt {
			dec, err := zstd.NewReader(f)
			if err != nil {
				return nil, fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer dec.Close()
			r = dec
		}

		data, err := decodeFloats(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read voice %s: %w", id, err)
		}
		log.Debug("Voice loaded", "voice", id, "path", path, "rows", len(data)/inference.StyleDim)
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrVoiceNotFound, id)
}

// combine builds the weighted sum of the configured base voices with
// weights normalized to sum to one.
func (p *Provider) combine(ctx context.Context) ([]float32, error) {
	if len(p.combinedMix) == 0 {
		return nil, fmt.Errorf("%w: %s has no components", ErrVoiceNotFound, p.combinedID)
	}

	ids := make([]string, 0, len(p.combinedMix))
	total := 0.0
	for id, w := range p.combinedMix {
		if !(w > 0) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: %s=%v", ErrInvalidWeights, id, w)
		}
		ids = append(ids, id)
		total += w
	}
	sort.Strings(ids)

	var mixed []float32
	for _, id := range ids {
		if id == p.combinedID {
			return nil, fmt.Errorf("%w: %s references itself", ErrInvalidWeights, id)
		}
		base, err := p.VoiceData(ctx, id)
		if err != nil {
			return nil, err
		}
		if mixed == nil {
			mixed = make([]float32, len(base))
		}
		if len(base) != len(mixed) {
			return nil, fmt.Errorf("%w: %s has %d values, expected %d", ErrLengthMismatch, id, len(base), len(mixed))
		}
		w := float32(p.combinedMix[id] / total)
		for i, v := range base {
			mixed[i] += v * w
		}
	}
	return mixed, nil
}

func decodeFloats(r io.Reader) ([]float32, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, ErrInvalidVoiceData
	}
	data := make([]float32, len(raw)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	if len(data) == 0 || len(data)%inference.StyleDim != 0 {
		return nil, fmt.Errorf("%w: %d values", ErrInvalidVoiceData, len(data))
	}
	return data, nil
}

// EncodeFloats writes data in the voice file layout.
func EncodeFloats(w io.Writer, data []float32) error {
	return binary.Write(w, binary.LittleEndian, data)
}

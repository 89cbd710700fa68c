// Package inference prepares model inputs and runs the acoustic model.
package inference

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"
)

// StyleDim is the length of one voice style vector.
const StyleDim = 256

// Tensor is a named model input or output. Exactly one of the data
// slices is set.
type Tensor struct {
	Name        string
	Shape       []int64
	Int64Data   []int64
	Float32Data []float32
}

// Runner executes the model. Implementations must allow Run to be
// called from several goroutines when the adapter permits it.
type Runner interface {
	Run(ctx context.Context, inputs []Tensor) (map[string]Tensor, error)
	Close() error
}

// Names holds the model's tensor names.
type Names struct {
	InputIDs string `yaml:"input_ids"`
	Style    string `yaml:"style"`
	Speed    string `yaml:"speed"`
	Waveform string `yaml:"waveform"`
}

// DefaultNames returns the tensor names of the exported Kokoro model.
func DefaultNames() Names {
	return Names{
		InputIDs: "input_ids",
		Style:    "style",
		Speed:    "speed",
		Waveform: "waveform",
	}
}

// Adapter validates inputs, builds tensors and extracts the waveform.
type Adapter struct {
	names Names
	gate  *semaphore.Weighted

	mu     sync.RWMutex
	runner Runner
}

// NewAdapter creates an adapter that allows maxConcurrent runs at once.
// maxConcurrent <= 0 serializes runs.
func NewAdapter(names Names, maxConcurrent int) *Adapter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Adapter{
		names: names,
		gate:  semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Load installs r, closing any previously loaded runner.
func (a *Adapter) Load(r Runner) error {
	a.mu.Lock()
	prev := a.runner
	a.runner = r
	a.mu.Unlock()

	if prev != nil {
		return prev.Close()
	}
	return nil
}

// Loaded reports whether a runner is installed.
func (a *Adapter) Loaded() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.runner != nil
}

// Close releases the runner.
func (a *Adapter) Close() error {
	return a.Load(nil)
}

// Run synthesizes a waveform. Samples are returned unclamped.
func (a *Adapter) Run(ctx context.Context, tokens []int64, style []float32, speed float32) ([]float32, error) {
	a.mu.RLock()
	runner := a.runner
	a.mu.RUnlock()

	if runner == nil {
		return nil, ErrNotInitialized
	}
	if len(tokens) == 0 {
		return nil, ErrEmptyTokens
	}
	if len(style) != StyleDim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrStyleDimension, len(style), StyleDim)
	}
	if !(speed > 0) {
		return nil, ErrInvalidSpeed
	}

	if err := a.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer a.gate.Release(1)

	inputs := []Tensor{
		{Name: a.names.InputIDs, Shape: []int64{1, int64(len(tokens))}, Int64Data: tokens},
		{Name: a.names.Style, Shape: []int64{1, StyleDim}, Float32Data: style},
		{Name: a.names.Speed, Shape: []int64{1}, Float32Data: []float32{speed}},
	}

	outputs, err := runner.Run(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("model run failed: %w", err)
	}

	waveform, ok := outputs[a.names.Waveform]
	if !ok || waveform.Float32Data == nil {
		return nil, ErrInvalidOutput
	}

	log.Debug("Inference complete", "tokens", len(tokens), "samples", len(waveform.Float32Data))
	return waveform.Float32Data, nil
}

// StyleOffset returns the style table row for a token sequence:
// the token count without sentinels, clamped to [0, maxPhonemeLength-1].
func StyleOffset(tokenCount, maxPhonemeLength int) int {
	offset := tokenCount - 2
	if offset > maxPhonemeLength-1 {
		offset = maxPhonemeLength - 1
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}

// SelectStyle returns row offset of a voice table made of StyleDim-wide
// rows. Offsets past the end select the last row.
func SelectStyle(voice []float32, offset int) ([]float32, error) {
	rows := len(voice) / StyleDim
	if rows == 0 {
		return nil, ErrEmptyVoice
	}
	if offset >= rows {
		offset = rows - 1
	}
	if offset < 0 {
		offset = 0
	}
	start := offset * StyleDim
	return voice[start : start+StyleDim], nil
}

//go:build cgo

package inference

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// ORTConfig configures the ONNX Runtime backed runner.
type ORTConfig struct {
	ModelPath         string
	SharedLibraryPath string
	IntraOpThreads    int
	Names             Names
}

// ORTRunner runs a model through ONNX Runtime. The session is reused
// across calls.
type ORTRunner struct {
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
}

// NewORTRunner initializes the runtime once per process and opens a
// session for the model at cfg.ModelPath.
func NewORTRunner(cfg ORTConfig) (*ORTRunner, error) {
	ortInitOnce.Do(func() {
		if cfg.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
		}
		if !ort.IsInitialized() {
			ortInitErr = ort.InitializeEnvironment()
		}
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceUnavailable, ortInitErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	inputNames := []string{cfg.Names.InputIDs, cfg.Names.Style, cfg.Names.Speed}
	outputNames := []string{cfg.Names.Waveform}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", cfg.ModelPath, err)
	}

	log.Debug("ONNX session created", "model", cfg.ModelPath, "inputs", inputNames, "outputs", outputNames)
	return &ORTRunner{
		session:     session,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Run converts inputs to runtime tensors in session order and lets the
// runtime allocate the outputs.
func (r *ORTRunner) Run(ctx context.Context, inputs []Tensor) (map[string]Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byName := make(map[string]Tensor, len(inputs))
	for _, in := range inputs {
		byName[in.Name] = in
	}

	values := make([]ort.Value, 0, len(r.inputNames))
	defer func() {
		for _, v := range values {
			v.Destroy()
		}
	}()
	for _, name := range r.inputNames {
		in, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, name)
		}
		v, err := toValue(in)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	outputs := make([]ort.Value, len(r.outputNames))
	if err := r.session.Run(values, outputs); err != nil {
		return nil, err
	}

	result := make(map[string]Tensor, len(outputs))
	for i, out := range outputs {
		if out == nil {
			continue
		}
		if t, ok := out.(*ort.Tensor[float32]); ok {
			data := make([]float32, len(t.GetData()))
			copy(data, t.GetData())
			result[r.outputNames[i]] = Tensor{
				Name:        r.outputNames[i],
				Shape:       []int64(t.GetShape()),
				Float32Data: data,
			}
		}
		out.Destroy()
	}
	return result, nil
}

// Close destroys the session.
func (r *ORTRunner) Close() error {
	if r.session == nil {
		return nil
	}
	err := r.session.Destroy()
	r.session = nil
	return err
}

func toValue(t Tensor) (ort.Value, error) {
	shape := ort.NewShape(t.Shape...)
	switch {
	case t.Int64Data != nil:
		return ort.NewTensor(shape, t.Int64Data)
	case t.Float32Data != nil:
		return ort.NewTensor(shape, t.Float32Data)
	default:
		return nil, fmt.Errorf("%w: %s has no data", ErrMissingInput, t.Name)
	}
}

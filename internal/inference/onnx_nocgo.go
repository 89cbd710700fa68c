//go:build !cgo

package inference

import "context"

// ORTConfig configures the ONNX Runtime backed runner.
type ORTConfig struct {
	ModelPath         string
	SharedLibraryPath string
	IntraOpThreads    int
	Names             Names
}

// ORTRunner is unavailable without cgo.
type ORTRunner struct{}

// NewORTRunner always fails: ONNX Runtime requires cgo.
func NewORTRunner(cfg ORTConfig) (*ORTRunner, error) {
	return nil, ErrInferenceUnavailable
}

// Run always fails.
func (r *ORTRunner) Run(ctx context.Context, inputs []Tensor) (map[string]Tensor, error) {
	return nil, ErrInferenceUnavailable
}

// Close is a no-op.
func (r *ORTRunner) Close() error {
	return nil
}

package inference

import "errors"

var (
	// Session errors
	ErrNotInitialized       = errors.New("inference session not initialized")
	ErrInferenceUnavailable = errors.New("inference is not available on this platform")
	ErrInvalidOutput        = errors.New("invalid output: missing waveform tensor")

	// Input errors
	ErrEmptyTokens    = errors.New("token sequence is empty")
	ErrStyleDimension = errors.New("style vector has wrong dimension")
	ErrInvalidSpeed   = errors.New("speed must be greater than zero")
	ErrMissingInput   = errors.New("missing input tensor")
	ErrEmptyVoice     = errors.New("voice data is empty")
)

package synth

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotLoaded is returned by synthesis calls before LoadModel
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrEmptyText is returned when text yields no phoneme codes
	ErrEmptyText = errors.New("text produced no phonemes")

	// ErrInvalidSpeed is returned for a speed that is not a positive number
	ErrInvalidSpeed = errors.New("speed must be greater than zero")

	// ErrNoRunnerFactory is returned by LoadModel when no runner factory
	// was configured
	ErrNoRunnerFactory = errors.New("no model runner configured")
)

// Error describes a failed synthesis step.
type Error struct {
	Err       error          // The underlying error
	Component string         // Pipeline stage that failed
	Action    string         // What the stage was doing
	Context   map[string]any // Additional details
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Component, e.Action)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithContext adds a detail to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func newError(err error, component, action string) *Error {
	return &Error{Err: err, Component: component, Action: action}
}

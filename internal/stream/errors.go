package stream

import "errors"

var (
	ErrNoChunks        = errors.New("text produced no chunks")
	ErrInvalidSpeed    = errors.New("speed must be greater than zero")
	ErrStateTransition = errors.New("invalid state transition")
	ErrSessionReplaced = errors.New("streaming session was replaced or stopped")
)

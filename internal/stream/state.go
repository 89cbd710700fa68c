package stream

import (
	"fmt"
	"sync"
)

// StateType is a phase of a streaming session.
type StateType int

const (
	// StateIdle indicates nothing is streaming.
	StateIdle StateType = iota
	// StateChunking indicates the input is being split.
	StateChunking
	// StateGeneratingFirst indicates the first chunk is being synthesized.
	StateGeneratingFirst
	// StateStreaming indicates playback runs while later chunks generate.
	StateStreaming
	// StateDraining indicates generation finished and playback continues.
	StateDraining
	// StateCancelled indicates the session was stopped.
	StateCancelled
	// StateError indicates the session failed.
	StateError
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChunking:
		return "chunking"
	case StateGeneratingFirst:
		return "generating_first"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateCancelled:
		return "cancelled"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether audio is being produced or played.
func (s StateType) Active() bool {
	switch s {
	case StateChunking, StateGeneratingFirst, StateStreaming, StateDraining:
		return true
	}
	return false
}

// StateMachine validates session state transitions. It is safe for
// concurrent use.
type StateMachine struct {
	mu          sync.Mutex
	current     StateType
	transitions map[StateType][]StateType
}

// NewStateMachine creates a state machine in StateIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			StateIdle:            {StateChunking},
			StateChunking:        {StateGeneratingFirst, StateError, StateCancelled},
			StateGeneratingFirst: {StateStreaming, StateError, StateCancelled},
			StateStreaming:       {StateDraining, StateError, StateCancelled},
			StateDraining:        {StateIdle, StateCancelled},
			StateCancelled:       {StateIdle},
			StateError:           {StateIdle},
		},
	}
}

// Transition moves to the given state if the transition is allowed.
func (sm *StateMachine) Transition(to StateType) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.allowed(sm.current, to) {
		return fmt.Errorf("%w: %s -> %s", ErrStateTransition, sm.current, to)
	}
	sm.current = to
	return nil
}

// Current returns the current state.
func (sm *StateMachine) Current() StateType {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}

func (sm *StateMachine) allowed(from, to StateType) bool {
	for _, s := range sm.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

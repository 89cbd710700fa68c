package stream

import (
	"errors"
	"testing"
)

func TestStateTypeString(t *testing.T) {
	tests := []struct {
		state    StateType
		expected string
	}{
		{StateIdle, "idle"},
		{StateChunking, "chunking"},
		{StateGeneratingFirst, "generating_first"},
		{StateStreaming, "streaming"},
		{StateDraining, "draining"},
		{StateCancelled, "cancelled"},
		{StateError, "error"},
		{StateType(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := tt.state.String(); result != tt.expected {
				t.Errorf("StateType.String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestStateTypeActive(t *testing.T) {
	active := map[StateType]bool{
		StateIdle:            false,
		StateChunking:        true,
		StateGeneratingFirst: true,
		StateStreaming:       true,
		StateDraining:        true,
		StateCancelled:       false,
		StateError:           false,
	}
	for state, want := range active {
		if got := state.Active(); got != want {
			t.Errorf("%s.Active() = %v, want %v", state, got, want)
		}
	}
}

func TestStateMachine_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []StateType
		wantErr bool
	}{
		{
			name: "full session",
			path: []StateType{StateChunking, StateGeneratingFirst, StateStreaming, StateDraining, StateIdle},
		},
		{
			name: "cancel while streaming",
			path: []StateType{StateChunking, StateGeneratingFirst, StateStreaming, StateCancelled, StateIdle},
		},
		{
			name: "first chunk fails",
			path: []StateType{StateChunking, StateGeneratingFirst, StateError, StateIdle},
		},
		{
			name:    "cannot skip first chunk",
			path:    []StateType{StateChunking, StateStreaming},
			wantErr: true,
		},
		{
			name:    "cannot cancel from idle",
			path:    []StateType{StateCancelled},
			wantErr: true,
		},
		{
			name:    "draining cannot fail",
			path:    []StateType{StateChunking, StateGeneratingFirst, StateStreaming, StateDraining, StateError},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine()
			var err error
			for _, to := range tt.path {
				if err = sm.Transition(to); err != nil {
					break
				}
			}
			if tt.wantErr {
				if !errors.Is(err, ErrStateTransition) {
					t.Errorf("expected ErrStateTransition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := sm.Current(); got != tt.path[len(tt.path)-1] {
				t.Errorf("Current() = %s, want %s", got, tt.path[len(tt.path)-1])
			}
		})
	}
}

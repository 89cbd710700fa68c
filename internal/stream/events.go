package stream

import "time"

// Event is a progress notification from a streaming session. The
// concrete types below are the only implementations.
type Event interface {
	// Session returns the id of the session that produced the event.
	Session() string
}

// ProgressFunc receives session events. Calls are serialized per session.
type ProgressFunc func(Event)

type sessionEvent struct {
	SessionID string
}

func (e sessionEvent) Session() string { return e.SessionID }

// StateChanged reports a state machine transition.
type StateChanged struct {
	sessionEvent
	From StateType
	To   StateType
}

// ChunkReady reports a chunk queued for playback.
type ChunkReady struct {
	sessionEvent
	Index    int           // Chunk position, starting at 0
	Total    int           // Number of chunks in the utterance
	Text     string        // Chunk text
	Phonemes string        // Phonemes the chunk was synthesized from
	Duration time.Duration // Expected playback length
}

// ChunkFailed reports a chunk that will not be played.
type ChunkFailed struct {
	sessionEvent
	Index    int
	Total    int
	Text     string
	Attempts int
	Err      error
}

// ChunkPlaying reports that playback of a chunk started.
type ChunkPlaying struct {
	sessionEvent
	Index int
	Total int
}

// MetricsUpdated reports generation throughput.
type MetricsUpdated struct {
	sessionEvent
	TokensPerSecond float64
	TotalTokens     int
	ChunksDone      int
	Total           int
	Final           bool // Set once every chunk has finished generating
}

// Completed reports that every queued chunk finished playing.
type Completed struct {
	sessionEvent
	Played  int
	Skipped int
	Elapsed time.Duration
}

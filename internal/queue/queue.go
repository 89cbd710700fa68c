package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/speakstream/internal/audio"
)

var (
	// ErrQueueClosed is returned when pushing after Close
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueStopped is returned when pushing after Stop
	ErrQueueStopped = errors.New("queue is stopped")

	// ErrStaleChunk is returned for an index that already played, was
	// skipped or is already queued
	ErrStaleChunk = errors.New("chunk index already handled")
)

// Chunk is one playable clip.
type Chunk struct {
	Index    int           // Position in the utterance, starting at 0
	URI      string        // Clip location
	Duration time.Duration // Expected playback length
	Text     string        // Source text of the clip
}

// Config controls playback timing and cleanup.
type Config struct {
	// FinishBuffer is added to a chunk's duration to arm the fallback
	// timer that ends playback when no finish event arrives.
	FinishBuffer time.Duration
	// RemoveAfterPlayback deletes clip files once they have played.
	RemoveAfterPlayback bool
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() Config {
	return Config{
		FinishBuffer:        250 * time.Millisecond,
		RemoveAfterPlayback: true,
	}
}

// Stats tracks queue activity.
type Stats struct {
	Pushed  int
	Played  int
	Skipped int
	Failed  int
}

// Remover deletes a clip after playback.
type Remover interface {
	Remove(uri string) error
}

// Queue is a single-consumer playback queue ordered by chunk index.
type Queue struct {
	players audio.PlayerFactory
	remover Remover
	cfg     Config

	mu      sync.Mutex
	pending map[int]Chunk
	skipped map[int]struct{}
	next    int
	playing bool
	closed  bool
	stopped bool
	active  audio.Player
	stats   Stats

	// onPlay is called when a chunk starts playing
	onPlay func(Chunk)

	stopCh   chan struct{}
	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an idle queue. remover may be nil.
func New(players audio.PlayerFactory, remover Remover, cfg Config) *Queue {
	return &Queue{
		players: players,
		remover: remover,
		cfg:     cfg,
		pending: make(map[int]Chunk),
		skipped: make(map[int]struct{}),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// OnPlay registers a callback invoked from the consumer goroutine as
// each chunk starts. It must be set before the first Push.
func (q *Queue) OnPlay(fn func(Chunk)) {
	q.mu.Lock()
	q.onPlay = fn
	q.mu.Unlock()
}

// Push adds a chunk and starts the consumer when it is idle.
func (q *Queue) Push(c Chunk) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrQueueStopped
	}
	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.pending[c.Index]; ok || c.Index < q.next {
		return ErrStaleChunk
	}
	if _, ok := q.skipped[c.Index]; ok {
		return ErrStaleChunk
	}

	q.pending[c.Index] = c
	q.stats.Pushed++
	q.startLocked()
	return nil
}

// Skip marks index as never arriving so later chunks do not wait for it.
func (q *Queue) Skip(index int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || index < q.next {
		return
	}
	if _, ok := q.pending[index]; ok {
		return
	}
	q.skipped[index] = struct{}{}
	q.stats.Skipped++
	q.startLocked()
	q.checkDoneLocked()
}

// Close marks the end of input. Done is closed once every queued chunk
// has played.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.checkDoneLocked()
}

// Done returns a channel closed when the queue is closed and drained, or
// stopped.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// IsPlaying reports whether the consumer is active.
func (q *Queue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Len returns the number of chunks waiting to play.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Stop halts the active player, discards pending chunks and waits for
// the consumer to exit. It is safe to call more than once.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.stopCh)
	active := q.active
	discarded := make([]Chunk, 0, len(q.pending))
	for _, c := range q.pending {
		discarded = append(discarded, c)
	}
	q.pending = make(map[int]Chunk)
	q.mu.Unlock()

	if active != nil {
		if err := active.Stop(); err != nil {
			log.Debug("Failed to stop player", "error", err)
		}
	}
	q.wg.Wait()

	for _, c := range discarded {
		q.cleanup(c)
	}
	q.doneOnce.Do(func() { close(q.done) })
}

func (q *Queue) startLocked() {
	if q.playing || q.stopped {
		return
	}
	q.advanceLocked()
	if _, ok := q.pending[q.next]; !ok {
		return
	}
	q.playing = true
	q.wg.Add(1)
	go q.consume()
}

// advanceLocked moves next past skipped indexes.
func (q *Queue) advanceLocked() {
	for {
		if _, ok := q.skipped[q.next]; !ok {
			return
		}
		delete(q.skipped, q.next)
		q.next++
	}
}

func (q *Queue) checkDoneLocked() {
	if q.closed && !q.playing && len(q.pending) == 0 {
		q.doneOnce.Do(func() { close(q.done) })
	}
}

// consume plays chunks in index order until the next one is missing.
func (q *Queue) consume() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		q.advanceLocked()
		c, ok := q.pending[q.next]
		if !ok || q.stopped {
			q.playing = false
			q.checkDoneLocked()
			q.mu.Unlock()
			return
		}
		delete(q.pending, q.next)
		q.next++
		onPlay := q.onPlay
		q.mu.Unlock()

		q.play(c, onPlay)
	}
}

func (q *Queue) play(c Chunk, onPlay func(Chunk)) {
	defer q.cleanup(c)

	player, err := q.players.CreatePlayer(c.URI)
	if err != nil {
		log.Warn("Failed to create player", "index", c.Index, "error", err)
		q.countFailed()
		return
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		_ = player.Release()
		return
	}
	q.active = player
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.active = nil
		q.mu.Unlock()
		if err := player.Release(); err != nil {
			log.Debug("Failed to release player", "index", c.Index, "error", err)
		}
	}()

	if err := player.Play(); err != nil {
		log.Warn("Playback failed", "index", c.Index, "error", err)
		q.countFailed()
		return
	}
	if onPlay != nil {
		onPlay(c)
	}
	log.Debug("Playing chunk", "index", c.Index, "duration", c.Duration)

	timer := time.NewTimer(c.Duration + q.cfg.FinishBuffer)
	defer timer.Stop()

	select {
	case <-player.Finished():
	case <-timer.C:
		log.Debug("Playback timer elapsed", "index", c.Index)
	case <-q.stopCh:
		return
	}

	q.mu.Lock()
	q.stats.Played++
	q.mu.Unlock()
}

func (q *Queue) countFailed() {
	q.mu.Lock()
	q.stats.Failed++
	q.mu.Unlock()
}

func (q *Queue) cleanup(c Chunk) {
	if !q.cfg.RemoveAfterPlayback || q.remover == nil {
		return
	}
	if err := q.remover.Remove(c.URI); err != nil {
		log.Debug("Failed to remove clip", "uri", c.URI, "error", err)
	}
}

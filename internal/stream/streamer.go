package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/phonemes"
	"github.com/dgnsrekt/speakstream/internal/queue"
)

// ChunkRequest describes one chunk to synthesize.
type ChunkRequest struct {
	Index   int
	Text    string
	VoiceID string
	Speed   float64
}

// ChunkAudio is a synthesized chunk written to a playable clip.
type ChunkAudio struct {
	URI      string        // Clip location
	Duration time.Duration // Expected playback length
	Tokens   int           // Token codes fed to the model
	Phonemes string        // Phonemes the clip was synthesized from
}

// Synthesizer turns chunk text into a clip.
type Synthesizer interface {
	SynthesizeChunk(ctx context.Context, req ChunkRequest) (ChunkAudio, error)
}

// Config controls chunking, retries and concurrency.
type Config struct {
	MaxChunkLength  int           `yaml:"max_chunk_length"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
	Queue           queue.Config  `yaml:"-"`
}

// DefaultConfig returns the default streaming configuration.
func DefaultConfig() Config {
	return Config{
		MaxChunkLength:  80,
		RetryAttempts:   1,
		RetryDelay:      100 * time.Millisecond,
		MaxConcurrent:   1,
		MetricsInterval: 250 * time.Millisecond,
		Queue:           queue.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxChunkLength < 1 {
		return fmt.Errorf("max chunk length must be positive, got %d", c.MaxChunkLength)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative, got %d", c.RetryAttempts)
	}
	if c.RetryDelay < 0 {
		return errors.New("retry delay cannot be negative")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	return nil
}

// Result describes a session whose first chunk is playing.
type Result struct {
	SessionID        string
	TimeToFirstAudio time.Duration
	TokensPerSecond  float64 // Throughput of the first chunk
	TotalTokens      int     // Tokens in the first chunk
	Chunks           int
	// Done is closed when the session completes, fails or is stopped.
	// When it completes, every progress event has been delivered first.
	Done <-chan struct{}
}

// Streamer splits text into chunks, synthesizes the first chunk before
// returning and generates the rest in the background while earlier
// chunks play. At most one session is current; starting a new one stops
// the previous session.
type Streamer struct {
	synth   Synthesizer
	players audio.PlayerFactory
	remover queue.Remover
	cfg     Config
	state   *StateMachine

	mu       sync.Mutex
	epoch    uint64
	current  *session
	phonemes string

	tokensPerSecond atomic.Uint64 // math.Float64bits
	firstAudio      atomic.Int64  // time.Duration
}

// New creates an idle streamer. remover may be nil.
func New(synth Synthesizer, players audio.PlayerFactory, remover queue.Remover, cfg Config) (*Streamer, error) {
	if synth == nil {
		return nil, errors.New("synthesizer is required")
	}
	if players == nil {
		return nil, errors.New("player factory is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stream config: %w", err)
	}
	return &Streamer{
		synth:   synth,
		players: players,
		remover: remover,
		cfg:     cfg,
		state:   NewStateMachine(),
	}, nil
}

// StreamAudio starts a streaming session for text and returns once the
// first chunk is queued for playback. ctx bounds the whole session;
// cancelling it stops playback. onProgress may be nil.
func (s *Streamer) StreamAudio(ctx context.Context, text, voiceID string, speed float64, onProgress ProgressFunc) (Result, error) {
	if !(speed > 0) || math.IsInf(speed, 0) {
		return Result{}, ErrInvalidSpeed
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.StopStreaming()
	sess := s.begin(ctx, onProgress)
	go s.watch(sess)

	chunks := ChunkText(phonemes.Normalize(text), s.cfg.MaxChunkLength)
	if len(chunks) == 0 {
		s.fail(sess, ErrNoChunks)
		return Result{}, ErrNoChunks
	}
	sess.total = len(chunks)
	log.Debug("Chunked text", "session", sess.id, "chunks", len(chunks))

	if err := s.transition(sess, StateGeneratingFirst); err != nil {
		return Result{}, abandoned(ctx, err)
	}

	req := ChunkRequest{Index: 0, Text: chunks[0], VoiceID: voiceID, Speed: speed}
	started := time.Now()
	first, _, err := s.generate(sess.ctx, req)
	genTime := time.Since(started)
	if err != nil {
		if !s.isCurrent(sess) {
			return Result{}, abandoned(ctx, ErrSessionReplaced)
		}
		s.fail(sess, err)
		return Result{}, err
	}

	if err := sess.queue.Push(s.queueChunk(req, first)); err != nil {
		s.discard(first.URI)
		return Result{}, abandoned(ctx, ErrSessionReplaced)
	}
	ttfa := time.Since(sess.started)
	firstTPS := tokensPerSecond(first.Tokens, genTime)
	sess.record(0, first)

	s.mu.Lock()
	if s.current == sess {
		s.phonemes = sess.joinedPhonemes()
		s.firstAudio.Store(int64(ttfa))
		s.tokensPerSecond.Store(math.Float64bits(firstTPS))
	}
	s.mu.Unlock()

	if err := s.transition(sess, StateStreaming); err != nil {
		return Result{}, abandoned(ctx, err)
	}
	sess.emit(ChunkReady{
		sessionEvent: sess.base(),
		Index:        0,
		Total:        sess.total,
		Text:         req.Text,
		Phonemes:     first.Phonemes,
		Duration:     first.Duration,
	})
	log.Info("Streaming started", "session", sess.id, "chunks", sess.total, "ttfa", ttfa)

	go s.generateRest(sess, chunks[1:], voiceID, speed)

	return Result{
		SessionID:        sess.id,
		TimeToFirstAudio: ttfa,
		TokensPerSecond:  firstTPS,
		TotalTokens:      first.Tokens,
		Chunks:           sess.total,
		Done:             sess.done,
	}, nil
}

// StopStreaming cancels the current session, stops playback and resets
// the metrics. It is a no-op when nothing is streaming.
func (s *Streamer) StopStreaming() {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess != nil {
		s.stop(sess)
	}
}

// IsStreaming reports whether a session is producing or playing audio.
func (s *Streamer) IsStreaming() bool {
	return s.state.Current().Active()
}

// State returns the current session phase.
func (s *Streamer) State() StateType {
	return s.state.Current()
}

// TokensPerSecond returns the latest generation throughput.
func (s *Streamer) TokensPerSecond() float64 {
	return math.Float64frombits(s.tokensPerSecond.Load())
}

// TimeToFirstAudio returns how long the latest session took to queue its
// first chunk.
func (s *Streamer) TimeToFirstAudio() time.Duration {
	return time.Duration(s.firstAudio.Load())
}

// StreamingPhonemes returns the phonemes of the chunks generated so far.
func (s *Streamer) StreamingPhonemes() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phonemes
}

// begin replaces the current session and enters StateChunking.
func (s *Streamer) begin(ctx context.Context, onProgress ProgressFunc) *session {
	q := queue.New(s.players, s.remover, s.cfg.Queue)

	s.mu.Lock()
	s.epoch++
	sess := newSession(ctx, s.epoch, q, onProgress, s.cfg.MetricsInterval)
	s.current = sess
	s.resetMetricsLocked()
	err := s.state.Transition(StateChunking)
	s.mu.Unlock()

	q.OnPlay(func(c queue.Chunk) {
		sess.emit(ChunkPlaying{sessionEvent: sess.base(), Index: c.Index, Total: sess.total})
	})

	if err != nil {
		log.Warn("Unexpected state on session start", "error", err)
		return sess
	}
	sess.emit(StateChanged{sessionEvent: sess.base(), From: StateIdle, To: StateChunking})
	return sess
}

// watch stops sess when its context ends while it is still current.
func (s *Streamer) watch(sess *session) {
	<-sess.ctx.Done()
	s.stop(sess)
}

// stop cancels sess if it is the current session.
func (s *Streamer) stop(sess *session) {
	s.mu.Lock()
	if s.current != sess {
		s.mu.Unlock()
		return
	}
	s.current = nil
	from := s.state.Current()
	cancelled := s.state.Transition(StateCancelled) == nil
	if cancelled {
		_ = s.state.Transition(StateIdle)
	}
	s.resetMetricsLocked()
	s.mu.Unlock()

	sess.silence()
	sess.cancel()
	sess.queue.Stop()
	sess.finish()
	log.Debug("Streaming stopped", "session", sess.id, "from", from)
}

// fail moves a current session through StateError back to idle.
func (s *Streamer) fail(sess *session, err error) {
	s.mu.Lock()
	if s.current != sess {
		s.mu.Unlock()
		return
	}
	s.current = nil
	from := s.state.Current()
	failed := s.state.Transition(StateError) == nil
	if failed {
		_ = s.state.Transition(StateIdle)
	}
	s.mu.Unlock()

	sess.queue.Stop()
	log.Error("Streaming failed", "session", sess.id, "error", err)
	if failed {
		sess.emit(StateChanged{sessionEvent: sess.base(), From: from, To: StateError})
		sess.emit(StateChanged{sessionEvent: sess.base(), From: StateError, To: StateIdle})
	}
	sess.flush()
	sess.finish()
}

// complete returns a drained session to idle.
func (s *Streamer) complete(sess *session) {
	s.mu.Lock()
	if s.current != sess {
		s.mu.Unlock()
		return
	}
	s.current = nil
	err := s.state.Transition(StateIdle)
	s.mu.Unlock()

	stats := sess.queue.Stats()
	if err == nil {
		sess.emit(StateChanged{sessionEvent: sess.base(), From: StateDraining, To: StateIdle})
	}
	sess.emit(Completed{
		sessionEvent: sess.base(),
		Played:       stats.Played,
		Skipped:      stats.Skipped,
		Elapsed:      time.Since(sess.started),
	})
	log.Info("Streaming complete", "session", sess.id, "played", stats.Played, "skipped", stats.Skipped)
	sess.flush()
	sess.finish()
}

// transition moves the state machine on behalf of sess and emits the
// change. It fails when sess is no longer current.
func (s *Streamer) transition(sess *session, to StateType) error {
	s.mu.Lock()
	if s.current != sess {
		s.mu.Unlock()
		return ErrSessionReplaced
	}
	from := s.state.Current()
	err := s.state.Transition(to)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	sess.emit(StateChanged{sessionEvent: sess.base(), From: from, To: to})
	return nil
}

// abandoned reports ctx.Err() when a session ended because its context
// was cancelled, and err otherwise.
func abandoned(ctx context.Context, err error) error {
	if errors.Is(err, ErrSessionReplaced) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Streamer) isCurrent(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == sess && s.epoch == sess.epoch
}

func (s *Streamer) resetMetricsLocked() {
	s.phonemes = ""
	s.tokensPerSecond.Store(0)
	s.firstAudio.Store(0)
}

// generate synthesizes one chunk, retrying failures up to RetryAttempts
// times.
func (s *Streamer) generate(ctx context.Context, req ChunkRequest) (ChunkAudio, int, error) {
	attempts := 0
	for {
		attempts++
		clip, err := s.synth.SynthesizeChunk(ctx, req)
		if err == nil {
			return clip, attempts, nil
		}
		if ctx.Err() != nil {
			return ChunkAudio{}, attempts, ctx.Err()
		}
		if attempts > s.cfg.RetryAttempts {
			return ChunkAudio{}, attempts, err
		}
		log.Debug("Retrying chunk", "index", req.Index, "attempt", attempts, "error", err)

		timer := time.NewTimer(s.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ChunkAudio{}, attempts, ctx.Err()
		case <-timer.C:
		}
	}
}

// generateRest synthesizes the remaining chunks, then drains the queue.
func (s *Streamer) generateRest(sess *session, chunks []string, voiceID string, speed float64) {
	g, ctx := errgroup.WithContext(sess.ctx)
	g.SetLimit(s.cfg.MaxConcurrent)

	for i, text := range chunks {
		req := ChunkRequest{Index: i + 1, Text: text, VoiceID: voiceID, Speed: speed}
		g.Go(func() error {
			s.generateChunk(ctx, sess, req)
			return nil
		})
	}
	_ = g.Wait()

	if !s.isCurrent(sess) {
		return
	}
	tokens, done := sess.totals()
	tps := tokensPerSecond(tokens, time.Since(sess.started))
	s.tokensPerSecond.Store(math.Float64bits(tps))
	sess.emitMetrics(MetricsUpdated{
		sessionEvent:    sess.base(),
		TokensPerSecond: tps,
		TotalTokens:     tokens,
		ChunksDone:      done,
		Total:           sess.total,
		Final:           true,
	})

	if err := s.transition(sess, StateDraining); err != nil {
		return
	}
	sess.queue.Close()

	select {
	case <-sess.queue.Done():
		s.complete(sess)
	case <-sess.ctx.Done():
	}
}

// generateChunk synthesizes a background chunk. Results for a replaced
// session are discarded; failures are skipped so playback continues.
func (s *Streamer) generateChunk(ctx context.Context, sess *session, req ChunkRequest) {
	clip, attempts, err := s.generate(ctx, req)
	if !s.isCurrent(sess) {
		if err == nil {
			s.discard(clip.URI)
		}
		return
	}

	if err != nil {
		log.Warn("Chunk failed, skipping", "session", sess.id, "index", req.Index, "attempts", attempts, "error", err)
		sess.queue.Skip(req.Index)
		sess.emit(ChunkFailed{
			sessionEvent: sess.base(),
			Index:        req.Index,
			Total:        sess.total,
			Text:         req.Text,
			Attempts:     attempts,
			Err:          err,
		})
		return
	}

	if err := sess.queue.Push(s.queueChunk(req, clip)); err != nil {
		log.Debug("Dropping chunk", "index", req.Index, "error", err)
		s.discard(clip.URI)
		return
	}

	tokens, done := sess.record(req.Index, clip)
	tps := tokensPerSecond(tokens, time.Since(sess.started))

	s.mu.Lock()
	if s.current == sess {
		s.phonemes = sess.joinedPhonemes()
		s.tokensPerSecond.Store(math.Float64bits(tps))
	}
	s.mu.Unlock()

	sess.emit(ChunkReady{
		sessionEvent: sess.base(),
		Index:        req.Index,
		Total:        sess.total,
		Text:         req.Text,
		Phonemes:     clip.Phonemes,
		Duration:     clip.Duration,
	})
	sess.emitMetrics(MetricsUpdated{
		sessionEvent:    sess.base(),
		TokensPerSecond: tps,
		TotalTokens:     tokens,
		ChunksDone:      done,
		Total:           sess.total,
	})
}

func (s *Streamer) queueChunk(req ChunkRequest, clip ChunkAudio) queue.Chunk {
	return queue.Chunk{
		Index:    req.Index,
		URI:      clip.URI,
		Duration: clip.Duration,
		Text:     req.Text,
	}
}

// discard removes a clip that will never be queued.
func (s *Streamer) discard(uri string) {
	if s.remover == nil || uri == "" {
		return
	}
	if err := s.remover.Remove(uri); err != nil {
		log.Debug("Failed to remove discarded clip", "uri", uri, "error", err)
	}
}

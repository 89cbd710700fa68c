package stream

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/speakstream/internal/queue"
)

// session is the state of one StreamAudio call. A session is current
// until it completes, fails or is replaced; stale sessions only clean up.
type session struct {
	id      string
	epoch   uint64
	ctx     context.Context
	cancel  context.CancelFunc
	queue   *queue.Queue
	started time.Time
	total   int

	done     chan struct{}
	doneOnce sync.Once

	// fnMu guards the callback reference so it can be dropped from
	// inside a callback.
	fnMu       sync.Mutex
	onProgress ProgressFunc
	limiter    *rate.Limiter

	// Events wait in pending until the dispatcher goroutine delivers
	// them in emit order.
	evMu    sync.Mutex
	pending []Event
	closed  bool
	wake    chan struct{}
	drained chan struct{}

	mu         sync.Mutex
	tokens     int
	chunksDone int
	phonemes   map[int]string
}

func newSession(parent context.Context, epoch uint64, q *queue.Queue, onProgress ProgressFunc, metricsEvery time.Duration) *session {
	ctx, cancel := context.WithCancel(parent)

	limit := rate.Inf
	if metricsEvery > 0 {
		limit = rate.Every(metricsEvery)
	}
	s := &session{
		id:         uuid.NewString(),
		epoch:      epoch,
		ctx:        ctx,
		cancel:     cancel,
		queue:      q,
		started:    time.Now(),
		done:       make(chan struct{}),
		onProgress: onProgress,
		limiter:    rate.NewLimiter(limit, 1),
		wake:       make(chan struct{}, 1),
		drained:    make(chan struct{}),
		phonemes:   make(map[int]string),
	}
	go s.dispatch()
	return s
}

func (s *session) base() sessionEvent {
	return sessionEvent{SessionID: s.id}
}

// emit queues ev for delivery and never blocks on the callback. Events
// emitted after the session ends are dropped.
func (s *session) emit(ev Event) {
	s.evMu.Lock()
	if s.closed {
		s.evMu.Unlock()
		return
	}
	s.pending = append(s.pending, ev)
	s.evMu.Unlock()
	s.notify()
}

func (s *session) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatch delivers queued events one at a time until the session closes
// its event stream and the backlog is empty.
func (s *session) dispatch() {
	defer close(s.drained)
	for {
		s.evMu.Lock()
		batch, closed := s.pending, s.closed
		s.pending = nil
		s.evMu.Unlock()

		for _, ev := range batch {
			s.fnMu.Lock()
			fn := s.onProgress
			s.fnMu.Unlock()
			if fn != nil {
				fn(ev)
			}
		}
		switch {
		case len(batch) > 0:
		case closed:
			return
		default:
			<-s.wake
		}
	}
}

// closeEvents stops accepting events. Queued events are still delivered
// unless the session is silenced.
func (s *session) closeEvents() {
	s.evMu.Lock()
	s.closed = true
	s.evMu.Unlock()
	s.notify()
}

// flush closes the event stream and waits until every queued event has
// been delivered. It must not be called from a progress callback.
func (s *session) flush() {
	s.closeEvents()
	<-s.drained
}

// emitMetrics delivers throughput updates at most once per interval,
// except the final one.
func (s *session) emitMetrics(ev MetricsUpdated) {
	if !ev.Final && !s.limiter.Allow() {
		return
	}
	s.emit(ev)
}

func (s *session) silence() {
	s.fnMu.Lock()
	s.onProgress = nil
	s.fnMu.Unlock()
}

// record adds a finished chunk to the session totals.
func (s *session) record(index int, audio ChunkAudio) (tokens, done int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens += audio.Tokens
	s.chunksDone++
	s.phonemes[index] = audio.Phonemes
	return s.tokens, s.chunksDone
}

func (s *session) totals() (tokens, done int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens, s.chunksDone
}

// joinedPhonemes returns the phonemes of finished chunks in chunk order.
func (s *session) joinedPhonemes() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	indexes := make([]int, 0, len(s.phonemes))
	for i := range s.phonemes {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	parts := make([]string, 0, len(indexes))
	for _, i := range indexes {
		if p := s.phonemes[i]; p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// finish releases the session context, ends the event stream and
// signals Done.
func (s *session) finish() {
	s.cancel()
	s.closeEvents()
	s.doneOnce.Do(func() { close(s.done) })
}

func tokensPerSecond(tokens int, elapsed time.Duration) float64 {
	if tokens <= 0 || elapsed <= 0 {
		return 0
	}
	return float64(tokens) / elapsed.Seconds()
}

package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/queue"
)

const threeSentences = "One two three. Four five six. Seven eight nine."

var errSynth = errors.New("synthesis failed")

type fakeSynth struct {
	delay func(req ChunkRequest) time.Duration
	fail  func(req ChunkRequest, attempt int) error

	mu    sync.Mutex
	calls map[int]int
}

func (f *fakeSynth) SynthesizeChunk(ctx context.Context, req ChunkRequest) (ChunkAudio, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[int]int)
	}
	f.calls[req.Index]++
	attempt := f.calls[req.Index]
	f.mu.Unlock()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(req)):
		case <-ctx.Done():
			return ChunkAudio{}, ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(req, attempt); err != nil {
			return ChunkAudio{}, err
		}
	}
	return ChunkAudio{
		URI:      fmt.Sprintf("%s-%d", req.VoiceID, req.Index),
		Duration: 5 * time.Millisecond,
		Tokens:   10,
		Phonemes: fmt.Sprintf("p%d", req.Index),
	}, nil
}

func (f *fakeSynth) callCount(index int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[index]
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

type countingRemover struct {
	mu      sync.Mutex
	removed []string
}

func (c *countingRemover) Remove(uri string) error {
	c.mu.Lock()
	c.removed = append(c.removed, uri)
	c.mu.Unlock()
	return nil
}

func (c *countingRemover) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.removed)
}

func testConfig() Config {
	return Config{
		MaxChunkLength:  20,
		RetryAttempts:   1,
		RetryDelay:      time.Millisecond,
		MaxConcurrent:   2,
		MetricsInterval: 0,
		Queue: queue.Config{
			FinishBuffer:        50 * time.Millisecond,
			RemoveAfterPlayback: true,
		},
	}
}

func newTestStreamer(t *testing.T, synth Synthesizer, players audio.PlayerFactory, remover queue.Remover) *Streamer {
	t.Helper()
	s, err := New(synth, players, remover, testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(s.StopStreaming)
	return s
}

func waitSession(t *testing.T, res Result) {
	t.Helper()
	select {
	case <-res.Done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestNew_Validation(t *testing.T) {
	players := &audio.MockFactory{}
	if _, err := New(nil, players, nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil synthesizer")
	}
	if _, err := New(&fakeSynth{}, nil, nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil player factory")
	}
	cfg := DefaultConfig()
	cfg.MaxChunkLength = 0
	if _, err := New(&fakeSynth{}, players, nil, cfg); err == nil {
		t.Error("expected error for zero chunk length")
	}
}

func TestStreamAudio_PlaysChunksInOrder(t *testing.T) {
	synth := &fakeSynth{
		delay: func(req ChunkRequest) time.Duration {
			if req.Index == 1 {
				return 40 * time.Millisecond
			}
			return 0
		},
	}
	players := &audio.MockFactory{FinishAfter: 2 * time.Millisecond}
	remover := &countingRemover{}
	s := newTestStreamer(t, synth, players, remover)
	rec := &recorder{}

	res, err := s.StreamAudio(context.Background(), threeSentences, "a", 1.0, rec.record)
	if err != nil {
		t.Fatalf("StreamAudio failed: %v", err)
	}
	if res.Chunks != 3 {
		t.Errorf("expected 3 chunks, got %d", res.Chunks)
	}
	if res.TotalTokens != 10 {
		t.Errorf("expected 10 first chunk tokens, got %d", res.TotalTokens)
	}
	if res.TimeToFirstAudio <= 0 {
		t.Error("expected positive time to first audio")
	}
	if res.SessionID == "" {
		t.Error("expected a session id")
	}

	waitSession(t, res)

	want := []string{"a-0", "a-1", "a-2"}
	if got := players.Played(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected playback %v, got %v", want, got)
	}
	if got := remover.count(); got != 3 {
		t.Errorf("expected 3 clips removed, got %d", got)
	}
	if s.State() != StateIdle {
		t.Errorf("expected idle after completion, got %s", s.State())
	}
	if s.IsStreaming() {
		t.Error("expected IsStreaming false after completion")
	}
	if got := s.StreamingPhonemes(); got != "p0 p1 p2" {
		t.Errorf("StreamingPhonemes() = %q", got)
	}
	if s.TokensPerSecond() <= 0 {
		t.Error("expected positive tokens per second")
	}

	var completed *Completed
	for _, ev := range rec.all() {
		if ev.Session() != res.SessionID {
			t.Errorf("event %T tagged with %q, want %q", ev, ev.Session(), res.SessionID)
		}
		if c, ok := ev.(Completed); ok {
			completed = &c
		}
	}
	if completed == nil {
		t.Fatal("expected a Completed event")
	}
	if completed.Played != 3 {
		t.Errorf("expected 3 played, got %d", completed.Played)
	}
}

func TestStreamAudio_StateSequence(t *testing.T) {
	s := newTestStreamer(t, &fakeSynth{}, &audio.MockFactory{FinishAfter: time.Millisecond}, nil)
	rec := &recorder{}

	res, err := s.StreamAudio(context.Background(), "Hello world.", "a", 1.0, rec.record)
	if err != nil {
		t.Fatalf("StreamAudio failed: %v", err)
	}
	waitSession(t, res)

	var got []StateType
	for _, ev := range rec.all() {
		if sc, ok := ev.(StateChanged); ok {
			got = append(got, sc.To)
		}
	}
	want := []StateType{StateChunking, StateGeneratingFirst, StateStreaming, StateDraining, StateIdle}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected states %v, got %v", want, got)
	}
}

func TestStreamAudio_InvalidSpeed(t *testing.T) {
	synth := &fakeSynth{}
	s := newTestStreamer(t, synth, &audio.MockFactory{}, nil)

	for _, speed := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := s.StreamAudio(context.Background(), "Hello.", "a", speed, nil); !errors.Is(err, ErrInvalidSpeed) {
			t.Errorf("speed %v: expected ErrInvalidSpeed, got %v", speed, err)
		}
	}
	if synth.callCount(0) != 0 {
		t.Error("expected no synthesis for invalid speed")
	}
}

func TestStreamAudio_NoChunks(t *testing.T) {
	s := newTestStreamer(t, &fakeSynth{}, &audio.MockFactory{}, nil)
	rec := &recorder{}

	_, err := s.StreamAudio(context.Background(), "   \n ", "a", 1.0, rec.record)
	if !errors.Is(err, ErrNoChunks) {
		t.Fatalf("expected ErrNoChunks, got %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("expected idle, got %s", s.State())
	}

	sawError := false
	for _, ev := range rec.all() {
		if sc, ok := ev.(StateChanged); ok && sc.To == StateError {
			sawError = true
		}
	}
	if !sawError {
		t.Error("expected a transition through the error state")
	}
}

func TestStreamAudio_FirstChunkFails(t *testing.T) {
	synth := &fakeSynth{
		fail: func(req ChunkRequest, attempt int) error {
			if req.Index == 0 {
				return errSynth
			}
			return nil
		},
	}
	players := &audio.MockFactory{}
	s := newTestStreamer(t, synth, players, nil)

	_, err := s.StreamAudio(context.Background(), threeSentences, "a", 1.0, nil)
	if !errors.Is(err, errSynth) {
		t.Fatalf("expected synthesis error, got %v", err)
	}
	if got := synth.callCount(0); got != 2 {
		t.Errorf("expected 2 attempts for chunk 0, got %d", got)
	}
	if got := synth.callCount(1); got != 0 {
		t.Errorf("expected no work on later chunks, got %d calls", got)
	}
	if s.State() != StateIdle {
		t.Errorf("expected idle, got %s", s.State())
	}
	if len(players.Played()) != 0 {
		t.Error("expected nothing to play")
	}
}

func TestStreamAudio_SkipsFailedChunk(t *testing.T) {
	synth := &fakeSynth{
		fail: func(req ChunkRequest, attempt int) error {
			if req.Index == 1 {
				return errSynth
			}
			return nil
		},
	}
	players := &audio.MockFactory{FinishAfter: 2 * time.Millisecond}
	s := newTestStreamer(t, synth, players, nil)
	rec := &recorder{}

	res, err := s.StreamAudio(context.Background(), threeSentences, "a", 1.0, rec.record)
	if err != nil {
		t.Fatalf("StreamAudio failed: %v", err)
	}
	waitSession(t, res)

	want := []string{"a-0", "a-2"}
	if got := players.Played(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected playback %v, got %v", want, got)
	}

	var failed []ChunkFailed
	for _, ev := range rec.all() {
		if f, ok := ev.(ChunkFailed); ok {
			failed = append(failed, f)
		}
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 ChunkFailed event, got %d", len(failed))
	}
	if failed[0].Index != 1 || failed[0].Attempts != 2 || !errors.Is(failed[0].Err, errSynth) {
		t.Errorf("unexpected failure event: %+v", failed[0])
	}
}

func TestStreamAudio_RetryRecovers(t *testing.T) {
	synth := &fakeSynth{
		fail: func(req ChunkRequest, attempt int) error {
			if req.Index == 2 && attempt == 1 {
				return errSynth
			}
			return nil
		},
	}
	players := &audio.MockFactory{FinishAfter: 2 * time.Millisecond}
	s := newTestStreamer(t, synth, players, nil)

	res, err := s.StreamAudio(context.Background(), threeSentences, "a", 1.0, nil)
	if err != nil {
		t.Fatalf("StreamAudio failed: %v", err)
	}
	waitSession(t, res)

	if got := len(players.Played()); got != 3 {
		t.Errorf("expected 3 chunks played, got %d", got)
	}
	if got := synth.callCount(2); got != 2 {
		t.Errorf("expected 2 attempts for chunk 2, got %d", got)
	}
}

func TestStopStreaming(t *testing.T) {
	synth := &fakeSynth{
		delay: func(req ChunkRequest) time.Duration {
			if req.Index > 0 {
				return time.Minute
			}
			return 0
		},
	}
	players := &audio.MockFactory{FinishAfter: time.Second}
	s := newTestStreamer(t, synth, players, nil)
	rec := &recorder{}

	res, err := s.StreamAudio(context.Background(), threeSentences, "a", 1.0, rec.record)
	if err != nil {
		t.Fatalf("StreamAudio failed: %v", err)
	}
	if !s.IsStreaming() {
		t.Error("expected IsStreaming after start")
	}
	if s.TimeToFirstAudio() <= 0 {
		t.Error("expected time to first audio to be recorded")
	}

	s.StopStreaming()
	waitSession(t, res)

	if s.IsStreaming() {
		t.Error("expected IsStreaming false after stop")
	}
	if s.State() != StateIdle {
		t.Errorf("expected idle after stop, got %s", s.State())
	}
	if s.TokensPerSecond() != 0 || s.TimeToFirstAudio() != 0 || s.StreamingPhonemes() != "" {
		t.Error("expected metrics to be reset")
	}

	// Idempotent.
	s.StopStreaming()
	s.StopStreaming()

	for _, ev := range rec.all() {
		if _, ok := ev.(Completed); ok {
			t.Error("stopped session must not complete")
		}
	}
}

func TestStreamAudio_NewSessionReplacesOld(t *testing.T) {
	synth := &fakeSynth{
		delay: func(req ChunkRequest) time.Duration {
			if req.VoiceID == "a" && req.Index > 0 {
				return 100 * time.Millisecond
			}
			return 0
		},
	}
	players := &audio.MockFactory{FinishAfter: 2 * time.Millisecond}
	s := newTestStreamer(t, synth, players, nil)
	first := &recorder{}

	old, err := s.StreamAudio(context.Background(), threeSentences, "a", 1.0, first.record)
	if err != nil {
		t.Fatalf("first StreamAudio failed: %v", err)
	}

	res, err := s.StreamAudio(context.Background(), threeSentences, "b", 1.0, nil)
	if err != nil {
		t.Fatalf("second StreamAudio failed: %v", err)
	}
	if res.SessionID == old.SessionID {
		t.Error("expected a new session id")
	}

	select {
	case <-old.Done:
	default:
		t.Error("expected the replaced session to be done")
	}
	waitSession(t, res)

	for _, uri := range players.Played() {
		if uri == "a-1" || uri == "a-2" {
			t.Errorf("replaced session played %s", uri)
		}
	}
	for _, ev := range first.all() {
		if ev.Session() != old.SessionID {
			t.Errorf("first callback received event from session %q", ev.Session())
		}
	}
}

func TestStreamAudio_ContextCancel(t *testing.T) {
	synth := &fakeSynth{
		delay: func(req ChunkRequest) time.Duration {
			if req.Index > 0 {
				return time.Minute
			}
			return 0
		},
	}
	s := newTestStreamer(t, synth, &audio.MockFactory{FinishAfter: time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	res, err := s.StreamAudio(ctx, threeSentences, "a", 1.0, nil)
	if err != nil {
		t.Fatalf("StreamAudio failed: %v", err)
	}

	cancel()
	waitSession(t, res)

	deadline := time.Now().Add(time.Second)
	for s.IsStreaming() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.IsStreaming() {
		t.Error("expected streaming to stop when the context is cancelled")
	}
}

func TestStreamAudio_ChunkPlayingEvents(t *testing.T) {
	const chunks = 7

	sentences := make([]string, chunks)
	for i := range sentences {
		sentences[i] = fmt.Sprintf("Chunk number %d.", i)
	}
	text := strings.Join(sentences, " ")

	for run := 0; run < 3; run++ {
		t.Run(fmt.Sprint(run), func(t *testing.T) {
			synth := &fakeSynth{
				delay: func(req ChunkRequest) time.Duration {
					// Later chunks finish first.
					return time.Duration(chunks-req.Index) * 3 * time.Millisecond
				},
			}
			players := &audio.MockFactory{FinishAfter: time.Millisecond}
			cfg := testConfig()
			cfg.MaxConcurrent = 6
			s, err := New(synth, players, nil, cfg)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			t.Cleanup(s.StopStreaming)
			rec := &recorder{}

			res, err := s.StreamAudio(context.Background(), text, "v", 1.0, rec.record)
			if err != nil {
				t.Fatalf("StreamAudio failed: %v", err)
			}
			if res.Chunks != chunks {
				t.Fatalf("expected %d chunks, got %d", chunks, res.Chunks)
			}
			waitSession(t, res)

			events := rec.all()
			if len(events) == 0 {
				t.Fatal("expected events")
			}
			if _, ok := events[len(events)-1].(Completed); !ok {
				t.Errorf("expected Completed last, got %T", events[len(events)-1])
			}

			var playing []int
			for _, ev := range events {
				if p, ok := ev.(ChunkPlaying); ok {
					if p.Total != chunks {
						t.Errorf("ChunkPlaying total = %d, want %d", p.Total, chunks)
					}
					playing = append(playing, p.Index)
				}
			}
			want := []int{0, 1, 2, 3, 4, 5, 6}
			if fmt.Sprint(playing) != fmt.Sprint(want) {
				t.Errorf("ChunkPlaying indexes = %v, want %v", playing, want)
			}
		})
	}
}

func TestStreamAudio_CancelledContext(t *testing.T) {
	synth := &fakeSynth{}
	s := newTestStreamer(t, synth, &audio.MockFactory{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.StreamAudio(ctx, threeSentences, "a", 1.0, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if synth.callCount(0) != 0 {
		t.Error("expected no synthesis for a cancelled context")
	}
	if s.IsStreaming() || s.State() != StateIdle {
		t.Errorf("expected idle streamer, got %s", s.State())
	}
}

package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// MockFactory creates players that simulate playback without a device.
// It records the order clips are played in.
type MockFactory struct {
	// FinishAfter is how long a clip "plays" before Finished fires.
	FinishAfter time.Duration
	// UseClipDuration reads the WAV file and plays for its real length
	// divided by Speedup instead of FinishAfter.
	UseClipDuration bool
	Speedup         float64
	// NoFinishEvent makes Finished return nil, as on backends without
	// completion events.
	NoFinishEvent bool
	// CreateErr is returned by CreatePlayer when set.
	CreateErr error
	// OnPlay is called with the clip uri when playback starts.
	OnPlay func(uri string)

	mu      sync.Mutex
	played  []string
	players []*MockPlayer
}

// CreatePlayer returns a simulated player for uri.
func (f *MockFactory) CreatePlayer(uri string) (Player, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}

	length := f.FinishAfter
	if f.UseClipDuration {
		pcm, err := loadPCM(uri)
		if err != nil {
			return nil, err
		}
		length = pcm.Duration()
		if f.Speedup > 0 {
			length = time.Duration(float64(length) / f.Speedup)
		}
	}

	p := &MockPlayer{
		uri:      uri,
		length:   length,
		finished: make(chan struct{}),
		noEvent:  f.NoFinishEvent,
		onPlay: func() {
			f.mu.Lock()
			f.played = append(f.played, uri)
			hook := f.OnPlay
			f.mu.Unlock()
			if hook != nil {
				hook(uri)
			}
		},
	}

	f.mu.Lock()
	f.players = append(f.players, p)
	f.mu.Unlock()
	return p, nil
}

// Played returns the uris in the order playback started.
func (f *MockFactory) Played() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.played))
	copy(out, f.played)
	return out
}

// Players returns every player created so far.
func (f *MockFactory) Players() []*MockPlayer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*MockPlayer, len(f.players))
	copy(out, f.players)
	return out
}

// MockPlayer is a simulated Player.
type MockPlayer struct {
	uri     string
	length  time.Duration
	noEvent bool
	onPlay  func()

	mu           sync.Mutex
	timer        *time.Timer
	finished     chan struct{}
	finishedOnce sync.Once
	playing      bool
	released     atomic.Bool
	stopped      atomic.Bool

	playCount  atomic.Int32
	pauseCount atomic.Int32
}

// URI returns the clip the player was created for.
func (p *MockPlayer) URI() string { return p.uri }

// Released reports whether Release was called.
func (p *MockPlayer) Released() bool { return p.released.Load() }

// Stopped reports whether Stop was called.
func (p *MockPlayer) Stopped() bool { return p.stopped.Load() }

// PlayCount returns how many times Play was called.
func (p *MockPlayer) PlayCount() int { return int(p.playCount.Load()) }

func (p *MockPlayer) Play() error {
	if p.released.Load() {
		return ErrPlayerClosed
	}

	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return errors.New("already playing")
	}
	p.playing = true
	first := p.playCount.Add(1) == 1
	p.timer = time.AfterFunc(p.length, p.finish)
	p.mu.Unlock()

	if first && p.onPlay != nil {
		p.onPlay()
	}
	return nil
}

func (p *MockPlayer) Pause() error {
	if p.released.Load() {
		return ErrPlayerClosed
	}
	p.pauseCount.Add(1)
	p.halt()
	return nil
}

func (p *MockPlayer) Stop() error {
	p.stopped.Store(true)
	p.halt()
	return nil
}

func (p *MockPlayer) Release() error {
	p.released.Store(true)
	p.halt()
	return nil
}

func (p *MockPlayer) Finished() <-chan struct{} {
	if p.noEvent {
		return nil
	}
	return p.finished
}

func (p *MockPlayer) halt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.playing = false
}

func (p *MockPlayer) finish() {
	p.mu.Lock()
	p.playing = false
	p.timer = nil
	p.mu.Unlock()
	p.finishedOnce.Do(func() { close(p.finished) })
}

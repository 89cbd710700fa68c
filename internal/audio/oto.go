//go:build cgo

package audio

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
	otoRate int
)

// OtoFactory creates players on the shared oto context.
type OtoFactory struct {
	ctx  *oto.Context
	poll time.Duration
}

// NewOtoFactory initializes the audio device on first use.
func NewOtoFactory(cfg PlayerConfig) (*OtoFactory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid player config: %w", err)
	}

	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   cfg.BufferSize,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
		otoRate = cfg.SampleRate
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != cfg.SampleRate {
		return nil, fmt.Errorf("audio device already open at %d Hz", otoRate)
	}
	return &OtoFactory{ctx: otoCtx, poll: cfg.PollInterval}, nil
}

// CreatePlayer decodes the clip and prepares it for playback.
func (f *OtoFactory) CreatePlayer(uri string) (Player, error) {
	pcm, err := loadPCM(uri)
	if err != nil {
		return nil, err
	}
	if pcm.SampleRate != otoRate {
		log.Warn("Clip sample rate differs from device", "clip", pcm.SampleRate, "device", otoRate)
	}

	// data must stay referenced until the player is released
	data := pcm.Bytes()
	return &otoPlayer{
		data:     data,
		player:   f.ctx.NewPlayer(bytes.NewReader(data)),
		poll:     f.poll,
		finished: make(chan struct{}),
		quit:     make(chan struct{}),
	}, nil
}

type otoPlayer struct {
	data   []byte
	player *oto.Player
	poll   time.Duration

	started      atomic.Bool
	paused       atomic.Bool
	released     atomic.Bool
	finished     chan struct{}
	finishedOnce sync.Once
	quit         chan struct{}
	quitOnce     sync.Once
}

func (p *otoPlayer) Play() error {
	if p.released.Load() {
		return ErrPlayerClosed
	}
	p.paused.Store(false)
	p.player.Play()
	if p.started.CompareAndSwap(false, true) {
		go p.watch()
	}
	return nil
}

func (p *otoPlayer) Pause() error {
	if p.released.Load() {
		return ErrPlayerClosed
	}
	p.paused.Store(true)
	p.player.Pause()
	return nil
}

func (p *otoPlayer) Stop() error {
	if p.released.Load() {
		return nil
	}
	p.player.Pause()
	p.quitOnce.Do(func() { close(p.quit) })
	return nil
}

func (p *otoPlayer) Release() error {
	if !p.released.CompareAndSwap(false, true) {
		return nil
	}
	p.quitOnce.Do(func() { close(p.quit) })
	err := p.player.Close()
	p.data = nil
	return err
}

func (p *otoPlayer) Finished() <-chan struct{} {
	return p.finished
}

// watch polls the device player until the buffered data is drained.
func (p *otoPlayer) watch() {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			if !p.paused.Load() && !p.player.IsPlaying() {
				p.finishedOnce.Do(func() { close(p.finished) })
				return
			}
		}
	}
}

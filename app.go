package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/cache"
	"github.com/dgnsrekt/speakstream/internal/config"
	"github.com/dgnsrekt/speakstream/internal/inference"
	"github.com/dgnsrekt/speakstream/internal/phonemes"
	"github.com/dgnsrekt/speakstream/internal/stream"
	"github.com/dgnsrekt/speakstream/internal/synth"
	"github.com/dgnsrekt/speakstream/internal/voices"
)

// app owns the long lived pieces a command needs.
type app struct {
	cfg    config.Config
	voices *voices.Provider
	store  *audio.Store
	cache  *cache.Manager
	synth  *synth.Synthesizer
}

// newApp wires the synthesizer from cfg. The model is not loaded.
func newApp(cfg config.Config) (*app, error) {
	store, err := audio.NewStore(cfg.Audio.Dir)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		voices: voices.NewProvider(cfg.Voices.Dir, cfg.Voices.CombinedID, cfg.Voices.Mix),
		store:  store,
	}

	opts := synth.Options{
		Dictionary:    phonemes.NewDictionary(cfg.Dictionary.Path),
		Voices:        a.voices,
		Store:         store,
		NewRunner:     a.newRunner,
		Names:         cfg.Names(),
		MaxConcurrent: cfg.Inference.MaxConcurrent,
		MaxPhonemes:   cfg.Inference.MaxPhonemeLength,
	}
	if cfg.Cache.Enabled {
		m, err := cache.NewManager(cfg.ToCacheConfig())
		if err != nil {
			log.Warn("Clip cache unavailable", "dir", cfg.Cache.Dir, "error", err)
		} else {
			a.cache = m
			opts.Cache = m
		}
	}

	a.synth, err = synth.New(opts)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) newRunner(path string) (inference.Runner, error) {
	r, err := inference.NewORTRunner(a.cfg.ToORTConfig(path))
	if err != nil {
		return nil, err
	}
	return r, nil
}

// loadModel loads the configured model.
func (a *app) loadModel(ctx context.Context) error {
	if a.cfg.Model.Path == "" {
		return errors.New("no model configured: set model.path or pass --model")
	}
	return a.synth.LoadModel(ctx, a.cfg.Model.Path)
}

// players returns the device backed factory, or a simulated one.
func (a *app) players(dryRun bool) (audio.PlayerFactory, error) {
	if dryRun {
		return &audio.MockFactory{UseClipDuration: true}, nil
	}
	f, err := audio.NewOtoFactory(a.cfg.ToPlayerConfig())
	if err != nil {
		return nil, fmt.Errorf("unable to open audio device: %w", err)
	}
	return f, nil
}

// streamer builds a streamer that plays through players.
func (a *app) streamer(players audio.PlayerFactory) (*stream.Streamer, error) {
	return stream.New(a.synth, players, a.synth, a.cfg.ToStreamConfig())
}

// Close releases the model and saves the cache index.
func (a *app) Close() error {
	var errs []error
	if a.synth != nil {
		errs = append(errs, a.synth.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	return errors.Join(errs...)
}

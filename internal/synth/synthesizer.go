// Package synth ties the text pipeline, the acoustic model and the clip
// store together into single-shot synthesis.
package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/cache"
	"github.com/dgnsrekt/speakstream/internal/inference"
	"github.com/dgnsrekt/speakstream/internal/logging"
	"github.com/dgnsrekt/speakstream/internal/phonemes"
	"github.com/dgnsrekt/speakstream/internal/stream"
	"github.com/dgnsrekt/speakstream/internal/tokenizer"
)

// VoiceSource returns the style table of a voice.
type VoiceSource interface {
	VoiceData(ctx context.Context, id string) ([]float32, error)
}

// RunnerFactory opens the model at path.
type RunnerFactory func(path string) (inference.Runner, error)

// Options wires the synthesizer's collaborators.
type Options struct {
	Dictionary    *phonemes.Dictionary // nil selects the bundled list
	Voices        VoiceSource          // Required
	Store         *audio.Store         // Required
	Cache         cache.Cache          // Optional
	NewRunner     RunnerFactory
	Names         inference.Names
	MaxConcurrent int // Concurrent model runs
	MaxPhonemes   int // 0 selects tokenizer.MaxPhonemeLength
}

// Clip is a synthesized utterance written to the store.
type Clip struct {
	URI      string
	Duration time.Duration // Playback length at the requested speed
	Samples  int
	Tokens   int
	Phonemes string
	CacheHit bool
}

// Synthesizer converts text to WAV clips. It is safe for concurrent use.
type Synthesizer struct {
	dict        *phonemes.Dictionary
	phonemizer  *phonemes.Phonemizer
	tokenizer   *tokenizer.Tokenizer
	adapter     *inference.Adapter
	voices      VoiceSource
	store       *audio.Store
	cache       cache.Cache
	newRunner   RunnerFactory
	maxPhonemes int
}

// New creates a synthesizer. The model is not loaded until LoadModel.
func New(opts Options) (*Synthesizer, error) {
	if opts.Voices == nil {
		return nil, errors.New("voice source is required")
	}
	if opts.Store == nil {
		return nil, errors.New("clip store is required")
	}

	dict := opts.Dictionary
	if dict == nil {
		dict = phonemes.NewDictionary("")
	}
	names := opts.Names
	if names == (inference.Names{}) {
		names = inference.DefaultNames()
	}
	maxPhonemes := opts.MaxPhonemes
	if maxPhonemes <= 0 {
		maxPhonemes = tokenizer.MaxPhonemeLength
	}

	p := phonemes.New(dict)
	return &Synthesizer{
		dict:        dict,
		phonemizer:  p,
		tokenizer:   tokenizer.New(p, maxPhonemes),
		adapter:     inference.NewAdapter(names, opts.MaxConcurrent),
		voices:      opts.Voices,
		store:       opts.Store,
		cache:       opts.Cache,
		newRunner:   opts.NewRunner,
		maxPhonemes: maxPhonemes,
	}, nil
}

// LoadModel opens the model at path and makes it the active one. The
// dictionary is loaded at the same time.
func (s *Synthesizer) LoadModel(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.newRunner == nil {
		return newError(ErrNoRunnerFactory, "inference", "load model")
	}

	started := time.Now()
	entries := s.dict.Load()

	runner, err := s.newRunner(path)
	if err != nil {
		return newError(err, "inference", "load model").WithContext("path", path)
	}
	if err := s.adapter.Load(runner); err != nil {
		log.Warn("Failed to close previous model", "error", err)
	}
	log.Info("Model loaded", "path", path, "dictionary", entries, "elapsed", time.Since(started))
	return nil
}

// Loaded reports whether a model is loaded.
func (s *Synthesizer) Loaded() bool {
	return s.adapter.Loaded()
}

// Phonemize converts text to IPA.
func (s *Synthesizer) Phonemize(text string) string {
	return s.phonemizer.Phonemize(text)
}

// Tokenize converts text to sentinel-wrapped vocabulary codes.
func (s *Synthesizer) Tokenize(text string) tokenizer.Result {
	return s.tokenizer.Tokenize(text)
}

// LastPhonemes returns the phoneme string of the most recent Tokenize.
func (s *Synthesizer) LastPhonemes() string {
	return s.tokenizer.LastPhonemes()
}

// Waveform runs the model for text and returns raw samples.
func (s *Synthesizer) Waveform(ctx context.Context, text, voiceID string, speed float64) ([]float32, tokenizer.Result, error) {
	if !s.adapter.Loaded() {
		return nil, tokenizer.Result{}, newError(ErrModelNotLoaded, "inference", "generate")
	}
	if !(speed > 0) || math.IsInf(speed, 0) {
		return nil, tokenizer.Result{}, newError(ErrInvalidSpeed, "synth", "generate").WithContext("speed", speed)
	}

	tok := s.tokenizer.Tokenize(text)
	if len(tok.Tokens) <= 2 {
		return nil, tok, newError(ErrEmptyText, "tokenizer", "tokenize")
	}

	voice, err := s.voices.VoiceData(ctx, voiceID)
	if err != nil {
		return nil, tok, newError(err, "voices", "load voice").WithContext("voice", voiceID)
	}
	style, err := inference.SelectStyle(voice, inference.StyleOffset(len(tok.Tokens), s.maxPhonemes))
	if err != nil {
		return nil, tok, newError(err, "voices", "select style").WithContext("voice", voiceID)
	}

	samples, err := s.adapter.Run(ctx, tok.Tokens, style, float32(speed))
	if err != nil {
		return nil, tok, newError(err, "inference", "run")
	}
	return samples, tok, nil
}

// GenerateAudio synthesizes text into a WAV clip in the store. Repeated
// requests are served from the clip cache when one is configured.
func (s *Synthesizer) GenerateAudio(ctx context.Context, text, voiceID string, speed float64) (*Clip, error) {
	return s.generate(ctx, "clip", text, voiceID, speed)
}

// SynthesizeChunk generates one streaming chunk.
func (s *Synthesizer) SynthesizeChunk(ctx context.Context, req stream.ChunkRequest) (stream.ChunkAudio, error) {
	clip, err := s.generate(ctx, fmt.Sprintf("chunk-%03d", req.Index), req.Text, req.VoiceID, req.Speed)
	if err != nil {
		return stream.ChunkAudio{}, err
	}
	return stream.ChunkAudio{
		URI:      clip.URI,
		Duration: clip.Duration,
		Tokens:   clip.Tokens,
		Phonemes: clip.Phonemes,
	}, nil
}

// Remove deletes a clip from the store.
func (s *Synthesizer) Remove(uri string) error {
	return s.store.Remove(uri)
}

// Close releases the model.
func (s *Synthesizer) Close() error {
	return s.adapter.Close()
}

func (s *Synthesizer) generate(ctx context.Context, prefix, text, voiceID string, speed float64) (*Clip, error) {
	if !s.adapter.Loaded() {
		return nil, newError(ErrModelNotLoaded, "inference", "generate")
	}

	metrics := logging.StartSynthesis(prefix, text)
	clip, wav, err := s.cached(text, voiceID, speed)
	if err == nil && clip == nil {
		clip, wav, err = s.synthesize(ctx, text, voiceID, speed)
	}
	if err != nil {
		metrics.End(0, 0, false, err)
		return nil, err
	}

	uri, err := s.store.Write(prefix, wav)
	if err != nil {
		err = newError(err, "store", "write clip")
		metrics.End(clip.Tokens, len(wav), clip.CacheHit, err)
		return nil, err
	}
	clip.URI = uri
	metrics.End(clip.Tokens, len(wav), clip.CacheHit, nil)
	return clip, nil
}

// cached returns the clip for a cache hit, or nil.
func (s *Synthesizer) cached(text, voiceID string, speed float64) (*Clip, []byte, error) {
	if s.cache == nil || !(speed > 0) {
		return nil, nil, nil
	}
	wav, ok := s.cache.Get(cache.Key(text, voiceID, speed))
	if !ok {
		return nil, nil, nil
	}

	pcm, err := audio.DecodeWAV(bytes.NewReader(wav))
	if err != nil {
		log.Warn("Ignoring unreadable cached clip", "error", err)
		return nil, nil, nil
	}
	tok := s.tokenizer.Tokenize(text)
	return &Clip{
		Duration: audio.Duration(len(pcm.Samples), pcm.SampleRate, speed),
		Samples:  len(pcm.Samples),
		Tokens:   len(tok.Tokens),
		Phonemes: tok.Phonemes,
		CacheHit: true,
	}, wav, nil
}

func (s *Synthesizer) synthesize(ctx context.Context, text, voiceID string, speed float64) (*Clip, []byte, error) {
	samples, tok, err := s.Waveform(ctx, text, voiceID, speed)
	if err != nil {
		return nil, nil, err
	}

	wav, err := audio.EncodeWAV(samples, audio.SampleRate)
	if err != nil {
		return nil, nil, newError(err, "encoder", "encode wav")
	}
	if s.cache != nil {
		if err := s.cache.Put(cache.Key(text, voiceID, speed), wav); err != nil {
			log.Debug("Failed to cache clip", "error", err)
		}
	}

	return &Clip{
		Duration: audio.Duration(len(samples), audio.SampleRate, speed),
		Samples:  len(samples),
		Tokens:   len(tok.Tokens),
		Phonemes: tok.Phonemes,
	}, wav, nil
}

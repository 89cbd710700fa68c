// Package config holds the speakstream configuration and the converters
// that hand each section to the package that consumes it.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/cache"
	"github.com/dgnsrekt/speakstream/internal/inference"
	"github.com/dgnsrekt/speakstream/internal/logging"
	"github.com/dgnsrekt/speakstream/internal/queue"
	"github.com/dgnsrekt/speakstream/internal/stream"
)

// AppName is used for the configuration scope and file names.
const AppName = "speakstream"

// Config contains all speakstream configuration options.
type Config struct {
	Model      ModelConfig      `yaml:"model" envPrefix:"MODEL_"`
	Voices     VoicesConfig     `yaml:"voices" envPrefix:"VOICES_"`
	Dictionary DictionaryConfig `yaml:"dictionary" envPrefix:"DICTIONARY_"`
	Inference  InferenceConfig  `yaml:"inference" envPrefix:"INFERENCE_"`
	Stream     StreamConfig     `yaml:"stream" envPrefix:"STREAM_"`
	Playback   PlaybackConfig   `yaml:"playback" envPrefix:"PLAYBACK_"`
	Audio      AudioConfig      `yaml:"audio" envPrefix:"AUDIO_"`
	Cache      CacheConfig      `yaml:"cache" envPrefix:"CACHE_"`
	Log        LogConfig        `yaml:"log" envPrefix:"LOG_"`
}

// ModelConfig locates the acoustic model and names its tensors.
type ModelConfig struct {
	Path     string `yaml:"path" env:"PATH"`
	Library  string `yaml:"library" env:"LIBRARY"` // ONNX Runtime shared library
	Threads  int    `yaml:"threads" env:"THREADS" envDefault:"0"`
	InputIDs string `yaml:"input_ids" env:"INPUT_IDS" envDefault:"input_ids"`
	Style    string `yaml:"style" env:"STYLE" envDefault:"style"`
	Speed    string `yaml:"speed" env:"SPEED" envDefault:"speed"`
	Waveform string `yaml:"waveform" env:"WAVEFORM" envDefault:"waveform"`
}

// VoicesConfig locates voice style tables.
type VoicesConfig struct {
	Dir        string             `yaml:"dir" env:"DIR"`
	Default    string             `yaml:"default" env:"DEFAULT" envDefault:"af_heart"`
	CombinedID string             `yaml:"combined_id" env:"COMBINED_ID" envDefault:"combined"`
	Mix        map[string]float64 `yaml:"mix" env:"MIX"`
}

// DictionaryConfig selects the pronunciation word list.
type DictionaryConfig struct {
	Path string `yaml:"path" env:"PATH"` // Empty selects the bundled list
}

// InferenceConfig bounds model execution.
type InferenceConfig struct {
	MaxConcurrent    int `yaml:"max_concurrent" env:"MAX_CONCURRENT" envDefault:"1"`
	MaxPhonemeLength int `yaml:"max_phoneme_length" env:"MAX_PHONEME_LENGTH" envDefault:"510"`
}

// StreamConfig tunes chunked streaming.
type StreamConfig struct {
	MaxChunkLength  int           `yaml:"max_chunk_length" env:"MAX_CHUNK_LENGTH" envDefault:"80"`
	RetryAttempts   int           `yaml:"retry_attempts" env:"RETRY_ATTEMPTS" envDefault:"1"`
	RetryDelay      time.Duration `yaml:"retry_delay" env:"RETRY_DELAY" envDefault:"100ms"`
	MaxConcurrent   int           `yaml:"max_concurrent" env:"MAX_CONCURRENT" envDefault:"1"`
	MetricsInterval time.Duration `yaml:"metrics_interval" env:"METRICS_INTERVAL" envDefault:"250ms"`
}

// PlaybackConfig tunes the playback queue and device.
type PlaybackConfig struct {
	FinishBuffer        time.Duration `yaml:"finish_buffer" env:"FINISH_BUFFER" envDefault:"250ms"`
	RemoveAfterPlayback bool          `yaml:"remove_after_playback" env:"REMOVE_AFTER_PLAYBACK" envDefault:"true"`
	BufferSize          time.Duration `yaml:"buffer_size" env:"BUFFER_SIZE" envDefault:"100ms"`
	PollInterval        time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL" envDefault:"20ms"`
}

// AudioConfig controls where clips are written and the default speed.
type AudioConfig struct {
	Dir   string  `yaml:"dir" env:"DIR"`
	Speed float64 `yaml:"speed" env:"SPEED" envDefault:"1.0"`
}

// CacheConfig controls the clip cache.
type CacheConfig struct {
	Enabled          bool          `yaml:"enabled" env:"ENABLED" envDefault:"true"`
	Dir              string        `yaml:"dir" env:"DIR"`
	MemoryMB         int           `yaml:"memory_mb" env:"MEMORY_MB" envDefault:"64"`
	DiskMB           int           `yaml:"disk_mb" env:"DISK_MB" envDefault:"512"`
	CompressionLevel int           `yaml:"compression_level" env:"COMPRESSION_LEVEL" envDefault:"3"`
	TTL              time.Duration `yaml:"ttl" env:"TTL" envDefault:"168h"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL" envDefault:"1h"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL" envDefault:"info"`
	File  string `yaml:"file" env:"FILE"`
}

// DefaultConfig returns a Config with sensible defaults. Directories are
// resolved for the current user.
func DefaultConfig() Config {
	dirs := defaultPaths()
	names := inference.DefaultNames()

	return Config{
		Model: ModelConfig{
			Path:     dirs.model,
			InputIDs: names.InputIDs,
			Style:    names.Style,
			Speed:    names.Speed,
			Waveform: names.Waveform,
		},
		Voices: VoicesConfig{
			Dir:        dirs.voices,
			Default:    "af_heart",
			CombinedID: "combined",
		},
		Inference: InferenceConfig{
			MaxConcurrent:    1,
			MaxPhonemeLength: 510,
		},
		Stream: StreamConfig{
			MaxChunkLength:  80,
			RetryAttempts:   1,
			RetryDelay:      100 * time.Millisecond,
			MaxConcurrent:   1,
			MetricsInterval: 250 * time.Millisecond,
		},
		Playback: PlaybackConfig{
			FinishBuffer:        250 * time.Millisecond,
			RemoveAfterPlayback: true,
			BufferSize:          100 * time.Millisecond,
			PollInterval:        20 * time.Millisecond,
		},
		Audio: AudioConfig{
			Dir:   filepath.Join(os.TempDir(), AppName),
			Speed: 1.0,
		},
		Cache: CacheConfig{
			Enabled:          true,
			Dir:              dirs.cache,
			MemoryMB:         64,
			DiskMB:           512,
			CompressionLevel: 3,
			TTL:              7 * 24 * time.Hour,
			CleanupInterval:  time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

type paths struct {
	model  string
	voices string
	cache  string
}

// defaultPaths places assets in the user's data directory and the clip
// cache in the user's cache directory.
func defaultPaths() paths {
	scope := gap.NewScope(gap.User, AppName)

	p := paths{
		model:  "kokoro.onnx",
		voices: "voices",
		cache:  filepath.Join(os.TempDir(), AppName+"-cache"),
	}
	if path, err := scope.DataPath("kokoro.onnx"); err == nil {
		p.model = path
	}
	if path, err := scope.DataPath("voices"); err == nil {
		p.voices = path
	}
	if dir, err := scope.CacheDir(); err == nil {
		p.cache = dir
	}
	return p
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model config: %w", err)
	}
	if err := c.Voices.Validate(); err != nil {
		return fmt.Errorf("voices config: %w", err)
	}
	if err := c.Inference.Validate(); err != nil {
		return fmt.Errorf("inference config: %w", err)
	}
	if err := c.ToStreamConfig().Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}
	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if c.Cache.Enabled {
		if err := c.ToCacheConfig().Validate(); err != nil {
			return fmt.Errorf("cache config: %w", err)
		}
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	if err := c.ToLogConfig().Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	return nil
}

// Validate checks if the model configuration is valid.
func (c *ModelConfig) Validate() error {
	if c.Threads < 0 {
		return fmt.Errorf("threads cannot be negative, got %d", c.Threads)
	}
	if c.InputIDs == "" || c.Style == "" || c.Speed == "" || c.Waveform == "" {
		return errors.New("tensor names cannot be empty")
	}
	return nil
}

// Validate checks if the voices configuration is valid.
func (c *VoicesConfig) Validate() error {
	if c.Default == "" {
		return errors.New("default voice cannot be empty")
	}
	for id, weight := range c.Mix {
		if !(weight > 0) || math.IsInf(weight, 0) {
			return fmt.Errorf("weight for %q must be positive, got %v", id, weight)
		}
	}
	return nil
}

// Validate checks if the inference configuration is valid.
func (c *InferenceConfig) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	if c.MaxPhonemeLength < 1 {
		return fmt.Errorf("max_phoneme_length must be positive, got %d", c.MaxPhonemeLength)
	}
	return nil
}

// Validate checks if the playback configuration is valid.
func (c *PlaybackConfig) Validate() error {
	if c.FinishBuffer < 0 {
		return fmt.Errorf("finish_buffer cannot be negative, got %v", c.FinishBuffer)
	}
	return c.toPlayerConfig().Validate()
}

// Validate checks if the audio configuration is valid.
func (c *AudioConfig) Validate() error {
	if c.Dir == "" {
		return errors.New("clip directory cannot be empty")
	}
	if !(c.Speed > 0) || math.IsInf(c.Speed, 0) {
		return fmt.Errorf("speed must be greater than zero, got %v", c.Speed)
	}
	return nil
}

// ToStreamConfig converts the stream and playback sections.
func (c *Config) ToStreamConfig() stream.Config {
	return stream.Config{
		MaxChunkLength:  c.Stream.MaxChunkLength,
		RetryAttempts:   c.Stream.RetryAttempts,
		RetryDelay:      c.Stream.RetryDelay,
		MaxConcurrent:   c.Stream.MaxConcurrent,
		MetricsInterval: c.Stream.MetricsInterval,
		Queue: queue.Config{
			FinishBuffer:        c.Playback.FinishBuffer,
			RemoveAfterPlayback: c.Playback.RemoveAfterPlayback,
		},
	}
}

// ToCacheConfig converts the cache section.
func (c *Config) ToCacheConfig() cache.Config {
	return cache.Config{
		MemoryCapacity:   int64(c.Cache.MemoryMB) << 20,
		DiskCapacity:     int64(c.Cache.DiskMB) << 20,
		Dir:              c.Cache.Dir,
		CompressionLevel: c.Cache.CompressionLevel,
		TTL:              c.Cache.TTL,
		CleanupInterval:  c.Cache.CleanupInterval,
	}
}

// ToLogConfig converts the log section.
func (c *Config) ToLogConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, File: c.Log.File}
}

// ToPlayerConfig converts the playback section for the audio device.
func (c *Config) ToPlayerConfig() audio.PlayerConfig {
	return c.Playback.toPlayerConfig()
}

func (c *PlaybackConfig) toPlayerConfig() audio.PlayerConfig {
	return audio.PlayerConfig{
		SampleRate:   audio.SampleRate,
		BufferSize:   c.BufferSize,
		PollInterval: c.PollInterval,
	}
}

// Names returns the model's tensor names.
func (c *Config) Names() inference.Names {
	return inference.Names{
		InputIDs: c.Model.InputIDs,
		Style:    c.Model.Style,
		Speed:    c.Model.Speed,
		Waveform: c.Model.Waveform,
	}
}

// ToORTConfig converts the model section for the ONNX Runtime runner.
func (c *Config) ToORTConfig(modelPath string) inference.ORTConfig {
	return inference.ORTConfig{
		ModelPath:         modelPath,
		SharedLibraryPath: c.Model.Library,
		IntraOpThreads:    c.Model.Threads,
		Names:             c.Names(),
	}
}

// LogSummary writes the effective settings at debug level.
func (c *Config) LogSummary() {
	log.Debug("Configuration loaded",
		"model", c.Model.Path,
		"voices", c.Voices.Dir,
		"voice", c.Voices.Default,
		"chunk", c.Stream.MaxChunkLength,
		"cache", c.Cache.Enabled,
		"level", c.Log.Level,
	)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, as in
// SPEAKSTREAM_STREAM_MAX_CHUNK_LENGTH.
const EnvPrefix = "SPEAKSTREAM_"

// overridesOnly names a struct tag no field carries, so ApplyEnv leaves
// unset variables alone instead of restoring envDefault values.
const overridesOnly = "envOverrideDefault"

// Load builds the effective configuration: defaults, then the values
// known to v, then the environment. The result is validated.
func Load(v *viper.Viper) (Config, error) {
	cfg, err := LoadFromViper(v)
	if err != nil {
		return cfg, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the SPEAKSTREAM_ variables that are set.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, nil)
}

func applyEnv(cfg *Config, environment map[string]string) error {
	opts := env.Options{
		Prefix:              EnvPrefix,
		DefaultValueTagName: overridesOnly,
		Environment:         environment,
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("error parsing environment: %w", err)
	}
	return nil
}

// EnvDefaults returns the configuration described by the envDefault tags
// alone, ignoring the process environment.
func EnvDefaults() (Config, error) {
	return env.ParseAsWithOptions[Config](env.Options{
		Prefix:      EnvPrefix,
		Environment: map[string]string{},
	})
}

// LoadFromViper loads the configuration from v over the defaults.
func LoadFromViper(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	// Model
	if v.IsSet("model.path") {
		cfg.Model.Path = expandPath(v.GetString("model.path"))
	}
	if v.IsSet("model.library") {
		cfg.Model.Library = expandPath(v.GetString("model.library"))
	}
	if v.IsSet("model.threads") {
		cfg.Model.Threads = v.GetInt("model.threads")
	}
	if v.IsSet("model.input_ids") {
		cfg.Model.InputIDs = v.GetString("model.input_ids")
	}
	if v.IsSet("model.style") {
		cfg.Model.Style = v.GetString("model.style")
	}
	if v.IsSet("model.speed") {
		cfg.Model.Speed = v.GetString("model.speed")
	}
	if v.IsSet("model.waveform") {
		cfg.Model.Waveform = v.GetString("model.waveform")
	}

	// Voices
	if v.IsSet("voices.dir") {
		cfg.Voices.Dir = expandPath(v.GetString("voices.dir"))
	}
	if v.IsSet("voices.default") {
		cfg.Voices.Default = v.GetString("voices.default")
	}
	if v.IsSet("voices.combined_id") {
		cfg.Voices.CombinedID = v.GetString("voices.combined_id")
	}
	if v.IsSet("voices.mix") {
		var mix map[string]float64
		if err := v.UnmarshalKey("voices.mix", &mix); err != nil {
			return cfg, fmt.Errorf("invalid voices.mix: %w", err)
		}
		cfg.Voices.Mix = mix
	}

	// Dictionary
	if v.IsSet("dictionary.path") {
		cfg.Dictionary.Path = expandPath(v.GetString("dictionary.path"))
	}

	// Inference
	if v.IsSet("inference.max_concurrent") {
		cfg.Inference.MaxConcurrent = v.GetInt("inference.max_concurrent")
	}
	if v.IsSet("inference.max_phoneme_length") {
		cfg.Inference.MaxPhonemeLength = v.GetInt("inference.max_phoneme_length")
	}

	// Stream
	if v.IsSet("stream.max_chunk_length") {
		cfg.Stream.MaxChunkLength = v.GetInt("stream.max_chunk_length")
	}
	if v.IsSet("stream.retry_attempts") {
		cfg.Stream.RetryAttempts = v.GetInt("stream.retry_attempts")
	}
	if v.IsSet("stream.retry_delay") {
		cfg.Stream.RetryDelay = v.GetDuration("stream.retry_delay")
	}
	if v.IsSet("stream.max_concurrent") {
		cfg.Stream.MaxConcurrent = v.GetInt("stream.max_concurrent")
	}
	if v.IsSet("stream.metrics_interval") {
		cfg.Stream.MetricsInterval = v.GetDuration("stream.metrics_interval")
	}

	// Playback
	if v.IsSet("playback.finish_buffer") {
		cfg.Playback.FinishBuffer = v.GetDuration("playback.finish_buffer")
	}
	if v.IsSet("playback.remove_after_playback") {
		cfg.Playback.RemoveAfterPlayback = v.GetBool("playback.remove_after_playback")
	}
	if v.IsSet("playback.buffer_size") {
		cfg.Playback.BufferSize = v.GetDuration("playback.buffer_size")
	}
	if v.IsSet("playback.poll_interval") {
		cfg.Playback.PollInterval = v.GetDuration("playback.poll_interval")
	}

	// Audio
	if v.IsSet("audio.dir") {
		cfg.Audio.Dir = expandPath(v.GetString("audio.dir"))
	}
	if v.IsSet("audio.speed") {
		cfg.Audio.Speed = v.GetFloat64("audio.speed")
	}

	// Cache
	if v.IsSet("cache.enabled") {
		cfg.Cache.Enabled = v.GetBool("cache.enabled")
	}
	if v.IsSet("cache.dir") {
		cfg.Cache.Dir = expandPath(v.GetString("cache.dir"))
	}
	if v.IsSet("cache.memory_mb") {
		cfg.Cache.MemoryMB = v.GetInt("cache.memory_mb")
	}
	if v.IsSet("cache.disk_mb") {
		cfg.Cache.DiskMB = v.GetInt("cache.disk_mb")
	}
	if v.IsSet("cache.compression_level") {
		cfg.Cache.CompressionLevel = v.GetInt("cache.compression_level")
	}
	if v.IsSet("cache.ttl") {
		cfg.Cache.TTL = v.GetDuration("cache.ttl")
	}
	if v.IsSet("cache.cleanup_interval") {
		cfg.Cache.CleanupInterval = v.GetDuration("cache.cleanup_interval")
	}

	// Log
	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.file") {
		cfg.Log.File = expandPath(v.GetString("log.file"))
	}

	return cfg, nil
}

// SetDefaults registers the defaults that are not resolved per user, so
// v.Get reports them for keys absent from the file.
func SetDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("voices.default", defaults.Voices.Default)
	v.SetDefault("voices.combined_id", defaults.Voices.CombinedID)

	v.SetDefault("inference.max_concurrent", defaults.Inference.MaxConcurrent)
	v.SetDefault("inference.max_phoneme_length", defaults.Inference.MaxPhonemeLength)

	v.SetDefault("stream.max_chunk_length", defaults.Stream.MaxChunkLength)
	v.SetDefault("stream.retry_attempts", defaults.Stream.RetryAttempts)
	v.SetDefault("stream.retry_delay", defaults.Stream.RetryDelay.String())
	v.SetDefault("stream.max_concurrent", defaults.Stream.MaxConcurrent)
	v.SetDefault("stream.metrics_interval", defaults.Stream.MetricsInterval.String())

	v.SetDefault("playback.finish_buffer", defaults.Playback.FinishBuffer.String())
	v.SetDefault("playback.remove_after_playback", defaults.Playback.RemoveAfterPlayback)
	v.SetDefault("playback.buffer_size", defaults.Playback.BufferSize.String())
	v.SetDefault("playback.poll_interval", defaults.Playback.PollInterval.String())

	v.SetDefault("audio.speed", defaults.Audio.Speed)

	v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	v.SetDefault("cache.memory_mb", defaults.Cache.MemoryMB)
	v.SetDefault("cache.disk_mb", defaults.Cache.DiskMB)
	v.SetDefault("cache.compression_level", defaults.Cache.CompressionLevel)
	v.SetDefault("cache.ttl", defaults.Cache.TTL.String())
	v.SetDefault("cache.cleanup_interval", defaults.Cache.CleanupInterval.String())

	v.SetDefault("log.level", defaults.Log.Level)
}

// ConfigDirs returns the directories searched for speakstream.yml, most
// specific first.
func ConfigDirs() ([]string, error) {
	dirs, err := gap.NewScope(gap.User, AppName).ConfigDirs()
	if err != nil {
		return nil, err
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if c := os.Getenv("SPEAKSTREAM_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

// expandPath resolves a leading ~ and environment variables.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	path = os.ExpandEnv(path)
	if path == "~" || len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

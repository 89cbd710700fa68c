// Package logging configures the process logger and records synthesis
// metrics.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Config selects the log level and an optional log file.
type Config struct {
	Level string // debug, info, warn or error
	File  string // Log file path; empty logs to stderr
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := log.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup configures the default logger. When cfg.File is set, log lines go
// to that file with RFC 3339 timestamps and the returned closer closes it.
func Setup(cfg Config) (io.Closer, error) {
	level, err := log.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", cfg.Level)
	}

	if cfg.File == "" {
		log.SetLevel(level)
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	log.SetDefault(log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
	}))
	log.Debug("Logging to file", "path", cfg.File)
	return f, nil
}

// Synthesis tracks one synthesis call.
type Synthesis struct {
	Component string
	TextLen   int
	Start     time.Time
	Elapsed   time.Duration
	Tokens    int
	Bytes     int
	CacheHit  bool
	Err       error
}

// StartSynthesis begins tracking a synthesis of text.
func StartSynthesis(component, text string) *Synthesis {
	return &Synthesis{
		Component: component,
		TextLen:   len(text),
		Start:     time.Now(),
	}
}

// End records the outcome and logs it.
func (s *Synthesis) End(tokens, bytes int, cacheHit bool, err error) {
	s.Elapsed = time.Since(s.Start)
	s.Tokens = tokens
	s.Bytes = bytes
	s.CacheHit = cacheHit
	s.Err = err
	LogSynthesis(s)
}

// TokensPerSecond returns the synthesis throughput.
func (s *Synthesis) TokensPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Tokens) / s.Elapsed.Seconds()
}

// LogSynthesis writes s as a single log line.
func LogSynthesis(s *Synthesis) {
	if s.Err != nil {
		log.Error("Synthesis failed",
			"component", s.Component,
			"duration", s.Elapsed,
			"error", s.Err)
		return
	}
	log.Debug("Synthesis completed",
		"component", s.Component,
		"textLength", s.TextLen,
		"tokens", s.Tokens,
		"bytes", s.Bytes,
		"duration", s.Elapsed,
		"cacheHit", s.CacheHit,
		"tokensPerSecond", fmt.Sprintf("%.1f", s.TokensPerSecond()))
}

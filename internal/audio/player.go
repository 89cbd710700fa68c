package audio

import (
	"errors"
	"fmt"
	"os"
	"time"
)

var (
	ErrPlayerClosed        = errors.New("player is closed")
	ErrPlaybackUnavailable = errors.New("audio playback is not available on this platform")
)

// Player plays one clip. Finished returns a channel closed when playback
// reaches the end, or nil when the backend cannot report completion.
type Player interface {
	Play() error
	Pause() error
	Stop() error
	Release() error
	Finished() <-chan struct{}
}

// PlayerFactory creates a player for the clip at uri.
type PlayerFactory interface {
	CreatePlayer(uri string) (Player, error)
}

// PlayerConfig configures the device backed player.
type PlayerConfig struct {
	SampleRate   int           // Device sample rate, must match clips
	BufferSize   time.Duration // Device buffer length
	PollInterval time.Duration // How often completion is checked
}

// DefaultPlayerConfig returns the configuration for 24 kHz mono clips.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate:   SampleRate,
		BufferSize:   100 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c PlayerConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

// loadPCM reads and decodes the WAV file behind uri.
func loadPCM(uri string) (*PCM, error) {
	path, err := PathFromURI(uri)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open clip: %w", err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

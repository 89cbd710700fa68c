package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
)

const defaultConfig = `# Acoustic model
model:
  # path: "~/.local/share/speakstream/kokoro.onnx"
  # ONNX Runtime shared library, when not on the default search path
  # library: "/usr/lib/libonnxruntime.so"
  threads: 0

# Voice style tables (<id>.bin or <id>.bin.zst)
voices:
  # dir: "~/.local/share/speakstream/voices"
  default: "af_heart"
  combined_id: "combined"
  # mix:
  #   af_heart: 0.6
  #   bf_emma: 0.4

# Pronunciation dictionary, empty uses the bundled list
dictionary:
  # path: "~/cmudict-ipa.txt"

inference:
  max_concurrent: 1
  max_phoneme_length: 510

# Chunked streaming
stream:
  max_chunk_length: 80
  retry_attempts: 1
  retry_delay: "100ms"
  max_concurrent: 1
  metrics_interval: "250ms"

playback:
  finish_buffer: "250ms"
  remove_after_playback: true
  buffer_size: "100ms"
  poll_interval: "20ms"

audio:
  speed: 1.0

# Clip cache
cache:
  enabled: true
  memory_mb: 64
  disk_mb: 512
  compression_level: 3
  ttl: "168h"
  cleanup_interval: "1h"

log:
  # debug, info, warn or error
  level: "info"
  # file: "~/.local/state/speakstream/speakstream.log"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the speakstream config file",
	Long:    paragraph(fmt.Sprintf("\n%s the speakstream config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("speakstream config\nspeakstream config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	// The file may not parse yet, so the usual loading is skipped.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("speakstream", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		return errors.New("no configuration file location")
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}

package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"INFO", false},
		{"warn", false},
		{"error", false},
		{"verbose", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			err := Config{Level: tt.level}.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetup_File(t *testing.T) {
	prev := log.Default()
	t.Cleanup(func() { log.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "logs", "speakstream.log")
	closer, err := Setup(Config{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	log.Info("hello from test", "key", "value")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file missing message: %q", data)
	}
}

func TestSetup_InvalidLevel(t *testing.T) {
	if _, err := Setup(Config{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestSynthesis(t *testing.T) {
	s := StartSynthesis("generate", "Hello world.")
	time.Sleep(2 * time.Millisecond)
	s.End(40, 1024, false, nil)

	if s.TextLen != 12 {
		t.Errorf("expected text length 12, got %d", s.TextLen)
	}
	if s.Elapsed <= 0 {
		t.Error("expected elapsed time")
	}
	if s.TokensPerSecond() <= 0 {
		t.Error("expected positive throughput")
	}

	failed := StartSynthesis("generate", "x")
	failed.End(0, 0, false, errors.New("boom"))
	if failed.Err == nil {
		t.Error("expected error to be recorded")
	}
}

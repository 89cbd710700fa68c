package audio

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrNotFileURI = errors.New("uri is not a file uri")

// Store writes WAV files into a directory and hands out file URIs that
// players can read back.
type Store struct {
	dir string
}

// NewStore creates the directory if needed. An empty dir selects a
// directory under the system temp dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "speakstream")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory files are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Write stores data under a fresh name with the given prefix and returns
// its URI.
func (s *Store) Write(prefix string, data []byte) (string, error) {
	if prefix == "" {
		prefix = "clip"
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s.wav", prefix, uuid.NewString()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	return FileURI(path), nil
}

// Remove deletes the file behind uri. Missing files are not an error.
func (s *Store) Remove(uri string) error {
	path, err := PathFromURI(uri)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// FileURI returns the file:// URI for path.
func FileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// PathFromURI returns the local path of a file:// URI. Plain paths are
// returned unchanged.
func PathFromURI(uri string) (string, error) {
	if !strings.Contains(uri, "://") {
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: %s", ErrNotFileURI, uri)
	}
	return filepath.FromSlash(u.Path), nil
}

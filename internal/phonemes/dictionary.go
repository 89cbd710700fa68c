package phonemes

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

//go:embed data/dictionary.txt
var bundledDictionary []byte

// variantMarker matches numbered pronunciation variants such as "READ(1)".
var variantMarker = regexp.MustCompile(`\(\d+\)$`)

// Dictionary maps normalized words to phonetic transcriptions.
// The word list is parsed once, on first use, and is read-only afterwards.
type Dictionary struct {
	path string

	once    sync.Once
	entries map[string]string
}

// NewDictionary creates a dictionary backed by the word list at path.
// An empty path selects the bundled word list. Files ending in ".zst"
// are zstd-compressed.
func NewDictionary(path string) *Dictionary {
	return &Dictionary{path: path}
}

// NewDictionaryFromEntries creates an already loaded dictionary.
// Keys are normalized the same way as parsed entries.
func NewDictionaryFromEntries(entries map[string]string) *Dictionary {
	d := &Dictionary{entries: make(map[string]string, len(entries))}
	for word, transcription := range entries {
		if key := NormalizeKey(word); key != "" {
			if _, exists := d.entries[key]; !exists {
				d.entries[key] = transcription
			}
		}
	}
	d.once.Do(func() {})
	return d
}

// Load parses the word list. Repeated calls return the cached result.
// A list that cannot be read leaves the dictionary empty.
func (d *Dictionary) Load() int {
	d.once.Do(func() {
		entries, err := d.parse()
		if err != nil {
			log.Warn("Pronunciation dictionary unavailable, using rules only", "path", d.source(), "error", err)
			entries = map[string]string{}
		}
		d.entries = entries
	})
	return len(d.entries)
}

// Lookup returns the transcription for word.
func (d *Dictionary) Lookup(word string) (string, bool) {
	d.Load()
	key := NormalizeKey(word)
	if key == "" {
		return "", false
	}
	transcription, ok := d.entries[key]
	return transcription, ok
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	return d.Load()
}

func (d *Dictionary) source() string {
	if d.path == "" {
		return "bundled"
	}
	return d.path
}

func (d *Dictionary) parse() (map[string]string, error) {
	if d.path == "" {
		return parseDictionary(bytes.NewReader(bundledDictionary))
	}

	f, err := os.Open(d.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(d.path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	return parseDictionary(r)
}

// parseDictionary reads "WORD[(n)] TRANSCRIPTION" lines. Comment lines
// start with ";;;" or "#". The first transcription seen for a key wins.
func parseDictionary(r io.Reader) (map[string]string, error) {
	entries := make(map[string]string)
	skipped := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";;;") || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			skipped++
			continue
		}
		key := NormalizeKey(fields[0])
		if key == "" {
			skipped++
			continue
		}
		if _, exists := entries[key]; exists {
			continue
		}
		entries[key] = strings.Join(fields[1:], " ")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	log.Debug("Pronunciation dictionary loaded", "entries", len(entries), "skipped", skipped)
	return entries, nil
}

// NormalizeKey lowercases word and strips variant markers and trailing
// punctuation.
func NormalizeKey(word string) string {
	key := strings.ToLower(strings.TrimSpace(word))
	key = variantMarker.ReplaceAllString(key, "")
	return strings.TrimRightFunc(key, unicode.IsPunct)
}

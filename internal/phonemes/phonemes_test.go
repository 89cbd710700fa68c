package phonemes

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"trim", "  hello  ", "hello"},
		{"collapse whitespace", "a \t\n  b", "a b"},
		{"curly quotes", "“quoted” ‘single’", `"quoted" 'single'`},
		{"ellipsis", "wait…", "wait..."},
		{"non-breaking space", "a b", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpandNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"42", "forty-two"},
		{"100", "one hundred"},
		{"3.14", "three point one four"},
		{"0", "zero"},
		{"-5", "minus five"},
		{"it is -7 out", "it is minus seven out"},
		{"1,000", "one thousand"},
		{"1,234,567", "one million two hundred thirty-four thousand five hundred sixty-seven"},
		{"2000000000", "two billion"},
		{"999999999999", "nine hundred ninety-nine billion nine hundred ninety-nine million nine hundred ninety-nine thousand nine hundred ninety-nine"},
		{"1-2", "one-two"},
		{"in 1999.", "in one thousand nine hundred ninety-nine."},
		{"no digits", "no digits"},
		{"x86", "x eighty-six"},
		{"2nd", "two nd"},
		{"mp3 player", "mp three player"},
		{"a-5", "a-five"},
		{"99999999999999999999", "nine nine nine nine nine nine nine nine nine nine nine nine nine nine nine nine nine nine nine nine"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ExpandNumbers(tt.input); got != tt.want {
				t.Errorf("ExpandNumbers(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIntegerWordsAreLowercaseWords(t *testing.T) {
	for _, n := range []uint64{1, 13, 20, 101, 1010, 65536, 7_000_001, 123_456_789_012} {
		words := IntegerWords(n)
		if words != strings.ToLower(words) {
			t.Errorf("IntegerWords(%d) = %q, expected lowercase", n, words)
		}
		if strings.Contains(words, "  ") || strings.HasPrefix(words, " ") {
			t.Errorf("IntegerWords(%d) = %q, expected single spaces", n, words)
		}
		if strings.Contains(words, "zero") {
			t.Errorf("IntegerWords(%d) = %q, unexpected zero", n, words)
		}
	}
}

func TestPhonemizeCommonWords(t *testing.T) {
	p := New(NewDictionaryFromEntries(nil))

	if got := p.Phonemize("Hello world"); got != "hɛˈloʊ wˈɝld" {
		t.Errorf("Phonemize(Hello world) = %q", got)
	}
	if got := p.Phonemize(""); got != "" {
		t.Errorf("Phonemize(empty) = %q, want empty", got)
	}
	if got := p.Phonemize("Hello, world!"); got != "hɛˈloʊ , wˈɝld !" {
		t.Errorf("Phonemize with punctuation = %q", got)
	}
}

func TestPhonemizeNumbers(t *testing.T) {
	p := New(NewDictionaryFromEntries(nil))

	got := p.Phonemize("42")
	if got != "fˈɔɹti tˈu" {
		t.Errorf("Phonemize(42) = %q, want %q", got, "fˈɔɹti tˈu")
	}
}

func TestPhonemizeDictionaryWins(t *testing.T) {
	dict := NewDictionaryFromEntries(map[string]string{"hello": "hələʊ"})
	p := New(dict)

	if got := p.Phonemize("Hello"); got != "hələʊ" {
		t.Errorf("expected dictionary transcription, got %q", got)
	}
}

func TestPhonemizeHyphenated(t *testing.T) {
	p := New(NewDictionaryFromEntries(nil))

	got := p.Phonemize("hello-world")
	if got != "hɛˈloʊ wˈɝld" {
		t.Errorf("Phonemize(hello-world) = %q", got)
	}
}

func TestRuleBased(t *testing.T) {
	tests := []struct {
		word string
		want string
	}{
		{"thin", "θˈɪn"},
		{"ship", "ʃˈɪp"},
		{"cat", "kˈæt"},
		{"it", "ɪt"},
		{"xyz", "ksjz"},
		{"bob", "bˈɑb"},
		{"caf\u00e9", "kˈæf\u00e9"},
		{"na\u00efve", "nˈæ\u00efvɛ"},
	}

	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			if got := ruleBased(tt.word); got != tt.want {
				t.Errorf("ruleBased(%q) = %q, want %q", tt.word, got, tt.want)
			}
		})
	}
}

func TestPhonemizeKeepsAccentedLetters(t *testing.T) {
	p := New(NewDictionaryFromEntries(nil))

	tests := []struct {
		text string
		want string
	}{
		{"Caf\u00e9", "kˈæf\u00e9"},
		{"na\u00efve", "nˈæ\u00efvɛ"},
		{"Zo\u00eb", "zˈɑ\u00eb"},
		{"Cafe\u0301", "kˈæf\u00e9"}, // decomposed input is composed first
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := p.Phonemize(tt.text); got != tt.want {
				t.Errorf("Phonemize(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestPhonemizeDigitsNextToLetters(t *testing.T) {
	p := New(NewDictionaryFromEntries(nil))

	tests := []struct {
		text string
		want string
	}{
		{"x86", "ks ˈeɪti sˈɪks"},
		{"2nd", "tˈu nd"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := p.Phonemize(tt.text); got != tt.want {
				t.Errorf("Phonemize(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestPhonemizeFreeStandingDash(t *testing.T) {
	p := New(NewDictionaryFromEntries(nil))

	for _, text := range []string{"a - b", "a -- b"} {
		if got := p.Phonemize(text); got != "ɐ — b" {
			t.Errorf("Phonemize(%q) = %q, want %q", text, got, "ɐ — b")
		}
	}
}

func TestRuleBasedStressOnce(t *testing.T) {
	p := New(NewDictionaryFromEntries(nil))

	got := p.Phonemize("banana")
	if strings.Count(got, StressMark) != 1 {
		t.Errorf("expected exactly one stress mark in %q", got)
	}
}

func TestPhonemizeNonLatinWord(t *testing.T) {
	p := New(NewDictionaryFromEntries(nil))

	if got := p.Phonemize("日本"); got != "日本" {
		t.Errorf("Phonemize(日本) = %q, want letters passed through", got)
	}
}

func TestBundledDictionaryRoundTrip(t *testing.T) {
	dict := NewDictionary("")
	if dict.Len() == 0 {
		t.Fatal("expected bundled dictionary entries")
	}

	p := New(dict)
	for word, transcription := range dict.entries {
		if got := p.Phonemize(word); got != transcription {
			t.Errorf("Phonemize(%q) = %q, want %q", word, got, transcription)
		}
	}
}

func TestDictionaryVariantsFirstWins(t *testing.T) {
	dict := NewDictionary("")

	got, ok := dict.Lookup("READ")
	if !ok {
		t.Fatal("expected READ in bundled dictionary")
	}
	if got != "ɹˈid" {
		t.Errorf("Lookup(READ) = %q, want first variant", got)
	}
	if _, ok := dict.Lookup("read(1)"); !ok {
		t.Error("expected variant marker to be stripped from query")
	}
	if _, ok := dict.Lookup("read."); !ok {
		t.Error("expected trailing punctuation to be stripped from query")
	}
	if _, ok := dict.Lookup("qwertyuiop"); ok {
		t.Error("expected unknown word to be missing")
	}
}

func TestDictionaryExternalFiles(t *testing.T) {
	dir := t.TempDir()
	content := "# test list\nFOO  fˈu\nFOO(2)  fˈoʊ\nbroken\nBAR!  bˈɑɹ\n"

	plain := filepath.Join(dir, "dict.txt")
	if err := os.WriteFile(plain, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var compressed bytes.Buffer
	enc, err := zstd.NewWriter(&compressed)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	packed := filepath.Join(dir, "dict.txt.zst")
	if err := os.WriteFile(packed, compressed.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{plain, packed} {
		dict := NewDictionary(path)
		if dict.Len() != 2 {
			t.Errorf("%s: expected 2 entries, got %d", filepath.Base(path), dict.Len())
		}
		if got, _ := dict.Lookup("foo"); got != "fˈu" {
			t.Errorf("%s: Lookup(foo) = %q", filepath.Base(path), got)
		}
		if got, _ := dict.Lookup("bar"); got != "bˈɑɹ" {
			t.Errorf("%s: Lookup(bar) = %q", filepath.Base(path), got)
		}
	}
}

func TestDictionaryMissingFileIsEmpty(t *testing.T) {
	dict := NewDictionary(filepath.Join(t.TempDir(), "missing.txt"))

	if dict.Len() != 0 {
		t.Errorf("expected empty dictionary, got %d entries", dict.Len())
	}
	if _, ok := dict.Lookup("anything"); ok {
		t.Error("expected lookup miss on empty dictionary")
	}

	p := New(dict)
	if got := p.Phonemize("cat"); got != "kˈæt" {
		t.Errorf("expected rule-based fallback, got %q", got)
	}
}

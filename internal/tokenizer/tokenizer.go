// Package tokenizer maps phoneme strings to model vocabulary codes.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// MaxPhonemeLength is the number of phoneme codes the model accepts
// between the two sentinels.
const MaxPhonemeLength = 510

// Phonemizer converts plain text into IPA.
type Phonemizer interface {
	Phonemize(text string) string
}

// Result is the output of Tokenize.
type Result struct {
	Tokens    []int64 // Sentinel-wrapped vocabulary codes
	Phonemes  string  // Phoneme string the tokens were built from
	Dropped   []rune  // Characters with no vocabulary code
	Truncated bool    // Codes beyond MaxPhonemeLength were cut
}

// Tokenizer turns text or phonemes into token sequences.
// It is safe for concurrent use.
type Tokenizer struct {
	phonemizer  Phonemizer
	maxPhonemes int

	mu   sync.RWMutex
	last string
}

// New creates a tokenizer. maxPhonemes <= 0 selects MaxPhonemeLength.
func New(p Phonemizer, maxPhonemes int) *Tokenizer {
	if maxPhonemes <= 0 {
		maxPhonemes = MaxPhonemeLength
	}
	return &Tokenizer{phonemizer: p, maxPhonemes: maxPhonemes}
}

// Tokenize phonemizes text unless it already contains IPA symbols and
// returns the sentinel-wrapped codes. Unknown characters are dropped.
func (t *Tokenizer) Tokenize(text string) Result {
	phonemes := text
	if !ContainsIPA(text) && t.phonemizer != nil {
		phonemes = t.phonemizer.Phonemize(text)
	}

	t.mu.Lock()
	t.last = phonemes
	t.mu.Unlock()

	res := Result{Phonemes: phonemes}
	tokens := make([]int64, 0, len(phonemes)+2)
	tokens = append(tokens, Sentinel)
	for _, r := range phonemes {
		code, ok := Code(r)
		if !ok {
			res.Dropped = append(res.Dropped, r)
			continue
		}
		if len(tokens)-1 >= t.maxPhonemes {
			res.Truncated = true
			continue
		}
		tokens = append(tokens, code)
	}
	tokens = append(tokens, Sentinel)
	res.Tokens = tokens

	if len(res.Dropped) > 0 {
		log.Warn("Dropped characters missing from vocabulary", "chars", string(res.Dropped), "count", len(res.Dropped))
	}
	if res.Truncated {
		log.Warn("Phoneme sequence truncated", "max", t.maxPhonemes, "phonemes", len([]rune(phonemes)))
	}
	return res
}

// LastPhonemes returns the phoneme string of the most recent Tokenize call.
func (t *Tokenizer) LastPhonemes() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// ContainsIPA reports whether text holds characters from the IPA blocks,
// which marks it as already phonemized.
func ContainsIPA(text string) bool {
	return strings.IndexFunc(text, isIPA) >= 0
}

func isIPA(r rune) bool {
	switch {
	case r >= 0x0250 && r <= 0x02FF:
		return true
	case r == 'æ', r == 'ç', r == 'ð', r == 'ø', r == 'ŋ', r == 'œ', r == 'ħ',
		r == 'β', r == 'θ', r == 'χ', r == 'ᵻ', r == 'ⱱ':
		return true
	}
	return false
}

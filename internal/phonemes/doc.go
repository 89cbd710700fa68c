// Package phonemes converts English text into IPA phoneme strings.
// It combines a pronunciation dictionary, a small table of common words,
// number expansion and a rule-based grapheme-to-phoneme fallback.
package phonemes

package phonemes

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// StressMark is the IPA primary stress symbol.
const StressMark = "ˈ"

// digraphs are matched before single letters.
var digraphs = map[string]string{
	"th": "θ",
	"sh": "ʃ",
	"ch": "ʧ",
	"ph": "f",
	"ng": "ŋ",
	"ck": "k",
	"wh": "w",
	"qu": "kw",
	"kn": "n",
	"wr": "ɹ",
	"ee": "i",
	"ea": "i",
	"oo": "u",
	"ai": "eɪ",
	"ay": "eɪ",
	"ou": "aʊ",
	"ow": "oʊ",
	"oa": "oʊ",
	"oi": "ɔɪ",
	"oy": "ɔɪ",
	"au": "ɔ",
	"aw": "ɔ",
	"er": "ɚ",
	"ir": "ɝ",
	"ur": "ɝ",
	"ar": "ɑɹ",
	"or": "ɔɹ",
}

var letters = map[rune]string{
	'a': "æ",
	'b': "b",
	'c': "k",
	'd': "d",
	'e': "ɛ",
	'f': "f",
	'g': "ɡ",
	'h': "h",
	'i': "ɪ",
	'j': "ʤ",
	'k': "k",
	'l': "l",
	'm': "m",
	'n': "n",
	'o': "ɑ",
	'p': "p",
	'q': "k",
	'r': "ɹ",
	's': "s",
	't': "t",
	'u': "ʌ",
	'v': "v",
	'w': "w",
	'x': "ks",
	'y': "j",
	'z': "z",
}

// vowels are the IPA vowel symbols that can carry stress.
const vowels = "aeiouæɑɐɒɔəɘɚɛɜɝɞɪʊʌɨʉøœɵɤ"

// ruleBased converts a lowercase word letter by letter, preferring
// digraphs, and marks stress before the first vowel.
func ruleBased(word string) string {
	var b strings.Builder
	runes := []rune(word)
	for i := 0; i < len(runes); i++ {
		if i+1 < len(runes) {
			if ipa, ok := digraphs[string(runes[i:i+2])]; ok {
				b.WriteString(ipa)
				i++
				continue
			}
		}
		r := runes[i]
		if ipa, ok := letters[r]; ok {
			b.WriteString(ipa)
			continue
		}
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return addStress(b.String())
}

// addStress inserts StressMark before the first vowel of a result
// longer than two symbols that contains no punctuation.
func addStress(ipa string) string {
	if utf8.RuneCountInString(ipa) <= 2 || strings.IndexFunc(ipa, unicode.IsPunct) >= 0 {
		return ipa
	}
	at := strings.IndexAny(ipa, vowels)
	if at < 0 {
		return ipa
	}
	return ipa[:at] + StressMark + ipa[at:]
}

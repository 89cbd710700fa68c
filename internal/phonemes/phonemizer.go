package phonemes

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// dashPause replaces a free-standing dash so it is read as a pause.
const dashPause = "—"

var (
	whitespaceRun = regexp.MustCompile(`[\s\p{Zs}]+`)

	// spanPattern yields word spans and punctuation spans in order.
	spanPattern = regexp.MustCompile(`[\p{L}\p{N}'\-]+|[^\p{L}\p{N}'\-\s\p{Zs}]+`)

	wordSpan = regexp.MustCompile(`^[\p{L}\p{N}'\-]+$`)

	quoteReplacer = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
		"‘", "'", "’", "'", "‚", "'", "‛", "'",
		"…", "...",
	)
)

// commonWords covers frequent words and the vocabulary produced by
// ExpandNumbers. Entries already carry stress marks.
var commonWords = map[string]string{
	"a":     "ɐ",
	"an":    "ɐn",
	"and":   "ænd",
	"are":   "ɑɹ",
	"as":    "æz",
	"at":    "æt",
	"be":    "bi",
	"for":   "fɔɹ",
	"have":  "hæv",
	"hello": "hɛˈloʊ",
	"i":     "ˈaɪ",
	"in":    "ɪn",
	"is":    "ɪz",
	"it":    "ɪt",
	"of":    "ʌv",
	"on":    "ɑn",
	"that":  "ðæt",
	"the":   "ðə",
	"this":  "ðɪs",
	"to":    "tu",
	"was":   "wʌz",
	"we":    "wi",
	"what":  "wʌt",
	"with":  "wɪð",
	"world": "wˈɝld",
	"you":   "ju",

	"zero":      "zˈɪɹoʊ",
	"one":       "wˈʌn",
	"two":       "tˈu",
	"three":     "θɹˈi",
	"four":      "fˈɔɹ",
	"five":      "fˈaɪv",
	"six":       "sˈɪks",
	"seven":     "sˈɛvən",
	"eight":     "ˈeɪt",
	"nine":      "nˈaɪn",
	"ten":       "tˈɛn",
	"eleven":    "ɪlˈɛvən",
	"twelve":    "twˈɛlv",
	"thirteen":  "θɝtˈin",
	"fourteen":  "fɔɹtˈin",
	"fifteen":   "fɪftˈin",
	"sixteen":   "sɪkstˈin",
	"seventeen": "sɛvəntˈin",
	"eighteen":  "eɪtˈin",
	"nineteen":  "naɪntˈin",
	"twenty":    "twˈɛnti",
	"thirty":    "θˈɝdi",
	"forty":     "fˈɔɹti",
	"fifty":     "fˈɪfti",
	"sixty":     "sˈɪksti",
	"seventy":   "sˈɛvənti",
	"eighty":    "ˈeɪti",
	"ninety":    "nˈaɪnti",
	"hundred":   "hˈʌndɹəd",
	"thousand":  "θˈaʊzənd",
	"million":   "mˈɪljən",
	"billion":   "bˈɪljən",
	"trillion":  "tɹˈɪljən",
	"point":     "pˈɔɪnt",
	"minus":     "mˈaɪnəs",
}

// Normalize trims text, collapses whitespace, straightens curly quotes
// and spells ellipses as three periods.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = quoteReplacer.Replace(text)
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Phonemizer turns text into space separated IPA words.
type Phonemizer struct {
	dict *Dictionary
}

// New creates a phonemizer. A nil dictionary disables dictionary lookup.
func New(dict *Dictionary) *Phonemizer {
	return &Phonemizer{dict: dict}
}

// Phonemize converts text to phonemes. Punctuation spans pass through.
func (p *Phonemizer) Phonemize(text string) string {
	text = ExpandNumbers(Normalize(text))
	if text == "" {
		return ""
	}

	spans := spanPattern.FindAllString(text, -1)
	out := make([]string, 0, len(spans))
	for _, span := range spans {
		if !wordSpan.MatchString(span) {
			out = append(out, span)
			continue
		}
		if strings.Trim(span, "-") == "" {
			out = append(out, dashPause)
			continue
		}
		if strings.Contains(span, "-") {
			for _, part := range strings.Split(span, "-") {
				if ipa := p.word(part); ipa != "" {
					out = append(out, ipa)
				}
			}
			continue
		}
		if ipa := p.word(span); ipa != "" {
			out = append(out, ipa)
		}
	}
	return strings.Join(out, " ")
}

// word resolves a single word through the dictionary, the common word
// table and finally the letter rules.
func (p *Phonemizer) word(word string) string {
	lower := strings.ToLower(word)
	cleaned := cleanWord(lower)
	if cleaned == "" {
		return ruleBased(lower)
	}

	if p.dict != nil {
		if ipa, ok := p.dict.Lookup(cleaned); ok {
			return ipa
		}
	}
	if ipa, ok := commonWords[cleaned]; ok {
		return ipa
	}
	return ruleBased(strings.ReplaceAll(cleaned, "'", ""))
}

// cleanWord keeps letters and inner apostrophes. Accented and non-Latin
// letters survive so the letter rules can pass them through.
func cleanWord(lower string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || r == '\'' {
			return r
		}
		return -1
	}, lower)
	return strings.Trim(cleaned, "'")
}

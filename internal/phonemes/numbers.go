package phonemes

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// numberPattern matches comma-grouped or plain integers with an optional
// decimal part. Group 1 is the sign, group 2 the integer, group 3 the
// fraction digits.
var numberPattern = regexp.MustCompile(`(-?)(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d+))?`)

var onesWords = []string{
	"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
	"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
	"seventeen", "eighteen", "nineteen",
}

var tensWords = []string{
	"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
}

var scaleWords = []struct {
	value uint64
	name  string
}{
	{1_000_000_000_000, "trillion"},
	{1_000_000_000, "billion"},
	{1_000_000, "million"},
	{1_000, "thousand"},
}

// ExpandNumbers replaces numeric literals in text with English words.
// "42" becomes "forty-two" and "3.14" becomes "three point one four".
// A leading "-" reads as "minus" when it starts the text or follows
// whitespace. Numbers touching letters are set apart by spaces, so "x86"
// becomes "x eighty-six".
func ExpandNumbers(text string) string {
	matches := numberPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		b.WriteString(text[last:start])

		negative := m[3] > m[2] && isSignPosition(text, start)
		switch {
		case m[3] > m[2] && !negative:
			b.WriteString("-")
		case m[3] == m[2] && letterBefore(text, start):
			b.WriteString(" ")
		}

		integer := strings.ReplaceAll(text[m[4]:m[5]], ",", "")
		fraction := ""
		if m[6] >= 0 {
			fraction = text[m[6]:m[7]]
		}
		b.WriteString(numberWords(integer, fraction, negative))
		if letterAfter(text, end) {
			b.WriteString(" ")
		}
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

func isSignPosition(text string, at int) bool {
	if at == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:at])
	return unicode.IsSpace(r)
}

func letterBefore(text string, at int) bool {
	if at == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:at])
	return unicode.IsLetter(r)
}

func letterAfter(text string, at int) bool {
	if at >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[at:])
	return unicode.IsLetter(r)
}

func numberWords(integer, fraction string, negative bool) string {
	var parts []string
	if negative {
		parts = append(parts, "minus")
	}

	if n, err := strconv.ParseUint(integer, 10, 64); err == nil {
		parts = append(parts, IntegerWords(n))
	} else {
		parts = append(parts, digitWords(integer))
	}

	if fraction != "" {
		parts = append(parts, "point", digitWords(fraction))
	}
	return strings.Join(parts, " ")
}

// IntegerWords spells n in English, e.g. 1205 is "one thousand two hundred five".
func IntegerWords(n uint64) string {
	switch {
	case n < 20:
		return onesWords[n]
	case n < 100:
		words := tensWords[n/10]
		if n%10 != 0 {
			words += "-" + onesWords[n%10]
		}
		return words
	case n < 1000:
		words := onesWords[n/100] + " hundred"
		if n%100 != 0 {
			words += " " + IntegerWords(n%100)
		}
		return words
	}

	for _, scale := range scaleWords {
		if n >= scale.value {
			words := IntegerWords(n/scale.value) + " " + scale.name
			if n%scale.value != 0 {
				words += " " + IntegerWords(n%scale.value)
			}
			return words
		}
	}
	return onesWords[0]
}

func digitWords(digits string) string {
	words := make([]string, 0, len(digits))
	for _, d := range digits {
		if d >= '0' && d <= '9' {
			words = append(words, onesWords[d-'0'])
		}
	}
	return strings.Join(words, " ")
}

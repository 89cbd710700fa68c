package stream

import (
	"strings"
	"unicode"
)

// ChunkText splits text into pieces of at most maxLen runes. Text that
// already fits is returned unchanged. Longer text is cut after
// sentence-ending punctuation followed by whitespace, else at whitespace,
// else hard at maxLen. Soft cuts are only taken at least maxLen/2 runes
// into the chunk. Whitespace at chunk boundaries is trimmed.
func ChunkText(text string, maxLen int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	if maxLen <= 0 || len(runes) <= maxLen {
		return []string{text}
	}

	minSplit := maxLen / 2
	var chunks []string
	for {
		runes = trimLeftSpace(runes)
		if len(runes) == 0 {
			break
		}
		if len(runes) <= maxLen {
			if chunk := strings.TrimSpace(string(runes)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := sentenceCut(runes, maxLen, minSplit)
		if cut < 0 {
			cut = spaceCut(runes, maxLen, minSplit)
		}
		if cut < 0 {
			cut = maxLen
		}

		if chunk := strings.TrimSpace(string(runes[:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
	}
	return chunks
}

// sentenceCut returns the position just past the last sentence end that
// is followed by whitespace and fits in the chunk.
func sentenceCut(runes []rune, maxLen, minSplit int) int {
	for i := maxLen - 1; i >= minSplit && i > 0; i-- {
		if isSentenceEnd(runes[i]) && unicode.IsSpace(runes[i+1]) {
			return i + 1
		}
	}
	return -1
}

func spaceCut(runes []rune, maxLen, minSplit int) int {
	for i := maxLen; i >= minSplit && i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', ';', ':', '。', '！', '？':
		return true
	}
	return false
}

func trimLeftSpace(runes []rune) []rune {
	for len(runes) > 0 && unicode.IsSpace(runes[0]) {
		runes = runes[1:]
	}
	return runes
}

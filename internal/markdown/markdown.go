// Package markdown turns markdown documents into plain text suitable for
// speech.
package markdown

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	extensions = []string{".md", ".mdown", ".mkdn", ".mkd", ".markdown"}

	bareURL     = regexp.MustCompile(`\(?https?://[^\s)]+\)?`)
	repeatedEnd = regexp.MustCompile(`([.!?])[.!?]+`)
	spacedPunct = regexp.MustCompile(`\s+([,.!?;:])`)
)

// Options controls what ExtractText keeps.
type Options struct {
	SkipCode bool // Drop code blocks and inline code
	SkipURLs bool // Drop autolinks and URLs written in text
}

// DefaultOptions skips code and URLs.
func DefaultOptions() Options {
	return Options{SkipCode: true, SkipURLs: true}
}

// IsMarkdown reports whether path has a markdown file extension.
func IsMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ExtractText returns the speakable text of src, one block per line.
// Headings and list items without closing punctuation get a period so
// they are read as separate sentences. Link text is kept and link
// destinations are never included.
func ExtractText(src []byte, opts Options) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var blocks []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n.Kind() {
		case ast.KindParagraph, ast.KindTextBlock, ast.KindHeading:
			if block := inlineText(n, src, opts); block != "" {
				blocks = append(blocks, terminate(block))
			}
			return ast.WalkSkipChildren, nil

		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			if !opts.SkipCode {
				if block := codeText(n, src); block != "" {
					blocks = append(blocks, terminate(block))
				}
			}
			return ast.WalkSkipChildren, nil

		case ast.KindHTMLBlock, ast.KindThematicBreak:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(blocks, "\n")
}

func inlineText(node ast.Node, src []byte, opts Options) string {
	var b strings.Builder
	writeInline(&b, node, src, opts)

	s := b.String()
	if opts.SkipURLs {
		s = bareURL.ReplaceAllString(s, "")
	}
	s = repeatedEnd.ReplaceAllString(s, "$1")
	s = strings.Join(strings.Fields(s), " ")
	return spacedPunct.ReplaceAllString(s, "$1")
}

func writeInline(b *strings.Builder, node ast.Node, src []byte, opts Options) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch c := child.(type) {
		case *ast.Text:
			b.Write(c.Segment.Value(src))
			if c.SoftLineBreak() || c.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(c.Value)
		case *ast.CodeSpan:
			if !opts.SkipCode {
				writeInline(b, c, src, opts)
			}
		case *ast.AutoLink:
			if !opts.SkipURLs {
				b.Write(c.Label(src))
			}
		case *ast.RawHTML:
			// Inline tags are not spoken.
		default:
			writeInline(b, c, src, opts)
		}
	}
}

func codeText(node ast.Node, src []byte) string {
	lines := node.Lines()
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if line := strings.TrimSpace(string(seg.Value(src))); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

func terminate(s string) string {
	switch s[len(s)-1] {
	case '.', '!', '?', ':', ';':
		return s
	}
	return s + "."
}

package chunker

import (
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// maxSectionLevel is the deepest heading that opens a new section.
const maxSectionLevel = 4

// Markdown splits a document at its headings (levels 1 to 4). Each section
// keeps its heading line. Sections longer than MaxSize runes are split
// further by Inner.
type Markdown struct {
	MaxSize int
	Inner   Chunker
}

func (m *Markdown) Chunk(ctx context.Context, src string) ([]string, error) {
	var out []string
	for _, section := range sections(src) {
		if m.Inner == nil || m.MaxSize <= 0 || len([]rune(section)) <= m.MaxSize {
			out = append(out, section)
			continue
		}
		parts, err := m.Inner.Chunk(ctx, section)
		if err != nil {
			return nil, err
		}
		out = append(out, parts...)
	}
	return out, nil
}

func sections(src string) []string {
	source := []byte(src)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var starts []int
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Level > maxSectionLevel || h.Lines().Len() == 0 {
			continue
		}
		starts = append(starts, lineStart(source, h.Lines().At(0).Start))
	}

	var out []string
	prev := 0
	for _, s := range append(starts, len(source)) {
		if s <= prev {
			continue
		}
		if section := strings.TrimSpace(string(source[prev:s])); section != "" {
			out = append(out, section)
		}
		prev = s
	}
	return out
}

func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

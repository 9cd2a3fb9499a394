package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

var tableDelimiter = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`)

func isTableRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed != "" && strings.Contains(trimmed, "|")
}

func endsSentence(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}

// sentenceCollector accumulates sentence fragments across line breaks.
type sentenceCollector struct {
	out     []string
	current strings.Builder
}

func (c *sentenceCollector) flush() {
	if s := strings.TrimSpace(c.current.String()); s != "" {
		c.out = append(c.out, s)
	}
	c.current.Reset()
}

func (c *sentenceCollector) addProse(line string) {
	for _, sentence := range splitLine(line) {
		if c.current.Len() > 0 {
			c.current.WriteString(" ")
		}
		c.current.WriteString(sentence)
		if endsSentence(sentence) {
			c.flush()
		}
	}
}

// splitSentences breaks text into sentences. Lines are joined until a
// sentence terminator or blank line; a markdown table (header row followed
// by a delimiter row) is kept whole as one sentence.
func splitSentences(text string) []string {
	lines := strings.Split(text, "\n")
	c := &sentenceCollector{}
	inTable := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case inTable && isTableRow(line):
			c.current.WriteString("\n")
			c.current.WriteString(line)
		case inTable:
			inTable = false
			c.flush()
			if trimmed != "" {
				c.addProse(trimmed)
			}
		case isTableRow(line) && i+1 < len(lines) && tableDelimiter.MatchString(strings.TrimSpace(lines[i+1])):
			c.flush()
			inTable = true
			c.current.WriteString(line)
		case isTableRow(line):
			c.flush()
			c.out = append(c.out, trimmed)
		case trimmed == "":
			c.flush()
		default:
			c.addProse(trimmed)
		}
	}
	c.flush()
	return c.out
}

// splitLine splits a single line at ., ! and ?, keeping trailing quotes and
// brackets with their sentence. "1. " style list markers do not end a
// sentence.
func splitLine(line string) []string {
	var sentences []string
	var current strings.Builder

	for i := 0; i < len(line); i++ {
		current.WriteByte(line[i])
		if line[i] != '.' && line[i] != '!' && line[i] != '?' {
			continue
		}
		if i > 0 && unicode.IsDigit(rune(line[i-1])) && i+1 < len(line) && line[i+1] == ' ' {
			continue
		}

		j := i + 1
		for j < len(line) && strings.IndexByte(".!?\"')]}", line[j]) >= 0 {
			current.WriteByte(line[j])
			j++
		}
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
		i = j - 1
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

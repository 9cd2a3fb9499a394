package chunker

import (
	"context"
	"fmt"
	"regexp"
)

// Regex splits text on every match of a pattern and drops empty pieces.
type Regex struct {
	re *regexp.Regexp
}

func NewRegex(pattern string) (*Regex, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile chunk pattern: %w", err)
	}
	return &Regex{re: re}, nil
}

func (r *Regex) Chunk(_ context.Context, text string) ([]string, error) {
	var chunks []string
	for _, piece := range r.re.Split(text, -1) {
		if piece != "" {
			chunks = append(chunks, piece)
		}
	}
	return chunks, nil
}

package chunker

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Token packs whole sentences into chunks of at most MaxTokens tokens. A
// sentence longer than the budget becomes a chunk of its own.
type Token struct {
	enc       *tiktoken.Tiktoken
	MaxTokens int
}

func NewToken(encoding string, maxTokens int) (*Token, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &Token{enc: enc, MaxTokens: maxTokens}, nil
}

func (t *Token) count(s string) int {
	return len(t.enc.Encode(s, nil, nil))
}

func (t *Token) Chunk(_ context.Context, text string) ([]string, error) {
	var chunks []string
	var current []string
	for _, sentence := range splitSentences(text) {
		if len(current) == 0 {
			current = append(current, sentence)
			continue
		}
		candidate := strings.Join(append(current, sentence), " ")
		if t.count(candidate) <= t.MaxTokens {
			current = append(current, sentence)
			continue
		}
		chunks = append(chunks, strings.Join(current, " "))
		current = []string{sentence}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks, nil
}

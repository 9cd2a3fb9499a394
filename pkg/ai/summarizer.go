package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const summaryEncoding = "o200k_base"

type summaryResponse struct {
	Summary string `json:"summary" jsonschema_description:"Single coherent summary of all descriptions"`
}

// Summarizer condenses community member descriptions into one summary.
type Summarizer struct {
	client         GraphAIClient
	maxInputTokens int
	opts           []GenerateOption

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
}

// NewSummarizer returns a Summarizer that drops trailing descriptions once
// the prompt would exceed maxInputTokens. Zero or less disables the budget.
func NewSummarizer(client GraphAIClient, maxInputTokens int, opts ...GenerateOption) *Summarizer {
	return &Summarizer{client: client, maxInputTokens: maxInputTokens, opts: opts}
}

func (s *Summarizer) Summarize(ctx context.Context, title string, descriptions []string) (string, error) {
	descriptions, err := s.budget(descriptions)
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(SummarizePrompt, title, strings.Join(descriptions, "\n"))
	var res summaryResponse
	err = s.client.GenerateCompletionWithFormat(
		ctx,
		"summarize_community",
		"Summarize the descriptions of a group of entities.",
		prompt,
		&res,
		s.opts...,
	)
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(res.Summary)
	if summary == "" {
		return "", ErrEmptyResponse
	}
	return summary, nil
}

func (s *Summarizer) budget(descriptions []string) ([]string, error) {
	if s.maxInputTokens <= 0 {
		return descriptions, nil
	}
	s.encOnce.Do(func() {
		s.enc, s.encErr = tiktoken.GetEncoding(summaryEncoding)
	})
	if s.encErr != nil {
		return nil, fmt.Errorf("load encoding %s: %w", summaryEncoding, s.encErr)
	}

	used := 0
	for i, d := range descriptions {
		used += len(s.enc.Encode(d, nil, nil)) + 1
		if used > s.maxInputTokens && i > 0 {
			return descriptions[:i], nil
		}
	}
	return descriptions, nil
}

package ai

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// EmbedResult is delivered by Embedder.EmbedAsync.
type EmbedResult struct {
	Vector []float32
	Err    error
}

// Embedder turns text into vectors through a GraphAIClient.
type Embedder struct {
	client      GraphAIClient
	concurrency int
}

// NewEmbedder returns an Embedder issuing at most concurrency requests at a
// time from EmbedAll. Zero or less means 8.
func NewEmbedder(client GraphAIClient, concurrency int) *Embedder {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Embedder{client: client, concurrency: concurrency}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.client.GenerateEmbedding(ctx, []byte(text))
}

// EmbedAsync starts embedding text and returns a channel that receives exactly
// one result.
func (e *Embedder) EmbedAsync(ctx context.Context, text string) <-chan EmbedResult {
	out := make(chan EmbedResult, 1)
	go func() {
		vec, err := e.Embed(ctx, text)
		out <- EmbedResult{Vector: vec, Err: err}
		close(out)
	}()
	return out
}

// EmbedAll embeds texts concurrently, keeping input order. The first error
// cancels the remaining requests.
func (e *Embedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gctx, text)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/graphsync/pkg/ai"

	"github.com/ollama/ollama/api"
)

const defaultDimensions = 1024

func (c *GraphOllamaClient) dim() int {
	if c.dimensions > 0 {
		return c.dimensions
	}
	return defaultDimensions
}

// GenerateEmbedding creates a vector embedding for the given input text
// using the configured embedding model on Ollama. Blank input yields a zero
// vector without a request.
func (c *GraphOllamaClient) GenerateEmbedding(
	ctx context.Context,
	input []byte,
) ([]float32, error) {
	dim := c.dim()
	if len(strings.TrimSpace(string(input))) == 0 {
		return make([]float32, dim), nil
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: string(input),
	}

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	res, err := c.Client.Embed(rCtx, req)
	if err != nil {
		return nil, err
	}

	c.Record(ai.ModelMetrics{
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		DurationMs:  res.TotalDuration.Milliseconds(),
	})

	if len(res.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", ai.ErrEmptyResponse)
	}
	out := make([]float32, dim)
	copy(out, res.Embeddings[0])
	return out, nil
}

package ai

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedClient paces every request of the wrapped client through a
// token bucket. Metrics pass through unchanged.
type RateLimitedClient struct {
	inner   GraphAIClient
	limiter *rate.Limiter
}

// NewRateLimitedClient allows perSecond requests per second with the given
// burst. A non-positive perSecond returns inner unwrapped.
func NewRateLimitedClient(inner GraphAIClient, perSecond float64, burst int) GraphAIClient {
	if perSecond <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (c *RateLimitedClient) GenerateCompletion(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return c.inner.GenerateCompletion(ctx, prompt, opts...)
}

func (c *RateLimitedClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...GenerateOption,
) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.inner.GenerateCompletionWithFormat(ctx, name, description, prompt, out, opts...)
}

func (c *RateLimitedClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.GenerateEmbedding(ctx, input)
}

func (c *RateLimitedClient) ResetMetrics()            { c.inner.ResetMetrics() }
func (c *RateLimitedClient) GetMetrics() ModelMetrics { return c.inner.GetMetrics() }

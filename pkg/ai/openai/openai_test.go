package openai

import (
	"context"
	"errors"
	"testing"
)

func TestNormalizeEmbeddingInputs(t *testing.T) {
	idx, in, out := normalizeEmbeddingInputs([][]byte{[]byte("a"), []byte("  "), nil, []byte("b")}, 3)
	if len(idx) != 2 || idx[0] != 0 || idx[1] != 3 {
		t.Fatalf("unexpected index map: %v", idx)
	}
	if len(in) != 2 || in[0] != "a" || in[1] != "b" {
		t.Fatalf("unexpected inputs: %v", in)
	}
	if len(out[1]) != 3 || len(out[2]) != 3 || out[0] != nil {
		t.Fatalf("blank inputs should get zero vectors: %v", out)
	}
}

func TestFitDimensions(t *testing.T) {
	got := fitDimensions([]float64{1, 2, 3}, 2)
	if len(got) != 2 || got[1] != 2 {
		t.Fatalf("truncate failed: %v", got)
	}
	got = fitDimensions([]float64{1}, 3)
	if len(got) != 3 || got[0] != 1 || got[2] != 0 {
		t.Fatalf("pad failed: %v", got)
	}
}

func TestUnconfiguredClient(t *testing.T) {
	c := NewGraphOpenAIClient(NewGraphOpenAIClientParams{Dimensions: 4})

	if _, err := c.GenerateCompletion(context.Background(), "hi"); !errors.Is(err, errNoChatClient) {
		t.Fatalf("expected errNoChatClient, got %v", err)
	}
	if _, err := c.GenerateEmbedding(context.Background(), []byte("hi")); !errors.Is(err, errNoEmbeddingClient) {
		t.Fatalf("expected errNoEmbeddingClient, got %v", err)
	}

	vec, err := c.GenerateEmbedding(context.Background(), []byte(" "))
	if err != nil || len(vec) != 4 {
		t.Fatalf("blank input should embed to zeros without a request: %v %v", vec, err)
	}
}

package ollama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHeaderTransport(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := &http.Client{Transport: &headerTransport{
		headers: map[string]string{"Authorization": "Bearer secret"},
		rt:      http.DefaultTransport,
	}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if got != "Bearer secret" {
		t.Fatalf("expected bearer header, got %q", got)
	}
}

func TestBlankEmbeddingSkipsRequest(t *testing.T) {
	c, err := NewGraphOllamaClient(NewGraphOllamaClientParams{BaseURL: "http://127.0.0.1:1", Dimensions: 8})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	vec, err := c.GenerateEmbedding(context.Background(), []byte("\n\t "))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 8 {
		t.Fatalf("expected 8 dims, got %d", len(vec))
	}
	if c.GetMetrics().Requests != 0 {
		t.Fatalf("no request should be recorded")
	}
}

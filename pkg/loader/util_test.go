package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "crlf", input: "a\r\nb", expected: "a\nb"},
		{name: "blank runs", input: "a\n\n\n\n\nb", expected: "a\n\nb"},
		{name: "trailing space", input: "a   \nb\t\n", expected: "a\nb"},
		{name: "nul bytes", input: "a\x00b", expected: "ab"},
		{name: "only whitespace", input: " \n\n\t", expected: ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := NormalizeText(test.input); got != test.expected {
				t.Fatalf("unexpected output\nexpected:\n%q\n\ngot:\n%q", test.expected, got)
			}
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	if got := ContentTypeFor("docs/README.MD"); got != "markdown" {
		t.Fatalf("expected markdown, got %q", got)
	}
	if got := ContentTypeFor("notes.txt"); got != "" {
		t.Fatalf("expected empty content type, got %q", got)
	}
}

func TestCache_LoadsOnce(t *testing.T) {
	c := NewCache()
	var loads atomic.Int32
	load := func() ([]byte, error) {
		loads.Add(1)
		return []byte("text"), nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			if _, err := c.Get("k", load); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
	wg.Wait()

	if n := loads.Load(); n != 1 {
		t.Fatalf("expected one load, got %d", n)
	}
}

func TestCache_DoesNotCacheErrors(t *testing.T) {
	c := NewCache()
	boom := errors.New("boom")
	if _, err := c.Get("k", func() ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	b, err := c.Get("k", func() ([]byte, error) { return []byte("ok"), nil })
	if err != nil || string(b) != "ok" {
		t.Fatalf("expected retry to load, got %q, %v", b, err)
	}
}

type staticLoader string

func (s staticLoader) Load(context.Context, Source) ([]byte, error) { return []byte(s), nil }

func TestSourceText(t *testing.T) {
	text, err := Source{ID: "a", Loader: staticLoader("  hello\r\n")}.Text(context.Background())
	if err != nil || text != "hello" {
		t.Fatalf("expected hello, got %q, %v", text, err)
	}
	_, err = Source{ID: "b", Loader: staticLoader("\n\n")}.Text(context.Background())
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := (Source{ID: "c"}).Text(context.Background()); err == nil {
		t.Fatal("expected error without loader")
	}
}

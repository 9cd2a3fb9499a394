package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/graphsync/pkg/loader"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/net/html/charset"
)

const maxBody = 32 << 20

// WebLoader fetches URLs. HTML pages are reduced to their readable article
// text, other content types are returned as fetched.
type WebLoader struct {
	client *http.Client
	cache  *loader.Cache
}

// NewWebLoader uses client, or a client with a 30s timeout when nil.
func NewWebLoader(client *http.Client) *WebLoader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebLoader{client: client, cache: loader.NewCache()}
}

func (l *WebLoader) Load(ctx context.Context, src loader.Source) ([]byte, error) {
	return l.cache.Get(loader.CacheKey(src), func() ([]byte, error) {
		return l.fetch(ctx, src.Path)
	})
}

func (l *WebLoader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := charset.NewReader(io.LimitReader(resp.Body, maxBody), contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode body: %w", err)
	}

	if !strings.Contains(contentType, "text/html") {
		return io.ReadAll(body)
	}

	article, err := readability.FromReader(body, u)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	var builder strings.Builder
	if err := article.RenderText(&builder); err != nil {
		return nil, fmt.Errorf("failed to render article text: %w", err)
	}
	return []byte(builder.String()), nil
}

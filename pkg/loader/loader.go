// Package loader reads the raw text of documents before they enter a graph.
// A Source names where the bytes live, a Loader knows how to fetch them.
package loader

import (
	"context"
	"errors"
)

var ErrEmpty = errors.New("source has no text")

// Source is one document to ingest.
type Source struct {
	// ID becomes the Document vertex id.
	ID string
	// Path is a filesystem path, a URL or an object key depending on Loader.
	Path string
	// ContentType optionally pins the chunker used for this document.
	ContentType string
	Loader      Loader
}

// Text loads the source and rejects blank documents.
//
// Example:
//
//	src := loader.Source{ID: "readme", Path: "README.md", Loader: io.NewFileLoader()}
//	text, err := src.Text(ctx)
func (s Source) Text(ctx context.Context) (string, error) {
	if s.Loader == nil {
		return "", errors.New("source has no loader")
	}
	b, err := s.Loader.Load(ctx, s)
	if err != nil {
		return "", err
	}
	text := NormalizeText(string(b))
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// Loader fetches the bytes of a Source.
type Loader interface {
	Load(ctx context.Context, src Source) ([]byte, error)
}

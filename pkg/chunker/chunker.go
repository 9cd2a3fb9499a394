// Package chunker splits document text into ordered chunks. Strategies are
// interchangeable behind the Chunker interface and selected by Config.Type.
package chunker

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Type string

const (
	TypeCharacter Type = "character"
	TypeRegex     Type = "regex"
	TypeSemantic  Type = "semantic"
	TypeMarkdown  Type = "markdown"
	TypeToken     Type = "token"
)

const (
	DefaultChunkSize = 1024
	DefaultOverlap   = 0
	DefaultPattern   = `\r?\n`
	// DefaultThreshold is the distance percentile above which the semantic
	// chunker breaks.
	DefaultThreshold = 0.95
	DefaultEncoding  = "o200k_base"
)

var (
	ErrUnknown   = errors.New("unknown chunker")
	ErrNoEmbedFn = errors.New("semantic chunker needs an embedding function")
)

// Chunker splits text into ordered chunks.
type Chunker interface {
	Chunk(ctx context.Context, text string) ([]string, error)
}

// EmbedFunc embeds a batch of texts, one vector per input.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

type Config struct {
	Type Type
	// ChunkSize is counted in runes, except for TypeToken where it is tokens.
	ChunkSize int
	Overlap   int
	Pattern   string
	Threshold float64
	Encoding  string
	Embed     EmbedFunc
}

// WithType returns a copy of c using the named strategy. An empty name keeps
// the current one.
func (c Config) WithType(name string) Config {
	if name = strings.TrimSpace(strings.ToLower(name)); name != "" {
		c.Type = Type(name)
	}
	return c
}

func (c Config) withDefaults() Config {
	if c.Type == "" {
		c.Type = TypeCharacter
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Overlap < 0 {
		c.Overlap = DefaultOverlap
	}
	if c.Pattern == "" {
		c.Pattern = DefaultPattern
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		c.Threshold = DefaultThreshold
	}
	if c.Encoding == "" {
		c.Encoding = DefaultEncoding
	}
	return c
}

// New builds the chunker described by cfg.
func New(cfg Config) (Chunker, error) {
	cfg = cfg.withDefaults()
	switch cfg.Type {
	case TypeCharacter:
		return NewCharacter(cfg.ChunkSize, cfg.Overlap)
	case TypeRegex:
		return NewRegex(cfg.Pattern)
	case TypeSemantic:
		if cfg.Embed == nil {
			return nil, ErrNoEmbedFn
		}
		return &Semantic{Embed: cfg.Embed, Threshold: cfg.Threshold, MaxSize: cfg.ChunkSize}, nil
	case TypeMarkdown:
		inner, err := NewCharacter(cfg.ChunkSize, cfg.Overlap)
		if err != nil {
			return nil, err
		}
		return &Markdown{MaxSize: cfg.ChunkSize, Inner: inner}, nil
	case TypeToken:
		return NewToken(cfg.Encoding, cfg.ChunkSize)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknown, cfg.Type)
	}
}

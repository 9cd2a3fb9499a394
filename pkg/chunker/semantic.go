package chunker

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Semantic groups consecutive sentences and starts a new chunk where the
// embedding distance between neighbouring sentences lies above the Threshold
// percentile of all neighbour distances in the text.
type Semantic struct {
	Embed     EmbedFunc
	Threshold float64
	// MaxSize re-splits groups longer than this many runes. 0 disables it.
	MaxSize int
}

func (s *Semantic) Chunk(ctx context.Context, text string) ([]string, error) {
	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return s.bound(ctx, sentences)
	}

	vectors, err := s.Embed(ctx, sentences)
	if err != nil {
		return nil, fmt.Errorf("embed sentences: %w", err)
	}
	if len(vectors) != len(sentences) {
		return nil, fmt.Errorf("embed sentences: got %d vectors for %d sentences", len(vectors), len(sentences))
	}

	distances := make([]float64, len(sentences)-1)
	for i := range distances {
		distances[i] = 1 - cosine(vectors[i], vectors[i+1])
	}
	cut := percentile(distances, s.Threshold)

	var groups []string
	start := 0
	for i, d := range distances {
		if d > cut {
			groups = append(groups, strings.Join(sentences[start:i+1], " "))
			start = i + 1
		}
	}
	groups = append(groups, strings.Join(sentences[start:], " "))
	return s.bound(ctx, groups)
}

func (s *Semantic) bound(ctx context.Context, groups []string) ([]string, error) {
	if s.MaxSize <= 0 {
		return groups, nil
	}
	inner := &Character{Size: s.MaxSize}
	var out []string
	for _, g := range groups {
		parts, err := inner.Chunk(ctx, g)
		if err != nil {
			return nil, err
		}
		out = append(out, parts...)
	}
	return out, nil
}

// percentile interpolates linearly between the closest ranks, p in [0, 1].
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

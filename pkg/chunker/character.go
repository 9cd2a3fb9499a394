package chunker

import (
	"context"
	"fmt"
)

// Character cuts text into windows of Size runes, each starting Size-Overlap
// runes after the previous one. The last window is clipped to the text, and
// no window is emitted that would only repeat already covered runes.
type Character struct {
	Size    int
	Overlap int
}

func NewCharacter(size, overlap int) (*Character, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Character{Size: size, Overlap: overlap}, nil
}

func (c *Character) Chunk(_ context.Context, text string) ([]string, error) {
	runes := []rune(text)
	if len(runes) <= c.Size {
		return []string{text}, nil
	}

	step := c.Size - c.Overlap
	chunks := make([]string, 0, (len(runes)-c.Overlap+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := min(start+c.Size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if start+step+c.Overlap >= len(runes) {
			break
		}
	}
	return chunks, nil
}

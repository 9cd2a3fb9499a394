package chunker

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharacter_ScenarioDoc1(t *testing.T) {
	text := strings.Repeat("0123456789", 10)
	c, err := NewCharacter(40, 10)
	require.NoError(t, err)

	chunks, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, text[0:40], chunks[0])
	assert.Equal(t, text[30:70], chunks[1])
	assert.Equal(t, text[60:100], chunks[2])
}

func expectedCount(n, size, overlap int) int {
	if n <= size {
		return 1
	}
	return int(math.Ceil(float64(n-overlap) / float64(size-overlap)))
}

func TestCharacter_CoverageAndCount(t *testing.T) {
	ctx := context.Background()
	for _, size := range []int{1, 2, 5, 7, 16} {
		for overlap := 0; overlap < size; overlap++ {
			c, err := NewCharacter(size, overlap)
			require.NoError(t, err)
			for n := range 60 {
				text := strings.Repeat("abcdefghij", 6)[:n]
				chunks, err := c.Chunk(ctx, text)
				require.NoError(t, err)

				require.Len(t, chunks, expectedCount(n, size, overlap), "n=%d C=%d O=%d", n, size, overlap)
				var rebuilt strings.Builder
				for i, chunk := range chunks {
					if i == 0 {
						rebuilt.WriteString(chunk)
						continue
					}
					rebuilt.WriteString(chunk[overlap:])
				}
				require.Equal(t, text, rebuilt.String(), "n=%d C=%d O=%d", n, size, overlap)
			}
		}
	}
}

func TestCharacter_CountsRunes(t *testing.T) {
	c, err := NewCharacter(2, 0)
	require.NoError(t, err)
	chunks, err := c.Chunk(context.Background(), "äöüß")
	require.NoError(t, err)
	assert.Equal(t, []string{"äö", "üß"}, chunks)
}

func TestNewCharacter_Validation(t *testing.T) {
	_, err := NewCharacter(10, 10)
	assert.Error(t, err)
	_, err = NewCharacter(0, 0)
	assert.Error(t, err)
	_, err = NewCharacter(10, -1)
	assert.Error(t, err)
}

func TestRegex_DefaultPattern(t *testing.T) {
	r, err := NewRegex(DefaultPattern)
	require.NoError(t, err)
	chunks, err := r.Chunk(context.Background(), "line one\r\nline two\n\nline three")
	require.NoError(t, err)
	assert.Equal(t, []string{"line one", "line two", "line three"}, chunks)
}

func TestMarkdown_SplitsAtHeadings(t *testing.T) {
	src := "Intro paragraph.\n\n# Title\ntext a\n\n## Section\ntext b\n\n##### Deep\nmore text\n"
	m := &Markdown{}
	chunks, err := m.Chunk(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Intro paragraph.",
		"# Title\ntext a",
		"## Section\ntext b\n\n##### Deep\nmore text",
	}, chunks)
}

func TestMarkdown_ResplitsLongSections(t *testing.T) {
	inner, err := NewCharacter(10, 0)
	require.NoError(t, err)
	m := &Markdown{MaxSize: 10, Inner: inner}

	chunks, err := m.Chunk(context.Background(), "# A\n"+strings.Repeat("x", 16))
	require.NoError(t, err)
	assert.Equal(t, []string{"# A\nxxxxxx", "xxxxxxxxxx"}, chunks)
}

// fakeEmbed maps each sentence to a topic vector by keyword.
func fakeEmbed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		switch {
		case strings.Contains(t, "rocket"):
			out[i] = []float32{1, 0}
		default:
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

func TestSemantic_BreaksOnTopicShift(t *testing.T) {
	s := &Semantic{Embed: fakeEmbed, Threshold: 0.5}
	chunks, err := s.Chunk(context.Background(),
		"The rocket launched. The rocket landed. Bananas are yellow. Bananas are sweet.")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"The rocket launched. The rocket landed.",
		"Bananas are yellow. Bananas are sweet.",
	}, chunks)
}

func TestSemantic_EmbedError(t *testing.T) {
	s := &Semantic{
		Embed: func(context.Context, []string) ([][]float32, error) {
			return nil, errors.New("offline")
		},
		Threshold: DefaultThreshold,
	}
	_, err := s.Chunk(context.Background(), "One. Two.")
	assert.Error(t, err)
}

func TestPercentile(t *testing.T) {
	values := []float64{0.4, 0.1, 0.3, 0.2}
	assert.InDelta(t, 0.1, percentile(values, 0), 1e-9)
	assert.InDelta(t, 0.4, percentile(values, 1), 1e-9)
	assert.InDelta(t, 0.25, percentile(values, 0.5), 1e-9)
}

func TestNew_SelectsStrategy(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, &Character{Size: DefaultChunkSize, Overlap: DefaultOverlap}, c)

	c, err = New(Config{}.WithType("Regex"))
	require.NoError(t, err)
	assert.IsType(t, &Regex{}, c)

	_, err = New(Config{Type: TypeSemantic})
	assert.ErrorIs(t, err, ErrNoEmbedFn)

	_, err = New(Config{Type: "poetry"})
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "empty input", text: "", want: nil},
		{
			name: "multiple sentences",
			text: "Hello world. This is a test! How are you?",
			want: []string{"Hello world.", "This is a test!", "How are you?"},
		},
		{
			name: "multi-line sentence",
			text: "This is a long\nsentence that spans\nmultiple lines.",
			want: []string{"This is a long sentence that spans multiple lines."},
		},
		{
			name: "text with table",
			text: "Introduction text.\nHeader1 | Header2\n------- | -------\nValue1  | Value2\nConclusion text.",
			want: []string{
				"Introduction text.",
				"Header1 | Header2\n------- | -------\nValue1  | Value2",
				"Conclusion text.",
			},
		},
		{
			name: "table without delimiter",
			text: "Header1 | Header2\nValue1  | Value2",
			want: []string{"Header1 | Header2", "Value1  | Value2"},
		},
		{
			name: "numeric listing stays in one sentence",
			text: "Today we discuss three points. 1. First item 2. Second item 3. Third item. Done!",
			want: []string{
				"Today we discuss three points.",
				"1. First item 2. Second item 3. Third item.",
				"Done!",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitSentences(tt.text))
		})
	}
}

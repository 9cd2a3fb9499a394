package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	MetricsRecorder

	mu       sync.Mutex
	response string
	err      error
	prompts  []string
	systems  [][]string
	embedErr error
	embedded []string
}

func (f *fakeClient) GenerateCompletion(_ context.Context, prompt string, _ ...GenerateOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func (f *fakeClient) GenerateCompletionWithFormat(
	_ context.Context,
	_, _ string,
	prompt string,
	out any,
	opts ...GenerateOption,
) error {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.systems = append(f.systems, ApplyOptions(GenerateOptions{}, opts...).SystemPrompts)
	resp, err := f.response, f.err
	f.mu.Unlock()

	f.Record(ModelMetrics{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, DurationMs: 100})
	if err != nil {
		return err
	}
	return UnmarshalFlexible(resp, out)
}

func (f *fakeClient) GenerateEmbedding(_ context.Context, input []byte) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	f.embedded = append(f.embedded, string(input))
	return []float32{float32(len(input)), 1}, nil
}

func TestExtractor_MapsResponse(t *testing.T) {
	client := &fakeClient{response: `{
		"entities": [
			{"entity_name": " NASA ", "entity_type": "ORGANIZATION", "entity_description": "Space agency."},
			{"entity_name": "", "entity_type": "PERSON", "entity_description": "nameless"},
			{"entity_name": "Artemis I", "entity_type": "EVENT", "entity_description": "A mission."}
		],
		"relationships": [
			{"source_entity": "NASA", "target_entity": "Artemis I", "relationship_type": "launched by", "relationship_description": "NASA launched it.", "short_name": "launched"},
			{"source_entity": "NASA", "target_entity": "", "relationship_type": "X", "relationship_description": "dangling", "short_name": "x"}
		]
	}`}

	ex := NewExtractor(NewExtractorParams{Client: client, EntityTypes: []string{"ORGANIZATION", "EVENT"}})
	got, err := ex.Extract(context.Background(), "NASA launched Artemis I.")
	require.NoError(t, err)

	require.Len(t, got.Entities, 2)
	assert.Equal(t, "NASA", got.Entities[0].ID)
	assert.Equal(t, "ORGANIZATION", got.Entities[0].Type)
	assert.Equal(t, "Artemis I", got.Entities[1].ID)

	require.Len(t, got.Relationships, 1)
	assert.Equal(t, "LAUNCHED_BY", got.Relationships[0].Type)
	assert.Equal(t, "launched", got.Relationships[0].ShortName)

	require.Len(t, client.systems, 1)
	assert.Contains(t, client.systems[0][0], "ORGANIZATION,EVENT")
}

func TestExtractor_MalformedOutputIsEmpty(t *testing.T) {
	client := &fakeClient{response: "I could not find anything"}
	ex := NewExtractor(NewExtractorParams{Client: client})

	got, err := ex.Extract(context.Background(), "some text")
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestExtractor_TransportErrorIsReturned(t *testing.T) {
	boom := errors.New("connection reset")
	ex := NewExtractor(NewExtractorParams{Client: &fakeClient{err: boom}})

	_, err := ex.Extract(context.Background(), "some text")
	require.ErrorIs(t, err, boom)
}

func TestExtractor_BlankTextSkipsModel(t *testing.T) {
	client := &fakeClient{}
	ex := NewExtractor(NewExtractorParams{Client: client})

	got, err := ex.Extract(context.Background(), "   ")
	require.NoError(t, err)
	assert.True(t, got.Empty())
	assert.Empty(t, client.prompts)
}

func TestNormalizeRelationType(t *testing.T) {
	assert.Equal(t, "WORKS_FOR", NormalizeRelationType("works  for"))
	assert.Equal(t, "RELATED_TO", NormalizeRelationType("  "))
	assert.Equal(t, "LAUNCHED", NormalizeRelationType("LAUNCHED"))
}

func TestSummarizer(t *testing.T) {
	client := &fakeClient{response: `{"summary": "  NASA runs Artemis.  "}`}
	s := NewSummarizer(client, 0)

	got, err := s.Summarize(context.Background(), "community_1_0", []string{"NASA is an agency.", "Artemis is a program."})
	require.NoError(t, err)
	assert.Equal(t, "NASA runs Artemis.", got)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "community_1_0")
	assert.Contains(t, client.prompts[0], "NASA is an agency.\nArtemis is a program.")
}

func TestSummarizer_EmptySummaryIsError(t *testing.T) {
	s := NewSummarizer(&fakeClient{response: `{"summary": ""}`}, 0)
	_, err := s.Summarize(context.Background(), "c", []string{"a", "b"})
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestEmbedder(t *testing.T) {
	client := &fakeClient{}
	e := NewEmbedder(client, 2)

	vec, err := e.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 1}, vec)

	res := <-e.EmbedAsync(context.Background(), "abcd")
	require.NoError(t, res.Err)
	assert.Equal(t, []float32{4, 1}, res.Vector)

	all, err := e.EmbedAll(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, v := range all {
		assert.Equal(t, float32(i+1), v[0])
	}
}

func TestEmbedder_AsyncError(t *testing.T) {
	boom := errors.New("down")
	e := NewEmbedder(&fakeClient{embedErr: boom}, 0)

	res, ok := <-e.EmbedAsync(context.Background(), "x")
	require.True(t, ok)
	require.ErrorIs(t, res.Err, boom)

	_, err := e.EmbedAll(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, boom)
}

func TestRateLimitedClient(t *testing.T) {
	inner := &fakeClient{response: "done"}
	require.Same(t, GraphAIClient(inner), NewRateLimitedClient(inner, 0, 1))

	limited := NewRateLimitedClient(inner, 20, 1)
	start := time.Now()
	for range 3 {
		_, err := limited.GenerateCompletion(context.Background(), "hi")
		require.NoError(t, err)
	}
	// burst of one, then two waits of 50ms
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := limited.GenerateEmbedding(ctx, []byte("x"))
	require.Error(t, err)
}

func TestMetricsRecorder(t *testing.T) {
	client := &fakeClient{response: `{"summary": "x"}`}
	s := NewSummarizer(client, 0)
	for range 2 {
		_, err := s.Summarize(context.Background(), "c", []string{"a", "b"})
		require.NoError(t, err)
	}

	m := client.GetMetrics()
	assert.Equal(t, 2, m.Requests)
	assert.Equal(t, 30, m.TotalTokens)
	assert.Equal(t, int64(200), m.DurationMs)
	assert.InDelta(t, 150.0, m.TokenPerSecond, 0.001)

	client.ResetMetrics()
	assert.Equal(t, ModelMetrics{}, client.GetMetrics())
}

package graph

import (
	"context"
	"errors"
	"sync"

	"github.com/OFFIS-RIT/graphsync/pkg/chunker"
	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/store"
)

// EmbeddingService turns text into a vector.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ExtractionService pulls entities and relationships out of a chunk of text.
type ExtractionService interface {
	Extract(ctx context.Context, text string) (common.Extraction, error)
}

// SummarizationService condenses the descriptions of a community's children.
type SummarizationService interface {
	Summarize(ctx context.Context, title string, descriptions []string) (string, error)
}

const (
	defaultDocBatches     = 10
	defaultEntityBatches  = 50
	defaultResolveK       = 10
	defaultResolveMinSim  = 0.90
	defaultMaxIterations  = 10
	defaultEpsilon        = 1e-7
	defaultParallelAI     = 20
	defaultUpsertWorkers  = 32
	docsCapacity          = 1
	stageCapacity         = 100
	collapseThreshold     = -0.05
	summaryErrorPrefix    = "Error: "
	summaryRetryAttempts  = 2
	defaultCommunityLimit = 1.0
)

// ResolveParams tunes entity resolution.
type ResolveParams struct {
	// Batches is the number of partitions entity ids are streamed in.
	Batches int
	// K is the number of nearest neighbours considered per entity.
	K int
	// Threshold is the minimum cosine similarity of a neighbour.
	Threshold float64
	// MaxEditDistance additionally requires neighbours to be within this
	// Levenshtein distance of the entity id. Zero disables the check.
	MaxEditDistance int
}

// CommunityParams tunes hierarchical community detection.
type CommunityParams struct {
	MaxIterations int
	Epsilon       float64
	Resolution    float64
}

// GraphClient runs the pipeline passes against the stores of one graph.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	graph  store.GraphStore
	vector store.VectorStore

	embedder   EmbeddingService
	extractor  ExtractionService
	summarizer SummarizationService

	chunking   chunker.Config
	chunkMu    sync.Mutex
	chunkers   map[chunker.Type]chunker.Chunker
	docBatches int

	resolve   ResolveParams
	community CommunityParams

	parallelAiRequests int
	upsertWorkers      int
}

// NewGraphClientParams defines the collaborators and tuning of a GraphClient.
//
// Graph is wrapped in a store.LimitedGraphStore allowing GraphConcurrency
// calls at once (store.DefaultGraphConcurrency when zero).
// ParallelAiRequests bounds concurrent embedding, extraction and
// summarization requests per stage. UpsertWorkers sizes the upsert pool.
type NewGraphClientParams struct {
	Graph  store.GraphStore
	Vector store.VectorStore

	Embedder   EmbeddingService
	Extractor  ExtractionService
	Summarizer SummarizationService

	Chunking   chunker.Config
	DocBatches int
	Resolve    ResolveParams
	Community  CommunityParams

	GraphConcurrency   int
	ParallelAiRequests int
	UpsertWorkers      int
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		Graph:      stores.Graph,
//		Vector:     stores.Vector,
//		Embedder:   ai.NewEmbedder(aiClient, 8),
//		Extractor:  ai.NewExtractor(ai.NewExtractorParams{Client: aiClient}),
//		Summarizer: ai.NewSummarizer(aiClient, 8000),
//		Chunking:   chunker.Config{Type: chunker.TypeCharacter, ChunkSize: 1024},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	switch {
	case params.Graph == nil:
		return nil, errors.New("graph store is required")
	case params.Vector == nil:
		return nil, errors.New("vector store is required")
	case params.Embedder == nil:
		return nil, errors.New("embedding service is required")
	case params.Extractor == nil:
		return nil, errors.New("extraction service is required")
	case params.Summarizer == nil:
		return nil, errors.New("summarization service is required")
	}

	graphStore := params.Graph
	if _, ok := graphStore.(*store.LimitedGraphStore); !ok {
		graphStore = store.NewLimitedGraphStore(graphStore, params.GraphConcurrency)
	}

	chunking := params.Chunking
	if chunking.Embed == nil {
		chunking.Embed = embedFunc(params.Embedder)
	}

	resolve := params.Resolve
	if resolve.Batches <= 0 {
		resolve.Batches = defaultEntityBatches
	}
	if resolve.K <= 0 {
		resolve.K = defaultResolveK
	}
	if resolve.Threshold <= 0 {
		resolve.Threshold = defaultResolveMinSim
	}

	comm := params.Community
	if comm.MaxIterations <= 0 {
		comm.MaxIterations = defaultMaxIterations
	}
	if comm.Epsilon <= 0 {
		comm.Epsilon = defaultEpsilon
	}
	if comm.Resolution <= 0 {
		comm.Resolution = defaultCommunityLimit
	}

	docBatches := params.DocBatches
	if docBatches <= 0 {
		docBatches = defaultDocBatches
	}
	parallel := params.ParallelAiRequests
	if parallel <= 0 {
		parallel = defaultParallelAI
	}
	upsertWorkers := params.UpsertWorkers
	if upsertWorkers <= 0 {
		upsertWorkers = defaultUpsertWorkers
	}

	return &GraphClient{
		graph:              graphStore,
		vector:             params.Vector,
		embedder:           params.Embedder,
		extractor:          params.Extractor,
		summarizer:         params.Summarizer,
		chunking:           chunking,
		chunkers:           make(map[chunker.Type]chunker.Chunker),
		docBatches:         docBatches,
		resolve:            resolve,
		community:          comm,
		parallelAiRequests: parallel,
		upsertWorkers:      upsertWorkers,
	}, nil
}

// batchEmbedder is implemented by embedding services that can embed many
// texts in one call, such as ai.Embedder.
type batchEmbedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}

func embedFunc(e EmbeddingService) chunker.EmbedFunc {
	if b, ok := e.(batchEmbedder); ok {
		return b.EmbedAll
	}
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			vec, err := e.Embed(ctx, t)
			if err != nil {
				return nil, err
			}
			out[i] = vec
		}
		return out, nil
	}
}

// chunkerFor returns the chunker for a document's ctype, falling back to the
// configured default when ctype is empty.
func (c *GraphClient) chunkerFor(ctype string) (chunker.Chunker, error) {
	cfg := c.chunking.WithType(ctype)
	if cfg.Type == "" {
		cfg.Type = chunker.TypeCharacter
	}

	c.chunkMu.Lock()
	defer c.chunkMu.Unlock()
	if ch, ok := c.chunkers[cfg.Type]; ok {
		return ch, nil
	}
	ch, err := chunker.New(cfg)
	if err != nil {
		return nil, err
	}
	c.chunkers[cfg.Type] = ch
	return ch, nil
}

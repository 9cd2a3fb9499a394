package main

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/graphsync/internal/consistency"
	"github.com/OFFIS-RIT/graphsync/internal/util"
	"github.com/OFFIS-RIT/graphsync/pkg/ai"
	"github.com/OFFIS-RIT/graphsync/pkg/chunker"
	"github.com/OFFIS-RIT/graphsync/pkg/graph"
	"github.com/OFFIS-RIT/graphsync/pkg/store"
)

type driverDeps struct {
	opener   store.Opener
	statuses consistency.StatusStore
	leases   consistency.Leaser
	aiClient ai.GraphAIClient
}

// newDriverFactory builds one pipeline and driver per graph. The AI services
// are shared so their concurrency limits hold across graphs.
func newDriverFactory(deps driverDeps) consistency.Factory {
	parallel := util.GetEnvInt("PARALLEL_AI_REQUESTS", 20)

	embedder := ai.NewEmbedder(deps.aiClient, parallel)
	extractor := ai.NewExtractor(ai.NewExtractorParams{
		Client:      deps.aiClient,
		EntityTypes: util.GetEnvList("ENTITY_TYPES"),
	})
	summarizer := ai.NewSummarizer(deps.aiClient, util.GetEnvInt("SUMMARY_MAX_INPUT_TOKENS", 8000))

	chunking := chunker.Config{
		ChunkSize: util.GetEnvInt("CHUNK_SIZE", chunker.DefaultChunkSize),
		Overlap:   util.GetEnvInt("CHUNK_OVERLAP", chunker.DefaultOverlap),
		Pattern:   util.GetEnvString("CHUNK_PATTERN", chunker.DefaultPattern),
		Threshold: util.GetEnvNumeric("SEMANTIC_THRESHOLD", chunker.DefaultThreshold),
		Encoding:  util.GetEnvString("CHUNK_ENCODING", chunker.DefaultEncoding),
	}.WithType(util.GetEnvString("CHUNKER", string(chunker.TypeCharacter)))

	resolve := graph.ResolveParams{
		Batches:         util.GetEnvInt("ENTITY_BATCHES", 50),
		K:               util.GetEnvInt("RESOLVE_K", 10),
		Threshold:       util.GetEnvNumeric("RESOLVE_THRESHOLD", 0.90),
		MaxEditDistance: util.GetEnvInt("MAX_EDIT_DISTANCE", 0),
	}
	community := graph.CommunityParams{
		MaxIterations: util.GetEnvInt("COMMUNITY_MAX_ITERATIONS", 10),
		Epsilon:       util.GetEnvNumeric("COMMUNITY_EPSILON", 1e-7),
		Resolution:    util.GetEnvNumeric("COMMUNITY_RESOLUTION", 1),
	}

	return func(ctx context.Context, name string) (*consistency.Driver, error) {
		stores, err := deps.opener.Open(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to open stores: %w", err)
		}

		pipeline, err := graph.NewGraphClient(graph.NewGraphClientParams{
			Graph:  stores.Graph,
			Vector: stores.Vector,

			Embedder:   embedder,
			Extractor:  extractor,
			Summarizer: summarizer,

			Chunking:   chunking,
			DocBatches: util.GetEnvInt("DOC_BATCHES", 10),
			Resolve:    resolve,
			Community:  community,

			GraphConcurrency:   util.GetEnvInt("GRAPH_STORE_CONCURRENCY", 0),
			ParallelAiRequests: parallel,
			UpsertWorkers:      util.GetEnvInt("UPSERT_WORKERS", 32),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create pipeline: %w", err)
		}

		return consistency.NewDriver(consistency.NewDriverParams{
			Graph:    name,
			Stores:   stores,
			Pipeline: pipeline,
			Statuses: deps.statuses,
			Leases:   deps.leases,

			SyncInterval:    util.GetEnvDuration("SYNC_INTERVAL", consistency.DefaultSyncInterval),
			CleanupInterval: util.GetEnvDuration("CLEANUP_INTERVAL", consistency.DefaultCleanupInterval),
			CleanupBatch:    util.GetEnvInt("CLEANUP_BATCH", consistency.DefaultCleanupBatch),
		})
	}
}

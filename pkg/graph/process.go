package graph

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/OFFIS-RIT/graphsync/pkg/channel"
	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"
	"github.com/OFFIS-RIT/graphsync/pkg/store"

	"golang.org/x/sync/errgroup"
)

// ProcessDocuments chunks, embeds and extracts every unprocessed document.
// It returns the number of documents processed.
//
// The stages run concurrently and are connected by bounded channels:
//
//	stream -> docs -> chunk -> extracts -> extract
//	                    |                     |
//	                    +--> embeds, mutations <--+
//
// Each stage closes the channels it is the last producer of, so the pass
// ends once every channel has been drained.
func (c *GraphClient) ProcessDocuments(ctx context.Context, report *Report) (int, error) {
	defer report.Track("documents")()

	docs := channel.New[common.Document](docsCapacity)
	out := outputs{
		extracts:  channel.New[common.ExtractJob](stageCapacity),
		embeds:    channel.New[common.EmbedJob](stageCapacity),
		mutations: channel.New[common.Mutation](stageCapacity),
	}

	var processed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.streamDocuments(gctx, docs, report) })
	g.Go(func() error { return c.runChunker(gctx, docs, out, &processed, report) })
	g.Go(func() error { return c.runExtractor(gctx, out.extracts, out, report) })
	g.Go(func() error { return c.runEmbedder(gctx, out.embeds, report) })
	g.Go(func() error { return c.runUpserter(gctx, out.mutations, report) })

	err := g.Wait()
	n := int(processed.Load())
	if err != nil {
		return n, err
	}
	if n > 0 {
		logger.Info("[Pipeline] Processed documents", "count", n)
	}
	return n, nil
}

// Sync runs one full pass: documents, entity resolution and, while it is
// pending, community detection. didWork reports whether anything was
// processed. A failed pending step is not work, so the driver backs off
// instead of retrying it in a tight loop.
func (c *GraphClient) Sync(ctx context.Context, report *Report) (didWork bool, err error) {
	if err := store.EnsureIndexes(ctx, c.vector, common.EmbeddedTypes...); err != nil {
		return false, fmt.Errorf("init vector indexes: %w", err)
	}

	docs, docErr := c.ProcessDocuments(ctx, report)
	if docErr != nil && ctx.Err() != nil {
		return docs > 0, docErr
	}

	resolved, resolveErr := c.ResolveEntities(ctx, report)
	didWork = docs > 0 || resolved > 0
	if err := errors.Join(docErr, resolveErr); err != nil {
		return didWork, err
	}

	ran, err := c.detectPendingCommunities(ctx, report)
	if err != nil {
		return didWork, fmt.Errorf("communities: %w", err)
	}
	return didWork || ran, nil
}

// detectPendingCommunities rebuilds the hierarchy if the community step is
// pending and clears the flag once it succeeded.
func (c *GraphClient) detectPendingCommunities(ctx context.Context, report *Report) (bool, error) {
	pending, err := c.graph.Pending(ctx, common.StepCommunities)
	if err != nil || !pending {
		return false, err
	}
	if err := c.DetectCommunities(ctx, report); err != nil {
		return false, err
	}
	return true, c.graph.SetPending(ctx, common.StepCommunities, false)
}

package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/OFFIS-RIT/graphsync/internal/util"
	"github.com/OFFIS-RIT/graphsync/pkg/channel"
	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const chunkConcurrency = 20

// outputs are the downstream channels shared by the chunk and extract stages.
type outputs struct {
	extracts  *channel.Channel[common.ExtractJob]
	embeds    *channel.Channel[common.EmbedJob]
	mutations *channel.Channel[common.Mutation]
}

func (o outputs) mutate(ctx context.Context, ms ...common.Mutation) error {
	for _, m := range ms {
		if err := o.mutations.Put(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// runChunker splits every document and fans the chunks out to the embed,
// extract and upsert stages. It closes the extract channel when done.
//
// The first document that chunks cleanly flags the derived steps pending
// before its processed marker is queued. Documents that keep failing flag
// nothing, so they do not turn every pass into work.
func (c *GraphClient) runChunker(
	ctx context.Context,
	docs *channel.Channel[common.Document],
	out outputs,
	processed *atomic.Int64,
	report *Report,
) error {
	defer out.extracts.Close()

	g := new(errgroup.Group)
	g.SetLimit(chunkConcurrency)
	flag := sync.OnceValue(func() error {
		return c.markPending(ctx, common.StepResolvedRelationships, common.StepCommunities)
	})

	for doc := range docs.All() {
		g.Go(func() error {
			err := c.chunkDocument(ctx, doc, out, flag, report)
			switch {
			case err == nil:
				processed.Add(1)
				report.Inc(CounterDocuments, 1)
			case ctx.Err() != nil, errors.Is(err, channel.ErrClosed):
				return err
			default:
				report.Fail("chunk", doc.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (c *GraphClient) chunkDocument(ctx context.Context, doc common.Document, out outputs, flag func() error, report *Report) error {
	docID := util.ProcessID(doc.ID)
	if docID == "" {
		return fmt.Errorf("document id %q normalizes to empty", doc.ID)
	}
	if docID != doc.ID {
		if err := c.cloneDocument(ctx, docID, doc); err != nil {
			return fmt.Errorf("clone as %s: %w", docID, err)
		}
	}

	ch, err := c.chunkerFor(doc.CType)
	if err != nil {
		return err
	}
	chunks, err := ch.Chunk(ctx, doc.Text)
	if err != nil {
		return fmt.Errorf("chunk: %w", err)
	}

	for n, text := range chunks {
		chunkID := common.ChunkID(docID, n)
		ms := []common.Mutation{
			common.VertexUpsert(common.VertexChunk, chunkID, common.Attributes{common.AttrIndex: n}),
			common.VertexUpsert(common.VertexContent, chunkID, common.Attributes{common.AttrText: text}),
			common.EdgeUpsert(common.VertexChunk, chunkID, common.EdgeHasContent, common.VertexContent, chunkID, nil),
			common.EdgeUpsert(common.VertexDocument, docID, common.EdgeHasChild, common.VertexChunk, chunkID, nil),
		}
		if n > 0 {
			ms = append(ms, common.EdgeUpsert(
				common.VertexChunk, chunkID,
				common.EdgeIsAfter,
				common.VertexChunk, common.ChunkID(docID, n-1),
				nil,
			))
		}
		if err := out.mutate(ctx, ms...); err != nil {
			return err
		}
		if err := out.embeds.Put(ctx, common.EmbedJob{ID: chunkID, Text: text, Index: common.VertexChunk}); err != nil {
			return err
		}
		if err := out.extracts.Put(ctx, common.ExtractJob{Text: text, SourceID: chunkID, SourceType: common.VertexChunk}); err != nil {
			return err
		}
	}
	report.Inc(CounterChunks, int64(len(chunks)))
	logger.Debug("[Chunk] Chunked document", "doc", docID, "chunks", len(chunks))

	if err := flag(); err != nil {
		return err
	}
	return out.mutate(ctx, common.MarkProcessed(common.VertexDocument, doc.ID))
}

// cloneDocument writes the document and its content under the normalized id.
// The clone is written directly so it exists, processed, before any of its
// chunks reference it.
func (c *GraphClient) cloneDocument(ctx context.Context, id string, doc common.Document) error {
	attrs := common.Attributes{common.AttrText: doc.Text}
	if doc.CType != "" {
		attrs[common.AttrCType] = doc.CType
	}
	if err := c.graph.UpsertVertex(ctx, common.VertexDocument, id, nil); err != nil {
		return err
	}
	if err := c.graph.MarkProcessed(ctx, common.VertexDocument, []string{id}); err != nil {
		return err
	}
	if err := c.graph.UpsertVertex(ctx, common.VertexContent, id, attrs); err != nil {
		return err
	}
	return c.graph.UpsertEdge(ctx, common.VertexDocument, id, common.EdgeHasContent, common.VertexContent, id, nil)
}

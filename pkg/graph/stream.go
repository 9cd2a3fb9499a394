package graph

import (
	"context"

	"github.com/OFFIS-RIT/graphsync/pkg/channel"
	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"
)

// streamDocuments pushes every unprocessed document with its content onto
// docs and closes docs when all batches are exhausted.
func (c *GraphClient) streamDocuments(ctx context.Context, docs *channel.Channel[common.Document], report *Report) error {
	defer docs.Close()

	for batch := range c.docBatches {
		ids, err := c.graph.ListUnprocessedIDs(ctx, common.VertexDocument, batch, c.docBatches)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			report.Fail("stream", "batch", err)
			continue
		}
		if len(ids) > 0 {
			logger.Debug("[Stream] Listed documents", "batch", batch, "count", len(ids))
		}

		for _, id := range ids {
			content, err := c.graph.GetContent(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				report.Fail("stream", id, err)
				continue
			}
			doc := common.Document{ID: id, Text: content.Text, CType: content.CType}
			if err := docs.Put(ctx, doc); err != nil {
				return err
			}
		}
	}
	return nil
}

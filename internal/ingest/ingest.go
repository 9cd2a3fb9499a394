// Package ingest writes loaded documents into a graph as unprocessed Document
// vertices. The consistency driver picks them up on its next sync pass.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/OFFIS-RIT/graphsync/internal/util"
	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/loader"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"
	"github.com/OFFIS-RIT/graphsync/pkg/store"

	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Params tunes a Run.
type Params struct {
	// Replace drops an existing Document and Content first so changed
	// sources are processed again.
	Replace     bool
	Concurrency int
}

// Result counts the outcome of a Run.
type Result struct {
	Added   int64
	Skipped int64
	Failed  int64
}

// AddDocument stores text as Document id with its Content. ctype optionally
// pins the chunker.
func AddDocument(ctx context.Context, gs store.GraphStore, id, text, ctype string, replace bool) error {
	if id == "" {
		return errors.New("document id is required")
	}
	if replace {
		if err := gs.RemoveVertex(ctx, common.VertexContent, id); err != nil {
			return fmt.Errorf("failed to remove content %s: %w", id, err)
		}
		if err := gs.RemoveVertex(ctx, common.VertexDocument, id); err != nil {
			return fmt.Errorf("failed to remove document %s: %w", id, err)
		}
	}

	attrs := common.Attributes{common.AttrText: util.SanitizePostgresText(text)}
	if ctype != "" {
		attrs[common.AttrCType] = ctype
	}
	if err := gs.UpsertVertex(ctx, common.VertexContent, id, attrs); err != nil {
		return fmt.Errorf("failed to upsert content %s: %w", id, err)
	}
	if err := gs.UpsertVertex(ctx, common.VertexDocument, id, nil); err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", id, err)
	}
	return gs.UpsertEdge(ctx, common.VertexDocument, id, common.EdgeHasContent, common.VertexContent, id, nil)
}

// Run loads every source and adds it to gs. Blank sources are skipped, other
// failures are logged, counted and joined into the returned error.
func Run(ctx context.Context, gs store.GraphStore, sources []loader.Source, params Params) (Result, error) {
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var (
		added, skipped, failed atomic.Int64
		errs                   = make([]error, len(sources))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, src := range sources {
		g.Go(func() error {
			text, err := src.Text(gctx)
			if errors.Is(err, loader.ErrEmpty) {
				logger.Warn("[Ingest] Skipping empty source", "id", src.ID, "path", src.Path)
				skipped.Add(1)
				return nil
			}
			if err == nil {
				err = AddDocument(gctx, gs, src.ID, text, src.ContentType, params.Replace)
			}
			if err != nil {
				logger.Error("[Ingest] Failed to add source", "id", src.ID, "path", src.Path, "err", err)
				failed.Add(1)
				errs[i] = fmt.Errorf("%s: %w", src.Path, err)
				return nil
			}
			logger.Debug("[Ingest] Added document", "id", src.ID, "chars", len(text), "preview", util.Truncate(text, 60))
			added.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Added: added.Load(), Skipped: skipped.Load(), Failed: failed.Load()}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, errors.Join(errs...)
}

package graph

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/OFFIS-RIT/graphsync/internal/util"
	"github.com/OFFIS-RIT/graphsync/pkg/channel"
	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"
	"github.com/OFFIS-RIT/graphsync/pkg/store"

	"golang.org/x/sync/errgroup"
)

const fallbackRelationType = "RELATED_TO"

// descriptionCache holds the merged description lists written during one
// pass so concurrent extractions of the same entity build on each other
// instead of on a stale store read.
type descriptionCache struct {
	mu      sync.Mutex
	entries map[string][]string
}

func newDescriptionCache() *descriptionCache {
	return &descriptionCache{entries: make(map[string][]string)}
}

// merge puts desc in front of the known descriptions of id and returns the
// result. load is called at most once per id when nothing is cached yet.
func (d *descriptionCache) merge(id, desc string, load func() ([]string, error)) ([]string, error) {
	d.mu.Lock()
	_, cached := d.entries[id]
	d.mu.Unlock()

	var loaded []string
	if !cached {
		var err error
		if loaded, err = load(); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	existing, ok := d.entries[id]
	if !ok {
		existing = loaded
	}
	merged := store.DedupeStrings(append([]string{desc}, existing...))
	d.entries[id] = merged
	return slices.Clone(merged), nil
}

// runExtractor extracts entities and relationships from every job. It is the
// last producer of embed jobs and mutations and closes both channels.
func (c *GraphClient) runExtractor(ctx context.Context, jobs *channel.Channel[common.ExtractJob], out outputs, report *Report) error {
	defer out.embeds.Close()
	defer out.mutations.Close()

	descs := newDescriptionCache()
	g := new(errgroup.Group)
	g.SetLimit(c.parallelAiRequests)

	for job := range jobs.All() {
		g.Go(func() error {
			err := c.extractChunk(ctx, job, descs, out, report)
			if err != nil && (ctx.Err() != nil || errors.Is(err, channel.ErrClosed)) {
				return err
			}
			if err != nil {
				report.Fail("extract", job.SourceID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (c *GraphClient) extractChunk(ctx context.Context, job common.ExtractJob, descs *descriptionCache, out outputs, report *Report) error {
	ext, err := c.extractor.Extract(ctx, job.Text)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.Fail("extract", job.SourceID, err)
		ext = common.Extraction{}
	}
	report.Inc(CounterExtractions, 1)
	logger.Debug("[Extract] Extracted chunk",
		"chunk", job.SourceID,
		"entities", len(ext.Entities),
		"relationships", len(ext.Relationships),
	)

	sourceType := job.SourceType
	if sourceType == "" {
		sourceType = common.VertexChunk
	}

	var ids []string
	for _, e := range ext.Entities {
		id := util.ProcessID(e.ID)
		if id == "" {
			continue
		}
		if err := c.emitEntity(ctx, id, e.Description, descs, out); err != nil {
			return err
		}
		if typeID := util.ProcessID(e.Type); typeID != "" {
			if err := out.mutate(ctx,
				common.VertexUpsert(common.VertexEntityType, typeID, nil),
				common.EdgeUpsert(common.VertexEntity, id, common.EdgeEntityHasType, common.VertexEntityType, typeID, nil),
			); err != nil {
				return err
			}
		}
		if err := out.mutate(ctx, common.EdgeUpsert(sourceType, job.SourceID, common.EdgeContainsEntity, common.VertexEntity, id, nil)); err != nil {
			return err
		}
		report.Inc(CounterEntities, 1)
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	for i, a := range ids {
		for _, b := range ids[i+1:] {
			if err := out.mutate(ctx, common.EdgeUpsert(
				common.VertexEntity, a,
				common.EdgeRelationship,
				common.VertexEntity, b,
				common.Attributes{common.AttrRelationType: common.CooccurrenceRelation},
			)); err != nil {
				return err
			}
		}
	}

	for _, r := range ext.Relationships {
		src, tgt := util.ProcessID(r.Source), util.ProcessID(r.Target)
		if src == "" || tgt == "" {
			continue
		}
		relType := r.Type
		if relType == "" {
			relType = fallbackRelationType
		}
		if err := c.emitEntity(ctx, src, "", descs, out); err != nil {
			return err
		}
		if err := c.emitEntity(ctx, tgt, "", descs, out); err != nil {
			return err
		}

		relID := common.RelationshipID(src, relType, tgt)
		relAttrs := common.Attributes{common.AttrRelationType: relType}
		if r.Description != "" {
			relAttrs[common.AttrDescription] = r.Description
		}
		if r.ShortName != "" {
			relAttrs[common.AttrShortName] = r.ShortName
		}
		if err := out.mutate(ctx,
			common.VertexUpsert(common.VertexRelationship, relID, relAttrs),
			common.EdgeUpsert(common.VertexEntity, src, common.EdgeIsHeadOf, common.VertexRelationship, relID, nil),
			common.EdgeUpsert(common.VertexRelationship, relID, common.EdgeHasTail, common.VertexEntity, tgt, nil),
			common.EdgeUpsert(sourceType, job.SourceID, common.EdgeMentionsRelationship, common.VertexRelationship, relID, nil),
			common.EdgeUpsert(common.VertexEntity, src, common.EdgeRelationship, common.VertexEntity, tgt,
				common.Attributes{common.AttrRelationType: relType}),
		); err != nil {
			return err
		}
		report.Inc(CounterRelationships, 1)
	}
	return nil
}

// emitEntity merges desc into the entity's descriptions and queues its
// upsert and embedding.
func (c *GraphClient) emitEntity(ctx context.Context, id, desc string, descs *descriptionCache, out outputs) error {
	merged, err := descs.merge(id, desc, func() ([]string, error) {
		v, ok, err := c.graph.GetVertex(ctx, common.VertexEntity, id)
		if err != nil || !ok {
			return nil, err
		}
		return v.Attributes.Strings(common.AttrDescription), nil
	})
	if err != nil {
		return err
	}

	text := id
	if len(merged) > 0 && merged[0] != "" {
		text = merged[0]
	}
	if err := out.embeds.Put(ctx, common.EmbedJob{ID: id, Text: text, Index: common.VertexEntity}); err != nil {
		return err
	}

	var attrs common.Attributes
	if len(merged) > 0 {
		attrs = common.Attributes{common.AttrDescription: merged}
	}
	return out.mutate(ctx, common.VertexUpsert(common.VertexEntity, id, attrs))
}

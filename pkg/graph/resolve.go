package graph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/OFFIS-RIT/graphsync/pkg/channel"
	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// canonicalID picks the longest candidate. Ties go to the earlier one, so
// with the entity first an entity keeps its own id unless a longer
// neighbour exists.
func canonicalID(candidates []string) string {
	var best string
	for _, c := range candidates {
		if len(c) > len(best) {
			best = c
		}
	}
	return best
}

// candidates returns id followed by the neighbours that pass the edit
// distance filter. Neighbours equal to id are dropped.
func (c *GraphClient) candidates(id string, neighbours []string) []string {
	out := make([]string, 0, len(neighbours)+1)
	out = append(out, id)
	for _, n := range neighbours {
		if n == "" || n == id {
			continue
		}
		if c.resolve.MaxEditDistance > 0 && levenshtein(id, n) > c.resolve.MaxEditDistance {
			continue
		}
		out = append(out, n)
	}
	return out
}

// ResolveEntities maps every unprocessed Entity to a ResolvedEntity and
// copies entity relationships onto the resolved layer. It returns the number
// of entities resolved.
//
// The copy is flagged pending before the first entity is marked processed
// and cleared only once it succeeded, so a failed copy runs again on the
// next pass even though no entity is left to resolve. Entities that fail to
// resolve flag nothing.
func (c *GraphClient) ResolveEntities(ctx context.Context, report *Report) (int, error) {
	defer report.Track("resolve")()

	mutations := channel.New[common.Mutation](stageCapacity)
	var resolved atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.runUpserter(gctx, mutations, report) })
	g.Go(func() error {
		defer mutations.Close()
		return c.streamEntities(gctx, mutations, &resolved, report)
	})
	err := g.Wait()

	n := int(resolved.Load())
	report.Inc(CounterResolved, int64(n))
	if err != nil {
		return n, err
	}

	if err := c.copyResolvedRelationships(ctx); err != nil {
		return n, err
	}
	if n > 0 {
		logger.Info("[Resolve] Resolved entities", "count", n)
	}
	return n, nil
}

// copyResolvedRelationships runs the relationship copy if it is pending.
func (c *GraphClient) copyResolvedRelationships(ctx context.Context) error {
	pending, err := c.graph.Pending(ctx, common.StepResolvedRelationships)
	if err != nil || !pending {
		return err
	}
	if err := c.graph.CopyResolvedRelationships(ctx); err != nil {
		return fmt.Errorf("copy resolved relationships: %w", err)
	}
	return c.graph.SetPending(ctx, common.StepResolvedRelationships, false)
}

func (c *GraphClient) streamEntities(ctx context.Context, mutations *channel.Channel[common.Mutation], resolved *atomic.Int64, report *Report) error {
	g := new(errgroup.Group)
	g.SetLimit(c.parallelAiRequests)

	flag := sync.OnceValue(func() error {
		return c.markPending(ctx, common.StepResolvedRelationships, common.StepCommunities)
	})
	for batch := range c.resolve.Batches {
		ids, err := c.graph.ListUnprocessedIDs(ctx, common.VertexEntity, batch, c.resolve.Batches)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			report.Fail("resolve", "batch", err)
			continue
		}
		for _, id := range ids {
			if id == "" {
				continue
			}
			g.Go(func() error {
				if err := c.resolveEntity(ctx, id, mutations, flag); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					report.Fail("resolve", id, err)
					return nil
				}
				resolved.Add(1)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (c *GraphClient) resolveEntity(ctx context.Context, id string, mutations *channel.Channel[common.Mutation], flag func() error) error {
	neighbours, err := c.vector.KNearest(ctx, common.VertexEntity, id, c.resolve.K, c.resolve.Threshold)
	if err != nil {
		return fmt.Errorf("nearest neighbours: %w", err)
	}

	cands := c.candidates(id, neighbours)
	canonical := canonicalID(cands)

	if err := mutations.Put(ctx, common.VertexUpsert(common.VertexResolvedEntity, canonical, nil)); err != nil {
		return err
	}
	for _, cand := range cands {
		if err := mutations.Put(ctx, common.EdgeUpsert(
			common.VertexEntity, cand,
			common.EdgeResolvesTo,
			common.VertexResolvedEntity, canonical,
			nil,
		)); err != nil {
			return err
		}
	}
	if err := flag(); err != nil {
		return err
	}
	return mutations.Put(ctx, common.MarkProcessed(common.VertexEntity, id))
}

func (c *GraphClient) markPending(ctx context.Context, steps ...common.Step) error {
	for _, step := range steps {
		if err := c.graph.SetPending(ctx, step, true); err != nil {
			return fmt.Errorf("flag %s pending: %w", step, err)
		}
	}
	return nil
}

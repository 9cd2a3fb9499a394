package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/OFFIS-RIT/graphsync/pkg/channel"
	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"

	"github.com/panjf2000/ants/v2"
)

// apply runs one mutation against the graph store.
func (c *GraphClient) apply(ctx context.Context, m common.Mutation) error {
	switch m.Kind {
	case common.MutationVertexUpsert:
		return c.graph.UpsertVertex(ctx, m.VertexType, m.ID, m.Attributes)
	case common.MutationEdgeUpsert:
		return c.graph.UpsertEdge(ctx, m.VertexType, m.ID, m.Edge, m.TargetType, m.TargetID, m.Attributes)
	case common.MutationRemoval:
		return c.graph.RemoveVertex(ctx, m.VertexType, m.ID)
	case common.MutationMarkProcessed:
		if len(m.IDs) == 0 {
			return nil
		}
		return c.graph.MarkProcessed(ctx, m.VertexType, m.IDs)
	default:
		return fmt.Errorf("unknown mutation kind %s", m.Kind)
	}
}

// runUpserter drains mutations on a worker pool until the channel is closed
// and every submitted mutation has been applied.
func (c *GraphClient) runUpserter(ctx context.Context, mutations *channel.Channel[common.Mutation], report *Report) error {
	pool, err := ants.NewPool(c.upsertWorkers)
	if err != nil {
		return fmt.Errorf("create upsert pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	run := func(m common.Mutation) {
		defer wg.Done()
		err := c.apply(ctx, m)
		if err != nil {
			report.Fail("upsert", m.Subject(), err)
		} else {
			report.Inc(CounterMutations, 1)
		}
		if m.OnApplied != nil {
			m.OnApplied(err)
		}
	}

	for m := range mutations.All() {
		wg.Add(1)
		if err := pool.Submit(func() { run(m) }); err != nil {
			logger.Warn("[Upsert] Pool rejected mutation, applying inline", "err", err)
			run(m)
		}
	}
	wg.Wait()
	return ctx.Err()
}

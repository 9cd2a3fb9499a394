package graph

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/graphsync/pkg/channel"
	"github.com/OFFIS-RIT/graphsync/pkg/common"

	"golang.org/x/sync/errgroup"
)

// runEmbedder embeds every job and stores the vector in the job's index.
// Failures are recorded and do not stop the stage.
func (c *GraphClient) runEmbedder(ctx context.Context, jobs *channel.Channel[common.EmbedJob], report *Report) error {
	g := new(errgroup.Group)
	g.SetLimit(c.parallelAiRequests)

	for job := range jobs.All() {
		g.Go(func() error {
			if err := c.embed(ctx, job); err != nil {
				report.Fail("embed", string(job.Index)+":"+job.ID, err)
				return nil
			}
			report.Inc(CounterEmbeddings, 1)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (c *GraphClient) embed(ctx context.Context, job common.EmbedJob) error {
	vec, err := c.embedder.Embed(ctx, job.Text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if err := c.vector.AddEmbedding(ctx, job.Index, job.ID, job.Text, vec); err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}
	return nil
}

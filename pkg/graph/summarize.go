package graph

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/graphsync/internal/util"
	"github.com/OFFIS-RIT/graphsync/pkg/channel"
	"github.com/OFFIS-RIT/graphsync/pkg/common"

	"golang.org/x/sync/errgroup"
)

// runSummarizer summarizes every community job. It is the only producer of
// mutations and embed jobs in the community phase and closes both.
func (c *GraphClient) runSummarizer(
	ctx context.Context,
	jobs *channel.Channel[CommunityJob],
	mutations *channel.Channel[common.Mutation],
	embeds *channel.Channel[common.EmbedJob],
	report *Report,
) error {
	defer embeds.Close()
	defer mutations.Close()

	g := new(errgroup.Group)
	g.SetLimit(c.parallelAiRequests)

	for job := range jobs.All() {
		g.Go(func() error {
			return c.summarizeCommunity(ctx, job, mutations, embeds, report)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// communitySummary describes a community from its children. A single child
// is reused as is. Failures become an error sentinel so the community still
// gets written.
func (c *GraphClient) communitySummary(ctx context.Context, job CommunityJob, report *Report) string {
	children, err := c.graph.GetChildren(ctx, job.Iteration, job.ID)
	if err != nil {
		report.Fail("summarize", job.ID, err)
		return summaryErrorPrefix + err.Error()
	}
	switch len(children) {
	case 0:
		return job.ID
	case 1:
		return children[0]
	}

	summary, err := util.RetryWithContext(ctx, summaryRetryAttempts, func(ctx context.Context) (string, error) {
		return c.summarizer.Summarize(ctx, job.ID, children)
	})
	if err != nil {
		report.Fail("summarize", job.ID, err)
		return summaryErrorPrefix + err.Error()
	}
	report.Inc(CounterSummaries, 1)
	return summary
}

func (c *GraphClient) summarizeCommunity(
	ctx context.Context,
	job CommunityJob,
	mutations *channel.Channel[common.Mutation],
	embeds *channel.Channel[common.EmbedJob],
	report *Report,
) error {
	summary := c.communitySummary(ctx, job, report)

	m := common.VertexUpsert(common.VertexCommunity, job.ID, common.Attributes{
		common.AttrDescription: summary,
		common.AttrIteration:   job.Iteration,
	})
	m.OnApplied = func(err error) {
		if err != nil {
			report.Fail("summarize", job.ID, fmt.Errorf("write community: %w", err))
		}
		job.Barrier.Mark(job.ID)
	}
	if err := mutations.Put(ctx, m); err != nil {
		job.Barrier.Mark(job.ID)
		return err
	}
	return embeds.Put(ctx, common.EmbedJob{ID: job.ID, Text: summary, Index: common.VertexCommunity})
}

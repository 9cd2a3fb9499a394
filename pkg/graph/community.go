package graph

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/OFFIS-RIT/graphsync/pkg/channel"
	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// CommunityJob asks the summarize stage to describe one community of a layer.
type CommunityJob struct {
	Iteration int
	ID        string
	Barrier   *LayerBarrier
}

// layerPass runs clustering pass i and returns its modularity.
type layerPass func(ctx context.Context, iteration int) (float64, error)

// layerStream summarizes the communities of layer i and returns once all of
// them are written.
type layerStream func(ctx context.Context, iteration int) error

// buildLayers runs clustering passes until modularity converges, collapses,
// drops to zero or the iteration cap is hit. It returns the number of passes
// and the number of layers streamed.
func buildLayers(ctx context.Context, params CommunityParams, pass layerPass, stream layerStream) (passes, layers int, err error) {
	mod, err := pass(ctx, 1)
	if err != nil {
		return 1, 0, fmt.Errorf("clustering pass 1: %w", err)
	}
	passes = 1
	if err := stream(ctx, 1); err != nil {
		return passes, 0, err
	}
	layers = 1

	for i := 1; i < params.MaxIterations; i++ {
		prev := mod
		mod, err = pass(ctx, i+1)
		passes++
		if err != nil {
			return passes, layers, fmt.Errorf("clustering pass %d: %w", i+1, err)
		}
		logger.Debug("[Community] Clustering pass", "iteration", i+1, "modularity", mod, "previous", prev)

		if mod == 0 || mod-prev < collapseThreshold {
			logger.Info("[Community] Stopping, modularity dropped", "iteration", i+1, "modularity", mod)
			return passes, layers, nil
		}
		if err := stream(ctx, i+1); err != nil {
			return passes, layers, err
		}
		layers++

		if prev != 0 && math.Abs(mod-prev) < params.Epsilon {
			logger.Info("[Community] Modularity converged", "iteration", i+1, "modularity", mod)
			return passes, layers, nil
		}
	}
	logger.Warn("[Community] Hit iteration cap before convergence", "max_iterations", params.MaxIterations)
	return passes, layers, nil
}

// DetectCommunities builds the community hierarchy over the resolved
// entities and summarizes every community.
func (c *GraphClient) DetectCommunities(ctx context.Context, report *Report) error {
	defer report.Track("communities")()

	mutations := channel.New[common.Mutation](stageCapacity)
	embeds := channel.New[common.EmbedJob](stageCapacity)
	jobs := channel.New[CommunityJob](stageCapacity)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.runUpserter(gctx, mutations, report) })
	g.Go(func() error { return c.runEmbedder(gctx, embeds, report) })
	g.Go(func() error { return c.runSummarizer(gctx, jobs, mutations, embeds, report) })

	pass := func(ctx context.Context, iteration int) (float64, error) {
		return c.graph.RunClusteringPass(ctx, common.ClusteringParams{
			Iteration:  iteration,
			Resolution: c.community.Resolution,
		})
	}
	stream := func(ctx context.Context, iteration int) error {
		return c.streamLayer(ctx, iteration, jobs, report)
	}

	_, layers, buildErr := buildLayers(gctx, c.community, pass, stream)
	jobs.Close()
	waitErr := g.Wait()

	report.Inc(CounterLayers, int64(layers))
	return errors.Join(buildErr, waitErr)
}

func (c *GraphClient) streamLayer(ctx context.Context, iteration int, jobs *channel.Channel[CommunityJob], report *Report) error {
	ids, err := c.graph.ListCommunities(ctx, iteration)
	if err != nil {
		return fmt.Errorf("list communities of layer %d: %w", iteration, err)
	}
	barrier := NewLayerBarrier(ids)
	for _, id := range ids {
		if err := jobs.Put(ctx, CommunityJob{Iteration: iteration, ID: id, Barrier: barrier}); err != nil {
			return err
		}
	}
	report.Inc(CounterCommunities, int64(len(ids)))
	logger.Info("[Community] Streamed layer", "iteration", iteration, "communities", len(ids))

	select {
	case <-barrier.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package pipeline

import (
	"context"
	"runtime"

	"github.com/chazu/voxbrep/pkg/config"
	"github.com/chazu/voxbrep/pkg/voxel"
	"golang.org/x/sync/errgroup"
)

// Job is one grid of a batch.
type Job struct {
	Name string
	Grid *voxel.Grid
}

// JobResult pairs a job with its outcome.
type JobResult struct {
	Name   string
	Result *Result
	Err    error
}

// RunBatch runs independent grids in parallel, bounded by the workers
// option, and returns results in job order. A failing job does not stop the
// others; only cancellation of ctx does.
func RunBatch(ctx context.Context, jobs []Job, cfg *config.Config, opts Options) ([]JobResult, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	workers := cfg.GetWorkers()
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]JobResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := Run(gctx, job.Grid, cfg, opts)
			results[i] = JobResult{Name: job.Name, Result: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

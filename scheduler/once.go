package scheduler

import (
	"context"
	stderrors "errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/c360/autoprocess/autoprocess"
	"github.com/c360/autoprocess/engine"
)

// Stages groups processes so that a process reading the target of another comes in
// a later stage than it. Processes within a stage are independent. A cycle of
// processes is broken where the walk first re-enters it, so every process still runs.
func Stages(ps []*autoprocess.Process) [][]*autoprocess.Process {
	producer := make(map[autoprocess.SeriesRef]*autoprocess.Process, len(ps))
	for _, p := range ps {
		producer[p.Target()] = p
	}

	depth := make(map[string]int, len(ps))
	visiting := make(map[string]bool)
	var level func(p *autoprocess.Process) int
	level = func(p *autoprocess.Process) int {
		if d, ok := depth[p.ID()]; ok {
			return d
		}
		if visiting[p.ID()] {
			return -1
		}
		visiting[p.ID()] = true
		d := 0
		if up, ok := producer[p.Source()]; ok {
			d = level(up) + 1
		}
		visiting[p.ID()] = false
		depth[p.ID()] = d
		return d
	}

	var stages [][]*autoprocess.Process
	for _, p := range ps {
		d := level(p)
		for len(stages) <= d {
			stages = append(stages, nil)
		}
		stages[d] = append(stages[d], p)
	}
	return stages
}

// RunOnce executes every process once, stage by stage, with up to Config.Workers
// runs in parallel. It returns the result of each process and the joined errors of
// the failed ones; a failure does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) (map[string]engine.Result, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]engine.Result, s.set.Len())
		errs    []error
	)

	for _, stage := range Stages(s.set.All()) {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Workers)
		for _, p := range stage {
			g.Go(func() error {
				res, err := s.execute(gctx, p, ReasonSweep, false)
				mu.Lock()
				defer mu.Unlock()
				results[p.ID()] = res
				if err != nil {
					errs = append(errs, err)
				}
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
	}
	return results, stderrors.Join(errs...)
}

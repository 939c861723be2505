package discipline

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/workforge/flowengine/internal/dag"
	"github.com/workforge/flowengine/internal/execution"
	"github.com/workforge/flowengine/internal/workflow"
)

// runParallel launches every step concurrently, bounded by
// max_concurrent_steps, starting each step the instant its own
// dependencies settle rather than waiting for a whole topological level to
// finish (that stricter barrier is what distinguishes Pipeline). Final
// status is COMPLETED unless a required step failed.
func (s *Scheduler) runParallel(ctx context.Context, wf *workflow.Workflow, steps map[string]*workflow.Step, res *dag.Resolution, exec *execution.Execution) (bool, error) {
	total := len(wf.Steps)
	updateProgress(exec, total)
	sem := semaphore.NewWeighted(concurrencyLimit(wf))

	done := make(map[string]chan struct{}, len(res.Order))
	for _, id := range res.Order {
		done[id] = make(chan struct{})
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	anyRequiredFailed := false
	stoppedEarly := false
	var requeueOut bool

	for _, id := range res.Order {
		id := id
		step := steps[id]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(done[id])

			for _, dep := range step.DependsOn {
				if ch, ok := done[dep.StepID]; ok {
					select {
					case <-ch:
					case <-ctx.Done():
						return
					}
				}
			}

			if stop, requeue := shouldStop(ctx, exec); stop {
				mu.Lock()
				stoppedEarly = true
				if requeue {
					requeueOut = true
				}
				mu.Unlock()
				return
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			outcome := s.runStep(ctx, wf, step, exec)
			sem.Release(1)
			updateProgress(exec, total)

			if requiredStepFailed(wf, step, outcome) {
				mu.Lock()
				anyRequiredFailed = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if stoppedEarly {
		return requeueOut, nil
	}
	if anyRequiredFailed && !wf.ErrorHandling.ContinueOnError {
		exec.SetStatus(execution.ExecFailed)
	}
	return false, nil
}

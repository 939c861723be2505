package discipline

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/workforge/flowengine/internal/dag"
	"github.com/workforge/flowengine/internal/execution"
	"github.com/workforge/flowengine/internal/workflow"
)

// runPipeline executes the resolver's parallel groups in order: within a
// group, steps run concurrently (bounded); the next group starts only
// after the current one fully settles.
func (s *Scheduler) runPipeline(ctx context.Context, wf *workflow.Workflow, steps map[string]*workflow.Step, res *dag.Resolution, exec *execution.Execution) (bool, error) {
	total := len(wf.Steps)
	updateProgress(exec, total)
	sem := semaphore.NewWeighted(concurrencyLimit(wf))

	for gi, group := range res.Groups {
		if stop, requeue := shouldStop(ctx, exec); stop {
			return requeue, nil
		}

		anyFailed := s.runGroupConcurrently(ctx, wf, group, steps, exec, sem)
		updateProgress(exec, total)

		if anyFailed && !wf.ErrorHandling.ContinueOnError {
			exec.SetStatus(execution.ExecFailed)
			for _, remaining := range res.Groups[gi+1:] {
				skipRemaining(exec, remaining)
			}
			updateProgress(exec, total)
			return false, nil
		}
	}
	return false, nil
}

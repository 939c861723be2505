package discipline

import (
	"context"

	"github.com/workforge/flowengine/internal/dag"
	"github.com/workforge/flowengine/internal/execution"
	"github.com/workforge/flowengine/internal/workflow"
)

// runSequential walks the resolver's topological order, one step at a time.
func (s *Scheduler) runSequential(ctx context.Context, wf *workflow.Workflow, steps map[string]*workflow.Step, res *dag.Resolution, exec *execution.Execution) (bool, error) {
	total := len(wf.Steps)
	updateProgress(exec, total)

	for i, id := range res.Order {
		if stop, requeue := shouldStop(ctx, exec); stop {
			return requeue, nil
		}

		step := steps[id]
		outcome := s.runStep(ctx, wf, step, exec)
		updateProgress(exec, total)

		if requiredStepFailed(wf, step, outcome) {
			exec.SetStatus(execution.ExecFailed)
			exec.SetErrorMessage(outcome.Err.Error())
			skipRemaining(exec, res.Order[i+1:])
			updateProgress(exec, total)
			return false, nil
		}
	}
	return false, nil
}

package discipline

import (
	"context"

	"github.com/workforge/flowengine/internal/dag"
	"github.com/workforge/flowengine/internal/execution"
	"github.com/workforge/flowengine/internal/workflow"
)

// runConditional walks the topological order, evaluating each step's
// condition before its dependency/status gating (the opposite order from
// every other discipline): a false condition SKIPs the step outright and,
// because SKIPPED is terminal, never blocks a dependent declared with
// condition=completion.
func (s *Scheduler) runConditional(ctx context.Context, wf *workflow.Workflow, steps map[string]*workflow.Step, res *dag.Resolution, exec *execution.Execution) (bool, error) {
	total := len(wf.Steps)
	updateProgress(exec, total)

	for i, id := range res.Order {
		if stop, requeue := shouldStop(ctx, exec); stop {
			return requeue, nil
		}

		step := steps[id]
		_, condCtx := stepContexts(wf, exec)

		if sr := exec.StepRuntime(id); (sr == nil || !sr.Status.Terminal()) && !s.cond.Evaluate(step.Condition, condCtx) {
			exec.UpdateStep(step.StepID, execution.StepSkipped, nil, "", 0)
			updateProgress(exec, total)
			continue
		}

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

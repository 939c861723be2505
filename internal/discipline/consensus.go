package discipline

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/workforge/flowengine/internal/dag"
	"github.com/workforge/flowengine/internal/execution"
	"github.com/workforge/flowengine/internal/workflow"
)

// consensusStepID is the fixed, non-configurable marker for the
// aggregation step of a consensus workflow.
const consensusStepID = "consensus"

// runConsensus runs every step except "consensus" in parallel, ignoring
// individual voter failures, then runs the "consensus" step (if any) with
// its dependencies on voters treated as optional. If no such step exists,
// completion aggregates the voters' captured outputs with no further
// processing.
func (s *Scheduler) runConsensus(ctx context.Context, wf *workflow.Workflow, steps map[string]*workflow.Step, res *dag.Resolution, exec *execution.Execution) (bool, error) {
	total := len(wf.Steps)
	sem := semaphore.NewWeighted(concurrencyLimit(wf))

	var voters []string
	for _, id := range res.Order {
		if id != consensusStepID {
			voters = append(voters, id)
		}
	}

	if stop, requeue := shouldStop(ctx, exec); stop {
		return requeue, nil
	}
	s.runGroupConcurrently(ctx, wf, voters, steps, exec, sem) // voter failures never fail the run
	updateProgress(exec, total)

	consensusStep, ok := steps[consensusStepID]
	if !ok {
		// no aggregation step: voter outputs stand as-is
		if exec.Status() == execution.ExecRunning {
			exec.SetStatus(execution.ExecCompleted)
		}
		return false, nil
	}

	if stop, requeue := shouldStop(ctx, exec); stop {
		return requeue, nil
	}

	optional := *consensusStep
	optional.DependsOn = make([]workflow.StepDependency, len(consensusStep.DependsOn))
	for i, d := range consensusStep.DependsOn {
		d.Required = false
		optional.DependsOn[i] = d
	}

	outcome := s.runStep(ctx, wf, &optional, exec)
	updateProgress(exec, total)

	if requiredStepFailed(wf, consensusStep, outcome) {
		exec.SetStatus(execution.ExecFailed)
		exec.SetErrorMessage(outcome.Err.Error())
	} else if exec.Status() == execution.ExecRunning {
		exec.SetStatus(execution.ExecCompleted)
	}
	return false, nil
}

// Package discipline implements the five Discipline Schedulers:
// sequential, parallel, pipeline, consensus, and conditional. Every
// scheduler shares the same step-boundary bookkeeping (status checks,
// progress_percentage updates) defined in this file.
package discipline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/workforge/flowengine/internal/condition"
	"github.com/workforge/flowengine/internal/dag"
	"github.com/workforge/flowengine/internal/execution"
	"github.com/workforge/flowengine/internal/ferrors"
	"github.com/workforge/flowengine/internal/interpolate"
	"github.com/workforge/flowengine/internal/stepexec"
	"github.com/workforge/flowengine/internal/workflow"
)

// Scheduler runs one execution of a workflow to its terminal disposition
// under whichever discipline the workflow declares.
type Scheduler struct {
	executor *stepexec.Executor
	cond     *condition.Evaluator
	logger   *zap.Logger
}

// New builds a Scheduler backed by executor, evaluating conditions with
// cond (the Conditional discipline needs its own condition check ahead of
// the Step Executor's usual dependency-then-condition order).
func New(executor *stepexec.Executor, cond *condition.Evaluator, logger *zap.Logger) *Scheduler {
	return &Scheduler{executor: executor, cond: cond, logger: logger.With(zap.String("component", "discipline"))}
}

// Requeued is a marker error for an execution paused mid-run. Run does not
// return it: Run reports a pause through its requeue result, and the caller
// (Engine) then keeps the execution active, out of history, until it is
// resumed.
var Requeued = ferrors.Sentinel(ferrors.KindExecutionCancelled)

// Run drives exec to completion, failure, or a pause point, per wf's
// declared discipline. The caller must have already set exec to RUNNING.
func (s *Scheduler) Run(ctx context.Context, wf *workflow.Workflow, exec *execution.Execution) (requeue bool, err error) {
	steps := make(map[string]*workflow.Step, len(wf.Steps))
	for i := range wf.Steps {
		steps[wf.Steps[i].StepID] = &wf.Steps[i]
	}

	resolution, derr := dag.Resolve(toNodes(wf.Steps))
	if derr != nil {
		exec.SetStatus(execution.ExecFailed)
		exec.SetErrorMessage(derr.Error())
		return false, ferrors.Wrap(ferrors.KindCyclicDependency, "dependency graph is cyclic", derr)
	}

	switch wf.Discipline {
	case workflow.Sequential:
		requeue, err = s.runSequential(ctx, wf, steps, resolution, exec)
	case workflow.Parallel:
		requeue, err = s.runParallel(ctx, wf, steps, resolution, exec)
	case workflow.Pipeline:
		requeue, err = s.runPipeline(ctx, wf, steps, resolution, exec)
	case workflow.Consensus:
		requeue, err = s.runConsensus(ctx, wf, steps, resolution, exec)
	case workflow.Conditional:
		requeue, err = s.runConditional(ctx, wf, steps, resolution, exec)
	default:
		return false, ferrors.New(ferrors.KindValidation, fmt.Sprintf("unknown discipline %q", wf.Discipline))
	}
	if err != nil || requeue {
		return requeue, err
	}

	finalizeStatus(exec, wf)
	return false, nil
}

// finalizeStatus sets exec's terminal status from the accumulated step
// results, unless a concurrent pause/cancel/timeout already claimed it.
func finalizeStatus(exec *execution.Execution, wf *workflow.Workflow) {
	if exec.Status() != execution.ExecRunning {
		return // paused/cancelled/timeout already decided the outcome
	}
	if len(exec.FailedSteps()) > 0 && !wf.ErrorHandling.ContinueOnError {
		exec.SetStatus(execution.ExecFailed)
		return
	}
	exec.SetStatus(execution.ExecCompleted)
}

// shouldStop reports whether the scheduler loop must stop before starting
// another step, and whether that stop should requeue the execution
// (PAUSED sets requeue, keeping the execution active until it is resumed;
// CANCELLED/TIMEOUT move to history).
func shouldStop(ctx context.Context, exec *execution.Execution) (stop bool, requeue bool) {
	if ctx.Err() != nil {
		return true, false
	}
	switch exec.Status() {
	case execution.ExecPaused:
		return true, true
	case execution.ExecCancelled, execution.ExecTimeout:
		return true, false
	}
	return false, false
}

// updateProgress recomputes progress_percentage as
// completed_or_terminal / total * 100.
func updateProgress(exec *execution.Execution, total int) {
	if total == 0 {
		exec.SetProgress(100)
		return
	}
	done := 0
	for _, sr := range exec.AllStepRuntimes() {
		if sr.Status.Terminal() {
			done++
		}
	}
	exec.SetProgress(float64(done) / float64(total) * 100)
}

func toNodes(steps []workflow.Step) []dag.Node {
	nodes := make([]dag.Node, len(steps))
	for i, st := range steps {
		deps := make([]string, len(st.DependsOn))
		for j, d := range st.DependsOn {
			deps[j] = d.StepID
		}
		nodes[i] = dag.Node{StepID: st.StepID, DependsOn: deps, ParallelAllowed: st.ParallelAllowed}
	}
	return nodes
}

// stepContexts builds the interpolation and condition contexts for one step
// invocation, reflecting the outputs/statuses captured so far.
func stepContexts(wf *workflow.Workflow, exec *execution.Execution) (*interpolate.Context, *condition.Context) {
	globals := make(map[string]interface{}, len(wf.GlobalContext))
	for k, v := range wf.GlobalContext {
		globals[k] = v
	}
	for k, v := range exec.Globals {
		globals[k] = v
	}
	outputs := exec.StepOutputs()
	statuses := exec.StepStatuses()

	return &interpolate.Context{Globals: globals, StepOutputs: outputs},
		&condition.Context{Globals: globals, StepOutputs: outputs, StepStatuses: statuses}
}

// runStep runs one step to its terminal Outcome and reflects it onto exec.
// A step already terminal (from before a pause) is not run again; its
// recorded result is reported instead.
func (s *Scheduler) runStep(ctx context.Context, wf *workflow.Workflow, step *workflow.Step, exec *execution.Execution) stepexec.Outcome {
	if sr := exec.StepRuntime(step.StepID); sr != nil && sr.Status.Terminal() {
		prior := stepexec.Outcome{Status: sr.Status, Output: sr.Output, RetryCount: sr.RetryCount}
		if sr.Status == execution.StepFailed {
			prior.Err = fmt.Errorf("%s", sr.ErrorMessage)
		}
		return prior
	}
	exec.SetCurrentStep(step.StepID)
	exec.UpdateStep(step.StepID, execution.StepRunning, nil, "", 0)

	ictx, condCtx := stepContexts(wf, exec)
	outcome := s.executor.Run(ctx, step, wf, exec, ictx, condCtx)

	errMsg := ""
	if outcome.Err != nil {
		errMsg = outcome.Err.Error()
	}
	exec.UpdateStep(step.StepID, outcome.Status, outcome.Output, errMsg, outcome.RetryCount)
	return outcome
}

// skipRemaining marks every not-yet-terminal step among ids as SKIPPED. Used
// once a required failure has decided the execution's outcome but steps
// later in the topological order were never visited.
func skipRemaining(exec *execution.Execution, ids []string) {
	for _, id := range ids {
		if sr := exec.StepRuntime(id); sr != nil && !sr.Status.Terminal() {
			exec.UpdateStep(id, execution.StepSkipped, nil, "", 0)
		}
	}
}

// concurrencyLimit resolves the workflow's bounded-concurrency setting,
// defaulting to 4.
func concurrencyLimit(wf *workflow.Workflow) int64 {
	n := wf.Limits.MaxConcurrentSteps
	if n <= 0 {
		n = 4
	}
	return int64(n)
}

// runGroupConcurrently runs every step in ids concurrently, bounded by sem,
// and reports whether any of them was a required failure. Callers use this
// for a single parallel group whose upstream dependencies have already
// settled.
func (s *Scheduler) runGroupConcurrently(ctx context.Context, wf *workflow.Workflow, ids []string, steps map[string]*workflow.Step, exec *execution.Execution, sem *semaphore.Weighted) bool {
	var wg sync.WaitGroup
	var mu sync.Mutex
	anyRequiredFailed := false

	for _, id := range ids {
		id := id
		if stop, _ := shouldStop(ctx, exec); stop {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			step := steps[id]
			outcome := s.runStep(ctx, wf, step, exec)
			if requiredStepFailed(wf, step, outcome) {
				mu.Lock()
				anyRequiredFailed = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return anyRequiredFailed
}

// requiredStepFailed reports whether outcome represents a failure that must
// halt the scheduler (a FAILED outcome, unless the step or workflow allows
// continuing past it).
func requiredStepFailed(wf *workflow.Workflow, step *workflow.Step, outcome stepexec.Outcome) bool {
	if outcome.Status != execution.StepFailed {
		return false
	}
	return !step.ContinueOnError && !wf.ErrorHandling.ContinueOnError
}

package discipline

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/workforge/flowengine/internal/agentsvc"
	"github.com/workforge/flowengine/internal/condition"
	"github.com/workforge/flowengine/internal/execution"
	"github.com/workforge/flowengine/internal/stepexec"
	"github.com/workforge/flowengine/internal/workflow"
)

type stubAgents struct{}

func (stubAgents) Execute(ctx context.Context, agentID, functionName string, params interface{}) (interface{}, error) {
	return map[string]interface{}{"agent": agentID}, nil
}

type failingAgents struct{ failFor map[string]bool }

func (f failingAgents) Execute(ctx context.Context, agentID, functionName string, params interface{}) (interface{}, error) {
	if f.failFor[agentID] {
		return nil, errBoom{}
	}
	return "ok", nil
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newScheduler(agents agentsvc.Service) *Scheduler {
	logger := zap.NewNop()
	evaluator := condition.NewEvaluator(logger)
	executor := stepexec.NewExecutor(agents, evaluator, logger, 8)
	return New(executor, evaluator, logger)
}

func linearWorkflow(discipline workflow.Discipline) *workflow.Workflow {
	return &workflow.Workflow{
		WorkflowID: "wf1",
		Name:       "test",
		Discipline: discipline,
		Steps: []workflow.Step{
			{StepID: "a", AgentID: "agentA", FunctionName: "f", TimeoutSeconds: 5},
			{StepID: "b", AgentID: "agentB", FunctionName: "f", TimeoutSeconds: 5, DependsOn: []workflow.StepDependency{
				{StepID: "a", Condition: workflow.DependsOnSuccess, Required: true},
			}},
		},
		Limits: workflow.Limits{MaxExecutionTimeSeconds: 30, MaxConcurrentSteps: 4},
	}
}

func newExec(wf *workflow.Workflow) *execution.Execution {
	ids := make([]string, len(wf.Steps))
	for i, st := range wf.Steps {
		ids[i] = st.StepID
	}
	e := execution.New("e1", wf.WorkflowID, string(wf.Discipline), map[string]interface{}{}, ids)
	e.SetStatus(execution.ExecRunning)
	return e
}

func TestRunSequentialCompletes(t *testing.T) {
	wf := linearWorkflow(workflow.Sequential)
	exec := newExec(wf)
	sched := newScheduler(stubAgents{})

	requeue, err := sched.Run(context.Background(), wf, exec)
	if err != nil || requeue {
		t.Fatalf("unexpected requeue=%v err=%v", requeue, err)
	}
	if exec.Status() != execution.ExecCompleted {
		t.Fatalf("status = %v, want COMPLETED", exec.Status())
	}
	if exec.Progress() != 100 {
		t.Fatalf("progress = %v, want 100", exec.Progress())
	}
}

func TestRunSequentialFailsOnRequiredStepFailure(t *testing.T) {
	wf := linearWorkflow(workflow.Sequential)
	exec := newExec(wf)
	sched := newScheduler(failingAgents{failFor: map[string]bool{"agentA": true}})

	_, err := sched.Run(context.Background(), wf, exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Status() != execution.ExecFailed {
		t.Fatalf("status = %v, want FAILED", exec.Status())
	}
	// b must never have run since its dependency on a failed, and the
	// scheduler must mark it SKIPPED rather than leaving it PENDING.
	if sr := exec.StepRuntime("b"); sr.Status != execution.StepSkipped {
		t.Fatalf("b status = %v, want SKIPPED", sr.Status)
	}
	if sr := exec.StepRuntime("a"); sr.RetryCount != 0 {
		t.Fatalf("a retry_count = %d, want 0 (no retries configured)", sr.RetryCount)
	}
}

func TestRunSequentialEmptyStepsCompletesWithFullProgress(t *testing.T) {
	wf := linearWorkflow(workflow.Sequential)
	wf.Steps = nil
	exec := newExec(wf)
	sched := newScheduler(stubAgents{})

	requeue, err := sched.Run(context.Background(), wf, exec)
	if err != nil || requeue {
		t.Fatalf("unexpected requeue=%v err=%v", requeue, err)
	}
	if exec.Status() != execution.ExecCompleted {
		t.Fatalf("status = %v, want COMPLETED", exec.Status())
	}
	if exec.Progress() != 100 {
		t.Fatalf("progress = %v, want 100", exec.Progress())
	}
}

func TestRunSequentialRecordsRetryCountOnFinalFailure(t *testing.T) {
	wf := linearWorkflow(workflow.Sequential)
	wf.Steps[0].MaxRetries = 2
	wf.Steps[0].RetryDelaySeconds = 0
	exec := newExec(wf)
	sched := newScheduler(failingAgents{failFor: map[string]bool{"agentA": true}})

	_, err := sched.Run(context.Background(), wf, exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sr := exec.StepRuntime("a"); sr.Status != execution.StepFailed || sr.RetryCount != 2 {
		t.Fatalf("a = %+v, want FAILED with retry_count=2", sr)
	}
	if sr := exec.StepRuntime("b"); sr.Status != execution.StepSkipped {
		t.Fatalf("b status = %v, want SKIPPED", sr.Status)
	}
}

func TestRunParallelCompletesBothSteps(t *testing.T) {
	wf := linearWorkflow(workflow.Parallel)
	exec := newExec(wf)
	sched := newScheduler(stubAgents{})

	requeue, err := sched.Run(context.Background(), wf, exec)
	if err != nil || requeue {
		t.Fatalf("unexpected requeue=%v err=%v", requeue, err)
	}
	if exec.Status() != execution.ExecCompleted {
		t.Fatalf("status = %v, want COMPLETED", exec.Status())
	}
	for _, id := range []string{"a", "b"} {
		if sr := exec.StepRuntime(id); sr.Status != execution.StepCompleted {
			t.Errorf("step %s status = %v, want COMPLETED", id, sr.Status)
		}
	}
}

func TestRunPipelineSkipsLaterGroupsOnRequiredFailure(t *testing.T) {
	wf := linearWorkflow(workflow.Pipeline)
	exec := newExec(wf)
	sched := newScheduler(failingAgents{failFor: map[string]bool{"agentA": true}})

	_, err := sched.Run(context.Background(), wf, exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Status() != execution.ExecFailed {
		t.Fatalf("status = %v, want FAILED", exec.Status())
	}
	if sr := exec.StepRuntime("b"); sr.Status != execution.StepSkipped {
		t.Fatalf("b status = %v, want SKIPPED", sr.Status)
	}
}

func TestRunPipelineEmptyStepsCompletesWithFullProgress(t *testing.T) {
	wf := linearWorkflow(workflow.Pipeline)
	wf.Steps = nil
	exec := newExec(wf)
	sched := newScheduler(stubAgents{})

	requeue, err := sched.Run(context.Background(), wf, exec)
	if err != nil || requeue {
		t.Fatalf("unexpected requeue=%v err=%v", requeue, err)
	}
	if exec.Progress() != 100 {
		t.Fatalf("progress = %v, want 100", exec.Progress())
	}
}

func TestRunPipelineRunsGroupsInOrder(t *testing.T) {
	wf := linearWorkflow(workflow.Pipeline)
	exec := newExec(wf)
	sched := newScheduler(stubAgents{})

	_, err := sched.Run(context.Background(), wf, exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Status() != execution.ExecCompleted {
		t.Fatalf("status = %v, want COMPLETED", exec.Status())
	}
}

func TestRunConsensusIgnoresVoterFailure(t *testing.T) {
	wf := &workflow.Workflow{
		WorkflowID: "wf2",
		Name:       "consensus",
		Discipline: workflow.Consensus,
		Steps: []workflow.Step{
			{StepID: "v1", AgentID: "voter1", FunctionName: "vote"},
			{StepID: "v2", AgentID: "voter2", FunctionName: "vote"},
			{StepID: consensusStepID, AgentID: "aggregator", FunctionName: "aggregate", DependsOn: []workflow.StepDependency{
				{StepID: "v1", Condition: workflow.DependsOnCompletion, Required: true},
				{StepID: "v2", Condition: workflow.DependsOnCompletion, Required: true},
			}},
		},
		Limits: workflow.Limits{MaxExecutionTimeSeconds: 30, MaxConcurrentSteps: 4},
	}
	exec := newExec(wf)
	sched := newScheduler(failingAgents{failFor: map[string]bool{"voter1": true}})

	_, err := sched.Run(context.Background(), wf, exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Status() != execution.ExecCompleted {
		t.Fatalf("status = %v, want COMPLETED (voter failure must not fail the run)", exec.Status())
	}
	if sr := exec.StepRuntime(consensusStepID); sr.Status != execution.StepCompleted {
		t.Fatalf("consensus step status = %v, want COMPLETED", sr.Status)
	}
}

func TestRunConditionalSkipsFalseCondition(t *testing.T) {
	wf := &workflow.Workflow{
		WorkflowID: "wf3",
		Name:       "conditional",
		Discipline: workflow.Conditional,
		Steps: []workflow.Step{
			{StepID: "a", AgentID: "agentA", FunctionName: "f", Condition: &workflow.Condition{
				Field: "global.run_a", Operator: "equals", Value: true,
			}},
			{StepID: "b", AgentID: "agentB", FunctionName: "f", DependsOn: []workflow.StepDependency{
				{StepID: "a", Condition: workflow.DependsOnCompletion, Required: true},
			}},
		},
		GlobalContext: map[string]interface{}{"run_a": false},
		Limits:        workflow.Limits{MaxExecutionTimeSeconds: 30, MaxConcurrentSteps: 4},
	}
	exec := newExec(wf)
	sched := newScheduler(stubAgents{})

	_, err := sched.Run(context.Background(), wf, exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sr := exec.StepRuntime("a"); sr.Status != execution.StepSkipped {
		t.Fatalf("step a status = %v, want SKIPPED", sr.Status)
	}
	// b depends on a with condition=completion: SKIPPED is terminal, so b must still run.
	if sr := exec.StepRuntime("b"); sr.Status != execution.StepCompleted {
		t.Fatalf("step b status = %v, want COMPLETED (completion dependency satisfied by SKIPPED)", sr.Status)
	}
	if exec.Status() != execution.ExecCompleted {
		t.Fatalf("status = %v, want COMPLETED", exec.Status())
	}
}

func TestRunConditionalSkipsRemainingOnRequiredFailure(t *testing.T) {
	wf := linearWorkflow(workflow.Conditional)
	exec := newExec(wf)
	sched := newScheduler(failingAgents{failFor: map[string]bool{"agentA": true}})

	_, err := sched.Run(context.Background(), wf, exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Status() != execution.ExecFailed {
		t.Fatalf("status = %v, want FAILED", exec.Status())
	}
	if sr := exec.StepRuntime("b"); sr.Status != execution.StepSkipped {
		t.Fatalf("b status = %v, want SKIPPED", sr.Status)
	}
}

func TestRunParallelEmptyStepsCompletesWithFullProgress(t *testing.T) {
	wf := linearWorkflow(workflow.Parallel)
	wf.Steps = nil
	exec := newExec(wf)
	sched := newScheduler(stubAgents{})

	requeue, err := sched.Run(context.Background(), wf, exec)
	if err != nil || requeue {
		t.Fatalf("unexpected requeue=%v err=%v", requeue, err)
	}
	if exec.Progress() != 100 {
		t.Fatalf("progress = %v, want 100", exec.Progress())
	}
}

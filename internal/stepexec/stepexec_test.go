package stepexec

import (
	"context"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/workforge/flowengine/internal/agentsvc"
	"github.com/workforge/flowengine/internal/condition"
	"github.com/workforge/flowengine/internal/execution"
	"github.com/workforge/flowengine/internal/interpolate"
	"github.com/workforge/flowengine/internal/workflow"
)

type fakeAgents struct {
	calls   int32
	failN   int32
	output  interface{}
	failErr error
}

func (f *fakeAgents) Execute(ctx context.Context, agentID, functionName string, params interface{}) (interface{}, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failN {
		return nil, f.failErr
	}
	return f.output, nil
}

func newTestExecutor(agents agentsvc.Service) *Executor {
	logger := zap.NewNop()
	return NewExecutor(agents, condition.NewEvaluator(logger), logger, 4)
}

func newExec(stepIDs ...string) *execution.Execution {
	return execution.New("e1", "w1", string(workflow.Sequential), map[string]interface{}{}, stepIDs)
}

func TestRunSucceedsFirstAttempt(t *testing.T) {
	agents := &fakeAgents{output: map[string]interface{}{"ok": true}}
	e := newTestExecutor(agents)
	step := &workflow.Step{StepID: "s1", AgentID: "a1", FunctionName: "f1", TimeoutSeconds: 5}
	wf := &workflow.Workflow{}
	exec := newExec("s1")

	out := e.Run(context.Background(), step, wf, exec, &interpolate.Context{}, &condition.Context{})
	if out.Status != execution.StepCompleted {
		t.Fatalf("status = %v, want COMPLETED", out.Status)
	}
	if agents.calls != 1 {
		t.Fatalf("calls = %d, want 1", agents.calls)
	}
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	agents := &fakeAgents{failN: 2, failErr: errTransient{}, output: "done"}
	e := newTestExecutor(agents)
	step := &workflow.Step{StepID: "s1", AgentID: "a1", FunctionName: "f1", TimeoutSeconds: 5, MaxRetries: 3, RetryDelaySeconds: 0}
	wf := &workflow.Workflow{}
	exec := newExec("s1")

	out := e.Run(context.Background(), step, wf, exec, &interpolate.Context{}, &condition.Context{})
	if out.Status != execution.StepCompleted {
		t.Fatalf("status = %v, want COMPLETED, err=%v", out.Status, out.Err)
	}
	if agents.calls != 3 {
		t.Fatalf("calls = %d, want 3", agents.calls)
	}
	if out.RetryCount != 2 {
		t.Fatalf("retry_count = %d, want 2 (two retries before the succeeding attempt)", out.RetryCount)
	}
}

func TestRunExhaustsRetriesAndFails(t *testing.T) {
	agents := &fakeAgents{failN: 100, failErr: errTransient{}}
	e := newTestExecutor(agents)
	step := &workflow.Step{StepID: "s1", AgentID: "a1", FunctionName: "f1", TimeoutSeconds: 5, MaxRetries: 2, RetryDelaySeconds: 0}
	wf := &workflow.Workflow{}
	exec := newExec("s1")

	out := e.Run(context.Background(), step, wf, exec, &interpolate.Context{}, &condition.Context{})
	if out.Status != execution.StepFailed {
		t.Fatalf("status = %v, want FAILED", out.Status)
	}
	if agents.calls != 3 { // initial attempt + 2 retries
		t.Fatalf("calls = %d, want 3", agents.calls)
	}
	if out.RetryCount != 2 {
		t.Fatalf("retry_count = %d, want 2 (final attempt index)", out.RetryCount)
	}
}

func TestRunSkipsOnFailedCondition(t *testing.T) {
	agents := &fakeAgents{output: "x"}
	e := newTestExecutor(agents)
	step := &workflow.Step{
		StepID: "s1", AgentID: "a1", FunctionName: "f1", TimeoutSeconds: 5,
		Condition: &workflow.Condition{Field: "global.flag", Operator: "equals", Value: true},
	}
	wf := &workflow.Workflow{}
	exec := newExec("s1")
	condCtx := &condition.Context{Globals: map[string]interface{}{"flag": false}}

	out := e.Run(context.Background(), step, wf, exec, &interpolate.Context{}, condCtx)
	if out.Status != execution.StepSkipped {
		t.Fatalf("status = %v, want SKIPPED", out.Status)
	}
	if agents.calls != 0 {
		t.Fatalf("calls = %d, want 0 (agent should not be invoked)", agents.calls)
	}
}

func TestRunSkipsOnUnmetRequiredDependency(t *testing.T) {
	agents := &fakeAgents{output: "x"}
	e := newTestExecutor(agents)
	step := &workflow.Step{
		StepID: "s2", AgentID: "a1", FunctionName: "f1", TimeoutSeconds: 5,
		DependsOn: []workflow.StepDependency{{StepID: "s1", Condition: workflow.DependsOnSuccess, Required: true}},
	}
	wf := &workflow.Workflow{}
	exec := newExec("s1", "s2")
	exec.UpdateStep("s1", execution.StepFailed, nil, "boom", 0)

	out := e.Run(context.Background(), step, wf, exec, &interpolate.Context{}, &condition.Context{})
	if out.Status != execution.StepSkipped {
		t.Fatalf("status = %v, want SKIPPED", out.Status)
	}
}

func TestBackoffDelayCapsAtMax(t *testing.T) {
	d := backoffDelay(1, 50)
	if d != defaultMaxDelay {
		t.Fatalf("backoffDelay = %v, want capped at %v", d, defaultMaxDelay)
	}
}

type errTransient struct{}

func (errTransient) Error() string { return "transient failure" }

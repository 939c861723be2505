package workflow

import "testing"

func sampleWorkflow() *Workflow {
	return &Workflow{
		Name:       "test",
		Discipline: Sequential,
		Steps: []Step{
			{StepID: "s1", AgentID: "a1", FunctionName: "f1"},
			{StepID: "s2", AgentID: "a2", FunctionName: "f2", DependsOn: []StepDependency{
				{StepID: "s1", Condition: DependsOnSuccess, Required: true},
			}},
		},
		Limits: Limits{MaxExecutionTimeSeconds: 60, MaxConcurrentSteps: 2},
	}
}

func TestRegistryCreateAssignsID(t *testing.T) {
	r := NewRegistry(nil)
	id, err := r.Create(sampleWorkflow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected assigned workflow_id")
	}
	if r.Get(id) == nil {
		t.Fatal("expected workflow to be retrievable")
	}
}

func TestRegistryRejectsCycle(t *testing.T) {
	w := sampleWorkflow()
	w.Steps[0].DependsOn = []StepDependency{{StepID: "s2", Condition: DependsOnSuccess, Required: true}}
	r := NewRegistry(nil)
	_, err := r.Create(w)
	if err == nil {
		t.Fatal("expected cycle rejection")
	}
}

func TestRegistryRejectsDuplicateStepID(t *testing.T) {
	w := sampleWorkflow()
	w.Steps = append(w.Steps, Step{StepID: "s1", AgentID: "a3", FunctionName: "f3"})
	r := NewRegistry(nil)
	_, err := r.Create(w)
	if err == nil {
		t.Fatal("expected duplicate step_id rejection")
	}
}

func TestRegistryUpdateRefusedWithActiveExecutions(t *testing.T) {
	r := NewRegistry(func(string) bool { return true })
	id, err := r.Create(sampleWorkflow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Update(id, sampleWorkflow()); err == nil {
		t.Fatal("expected update to be refused")
	}
	if err := r.Delete(id); err == nil {
		t.Fatal("expected delete to be refused")
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry(nil)
	w1 := sampleWorkflow()
	w1.WorkflowID = "zzz"
	w2 := sampleWorkflow()
	w2.WorkflowID = "aaa"
	if _, err := r.Create(w1); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(w2); err != nil {
		t.Fatal(err)
	}
	ids := r.List()
	if len(ids) != 2 || ids[0] != "aaa" || ids[1] != "zzz" {
		t.Errorf("ids = %v, want sorted [aaa zzz]", ids)
	}
}

package workflow

import "testing"

const sampleYAML = `
id: lin
name: Linear Workflow
type: sequential
global_context:
  user: alice
settings:
  max_execution_time: 60
  max_concurrent_steps: 2
steps:
  - id: s1
    agent_id: agent-a
    function: doThing
    parameters:
      x: 1
  - id: s2
    agent_id: agent-b
    function: doOther
    depends_on:
      - s1
    parameters:
      y: "${steps.s1.output.value}"
  - id: s3
    agent_id: agent-c
    function: finalize
    depends_on:
      - step: s2
        condition: completion
        required: false
`

func TestParseYAMLBasic(t *testing.T) {
	w, err := ParseYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Name != "Linear Workflow" {
		t.Errorf("name = %q", w.Name)
	}
	if w.Discipline != Sequential {
		t.Errorf("discipline = %q", w.Discipline)
	}
	if len(w.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(w.Steps))
	}
	if w.Steps[1].DependsOn[0].StepID != "s1" || w.Steps[1].DependsOn[0].Condition != DependsOnSuccess {
		t.Errorf("s2 depends_on shorthand not decoded: %+v", w.Steps[1].DependsOn)
	}
	if w.Steps[2].DependsOn[0].Condition != "completion" || w.Steps[2].DependsOn[0].Required {
		t.Errorf("s3 depends_on struct form not decoded: %+v", w.Steps[2].DependsOn)
	}
	if w.Limits.MaxExecutionTimeSeconds != 60 || w.Limits.MaxConcurrentSteps != 2 {
		t.Errorf("limits not decoded: %+v", w.Limits)
	}
}

func TestParseYAMLMissingRequiredStepField(t *testing.T) {
	bad := `
name: Bad
type: sequential
steps:
  - id: s1
    function: doThing
`
	_, err := ParseYAML([]byte(bad))
	if err == nil {
		t.Fatal("expected error for missing agent_id")
	}
}

func TestParseYAMLConditionExpression(t *testing.T) {
	withCond := `
name: Cond
type: conditional
steps:
  - id: s1
    agent_id: a
    function: f
    conditions:
      expression: "global.x == 1"
`
	w, err := ParseYAML([]byte(withCond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Steps[0].Condition == nil || w.Steps[0].Condition.Expression != "global.x == 1" {
		t.Errorf("condition not decoded: %+v", w.Steps[0].Condition)
	}
}

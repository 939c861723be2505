package condition

import (
	"testing"

	"github.com/workforge/flowengine/internal/workflow"
)

func testCtx() *Context {
	return &Context{
		Globals:      map[string]interface{}{"count": float64(5)},
		StepOutputs:  map[string]interface{}{"s1": map[string]interface{}{"ok": true}},
		StepStatuses: map[string]string{"s1": "COMPLETED"},
	}
}

func TestEvaluateExpressionSimple(t *testing.T) {
	e := NewEvaluator(nil)
	cond := &workflow.Condition{Expression: "global.count > 3"}
	if !e.Evaluate(cond, testCtx()) {
		t.Error("expected true")
	}
}

func TestEvaluatePrecedence(t *testing.T) {
	e := NewEvaluator(nil)
	// !false && true || false -> (!false && true) || false -> true
	cond := &workflow.Condition{Expression: "!false && true || false"}
	if !e.Evaluate(cond, testCtx()) {
		t.Error("expected true")
	}
}

func TestEvaluateStepStatusReference(t *testing.T) {
	e := NewEvaluator(nil)
	cond := &workflow.Condition{Expression: `steps.s1.status == "COMPLETED"`}
	if !e.Evaluate(cond, testCtx()) {
		t.Error("expected true")
	}
}

func TestEvaluateUnparseableIsFalse(t *testing.T) {
	e := NewEvaluator(nil)
	cond := &workflow.Condition{Expression: "global.count >"}
	if e.Evaluate(cond, testCtx()) {
		t.Error("expected false for unparseable expression")
	}
}

func TestEvaluateStructuredExists(t *testing.T) {
	e := NewEvaluator(nil)
	cond := &workflow.Condition{Field: "global.count", Operator: "exists"}
	if !e.Evaluate(cond, testCtx()) {
		t.Error("expected true")
	}
	cond2 := &workflow.Condition{Field: "global.missing", Operator: "exists"}
	if e.Evaluate(cond2, testCtx()) {
		t.Error("expected false")
	}
}

func TestEvaluateComposite(t *testing.T) {
	e := NewEvaluator(nil)
	cond := &workflow.Condition{
		And: []workflow.Condition{
			{Field: "global.count", Operator: "greater_than", Value: float64(1)},
			{Field: "steps.s1.output.ok", Operator: "equals", Value: true},
		},
	}
	if !e.Evaluate(cond, testCtx()) {
		t.Error("expected true")
	}
}

func TestEvaluateZeroConditionIsTrue(t *testing.T) {
	e := NewEvaluator(nil)
	if !e.Evaluate(nil, testCtx()) {
		t.Error("nil condition should default to true (no gating)")
	}
}

func TestEvaluateMissingReferenceIsFalse(t *testing.T) {
	e := NewEvaluator(nil)
	cond := &workflow.Condition{Expression: "global.missing == 1"}
	if e.Evaluate(cond, testCtx()) {
		t.Error("expected false for missing reference")
	}
}

package dag

import "testing"

func TestResolveLinear(t *testing.T) {
	nodes := []Node{
		{StepID: "s1"},
		{StepID: "s2", DependsOn: []string{"s1"}},
		{StepID: "s3", DependsOn: []string{"s2"}},
	}
	res, err := Resolve(nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"s1", "s2", "s3"}
	if len(res.Order) != len(want) {
		t.Fatalf("order length = %d, want %d", len(res.Order), len(want))
	}
	for i, id := range want {
		if res.Order[i] != id {
			t.Errorf("order[%d] = %s, want %s", i, res.Order[i], id)
		}
	}
	if len(res.Groups) != 3 {
		t.Errorf("groups = %v, want 3 singleton groups", res.Groups)
	}
}

func TestResolveParallelGroup(t *testing.T) {
	nodes := []Node{
		{StepID: "a", ParallelAllowed: true},
		{StepID: "b", ParallelAllowed: true},
		{StepID: "c", DependsOn: []string{"a", "b"}, ParallelAllowed: true},
	}
	res, err := Resolve(nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Groups) != 2 {
		t.Fatalf("groups = %v, want 2 groups", res.Groups)
	}
	if len(res.Groups[0]) != 2 {
		t.Errorf("first group = %v, want 2 members", res.Groups[0])
	}
	if len(res.Groups[1]) != 1 || res.Groups[1][0] != "c" {
		t.Errorf("second group = %v, want [c]", res.Groups[1])
	}
}

func TestResolveNonParallelSingleton(t *testing.T) {
	nodes := []Node{
		{StepID: "a", ParallelAllowed: true},
		{StepID: "b", ParallelAllowed: false},
	}
	res, err := Resolve(nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Groups) != 2 {
		t.Fatalf("groups = %v, want 2 groups (singleton b separate from parallel a)", res.Groups)
	}
}

func TestResolveCycle(t *testing.T) {
	nodes := []Node{
		{StepID: "s1", DependsOn: []string{"s2"}},
		{StepID: "s2", DependsOn: []string{"s1"}},
	}
	_, err := Resolve(nodes)
	if err == nil {
		t.Fatal("expected cycle error, got nil")
	}
	if _, ok := err.(*CycleError); !ok {
		t.Errorf("expected *CycleError, got %T", err)
	}
	if !HasCycle(nodes) {
		t.Error("HasCycle returned false for a cyclic graph")
	}
}

func TestHasCycleFalseForAcyclic(t *testing.T) {
	nodes := []Node{
		{StepID: "s1"},
		{StepID: "s2", DependsOn: []string{"s1"}},
	}
	if HasCycle(nodes) {
		t.Error("HasCycle returned true for an acyclic graph")
	}
}

func TestResolveUnknownDependencyIgnored(t *testing.T) {
	nodes := []Node{
		{StepID: "s1", DependsOn: []string{"ghost"}},
	}
	res, err := Resolve(nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Order) != 1 || res.Order[0] != "s1" {
		t.Errorf("order = %v, want [s1]", res.Order)
	}
}

package interpolate

import (
	"reflect"
	"testing"
)

func ctx() *Context {
	return &Context{
		Globals: map[string]interface{}{
			"name": "alice",
		},
		StepOutputs: map[string]interface{}{
			"s1": map[string]interface{}{"value": float64(42), "nested": map[string]interface{}{"x": "y"}},
		},
	}
}

func TestResolveGlobalExactToken(t *testing.T) {
	got, err := Resolve("${global.name}", ctx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "alice" {
		t.Errorf("got %v, want alice", got)
	}
}

func TestResolveStepOutputWholeTyped(t *testing.T) {
	got, err := Resolve(map[string]interface{}{"x": "${steps.s1.output.value}"}, ctx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := got.(map[string]interface{})
	if !ok {
		t.Fatalf("got %T, want map", got)
	}
	if v, ok := m["x"].(float64); !ok || v != 42 {
		t.Errorf("x = %v (%T), want typed 42", m["x"], m["x"])
	}
}

func TestResolveNestedFieldLookup(t *testing.T) {
	got, err := Resolve("${steps.s1.output.nested.x}", ctx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "y" {
		t.Errorf("got %v, want y", got)
	}
}

func TestResolveUnknownReferenceLeftLiteral(t *testing.T) {
	got, err := Resolve("${global.missing}", ctx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "${global.missing}" {
		t.Errorf("got %v, want literal token", got)
	}
}

func TestResolveMixedStringSplice(t *testing.T) {
	got, err := Resolve("hello ${global.name}!", ctx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello alice!" {
		t.Errorf("got %q, want %q", got, "hello alice!")
	}
}

func TestResolveWholeStepOutput(t *testing.T) {
	got, err := Resolve("${steps.s1.output}", ctx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ctx().StepOutputs["s1"]
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolveNonStringLeafPassesThrough(t *testing.T) {
	got, err := Resolve(map[string]interface{}{"count": float64(7), "ok": true}, ctx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := got.(map[string]interface{})
	if m["count"] != float64(7) || m["ok"] != true {
		t.Errorf("got %v, want passthrough", m)
	}
}

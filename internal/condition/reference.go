package condition

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// resolveReference resolves a dotted reference of the shapes
// global.<name>, steps.<id>.output(.<field>)*, or steps.<id>.status
// against ctx. Missing references report ok=false, letting callers
// apply the "missing reference is false except under exists" rule.
func resolveReference(ref string, ctx *Context) (interface{}, bool) {
	switch {
	case strings.HasPrefix(ref, "global."):
		name := strings.TrimPrefix(ref, "global.")
		v, ok := ctx.Globals[name]
		return v, ok

	case strings.HasPrefix(ref, "steps."):
		rest := strings.TrimPrefix(ref, "steps.")
		parts := strings.SplitN(rest, ".", 2)
		if len(parts) < 2 {
			return nil, false
		}
		stepID, tail := parts[0], parts[1]

		if tail == "status" {
			status, ok := ctx.StepStatuses[stepID]
			return status, ok
		}
		out, ok := ctx.StepOutputs[stepID]
		if !ok {
			return nil, false
		}
		if tail == "output" {
			return out, true
		}
		if strings.HasPrefix(tail, "output.") {
			return fieldLookup(out, strings.TrimPrefix(tail, "output."))
		}
		return nil, false

	default:
		return nil, false
	}
}

func fieldLookup(value interface{}, path string) (interface{}, bool) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(raw, path)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// isReferenceToken reports whether s looks like a dotted reference this
// package knows how to resolve, as opposed to a bare identifier like "true".
func isReferenceToken(s string) bool {
	return strings.HasPrefix(s, "global.") || strings.HasPrefix(s, "steps.")
}

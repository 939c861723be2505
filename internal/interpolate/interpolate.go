// Package interpolate implements the Parameter Interpolator:
// resolving ${global.*} and ${steps.<id>.output(.field)*} references inside
// an arbitrary JSON-typed step parameter template.
package interpolate

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// tokenPattern matches a single reference token. No whitespace is permitted
// inside the braces.
var tokenPattern = regexp.MustCompile(`\$\{[^}\s]+\}`)

// Context is the execution context references resolve against: the
// execution's global variables and the outputs captured from completed
// steps so far.
type Context struct {
	Globals     map[string]interface{}
	StepOutputs map[string]interface{}
}

// Resolve walks template recursively, replacing reference tokens found in
// string leaves. Non-string leaves pass through unchanged. Unknown
// references are left literal.
func Resolve(template interface{}, ctx *Context) (interface{}, error) {
	if ctx == nil {
		ctx = &Context{}
	}

	switch v := template.(type) {
	case string:
		value, _, _ := resolveString(v, ctx)
		return value, nil
	case nil, bool, float64, int:
		return template, nil
	}

	raw, err := json.Marshal(template)
	if err != nil {
		return nil, err
	}

	doc := raw
	root := gjson.ParseBytes(raw)
	doc, err = walk(root, "", doc, ctx)
	if err != nil {
		return nil, err
	}

	var final interface{}
	if err := json.Unmarshal(doc, &final); err != nil {
		return nil, err
	}
	return final, nil
}

func walk(node gjson.Result, path string, doc []byte, ctx *Context) ([]byte, error) {
	switch {
	case node.IsObject():
		var err error
		node.ForEach(func(key, value gjson.Result) bool {
			childPath := joinPath(path, key.String())
			doc, err = walk(value, childPath, doc, ctx)
			return err == nil
		})
		return doc, err

	case node.IsArray():
		var err error
		idx := 0
		node.ForEach(func(_, value gjson.Result) bool {
			childPath := joinPath(path, itoa(idx))
			doc, err = walk(value, childPath, doc, ctx)
			idx++
			return err == nil
		})
		return doc, err

	case node.Type == gjson.String:
		original := node.String()
		resolved, exactToken, typed := resolveString(original, ctx)
		if !exactToken {
			if s, ok := resolved.(string); ok && s == original {
				return doc, nil
			}
			if s, ok := resolved.(string); ok {
				return sjson.SetBytes(doc, path, s)
			}
			return doc, nil
		}
		if typed {
			rawVal, err := json.Marshal(resolved)
			if err != nil {
				return doc, err
			}
			return sjson.SetRawBytes(doc, path, rawVal)
		}
		if s, ok := resolved.(string); ok {
			return sjson.SetBytes(doc, path, s)
		}
		return doc, nil

	default:
		return doc, nil
	}
}

// resolveString resolves every reference token found in s.
//
// If s is exactly one reference token (no surrounding text), exactToken is
// true and the returned value is the resolved value's native type (typed
// indicates it is not already a string) — this is the "leaf becomes the
// typed value" rule. Otherwise every token match is replaced
// in place: string values splice verbatim, non-string values splice their
// compact JSON form.
func resolveString(s string, ctx *Context) (value interface{}, exactToken bool, typed bool) {
	matches := tokenPattern.FindAllString(s, -1)
	if len(matches) == 0 {
		return s, false, false
	}

	if len(matches) == 1 && matches[0] == s {
		ref := strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")
		resolved, ok := lookupRef(ref, ctx)
		if !ok {
			return s, false, false
		}
		_, isStr := resolved.(string)
		return resolved, true, !isStr
	}

	replaced := tokenPattern.ReplaceAllStringFunc(s, func(match string) string {
		ref := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		resolved, ok := lookupRef(ref, ctx)
		if !ok {
			return match
		}
		if str, isStr := resolved.(string); isStr {
			return str
		}
		b, err := json.Marshal(resolved)
		if err != nil {
			return match
		}
		return string(b)
	})
	return replaced, false, false
}

// lookupRef resolves a single reference's content (without ${ }) against
// ctx. ok is false for any unknown global/step/field.
func lookupRef(ref string, ctx *Context) (interface{}, bool) {
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

// fieldLookup resolves a dotted field path against an arbitrary decoded
// JSON value using gjson, which spares us a hand-rolled nested map/array
// walker for the step-output field-access case.
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

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

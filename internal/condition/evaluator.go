// Package condition implements the Condition Evaluator:
// the three condition shapes (expression, structured comparison, composite
// and/or/not) over a fixed, small boolean expression grammar.
package condition

import (
	"go.uber.org/zap"

	"github.com/workforge/flowengine/internal/workflow"
)

// Evaluator evaluates workflow.Condition values against an execution
// Context. It is constructed with an explicit logger (no package-level
// globals, per the engine's dependency-injection convention).
type Evaluator struct {
	logger *zap.Logger
}

// NewEvaluator builds a condition Evaluator.
func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate reports whether cond holds against ctx. A nil or zero-value cond
// is treated as unconditionally true (no gating). An unparseable expression,
// or any structural error in a composite condition, evaluates to false and
// is logged — it is never surfaced as a step failure.
func (e *Evaluator) Evaluate(cond *workflow.Condition, ctx *Context) bool {
	if cond.IsZero() {
		return true
	}

	result, err := e.evaluate(cond, ctx)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("condition evaluation failed, treating as false", zap.Error(err))
		}
		return false
	}
	return result
}

func (e *Evaluator) evaluate(cond *workflow.Condition, ctx *Context) (bool, error) {
	switch {
	case cond.Expression != "":
		return evaluateExpression(cond.Expression, ctx)

	case cond.Field != "":
		return evaluateStructured(cond.Field, cond.Operator, cond.Value, ctx)

	case len(cond.And) > 0:
		for i := range cond.And {
			ok, err := e.evaluate(&cond.And[i], ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case len(cond.Or) > 0:
		for i := range cond.Or {
			ok, err := e.evaluate(&cond.Or[i], ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case cond.Not != nil:
		ok, err := e.evaluate(cond.Not, ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}

	return true, nil
}

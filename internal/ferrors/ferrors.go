// Package ferrors defines the error taxonomy shared across the engine.
//
// Components return these wrapped with fmt.Errorf("...: %w", err) the same
// way the rest of the codebase wraps errors; callers discriminate with
// errors.Is / errors.As against the Kind sentinels below rather than string
// matching.
package ferrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by its origin and recovery policy.
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindCyclicDependency   Kind = "cyclic_dependency"
	KindUnknownReference   Kind = "unknown_reference"
	KindConditionParse     Kind = "condition_parse_error"
	KindAgentInvocation    Kind = "agent_invocation_error"
	KindStepTimeout        Kind = "step_timeout"
	KindDependencyUnmet    Kind = "dependency_unmet"
	KindExecutionCancelled Kind = "execution_cancelled"
	KindExecutionTimeout   Kind = "execution_timeout"
	KindQueueFull          Kind = "queue_full"
	KindPersistence        Kind = "persistence_error"
)

// Error carries a Kind alongside the usual message/wrapped-cause pair.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, ferrors.New(kind, "")) to match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a Kind-tagged error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a Kind-tagged error wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinel returns a zero-message marker usable as the target of errors.Is.
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Of reports the Kind of err if it (or something it wraps) is a *Error.
func Of(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// IsKind reports whether err is, or wraps, a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}

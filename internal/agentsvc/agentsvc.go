// Package agentsvc defines the Agent Service contract consumed by the Step
// Executor and an HTTP client implementation of it.
package agentsvc

import (
	"context"
)

// ErrorKind classifies a failed invocation.
type ErrorKind string

const (
	ErrTimeout         ErrorKind = "Timeout"
	ErrAgentMissing    ErrorKind = "AgentMissing"
	ErrFunctionMissing ErrorKind = "FunctionMissing"
	ErrExecution       ErrorKind = "Execution"
)

// InvocationError is the structured failure shape of the Agent Service
// contract's err(message, kind) shape.
type InvocationError struct {
	Kind    ErrorKind
	Message string
}

func (e *InvocationError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Service is the opaque collaborator the Step Executor invokes. It must be
// safe to call concurrently from many workers. Implementations must honor
// ctx cancellation by releasing resources and returning an *InvocationError
// with Kind ErrExecution (or ErrTimeout, if the deadline itself expired).
type Service interface {
	Execute(ctx context.Context, agentID, functionName string, params interface{}) (interface{}, error)
}

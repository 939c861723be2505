package agentsvc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// request/response wire shapes for the Agent Service HTTP contract: a
// plain JSON request/response call, no protobuf envelope.
type executeRequest struct {
	AgentID      string      `json:"agent_id"`
	FunctionName string      `json:"function_name"`
	Parameters   interface{} `json:"parameters"`
}

type executeResponse struct {
	Output interface{} `json:"output"`
	Error  *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// HTTPClient invokes the Agent Service over HTTP using resty, with an
// otelhttp-wrapped transport so agent invocations participate in the
// caller's trace.
type HTTPClient struct {
	client *resty.Client
	logger *zap.Logger
}

// NewHTTPClient builds an HTTPClient targeting baseURL. defaultTimeout
// bounds every request unless a shorter per-call deadline is already set on
// ctx.
func NewHTTPClient(baseURL string, defaultTimeout time.Duration, logger *zap.Logger) *HTTPClient {
	transport := otelhttp.NewTransport(http.DefaultTransport)
	client := resty.NewWithClient(&http.Client{Transport: transport}).
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout)

	return &HTTPClient{client: client, logger: logger}
}

// Execute implements Service.
func (c *HTTPClient) Execute(ctx context.Context, agentID, functionName string, params interface{}) (interface{}, error) {
	var result executeResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(executeRequest{AgentID: agentID, FunctionName: functionName, Parameters: params}).
		SetResult(&result).
		Post("/execute")

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &InvocationError{Kind: ErrTimeout, Message: err.Error()}
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, &InvocationError{Kind: ErrExecution, Message: "cancelled"}
		}
		return nil, &InvocationError{Kind: ErrExecution, Message: err.Error()}
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, &InvocationError{Kind: ErrAgentMissing, Message: fmt.Sprintf("agent %q not found", agentID)}
	}
	if resp.StatusCode() == http.StatusUnprocessableEntity {
		return nil, &InvocationError{Kind: ErrFunctionMissing, Message: fmt.Sprintf("function %q not found on agent %q", functionName, agentID)}
	}
	if resp.IsError() {
		return nil, &InvocationError{Kind: ErrExecution, Message: fmt.Sprintf("agent service returned status %d", resp.StatusCode())}
	}

	if result.Error != nil {
		return nil, &InvocationError{Kind: ErrorKind(result.Error.Kind), Message: result.Error.Message}
	}

	return result.Output, nil
}

// Package stepexec implements the Step Executor: running
// one step of one execution against the Agent Service, with dependency and
// condition gating, parameter interpolation, per-agent rate limiting and
// circuit breaking, and retry with exponential backoff.
package stepexec

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/workforge/flowengine/internal/agentsvc"
	"github.com/workforge/flowengine/internal/condition"
	"github.com/workforge/flowengine/internal/execution"
	"github.com/workforge/flowengine/internal/ferrors"
	"github.com/workforge/flowengine/internal/interpolate"
	"github.com/workforge/flowengine/internal/obs"
	"github.com/workforge/flowengine/internal/workflow"
)

const (
	defaultRetryDelaySeconds = 1
	defaultBackoffMultiplier = 1.5
	defaultMaxDelay          = 30 * time.Second
	defaultRateLimitPerSec   = 10
	defaultRateLimitBurst    = 20
)

// Outcome is the result of running one step to its final (non-retrying)
// disposition: either it completed, it was skipped by its condition, or it
// exhausted its retries.
type Outcome struct {
	Status     execution.StepStatus
	Output     interface{}
	Err        error
	RetryCount int
}

// Executor runs individual steps against an Agent Service.
type Executor struct {
	agents agentsvc.Service
	cond   *condition.Evaluator
	logger *zap.Logger
	metrics *obs.Metrics

	sem *semaphore.Weighted

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	limiters map[string]*rate.Limiter

	rateLimitPerSec float64
	rateLimitBurst  int
}

// Option configures an Executor.
type Option func(*Executor)

func WithRateLimit(perSecond float64, burst int) Option {
	return func(e *Executor) {
		e.rateLimitPerSec = perSecond
		e.rateLimitBurst = burst
	}
}

func WithMetrics(m *obs.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor builds an Executor. maxConcurrentSteps bounds in-flight agent
// invocations across all executions sharing this Executor.
func NewExecutor(agents agentsvc.Service, cond *condition.Evaluator, logger *zap.Logger, maxConcurrentSteps int64, opts ...Option) *Executor {
	if maxConcurrentSteps <= 0 {
		maxConcurrentSteps = 1
	}
	e := &Executor{
		agents:          agents,
		cond:            cond,
		logger:          logger.With(zap.String("component", "stepexec")),
		sem:             semaphore.NewWeighted(maxConcurrentSteps),
		breakers:        make(map[string]*CircuitBreaker),
		limiters:        make(map[string]*rate.Limiter),
		rateLimitPerSec: defaultRateLimitPerSec,
		rateLimitBurst:  defaultRateLimitBurst,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) breakerFor(agentID string) *CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	cb, ok := e.breakers[agentID]
	if !ok {
		cb = NewCircuitBreaker(CircuitBreakerConfig{Name: agentID}, e.logger)
		e.breakers[agentID] = cb
	}
	return cb
}

func (e *Executor) limiterFor(agentID string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limiters[agentID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(e.rateLimitPerSec), e.rateLimitBurst)
		e.limiters[agentID] = l
	}
	return l
}

// Run executes step to a terminal Outcome: COMPLETED, FAILED, or SKIPPED.
// It evaluates the step's condition, interpolates its parameters against
// ictx, and invokes the agent service with per-attempt timeout, retrying on
// failure per the step's (or workflow default) retry policy. Run records each
// RETRYING transition on exec itself; callers record the other transitions
// (RUNNING and the final outcome) with exec.UpdateStep.
func (e *Executor) Run(ctx context.Context, step *workflow.Step, wf *workflow.Workflow, exec *execution.Execution, ictx *interpolate.Context, condCtx *condition.Context) Outcome {
	if !e.dependenciesSatisfied(step, exec) {
		return Outcome{Status: execution.StepSkipped, Err: ferrors.New(ferrors.KindDependencyUnmet, "required dependency not satisfied")}
	}

	if !e.cond.Evaluate(step.Condition, condCtx) {
		return Outcome{Status: execution.StepSkipped}
	}

	params, err := interpolate.Resolve(step.Parameters, ictx)
	if err != nil {
		return Outcome{Status: execution.StepFailed, Err: ferrors.Wrap(ferrors.KindValidation, "parameter interpolation failed", err)}
	}

	maxRetries := step.MaxRetries
	if maxRetries <= 0 {
		maxRetries = wf.ErrorHandling.MaxRetries
	}
	retryDelay := step.RetryDelaySeconds
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelaySeconds
	}

	timeout := time.Duration(step.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var lastErr error
	var retryCount int
	for attempt := 0; attempt <= maxRetries; attempt++ {
		retryCount = attempt
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return Outcome{Status: execution.StepFailed, Err: ferrors.Wrap(ferrors.KindExecutionCancelled, "cancelled waiting for a worker slot", err), RetryCount: attempt}
		}

		output, err := e.attempt(ctx, step, params, timeout)
		e.sem.Release(1)

		if err == nil {
			if e.metrics != nil {
				e.metrics.StepExecutionsTotal.WithLabelValues(step.AgentID, "success").Inc()
			}
			return Outcome{Status: execution.StepCompleted, Output: output, RetryCount: attempt}
		}

		lastErr = err
		if e.metrics != nil {
			e.metrics.StepExecutionsTotal.WithLabelValues(step.AgentID, "failure").Inc()
		}

		if attempt == maxRetries || !isRetryable(err) {
			break
		}
		if e.metrics != nil {
			e.metrics.StepRetriesTotal.WithLabelValues(step.AgentID).Inc()
		}

		delay := backoffDelay(retryDelay, attempt)
		exec.UpdateStep(step.StepID, execution.StepRetrying, nil, err.Error(), attempt+1)

		select {
		case <-ctx.Done():
			return Outcome{Status: execution.StepFailed, Err: ferrors.Wrap(ferrors.KindExecutionCancelled, "cancelled during retry backoff", ctx.Err()), RetryCount: attempt + 1}
		case <-time.After(delay):
		}
	}

	if step.ContinueOnError || wf.ErrorHandling.ContinueOnError {
		e.logger.Warn("step failed, continuing per continue_on_error", zap.String("step_id", step.StepID), zap.Error(lastErr))
	}

	return Outcome{Status: execution.StepFailed, Err: lastErr, RetryCount: retryCount}
}

func (e *Executor) attempt(ctx context.Context, step *workflow.Step, params interface{}, timeout time.Duration) (interface{}, error) {
	agentID := step.AgentID

	limiter := e.limiterFor(agentID)
	if err := limiter.Wait(ctx); err != nil {
		return nil, ferrors.Wrap(ferrors.KindAgentInvocation, "rate limiter wait failed", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cb := e.breakerFor(agentID)
	result, err := cb.Execute(attemptCtx, func(c context.Context) (interface{}, error) {
		return e.agents.Execute(c, agentID, step.FunctionName, params)
	})
	if err != nil {
		if _, open := err.(*ErrOpen); open {
			return nil, ferrors.Wrap(ferrors.KindAgentInvocation, "circuit breaker open for agent "+agentID, err)
		}
		if attemptCtx.Err() == context.DeadlineExceeded {
			return nil, ferrors.Wrap(ferrors.KindStepTimeout, "step timed out", err)
		}
		return nil, ferrors.Wrap(ferrors.KindAgentInvocation, "agent invocation failed", err)
	}
	return result, nil
}

func (e *Executor) dependenciesSatisfied(step *workflow.Step, exec *execution.Execution) bool {
	for _, dep := range step.DependsOn {
		sr := exec.StepRuntime(dep.StepID)
		if sr == nil {
			if dep.Required {
				return false
			}
			continue
		}
		switch dep.Condition {
		case workflow.DependsOnSuccess:
			if sr.Status != execution.StepCompleted {
				if dep.Required {
					return false
				}
			}
		case workflow.DependsOnCompletion:
			if !sr.Status.Terminal() {
				return false
			}
		}
	}
	return true
}

// backoffDelay computes the sleep before attempt+1 given the initial delay
// (seconds) and a fixed multiplier, capped at defaultMaxDelay.
func backoffDelay(initialSeconds, attempt int) time.Duration {
	d := float64(initialSeconds) * math.Pow(defaultBackoffMultiplier, float64(attempt))
	delay := time.Duration(d * float64(time.Second))
	if delay > defaultMaxDelay {
		delay = defaultMaxDelay
	}
	return delay
}

// isRetryable reports whether err's kind warrants another attempt. Cancelled
// and validation-shaped failures never are.
func isRetryable(err error) bool {
	kind, ok := ferrors.Of(err)
	if !ok {
		return true
	}
	switch kind {
	case ferrors.KindExecutionCancelled, ferrors.KindValidation, ferrors.KindDependencyUnmet:
		return false
	default:
		return true
	}
}

package execution

import (
	"context"
	"time"
)

// Controller wraps one Execution with the cancellation/deadline plumbing
// the Engine needs to implement pause, resume, cancel, and wall-clock
// timeout enforcement.
type Controller struct {
	Exec *Execution

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController arms exec with a cancellable context. If maxExecutionTime
// is positive, the context also carries a deadline maxExecutionTime after
// NewController is called. The Engine calls it when the execution is
// enqueued, so time spent waiting in the pending queue counts against the
// limit. A background watcher flips exec to TIMEOUT if that deadline fires
// before the execution otherwise reaches a terminal status.
func NewController(parent context.Context, exec *Execution, maxExecutionTime time.Duration) *Controller {
	var ctx context.Context
	var cancel context.CancelFunc
	if maxExecutionTime > 0 {
		ctx, cancel = context.WithTimeout(parent, maxExecutionTime)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	c := &Controller{Exec: exec, ctx: ctx, cancel: cancel}
	exec.cancel = cancel
	if maxExecutionTime > 0 {
		go c.watchDeadline()
	}
	return c
}

// Context is the cancellable, deadline-bound context the scheduler must
// pass through to every step invocation.
func (c *Controller) Context() context.Context { return c.ctx }

func (c *Controller) watchDeadline() {
	<-c.ctx.Done()
	if c.ctx.Err() != context.DeadlineExceeded {
		return
	}
	if c.Exec.Status() == ExecRunning || c.Exec.Status() == ExecPaused {
		c.Exec.SetStatus(ExecTimeout)
		c.Exec.SetErrorMessage("execution exceeded max_execution_time_seconds")
	}
}

// Start transitions a PENDING execution to RUNNING, stamping StartTime.
func (c *Controller) Start() {
	c.Exec.SetStatus(ExecRunning)
	c.Exec.mu.Lock()
	if c.Exec.StartTime.IsZero() {
		c.Exec.StartTime = time.Now()
	}
	c.Exec.mu.Unlock()
}

// Pause sets the execution to PAUSED. The scheduler loop observes this at
// the next step boundary and yields without starting a new step; any
// in-flight step (including its retries) is allowed to finish.
func (c *Controller) Pause() bool {
	c.Exec.mu.Lock()
	defer c.Exec.mu.Unlock()
	if c.Exec.status != ExecRunning {
		return false
	}
	c.Exec.status = ExecPaused
	return true
}

// Resume transitions a PAUSED execution back to RUNNING; the Engine is
// responsible for re-enqueuing it so the scheduler resumes from the first
// PENDING step.
func (c *Controller) Resume() bool {
	c.Exec.mu.Lock()
	defer c.Exec.mu.Unlock()
	if c.Exec.status != ExecPaused {
		return false
	}
	c.Exec.status = ExecRunning
	return true
}

// Cancel sets CANCELLED and signals the in-flight step to abort via the
// cancellation token (best effort).
func (c *Controller) Cancel() {
	c.Exec.mu.Lock()
	already := c.Exec.status.Terminal()
	if !already {
		c.Exec.status = ExecCancelled
	}
	c.Exec.mu.Unlock()
	c.cancel()
}

// Stamp records EndTime once the execution reaches a terminal status.
func (c *Controller) Stamp() {
	c.Exec.mu.Lock()
	defer c.Exec.mu.Unlock()
	if c.Exec.EndTime.IsZero() {
		c.Exec.EndTime = time.Now()
	}
}

// Package engine implements the Engine/Dispatcher: the
// pending execution queue, the bounded worker pool, execution lifecycle
// (execute/pause/resume/cancel), history retention, and metrics
// aggregation.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/workforge/flowengine/internal/discipline"
	"github.com/workforge/flowengine/internal/eventbus"
	"github.com/workforge/flowengine/internal/execution"
	"github.com/workforge/flowengine/internal/ferrors"
	"github.com/workforge/flowengine/internal/obs"
	"github.com/workforge/flowengine/internal/workflow"
)

const defaultHistoryCap = 10000

// Persister durably snapshots and removes execution state. Implemented by
// internal/persistence; declared here to avoid an import cycle.
type Persister interface {
	Save(ctx context.Context, exec *execution.Execution) error
	Delete(ctx context.Context, executionID string) error
}

// activeEntry is one execution currently owned by the engine, either
// waiting in the queue, in flight on a worker, or paused.
type activeEntry struct {
	wf         *workflow.Workflow
	exec       *execution.Execution
	controller *execution.Controller
}

// Config bounds the engine's concurrency and retention behavior.
type Config struct {
	MaxWorkerThreads  int
	MaxConcurrentRuns int
	QueueHighWater    int
	HistoryCap        int
	AutoCleanup       time.Duration
}

// Engine is the top-level dispatcher: one per process.
type Engine struct {
	cfg       Config
	workflows *workflow.Registry
	scheduler *discipline.Scheduler
	persist   Persister
	logger    *zap.Logger
	metrics   *obs.Metrics
	events    *eventbus.Bus

	pending chan string

	mu      sync.RWMutex
	active  map[string]*activeEntry
	history []*execution.Execution

	workerSem *semaphore.Weighted

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// New builds an Engine. workflows must already exist; New does not wire an
// ActiveReferenceChecker into it — callers attach HasActiveExecution to the
// registry themselves so Update/Delete refuse while this engine has an
// active execution referencing a workflow.
func New(cfg Config, workflows *workflow.Registry, scheduler *discipline.Scheduler, persist Persister, logger *zap.Logger, metrics *obs.Metrics) *Engine {
	if cfg.MaxWorkerThreads <= 0 {
		cfg.MaxWorkerThreads = 4
	}
	if cfg.MaxConcurrentRuns > 0 && cfg.MaxWorkerThreads > cfg.MaxConcurrentRuns {
		cfg.MaxWorkerThreads = cfg.MaxConcurrentRuns
	}
	if cfg.MaxWorkerThreads < 1 {
		cfg.MaxWorkerThreads = 1
	}
	if cfg.QueueHighWater <= 0 {
		cfg.QueueHighWater = 1000
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = defaultHistoryCap
	}

	e := &Engine{
		cfg:       cfg,
		workflows: workflows,
		scheduler: scheduler,
		persist:   persist,
		logger:    logger.With(zap.String("component", "engine")),
		metrics:   metrics,
		pending:   make(chan string, cfg.QueueHighWater),
		active:    make(map[string]*activeEntry),
		stopCh:    make(chan struct{}),
		workerSem: semaphore.NewWeighted(int64(cfg.MaxWorkerThreads)),
	}
	return e
}

// WithEventBus attaches an optional lifecycle event publisher. A nil bus
// (the default) makes event publication a no-op.
func (e *Engine) WithEventBus(bus *eventbus.Bus) *Engine {
	e.events = bus
	return e
}

// HasActiveExecution reports whether any active execution currently
// references workflowID — wired into the Registry to refuse update/delete.
func (e *Engine) HasActiveExecution(workflowID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, a := range e.active {
		if a.wf.WorkflowID == workflowID {
			return true
		}
	}
	return false
}

// Start spawns the dispatcher loop that hands queued execution ids off to
// worker slots.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.dispatchLoop(ctx)

	if e.cfg.AutoCleanup > 0 {
		e.wg.Add(1)
		go e.cleanupLoop(ctx)
	}
}

// Stop drains active executions to persistence and joins workers, bounded
// by grace.
func (e *Engine) Stop(grace time.Duration) {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(e.stopCh)
	})

	e.mu.RLock()
	for _, a := range e.active {
		if e.persist != nil {
			if err := e.persist.Save(context.Background(), a.exec); err != nil {
				e.logger.Warn("failed to snapshot active execution on shutdown", zap.String("execution_id", a.exec.ExecutionID), zap.Error(err))
			}
		}
	}
	e.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("engine stopped gracefully")
	case <-time.After(grace):
		e.logger.Warn("engine stop timed out, abandoning in-flight workers")
	}
}

// ExecuteWorkflow validates workflowID, seeds globals = workflow's
// global_context merged with input (input wins on conflict), creates and
// enqueues a PENDING Execution, and returns its id.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string, input map[string]interface{}) (string, error) {
	wf := e.workflows.Get(workflowID)
	if wf == nil {
		return "", ferrors.New(ferrors.KindValidation, fmt.Sprintf("workflow %q not found", workflowID))
	}

	globals := make(map[string]interface{}, len(wf.GlobalContext)+len(input))
	for k, v := range wf.GlobalContext {
		globals[k] = v
	}
	for k, v := range input {
		globals[k] = v
	}

	stepIDs := make([]string, len(wf.Steps))
	for i, st := range wf.Steps {
		stepIDs[i] = st.StepID
	}

	executionID := uuid.NewString()
	exec := execution.New(executionID, wf.WorkflowID, string(wf.Discipline), globals, stepIDs)

	timeout := time.Duration(wf.Limits.MaxExecutionTimeSeconds) * time.Second
	controller := execution.NewController(context.Background(), exec, timeout)

	e.mu.Lock()
	e.active[executionID] = &activeEntry{wf: wf.Clone(), exec: exec, controller: controller}
	e.mu.Unlock()

	select {
	case e.pending <- executionID:
	default:
		e.mu.Lock()
		delete(e.active, executionID)
		e.mu.Unlock()
		return "", ferrors.New(ferrors.KindQueueFull, "pending execution queue is full")
	}

	if e.metrics != nil {
		e.metrics.ActiveWorkflowExecutions.WithLabelValues(wf.WorkflowID).Inc()
		e.metrics.PendingQueueDepth.WithLabelValues().Set(float64(len(e.pending)))
	}
	return executionID, nil
}

func (e *Engine) dispatchLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case id := <-e.pending:
			if err := e.workerSem.Acquire(ctx, 1); err != nil {
				return
			}
			if e.metrics != nil {
				e.metrics.WorkerPoolInUse.WithLabelValues().Inc()
				e.metrics.PendingQueueDepth.WithLabelValues().Set(float64(len(e.pending)))
			}
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				defer e.workerSem.Release(1)
				if e.metrics != nil {
					defer e.metrics.WorkerPoolInUse.WithLabelValues().Dec()
				}
				e.runWorker(ctx, id)
			}()
		}
	}
}

func (e *Engine) runWorker(ctx context.Context, executionID string) {
	e.mu.RLock()
	entry, ok := e.active[executionID]
	e.mu.RUnlock()
	if !ok {
		return
	}

	entry.controller.Start()
	e.events.Publish(ctx, eventbus.Event{
		Type:        eventbus.EventExecutionStarted,
		ExecutionID: executionID,
		WorkflowID:  entry.wf.WorkflowID,
		Status:      string(entry.exec.Status()),
	})
	if entry.wf.Limits.PersistState && e.persist != nil {
		if err := e.persist.Save(ctx, entry.exec); err != nil {
			e.logger.Warn("persistence save failed", zap.String("execution_id", executionID), zap.Error(err))
		}
	}

	start := time.Now()
	requeue, err := e.scheduler.Run(entry.controller.Context(), entry.wf, entry.exec)
	if err != nil {
		e.logger.Error("scheduler returned an error", zap.String("execution_id", executionID), zap.Error(err))
	}

	if requeue {
		// Paused: the execution stays in active with no worker holding it;
		// Resume re-enqueues it.
		return
	}

	entry.controller.Stamp()
	e.finalize(ctx, executionID, entry, time.Since(start))
}

func (e *Engine) finalize(ctx context.Context, executionID string, entry *activeEntry, duration time.Duration) {
	e.mu.Lock()
	delete(e.active, executionID)
	e.history = append(e.history, entry.exec)
	if len(e.history) > e.cfg.HistoryCap {
		e.history = e.history[len(e.history)-e.cfg.HistoryCap:]
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.ActiveWorkflowExecutions.WithLabelValues(entry.wf.WorkflowID).Dec()
		e.metrics.WorkflowExecutionsTotal.WithLabelValues(entry.wf.WorkflowID, string(entry.exec.Status())).Inc()
		e.metrics.ExecutionDuration.WithLabelValues(entry.wf.WorkflowID, string(entry.wf.Discipline)).Observe(duration.Seconds())
	}

	if entry.wf.Limits.PersistState && e.persist != nil {
		if err := e.persist.Save(ctx, entry.exec); err != nil {
			e.logger.Warn("final persistence save failed", zap.String("execution_id", executionID), zap.Error(err))
		}
	}

	e.events.Publish(ctx, eventbus.Event{
		Type:        eventbus.EventExecutionTerminal,
		ExecutionID: executionID,
		WorkflowID:  entry.wf.WorkflowID,
		Status:      string(entry.exec.Status()),
	})
}

// Pause requests a PAUSED transition for a running execution.
func (e *Engine) Pause(executionID string) error {
	entry, ok := e.lookup(executionID)
	if !ok {
		return ferrors.New(ferrors.KindValidation, "execution not found")
	}
	if !entry.controller.Pause() {
		return ferrors.New(ferrors.KindValidation, "execution is not running")
	}
	return nil
}

// Resume re-enqueues a PAUSED execution so the scheduler resumes it.
func (e *Engine) Resume(executionID string) error {
	entry, ok := e.lookup(executionID)
	if !ok {
		return ferrors.New(ferrors.KindValidation, "execution not found")
	}
	if !entry.controller.Resume() {
		return ferrors.New(ferrors.KindValidation, "execution is not paused")
	}
	select {
	case e.pending <- executionID:
	default:
		return ferrors.New(ferrors.KindQueueFull, "pending execution queue is full")
	}
	return nil
}

// Cancel sets CANCELLED and signals the in-flight step to abort.
func (e *Engine) Cancel(executionID string) error {
	entry, ok := e.lookup(executionID)
	if !ok {
		return ferrors.New(ferrors.KindValidation, "execution not found")
	}
	entry.controller.Cancel()
	return nil
}

func (e *Engine) lookup(executionID string) (*activeEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.active[executionID]
	return entry, ok
}

// GetExecution returns the live or historical Execution for id, if any.
func (e *Engine) GetExecution(executionID string) *execution.Execution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if a, ok := e.active[executionID]; ok {
		return a.exec
	}
	for _, h := range e.history {
		if h.ExecutionID == executionID {
			return h
		}
	}
	return nil
}

func (e *Engine) cleanupLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.AutoCleanup)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.pruneHistory()
		}
	}
}

func (e *Engine) pruneHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.history) > e.cfg.HistoryCap {
		e.history = e.history[len(e.history)-e.cfg.HistoryCap:]
	}
}

// Snapshot is a point-in-time rollup of engine metrics.
type Snapshot struct {
	ActiveCount       int
	HistoryCount      int
	PendingQueueDepth int
	StatusCounts      map[string]int
	LastUpdateTime    time.Time
}

// MetricsSnapshot aggregates the current active/history state, grounded on
// the engine's own MetricsSnapshot rollup.
func (e *Engine) MetricsSnapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	counts := make(map[string]int)
	for _, a := range e.active {
		counts[string(a.exec.Status())]++
	}
	for _, h := range e.history {
		counts[string(h.Status())]++
	}

	return Snapshot{
		ActiveCount:       len(e.active),
		HistoryCount:      len(e.history),
		PendingQueueDepth: len(e.pending),
		StatusCounts:      counts,
		LastUpdateTime:    time.Now(),
	}
}

// sortedHistoryIDs returns history execution ids sorted lexicographically
// by id.
func (e *Engine) sortedHistoryIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, len(e.history))
	for i, h := range e.history {
		ids[i] = h.ExecutionID
	}
	sort.Strings(ids)
	return ids
}

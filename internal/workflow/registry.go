package workflow

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/workforge/flowengine/internal/dag"
	"github.com/workforge/flowengine/internal/ferrors"
)

var validate = validator.New()

// ActiveReferenceChecker reports whether any active execution still
// references workflowID. Update/Delete consult it and refuse when true.
// The engine supplies the real implementation; tests can stub
// it with a function literal.
type ActiveReferenceChecker func(workflowID string) bool

// Registry is the in-memory store of workflow definitions.
// All operations are serialized under mu.
type Registry struct {
	mu   sync.Mutex
	byID map[string]*Workflow

	hasActiveExecutions ActiveReferenceChecker
}

// NewRegistry builds an empty Registry. checker may be nil (tests and the
// CLI's validate and list commands pass nil), in which case no workflow is
// ever reported as referenced; the app wiring attaches the engine's checker
// later through SetActiveReferenceChecker.
func NewRegistry(checker ActiveReferenceChecker) *Registry {
	if checker == nil {
		checker = func(string) bool { return false }
	}
	return &Registry{
		byID:                make(map[string]*Workflow),
		hasActiveExecutions: checker,
	}
}

// Create validates w, assigns an id if absent, stores it, and returns the
// assigned workflow_id.
func (r *Registry) Create(w *Workflow) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := w.Clone()
	if cp.WorkflowID == "" {
		cp.WorkflowID = uuid.NewString()
	}
	if _, exists := r.byID[cp.WorkflowID]; exists {
		return "", ferrors.New(ferrors.KindValidation, fmt.Sprintf("workflow_id %q already exists", cp.WorkflowID))
	}

	if err := validateWorkflow(cp); err != nil {
		return "", err
	}

	now := time.Now()
	cp.CreatedTime = now
	cp.UpdatedTime = now
	cp.Version = 1

	r.byID[cp.WorkflowID] = cp
	return cp.WorkflowID, nil
}

// Update replaces the stored definition for id, refusing if any active
// execution references it. created_time is preserved; version increments.
func (r *Registry) Update(id string, w *Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[id]
	if !ok {
		return ferrors.New(ferrors.KindValidation, fmt.Sprintf("workflow %q not found", id))
	}
	if r.hasActiveExecutions(id) {
		return ferrors.New(ferrors.KindValidation, fmt.Sprintf("workflow %q has active executions, cannot update", id))
	}

	cp := w.Clone()
	cp.WorkflowID = id
	if err := validateWorkflow(cp); err != nil {
		return err
	}

	cp.CreatedTime = existing.CreatedTime
	cp.UpdatedTime = time.Now()
	cp.Version = existing.Version + 1

	r.byID[id] = cp
	return nil
}

// Delete removes a workflow, refusing if any active execution references it.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return ferrors.New(ferrors.KindValidation, fmt.Sprintf("workflow %q not found", id))
	}
	if r.hasActiveExecutions(id) {
		return ferrors.New(ferrors.KindValidation, fmt.Sprintf("workflow %q has active executions, cannot delete", id))
	}
	delete(r.byID, id)
	return nil
}

// SetActiveReferenceChecker rewires the checker Update/Delete consult. Used
// to break the construction-order cycle between Registry and the engine that
// owns active executions: the registry is built first with a permissive
// no-op checker, then the real one is attached once the engine exists.
func (r *Registry) SetActiveReferenceChecker(checker ActiveReferenceChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if checker == nil {
		checker = func(string) bool { return false }
	}
	r.hasActiveExecutions = checker
}

// Get returns a clone of the stored workflow, or nil if absent.
func (r *Registry) Get(id string) *Workflow {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[id]
	if !ok {
		return nil
	}
	return w.Clone()
}

// List returns all workflow ids, sorted for deterministic output.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// validateWorkflow enforces the workflow's structural invariants: struct tags via
// validator/v10, then domain invariants that validator tags can't express
// (unique step ids, dependency references, acyclicity, limit bounds).
func validateWorkflow(w *Workflow) error {
	if err := validate.Struct(w); err != nil {
		return ferrors.Wrap(ferrors.KindValidation, "struct validation failed", err)
	}
	if !w.Discipline.Valid() {
		return ferrors.New(ferrors.KindValidation, fmt.Sprintf("unknown discipline %q", w.Discipline))
	}

	seen := make(map[string]bool, len(w.Steps))
	for _, s := range w.Steps {
		if s.StepID == "" {
			return ferrors.New(ferrors.KindValidation, "step with empty step_id")
		}
		if seen[s.StepID] {
			return ferrors.New(ferrors.KindValidation, fmt.Sprintf("duplicate step_id %q", s.StepID))
		}
		seen[s.StepID] = true
	}
	for _, s := range w.Steps {
		for _, dep := range s.DependsOn {
			if !seen[dep.StepID] {
				return ferrors.New(ferrors.KindValidation, fmt.Sprintf("step %q depends on unknown step %q", s.StepID, dep.StepID))
			}
		}
	}

	nodes := make([]dag.Node, len(w.Steps))
	for i, s := range w.Steps {
		deps := make([]string, len(s.DependsOn))
		for j, d := range s.DependsOn {
			deps[j] = d.StepID
		}
		nodes[i] = dag.Node{StepID: s.StepID, DependsOn: deps, ParallelAllowed: s.ParallelAllowed}
	}
	if dag.HasCycle(nodes) {
		return ferrors.New(ferrors.KindCyclicDependency, "workflow step graph contains a cycle")
	}

	if w.Limits.MaxConcurrentSteps < 1 {
		return ferrors.New(ferrors.KindValidation, "max_concurrent_steps must be >= 1")
	}
	if w.Limits.MaxExecutionTimeSeconds <= 0 {
		return ferrors.New(ferrors.KindValidation, "max_execution_time must be > 0")
	}

	return nil
}

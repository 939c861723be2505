// Package workflow holds the workflow/step definition types and
// the in-memory Workflow Registry.
package workflow

import (
	"time"
)

// JSON is an arbitrary JSON-typed value: the six shapes (null, bool,
// number, string, array, object) as decoded by encoding/json — nil,
// bool, float64, string, []interface{}, map[string]interface{}.
type JSON = interface{}

// Discipline is one of the five scheduling strategies a workflow runs under.
type Discipline string

const (
	Sequential  Discipline = "sequential"
	Parallel    Discipline = "parallel"
	Pipeline    Discipline = "pipeline"
	Consensus   Discipline = "consensus"
	Conditional Discipline = "conditional"
)

func (d Discipline) Valid() bool {
	switch d {
	case Sequential, Parallel, Pipeline, Consensus, Conditional:
		return true
	}
	return false
}

// DependencyCondition governs when an upstream dependency is satisfied.
type DependencyCondition string

const (
	DependsOnSuccess    DependencyCondition = "success"
	DependsOnCompletion DependencyCondition = "completion"
)

// StepDependency declares a single prerequisite edge.
type StepDependency struct {
	StepID    string              `yaml:"step" mapstructure:"step" json:"step_id" validate:"required"`
	Condition DependencyCondition `yaml:"condition" mapstructure:"condition" json:"condition"`
	Required  bool                `yaml:"required" mapstructure:"required" json:"required"`
}

// Condition is the tagged-union condition shape consumed by
// internal/condition. Exactly one of Expression, Field+Operator,
// And, Or, Not should be set; which shape is present determines evaluation.
type Condition struct {
	Expression string      `yaml:"expression,omitempty" json:"expression,omitempty"`
	Field      string      `yaml:"field,omitempty" json:"field,omitempty"`
	Operator   string      `yaml:"operator,omitempty" json:"operator,omitempty"`
	Value      JSON        `yaml:"value,omitempty" json:"value,omitempty"`
	And        []Condition `yaml:"and,omitempty" json:"and,omitempty"`
	Or         []Condition `yaml:"or,omitempty" json:"or,omitempty"`
	Not        *Condition  `yaml:"not,omitempty" json:"not,omitempty"`
}

// IsZero reports whether no condition shape is populated (i.e. "no condition").
func (c *Condition) IsZero() bool {
	if c == nil {
		return true
	}
	return c.Expression == "" && c.Field == "" && len(c.And) == 0 && len(c.Or) == 0 && c.Not == nil
}

// Step is a single unit of work inside a workflow. Runtime fields
// (status, retry_count, output, ...) live on execution.StepRuntime, never
// here — the definition is immutable once the workflow is registered.
type Step struct {
	StepID          string           `yaml:"id" mapstructure:"id" json:"step_id" validate:"required"`
	Name            string           `yaml:"name" mapstructure:"name" json:"name"`
	Description     string           `yaml:"description" mapstructure:"description" json:"description"`
	AgentID         string           `yaml:"agent_id" mapstructure:"agent_id" json:"agent_id" validate:"required"`
	FunctionName    string           `yaml:"function" mapstructure:"function" json:"function_name" validate:"required"`
	Parameters      JSON             `yaml:"parameters" mapstructure:"parameters" json:"parameters"`
	DependsOn       []StepDependency `yaml:"-" mapstructure:"-" json:"depends_on"`
	Condition       *Condition       `yaml:"conditions,omitempty" mapstructure:"conditions" json:"condition,omitempty"`
	ParallelAllowed bool             `yaml:"parallel_allowed" mapstructure:"parallel_allowed" json:"parallel_allowed"`
	TimeoutSeconds  int              `yaml:"timeout" mapstructure:"timeout" json:"timeout_seconds"`
	MaxRetries      int              `yaml:"max_retries" mapstructure:"max_retries" json:"max_retries"`
	RetryDelaySeconds int            `yaml:"retry_delay" mapstructure:"retry_delay" json:"retry_delay_seconds"`
	ContinueOnError bool             `yaml:"continue_on_error" mapstructure:"continue_on_error" json:"continue_on_error"`
}

// ErrorHandling is the workflow-level default retry/fallback policy.
type ErrorHandling struct {
	RetryOnFailure     bool   `yaml:"retry_on_failure" mapstructure:"retry_on_failure" json:"retry_on_failure"`
	MaxRetries         int    `yaml:"max_retries" mapstructure:"max_retries" json:"max_retries"`
	RetryDelaySeconds  int    `yaml:"retry_delay_seconds" mapstructure:"retry_delay_seconds" json:"retry_delay_seconds"`
	ContinueOnError    bool   `yaml:"continue_on_error" mapstructure:"continue_on_error" json:"continue_on_error"`
	UseFallbackAgent   bool   `yaml:"use_fallback_agent" mapstructure:"use_fallback_agent" json:"use_fallback_agent"`
	FallbackAgentID    string `yaml:"fallback_agent_id" mapstructure:"fallback_agent_id" json:"fallback_agent_id"`
	FallbackParameters JSON   `yaml:"fallback_parameters" mapstructure:"fallback_parameters" json:"fallback_parameters"`
}

// Limits bounds execution resource usage.
type Limits struct {
	MaxExecutionTimeSeconds int  `yaml:"max_execution_time" mapstructure:"max_execution_time" json:"max_execution_time_seconds"`
	MaxConcurrentSteps      int  `yaml:"max_concurrent_steps" mapstructure:"max_concurrent_steps" json:"max_concurrent_steps"`
	PersistState            bool `yaml:"persist_state" mapstructure:"persist_state" json:"persist_state"`
	AutoCleanup              bool `yaml:"auto_cleanup" mapstructure:"auto_cleanup" json:"auto_cleanup"`
}

// Workflow is the declarative definition of a step DAG and its execution
// discipline.
type Workflow struct {
	WorkflowID    string                 `yaml:"id" mapstructure:"id" json:"workflow_id"`
	Name          string                 `yaml:"name" mapstructure:"name" json:"name" validate:"required"`
	Description   string                 `yaml:"description" mapstructure:"description" json:"description"`
	Discipline    Discipline             `yaml:"type" mapstructure:"type" json:"discipline" validate:"required"`
	Steps         []Step                 `yaml:"steps" mapstructure:"steps" json:"steps" validate:"required,min=0"`
	GlobalContext map[string]JSON        `yaml:"global_context" mapstructure:"global_context" json:"global_context"`
	ErrorHandling ErrorHandling          `yaml:"error_handling" mapstructure:"error_handling" json:"error_handling"`
	Limits        Limits                 `yaml:"settings" mapstructure:"settings" json:"limits"`
	Tags          map[string]string      `yaml:"-" mapstructure:"-" json:"tags,omitempty"`

	// Version increments on every successful Update.
	Version     int       `yaml:"-" mapstructure:"-" json:"version"`
	CreatedTime time.Time `yaml:"-" mapstructure:"-" json:"created_time"`
	UpdatedTime time.Time `yaml:"-" mapstructure:"-" json:"updated_time"`
}

// Clone returns a deep-enough copy of w suitable for a history snapshot: the
// registry must remain free to mutate the live Workflow after an execution
// has captured a frozen view of it.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	cp := *w
	cp.Steps = append([]Step(nil), w.Steps...)
	if w.GlobalContext != nil {
		cp.GlobalContext = make(map[string]JSON, len(w.GlobalContext))
		for k, v := range w.GlobalContext {
			cp.GlobalContext[k] = v
		}
	}
	if w.Tags != nil {
		cp.Tags = make(map[string]string, len(w.Tags))
		for k, v := range w.Tags {
			cp.Tags[k] = v
		}
	}
	return &cp
}

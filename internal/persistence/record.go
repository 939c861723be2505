// Package persistence implements State Persistence: durable
// snapshot/restore of execution state across a process restart. The
// filesystem backend (one JSON file per execution, atomic temp+fsync+rename
// write) is the default; Postgres and Redis backends are available for
// deployments that already run those stores.
package persistence

import (
	"encoding/json"
	"time"

	"github.com/workforge/flowengine/internal/execution"
)

// Record is the durable snapshot of one Execution: just enough
// to reinstate an in-flight execution, or show a finished one in history.
type Record struct {
	ExecutionID    string                 `json:"execution_id"`
	WorkflowID     string                 `json:"workflow_id"`
	Discipline     string                 `json:"discipline"`
	Status         string                 `json:"status"`
	Globals        map[string]interface{} `json:"globals"`
	StepOutputs    map[string]interface{} `json:"step_outputs"`
	StepStatuses   map[string]string      `json:"step_statuses"`
	CurrentStepID  string                 `json:"current_step_id"`
	CompletedSteps []string               `json:"completed_steps"`
	FailedSteps    []string               `json:"failed_steps"`
	StartTime      time.Time              `json:"start_time"`
	EndTime        time.Time              `json:"end_time"`
	ErrorMessage   string                 `json:"error_message"`
	Progress       float64                `json:"progress_percentage"`
}

// snapshot builds a Record from the live Execution's current state.
func snapshot(exec *execution.Execution) Record {
	return Record{
		ExecutionID:    exec.ExecutionID,
		WorkflowID:     exec.WorkflowID,
		Discipline:     exec.Discipline,
		Status:         string(exec.Status()),
		Globals:        exec.Globals,
		StepOutputs:    exec.StepOutputs(),
		StepStatuses:   exec.StepStatuses(),
		CurrentStepID:  exec.CurrentStep(),
		CompletedSteps: exec.CompletedSteps(),
		FailedSteps:    exec.FailedSteps(),
		StartTime:      exec.StartTime,
		EndTime:        exec.EndTime,
		ErrorMessage:   exec.ErrorMessage(),
		Progress:       exec.Progress(),
	}
}

func marshal(exec *execution.Execution) ([]byte, error) {
	return json.Marshal(snapshot(exec))
}

// Reinstated reports whether r's status means the execution belongs back in
// the engine's active set.
func (r Record) Reinstated() bool {
	return r.Status == string(execution.ExecRunning) || r.Status == string(execution.ExecPaused)
}

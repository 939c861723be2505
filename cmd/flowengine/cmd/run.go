package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/workforge/flowengine/internal/execution"
	"github.com/workforge/flowengine/internal/workflow"
)

var runInputFile string

var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "Register a workflow definition and execute it once, blocking until terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runInputFile, "input", "", "optional JSON file of execution input, merged over the workflow's global_context")
}

func runRun(cmd *cobra.Command, args []string) error {
	wf, err := workflow.LoadYAML(args[0])
	if err != nil {
		return fmt.Errorf("parsing workflow: %w", err)
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	workflowID, err := a.workflows.Create(wf)
	if err != nil {
		return fmt.Errorf("registering workflow: %w", err)
	}

	input, err := loadInput(runInputFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.eng.Start(ctx)
	defer a.eng.Stop(shutdownTimeout(a.cfg))

	executionID, err := a.eng.ExecuteWorkflow(ctx, workflowID, input)
	if err != nil {
		return fmt.Errorf("starting execution: %w", err)
	}

	exec := pollUntilTerminal(a, executionID)
	return printExecution(exec)
}

func loadInput(path string) (map[string]interface{}, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	var input map[string]interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("parsing input file as JSON: %w", err)
	}
	return input, nil
}

func pollUntilTerminal(a *app, executionID string) *execution.Execution {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		exec := a.eng.GetExecution(executionID)
		if exec != nil && exec.Status().Terminal() {
			return exec
		}
	}
	return nil
}

func printExecution(exec *execution.Execution) error {
	if exec == nil {
		return fmt.Errorf("execution vanished before reaching a terminal state")
	}
	out := map[string]interface{}{
		"execution_id":   exec.ExecutionID,
		"workflow_id":    exec.WorkflowID,
		"status":         exec.Status(),
		"progress":       exec.Progress(),
		"completed_steps": exec.CompletedSteps(),
		"failed_steps":    exec.FailedSteps(),
		"error_message":   exec.ErrorMessage(),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/workforge/flowengine/internal/workflow"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow.yaml>",
	Short: "Parse and validate a workflow definition file without running it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	wf, err := workflow.LoadYAML(args[0])
	if err != nil {
		return fmt.Errorf("parsing workflow: %w", err)
	}

	scratch := workflow.NewRegistry(nil)
	if _, err := scratch.Create(wf); err != nil {
		return fmt.Errorf("workflow is invalid: %w", err)
	}

	fmt.Printf("workflow %q is valid: %d steps, discipline=%s\n", wf.Name, len(wf.Steps), wf.Discipline)
	return nil
}

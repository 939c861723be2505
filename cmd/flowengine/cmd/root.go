// Package cmd implements FlowEngine's cobra command tree: serve, validate,
// run, and list.
package cmd

import (
	"github.com/spf13/cobra"
)

const (
	serviceName    = "flowengine"
	serviceVersion = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "flowengine",
	Short: "Multi-agent workflow orchestration engine",
}

// Execute runs the command tree, returning any error a subcommand produced.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
}

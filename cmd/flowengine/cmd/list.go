package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/workforge/flowengine/internal/workflow"
)

var listCmd = &cobra.Command{
	Use:   "list <directory>",
	Short: "Validate and summarize every workflow definition file in a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	dir := args[0]
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		fmt.Println("no workflow definitions found")
		return nil
	}

	scratch := workflow.NewRegistry(nil)
	for _, name := range files {
		path := filepath.Join(dir, name)
		wf, err := workflow.LoadYAML(path)
		if err != nil {
			fmt.Printf("%-30s INVALID  %v\n", name, err)
			continue
		}
		if _, err := scratch.Create(wf); err != nil {
			fmt.Printf("%-30s INVALID  %v\n", name, err)
			continue
		}
		fmt.Printf("%-30s OK       discipline=%-12s steps=%d\n", name, wf.Discipline, len(wf.Steps))
	}
	return nil
}

package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
id: ""
name: greet-then-summarize
type: sequential
steps:
  - id: greet
    agent_id: greeter
    function: say_hello
  - id: summarize
    agent_id: summarizer
    function: summarize
    depends_on:
      - greet
settings:
  max_execution_time: 60
  max_concurrent_steps: 2
`

func writeSampleWorkflow(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("writing sample workflow: %v", err)
	}
	return path
}

func TestRunValidateAcceptsWellFormedWorkflow(t *testing.T) {
	path := writeSampleWorkflow(t)
	if err := runValidate(validateCmd, []string{path}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunValidateRejectsCyclicWorkflow(t *testing.T) {
	cyclic := `
name: cycle
type: sequential
steps:
  - id: a
    agent_id: x
    function: f
    depends_on:
      - b
  - id: b
    agent_id: x
    function: f
    depends_on:
      - a
settings:
  max_execution_time: 60
  max_concurrent_steps: 2
`
	path := filepath.Join(t.TempDir(), "cyclic.yaml")
	if err := os.WriteFile(path, []byte(cyclic), 0o644); err != nil {
		t.Fatalf("writing cyclic workflow: %v", err)
	}
	if err := runValidate(validateCmd, []string{path}); err == nil {
		t.Fatal("expected an error for a cyclic workflow")
	}
}

func TestRunListSummarizesDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sample.yaml"), []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("writing sample workflow: %v", err)
	}
	if err := runList(listCmd, []string{dir}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

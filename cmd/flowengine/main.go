// Command flowengine is the FlowEngine process: it loads configuration,
// wires the orchestration pipeline (Registry, Discipline Scheduler, Engine,
// State Persistence), and exposes a cobra command tree for operating it,
// modeled on a standard signal.Notify + sync.WaitGroup graceful-shutdown loop.
package main

import (
	"fmt"
	"os"

	"github.com/workforge/flowengine/cmd/flowengine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package dag implements the Dependency Resolver: a
// topological ordering of a workflow's steps plus a partition into parallel
// groups, with cycle detection.
//
// The package is deliberately decoupled from internal/workflow's Step type
// (it consumes a minimal Node view instead) so internal/workflow can call
// into this package during registry validation without an import cycle.
package dag

import "fmt"

// Node is the minimal view of a step the resolver needs: its id, its
// required-for-ordering dependencies (by upstream step id), and whether it
// is allowed to run in the same parallel group as its siblings.
type Node struct {
	StepID          string
	DependsOn       []string
	ParallelAllowed bool
}

// CycleError reports that the dependency graph is not a DAG.
type CycleError struct {
	Remaining []string // step ids that never reached zero in-degree
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic dependency detected among steps: %v", e.Remaining)
}

// Resolution is the resolver's output: a full topological order (stable,
// ties broken by input/definition order) and a partition into parallel
// groups.
type Resolution struct {
	Order  []string
	Groups [][]string
}

// Resolve computes the topological order and parallel-group partition for
// nodes, in the order given (definition order, used to break ties).
func Resolve(nodes []Node) (*Resolution, error) {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.StepID] = i
	}

	// adjacency: upstream -> downstream, and in-degree per node.
	inDegree := make([]int, len(nodes))
	downstream := make([][]int, len(nodes))
	for i, n := range nodes {
		for _, dep := range n.DependsOn {
			di, ok := index[dep]
			if !ok {
				// Unknown upstream references are a registry-level validation
				// concern; the resolver treats them as having no
				// effect on ordering rather than failing here.
				continue
			}
			downstream[di] = append(downstream[di], i)
			inDegree[i]++
		}
	}

	order := make([]string, 0, len(nodes))
	groups := make([][]string, 0)
	done := make([]bool, len(nodes))
	remaining := len(nodes)

	for remaining > 0 {
		// Collect the current frontier: all not-yet-done nodes with zero
		// in-degree, in definition order.
		frontier := make([]int, 0)
		for i := range nodes {
			if !done[i] && inDegree[i] == 0 {
				frontier = append(frontier, i)
			}
		}
		if len(frontier) == 0 {
			remainingIDs := make([]string, 0)
			for i, n := range nodes {
				if !done[i] {
					remainingIDs = append(remainingIDs, n.StepID)
				}
			}
			return nil, &CycleError{Remaining: remainingIDs}
		}

		// Partition the frontier: parallel-allowed nodes form one group,
		// each non-parallel node is its own singleton group. The singleton
		// groups come first, in frontier order, followed by the parallel group.
		var parallelGroup []string
		for _, i := range frontier {
			order = append(order, nodes[i].StepID)
			done[i] = true
			remaining--
			for _, d := range downstream[i] {
				inDegree[d]--
			}
		}
		for _, i := range frontier {
			if nodes[i].ParallelAllowed {
				parallelGroup = append(parallelGroup, nodes[i].StepID)
			} else {
				groups = append(groups, []string{nodes[i].StepID})
			}
		}
		if len(parallelGroup) > 0 {
			groups = append(groups, parallelGroup)
		}
	}

	return &Resolution{Order: order, Groups: groups}, nil
}

// HasCycle reports only whether nodes contains a cycle. It runs the full
// Resolve pass and discards the resolution; the registry uses it when
// validating a workflow.
func HasCycle(nodes []Node) bool {
	_, err := Resolve(nodes)
	if err == nil {
		return false
	}
	var ce *CycleError
	if asCycleError(err, &ce) {
		return true
	}
	return false
}

func asCycleError(err error, target **CycleError) bool {
	ce, ok := err.(*CycleError)
	if !ok {
		return false
	}
	*target = ce
	return true
}

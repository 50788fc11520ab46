// Package planner turns an unordered operator set into an execution plan:
// a sequence of operator groups where each group executes as one vectorized
// batch and every operator's dependencies land in a strictly earlier group.
//
// Four interchangeable strategies are provided. Greedy is the polynomial
// default, Tree finds the provably shortest plan by memoized search, Noop
// skips merging entirely, and Transitive condenses the graph using its
// transitive closure. All of them are deterministic given a stable input
// order and run synchronously on the calling goroutine.
package planner

import (
	"context"
	"fmt"

	"github.com/vk/signalgrid/internal/depgraph"
	"github.com/vk/signalgrid/internal/signal"
)

// Group is an ordered batch of mutually mergeable operators.
type Group []*signal.Operator

// Plan is a dependency-respecting ordered sequence of groups.
type Plan []Group

// Operators returns the total operator count across all groups.
func (p Plan) Operators() int {
	n := 0
	for _, g := range p {
		n += len(g)
	}
	return n
}

// Func is a planning strategy. Implementations must return either a complete
// plan or an error, never a partial plan.
type Func func(ctx context.Context, g *depgraph.Graph) (Plan, error)

// CycleError reports that no group could be formed while operators remained
// unscheduled, meaning the dependency graph is not acyclic.
type CycleError struct {
	// Unscheduled is the number of operators left when planning stalled.
	Unscheduled int
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected during graph optimization: %d operators cannot be scheduled", e.Unscheduled)
}

// ByName resolves a planner name from configuration into a strategy.
func ByName(name string) (Func, error) {
	switch name {
	case "greedy":
		return Greedy, nil
	case "tree":
		return Tree, nil
	case "noop":
		return Noop, nil
	case "transitive":
		return Transitive, nil
	default:
		return nil, fmt.Errorf("unknown planner %q", name)
	}
}

// groupOf materializes operator indices into a Group.
func groupOf(g *depgraph.Graph, idxs []int) Group {
	ops := make(Group, len(idxs))
	for k, i := range idxs {
		ops[k] = g.Op(i)
	}
	return ops
}

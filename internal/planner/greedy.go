package planner

import (
	"context"

	"github.com/vk/signalgrid/internal/ctxlog"
	"github.com/vk/signalgrid/internal/depgraph"
)

// Greedy schedules operators with a first-fit merge heuristic. Available
// operators (all predecessors scheduled) are partitioned into mergeable
// groups, the largest group is emitted, and its successors are released.
// Local and sub-optimal; O(n^2) worst case.
func Greedy(ctx context.Context, g *depgraph.Graph) (Plan, error) {
	logger := ctxlog.FromContext(ctx)
	n := g.N()

	// Arena-style bookkeeping: nothing is deleted from the graph, retired
	// operators are just flagged.
	pending := make([]int, n)
	retired := make([]bool, n)
	var available []int
	for i := 0; i < n; i++ {
		pending[i] = len(g.Predecessors(i))
		if pending[i] == 0 {
			available = append(available, i)
		}
	}

	var plan Plan
	// groups carries unchosen candidate groups across rounds, so operators
	// that stay available keep their discovery-order slot.
	var groups [][]int
	scheduled := 0
	for scheduled < n {
		for _, i := range available {
			placed := false
			for gi := range groups {
				if Mergeable(g.Op(i), groupOf(g, groups[gi])) {
					groups[gi] = append(groups[gi], i)
					placed = true
					break
				}
			}
			if !placed {
				groups = append(groups, []int{i})
			}
		}

		if len(groups) == 0 {
			return nil, &CycleError{Unscheduled: n - scheduled}
		}

		// Largest group wins; ties go to the earliest discovered.
		best := 0
		for gi := range groups {
			if len(groups[gi]) > len(groups[best]) {
				best = gi
			}
		}
		chosen := groups[best]
		groups = append(groups[:best], groups[best+1:]...)
		plan = append(plan, groupOf(g, chosen))
		scheduled += len(chosen)

		available = available[:0]
		for _, i := range chosen {
			retired[i] = true
			for _, j := range g.Successors(i) {
				pending[j]--
				if pending[j] == 0 && !retired[j] {
					available = append(available, j)
				}
			}
		}
	}

	logger.Debug("greedy plan complete", "operators", n, "groups", len(plan))
	return plan, nil
}

package planner

import (
	"context"

	"github.com/vk/signalgrid/internal/ctxlog"
	"github.com/vk/signalgrid/internal/depgraph"
)

// Transitive condenses the dependency graph instead of simulating a
// schedule. It repeatedly pops an operator, absorbs every remaining
// mergeable operator with no transitive-closure connection to the group
// (no ordering constraint either way), merges the group into a super-node,
// and recomputes the closure. The final plan is a topological sort of the
// condensed graph.
//
// More globally aware than Greedy, far cheaper than Tree. Recomputing the
// full closure every iteration dominates the cost; there is no incremental
// update.
func Transitive(ctx context.Context, g *depgraph.Graph) (Plan, error) {
	logger := ctxlog.FromContext(ctx)

	cond := depgraph.NewCondensable(g)
	remaining := make([]int, g.N())
	for i := range remaining {
		remaining[i] = i
	}

	for len(remaining) > 0 {
		trans := cond.TransitiveClosure()

		// Pop the most recently added operator as the seed.
		seed := remaining[len(remaining)-1]
		remaining = remaining[:len(remaining)-1]
		group := []int{seed}

		for _, i := range remaining {
			if !Mergeable(g.Op(i), groupOf(g, group)) {
				continue
			}
			connected := false
			for _, m := range group {
				if _, ok := trans[i][m]; ok {
					connected = true
					break
				}
				if _, ok := trans[m][i]; ok {
					connected = true
					break
				}
			}
			if !connected {
				group = append(group, i)
			}
		}

		if len(group) > 1 {
			absorbed := make(map[int]struct{}, len(group)-1)
			for _, i := range group[1:] {
				absorbed[i] = struct{}{}
			}
			kept := remaining[:0]
			for _, i := range remaining {
				if _, ok := absorbed[i]; !ok {
					kept = append(kept, i)
				}
			}
			remaining = kept
		}

		cond.Merge(group)
	}

	order, err := cond.Toposort()
	if err != nil {
		return nil, &CycleError{Unscheduled: g.N()}
	}

	plan := make(Plan, len(order))
	for k, id := range order {
		plan[k] = groupOf(g, cond.Members(id))
	}
	logger.Debug("transitive plan complete", "operators", g.N(), "groups", len(plan))
	return plan, nil
}

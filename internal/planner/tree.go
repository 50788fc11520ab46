package planner

import (
	"context"
	"strconv"
	"strings"

	"github.com/vk/signalgrid/internal/ctxlog"
	"github.com/vk/signalgrid/internal/depgraph"
)

// Tree finds the plan with the fewest groups by memoized recursive search.
// The optimal plan for a state depends only on the set of remaining
// operators, so results are cached per remaining-set. Exponential in the
// worst case; intended for small graphs or offline precomputation. The memo
// cache lives and dies with one call.
func Tree(ctx context.Context, g *depgraph.Graph) (Plan, error) {
	logger := ctxlog.FromContext(ctx)

	all := make([]int, g.N())
	for i := range all {
		all[i] = i
	}

	memo := make(map[string][][]int)
	best, err := shortestPlan(g, all, memo)
	if err != nil {
		return nil, err
	}

	plan := make(Plan, len(best))
	for k, idxs := range best {
		plan[k] = groupOf(g, idxs)
	}
	logger.Debug("tree plan complete", "operators", g.N(), "groups", len(plan), "memo_entries", len(memo))
	return plan, nil
}

// shortestPlan returns the fewest-group plan for the remaining operators,
// which must be sorted ascending. Groups in the returned plan may be shared
// with memoized entries and must not be mutated.
func shortestPlan(g *depgraph.Graph, remaining []int, memo map[string][][]int) ([][]int, error) {
	if len(remaining) == 0 {
		return nil, nil
	}
	if len(remaining) == 1 {
		return [][]int{{remaining[0]}}, nil
	}

	key := setKey(remaining)
	if cached, ok := memo[key]; ok {
		return cached, nil
	}

	inSet := make(map[int]struct{}, len(remaining))
	for _, i := range remaining {
		inSet[i] = struct{}{}
	}

	// Operators whose predecessors have all been scheduled already.
	var free []int
	for _, i := range remaining {
		ready := true
		for _, p := range g.Predecessors(i) {
			if _, ok := inSet[p]; ok {
				ready = false
				break
			}
		}
		if ready {
			free = append(free, i)
		}
	}

	// First-fit partition of the free operators; unlike Greedy, every
	// group of the partition is explored as an alternative next move.
	var moves [][]int
	for _, i := range free {
		placed := false
		for mi := range moves {
			if Mergeable(g.Op(i), groupOf(g, moves[mi])) {
				moves[mi] = append(moves[mi], i)
				placed = true
				break
			}
		}
		if !placed {
			moves = append(moves, []int{i})
		}
	}

	if len(moves) == 0 {
		return nil, &CycleError{Unscheduled: len(remaining)}
	}

	var shortest [][]int
	for _, move := range moves {
		rest := subtract(remaining, move)
		tail, err := shortestPlan(g, rest, memo)
		if err != nil {
			return nil, err
		}
		if shortest == nil || len(tail)+1 < len(shortest) {
			shortest = append([][]int{move}, tail...)
		}
	}

	memo[key] = shortest
	return shortest, nil
}

// setKey canonicalizes a sorted remaining-set into a cache key.
func setKey(remaining []int) string {
	var sb strings.Builder
	for k, i := range remaining {
		if k > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(i))
	}
	return sb.String()
}

// subtract returns remaining minus the group, preserving order.
func subtract(remaining, group []int) []int {
	drop := make(map[int]struct{}, len(group))
	for _, i := range group {
		drop[i] = struct{}{}
	}
	rest := make([]int, 0, len(remaining)-len(group))
	for _, i := range remaining {
		if _, ok := drop[i]; !ok {
			rest = append(rest, i)
		}
	}
	return rest
}

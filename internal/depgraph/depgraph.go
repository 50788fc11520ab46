// Package depgraph derives the dependency DAG over operators from their
// read/write conflicts on shared signal bases, and provides the graph
// algorithms the planners are built on: topological sort, transitive
// closure, and a condensable bidirectional form.
//
// The graph is arena-style: operators are addressed by their index in the
// input slice and edges are never deleted. Schedulers that consume the graph
// keep their own retired sets, so the structure stays inspectable while an
// algorithm is mid-flight.
package depgraph

import (
	"fmt"
	"sort"

	"github.com/vk/signalgrid/internal/signal"
)

// Graph is the immutable dependency DAG over a fixed operator slice. An edge
// i -> j means operator j must execute in a strictly later group than
// operator i.
type Graph struct {
	ops   []*signal.Operator
	succs []map[int]struct{}
	preds []map[int]struct{}
}

// Build constructs the dependency graph for the given operators. For every
// signal base the ordering is: sets before incs, writes before reads, and
// everything before updates. Edges always connect distinct operators.
func Build(ops []*signal.Operator) *Graph {
	g := &Graph{
		ops:   ops,
		succs: make([]map[int]struct{}, len(ops)),
		preds: make([]map[int]struct{}, len(ops)),
	}
	for i := range ops {
		g.succs[i] = make(map[int]struct{})
		g.preds[i] = make(map[int]struct{})
	}

	type usage struct {
		sets, incs, reads, ups []int
	}
	byBase := make(map[*signal.Signal]*usage)
	use := func(s *signal.Signal) *usage {
		b := s.Base()
		u, ok := byBase[b]
		if !ok {
			u = &usage{}
			byBase[b] = u
		}
		return u
	}
	for i, op := range ops {
		for _, s := range op.Sets {
			u := use(s)
			u.sets = append(u.sets, i)
		}
		for _, s := range op.Incs {
			u := use(s)
			u.incs = append(u.incs, i)
		}
		for _, s := range op.Reads {
			u := use(s)
			u.reads = append(u.reads, i)
		}
		for _, s := range op.Updates {
			u := use(s)
			u.ups = append(u.ups, i)
		}
	}

	for _, u := range byBase {
		writes := append(append([]int{}, u.sets...), u.incs...)
		g.addEdges(u.sets, u.incs)
		g.addEdges(writes, u.reads)
		g.addEdges(writes, u.ups)
		g.addEdges(u.reads, u.ups)
	}
	return g
}

func (g *Graph) addEdges(from, to []int) {
	for _, i := range from {
		for _, j := range to {
			if i != j {
				g.succs[i][j] = struct{}{}
				g.preds[j][i] = struct{}{}
			}
		}
	}
}

// N returns the number of operators in the graph.
func (g *Graph) N() int { return len(g.ops) }

// Op returns the operator at index i.
func (g *Graph) Op(i int) *signal.Operator { return g.ops[i] }

// Ops returns the underlying operator slice. Callers must not modify it.
func (g *Graph) Ops() []*signal.Operator { return g.ops }

// Successors returns the indices of operators that depend on i, in
// ascending order.
func (g *Graph) Successors(i int) []int { return sortedKeys(g.succs[i]) }

// Predecessors returns the indices of operators that i depends on, in
// ascending order.
func (g *Graph) Predecessors(i int) []int { return sortedKeys(g.preds[i]) }

// HasEdge reports whether operator j directly depends on operator i.
func (g *Graph) HasEdge(i, j int) bool {
	_, ok := g.succs[i][j]
	return ok
}

// Toposort returns the operator indices in a dependency-respecting order,
// breaking ties by ascending index so the result is deterministic. It
// returns an error if the graph contains a cycle.
func (g *Graph) Toposort() ([]int, error) {
	pending := make([]int, g.N())
	for i := range g.preds {
		pending[i] = len(g.preds[i])
	}
	var ready []int
	for i, n := range pending {
		if n == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, g.N())
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		order = append(order, i)
		for _, j := range g.Successors(i) {
			pending[j]--
			if pending[j] == 0 {
				ready = append(ready, j)
			}
		}
	}
	if len(order) != g.N() {
		return nil, fmt.Errorf("dependency graph contains a cycle (%d of %d operators orderable)", len(order), g.N())
	}
	return order, nil
}

// TransitiveClosure returns, for each operator, the set of all operators
// reachable from it through dependency edges. Quadratic in the worst case;
// the transitive planner recomputes it after every condensation step, which
// dominates that planner's cost.
func (g *Graph) TransitiveClosure() []map[int]struct{} {
	reach := make([]map[int]struct{}, g.N())
	order, err := g.Toposort()
	if err != nil {
		// Fall back to index order; the closure of a cyclic graph is
		// not used by any planner, they fail on the cycle first.
		order = order[:0]
		for i := 0; i < g.N(); i++ {
			order = append(order, i)
		}
	}
	for k := len(order) - 1; k >= 0; k-- {
		i := order[k]
		reach[i] = make(map[int]struct{})
		for j := range g.succs[i] {
			reach[i][j] = struct{}{}
			for r := range reach[j] {
				reach[i][r] = struct{}{}
			}
		}
	}
	return reach
}

func sortedKeys(m map[int]struct{}) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

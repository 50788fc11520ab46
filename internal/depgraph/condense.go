package depgraph

import (
	"fmt"
	"sort"
)

// Condensable is a bidirectional DAG whose nodes can be merged into
// super-nodes. It starts with one node per operator; merging a group
// replaces its members with a fresh node that inherits the union of their
// external edges. The transitive planner condenses the graph until every
// remaining node is one operator group.
type Condensable struct {
	forward  map[int]map[int]struct{}
	backward map[int]map[int]struct{}
	members  map[int][]int
	next     int
}

// NewCondensable copies the graph's edges into a condensable form. Node ids
// initially equal operator indices; merged nodes get ids minted above the
// operator count.
func NewCondensable(g *Graph) *Condensable {
	c := &Condensable{
		forward:  make(map[int]map[int]struct{}, g.N()),
		backward: make(map[int]map[int]struct{}, g.N()),
		members:  make(map[int][]int, g.N()),
		next:     g.N(),
	}
	for i := 0; i < g.N(); i++ {
		c.forward[i] = make(map[int]struct{})
		c.backward[i] = make(map[int]struct{})
		c.members[i] = []int{i}
		for j := range g.succs[i] {
			c.forward[i][j] = struct{}{}
		}
		for j := range g.preds[i] {
			c.backward[i][j] = struct{}{}
		}
	}
	return c
}

// Merge condenses the given nodes into one super-node and returns its id.
// The merged node's member list concatenates the groups' members in the
// order given.
func (c *Condensable) Merge(nodes []int) int {
	id := c.next
	c.next++

	inGroup := make(map[int]struct{}, len(nodes))
	for _, n := range nodes {
		inGroup[n] = struct{}{}
	}

	fwd := make(map[int]struct{})
	bwd := make(map[int]struct{})
	var mem []int
	for _, n := range nodes {
		mem = append(mem, c.members[n]...)
		for j := range c.forward[n] {
			if _, ok := inGroup[j]; !ok {
				fwd[j] = struct{}{}
			}
		}
		for j := range c.backward[n] {
			if _, ok := inGroup[j]; !ok {
				bwd[j] = struct{}{}
			}
		}
	}
	for _, n := range nodes {
		delete(c.forward, n)
		delete(c.backward, n)
		delete(c.members, n)
	}
	for j := range fwd {
		for _, n := range nodes {
			delete(c.backward[j], n)
		}
		c.backward[j][id] = struct{}{}
	}
	for j := range bwd {
		for _, n := range nodes {
			delete(c.forward[j], n)
		}
		c.forward[j][id] = struct{}{}
	}
	c.forward[id] = fwd
	c.backward[id] = bwd
	c.members[id] = mem
	return id
}

// Nodes returns the current node ids in ascending order.
func (c *Condensable) Nodes() []int {
	return sortedKeys(mapKeysAsSet(c.members))
}

// Members returns the operator indices condensed into the node.
func (c *Condensable) Members(id int) []int { return c.members[id] }

// TransitiveClosure returns reachability over the current (condensed) nodes.
func (c *Condensable) TransitiveClosure() map[int]map[int]struct{} {
	order, err := c.Toposort()
	if err != nil {
		order = c.Nodes()
	}
	reach := make(map[int]map[int]struct{}, len(order))
	for k := len(order) - 1; k >= 0; k-- {
		i := order[k]
		reach[i] = make(map[int]struct{})
		for j := range c.forward[i] {
			reach[i][j] = struct{}{}
			for r := range reach[j] {
				reach[i][r] = struct{}{}
			}
		}
	}
	return reach
}

// Toposort orders the current nodes so every edge points forward, breaking
// ties by ascending node id. Returns an error on a cycle.
func (c *Condensable) Toposort() ([]int, error) {
	pending := make(map[int]int, len(c.members))
	for id := range c.members {
		pending[id] = len(c.backward[id])
	}
	var ready []int
	for id, n := range pending {
		if n == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]int, 0, len(c.members))
	for len(ready) > 0 {
		sort.Ints(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for j := range c.forward[id] {
			pending[j]--
			if pending[j] == 0 {
				ready = append(ready, j)
			}
		}
	}
	if len(order) != len(c.members) {
		return nil, fmt.Errorf("condensed graph contains a cycle (%d of %d nodes orderable)", len(order), len(c.members))
	}
	return order, nil
}

func mapKeysAsSet(m map[int][]int) map[int]struct{} {
	set := make(map[int]struct{}, len(m))
	for k := range m {
		set[k] = struct{}{}
	}
	return set
}

package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/signalgrid/internal/signal"
)

// copyOp builds a copy operator reading src and writing dst.
func copyOp(t *testing.T, label string, dst, src *signal.Signal) *signal.Operator {
	t.Helper()
	return &signal.Operator{
		Kind:  signal.KindCopy,
		Label: label,
		Sets:  []*signal.Signal{dst},
		Reads: []*signal.Signal{src},
	}
}

// incOp builds an accumulating copy reading src and incrementing dst.
func incOp(t *testing.T, label string, dst, src *signal.Signal) *signal.Operator {
	t.Helper()
	return &signal.Operator{
		Kind:  signal.KindCopy,
		Label: label,
		Inc:   true,
		Incs:  []*signal.Signal{dst},
		Reads: []*signal.Signal{src},
	}
}

func TestBuildReadAfterWrite(t *testing.T) {
	x := signal.New("x", signal.Float32, 2)
	y := signal.New("y", signal.Float32, 2)
	z := signal.New("z", signal.Float32, 2)

	writer := copyOp(t, "writer", x, y)
	reader := copyOp(t, "reader", z, x)

	g := Build([]*signal.Operator{writer, reader})

	assert.True(t, g.HasEdge(0, 1))
	assert.False(t, g.HasEdge(1, 0))
	assert.Equal(t, []int{1}, g.Successors(0))
	assert.Equal(t, []int{0}, g.Predecessors(1))
}

func TestBuildSetBeforeInc(t *testing.T) {
	x := signal.New("x", signal.Float32, 2)
	a := signal.New("a", signal.Float32, 2)

	setter := copyOp(t, "setter", x, a)
	incer := incOp(t, "incer", x, a)

	g := Build([]*signal.Operator{incer, setter})

	// The setter must run before the accumulate regardless of input order.
	assert.True(t, g.HasEdge(1, 0))
	assert.False(t, g.HasEdge(0, 1))
}

func TestBuildUpdateAfterRead(t *testing.T) {
	x := signal.New("x", signal.Float32, 2)
	y := signal.New("y", signal.Float32, 2)

	reader := copyOp(t, "reader", y, x)
	updater := &signal.Operator{
		Kind:    signal.KindProcessStep,
		Label:   "updater",
		Updates: []*signal.Signal{x},
	}

	g := Build([]*signal.Operator{reader, updater})

	assert.True(t, g.HasEdge(0, 1))
}

func TestBuildViewConflictsViaBase(t *testing.T) {
	x := signal.New("x", signal.Float32, 10)
	y := signal.New("y", signal.Float32, 5)
	z := signal.New("z", signal.Float32, 5)

	writer := copyOp(t, "writer", x.Slice(0, 5, 1), y)
	reader := copyOp(t, "reader", z, x.Slice(5, 10, 1))

	g := Build([]*signal.Operator{writer, reader})

	// Conflicts are tracked per base, so disjoint views still order.
	assert.True(t, g.HasEdge(0, 1))
}

func TestToposortChain(t *testing.T) {
	sigs := make([]*signal.Signal, 4)
	for i := range sigs {
		sigs[i] = signal.New("s", signal.Float32, 2)
	}
	ops := []*signal.Operator{
		copyOp(t, "c", sigs[3], sigs[2]),
		copyOp(t, "b", sigs[2], sigs[1]),
		copyOp(t, "a", sigs[1], sigs[0]),
	}

	g := Build(ops)
	order, err := g.Toposort()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, order)
}

func TestToposortCycle(t *testing.T) {
	x := signal.New("x", signal.Float32, 2)
	y := signal.New("y", signal.Float32, 2)

	ops := []*signal.Operator{
		copyOp(t, "a", x, y),
		copyOp(t, "b", y, x),
	}

	g := Build(ops)
	_, err := g.Toposort()
	assert.Error(t, err)
}

func TestTransitiveClosure(t *testing.T) {
	sigs := make([]*signal.Signal, 4)
	for i := range sigs {
		sigs[i] = signal.New("s", signal.Float32, 2)
	}
	ops := []*signal.Operator{
		copyOp(t, "a", sigs[1], sigs[0]),
		copyOp(t, "b", sigs[2], sigs[1]),
		copyOp(t, "c", sigs[3], sigs[2]),
	}

	g := Build(ops)
	reach := g.TransitiveClosure()

	assert.Contains(t, reach[0], 1)
	assert.Contains(t, reach[0], 2)
	assert.Contains(t, reach[1], 2)
	assert.NotContains(t, reach[2], 0)
	assert.Empty(t, reach[2])
}

func TestCondensableMerge(t *testing.T) {
	sigs := make([]*signal.Signal, 6)
	for i := range sigs {
		sigs[i] = signal.New("s", signal.Float32, 2)
	}
	// a -> c, b -> c
	ops := []*signal.Operator{
		copyOp(t, "a", sigs[1], sigs[0]),
		copyOp(t, "b", sigs[2], sigs[0]),
		{
			Kind:  signal.KindCopy,
			Label: "c",
			Sets:  []*signal.Signal{sigs[3]},
			Reads: []*signal.Signal{sigs[1], sigs[2]},
		},
	}

	g := Build(ops)
	c := NewCondensable(g)

	id := c.Merge([]int{0, 1})
	assert.Equal(t, []int{0, 1}, c.Members(id))
	assert.ElementsMatch(t, []int{2, id}, c.Nodes())

	order, err := c.Toposort()
	require.NoError(t, err)
	assert.Equal(t, []int{id, 2}, order)

	reach := c.TransitiveClosure()
	assert.Contains(t, reach[id], 2)
}

func TestCondensableMergeAll(t *testing.T) {
	sigs := make([]*signal.Signal, 4)
	for i := range sigs {
		sigs[i] = signal.New("s", signal.Float32, 2)
	}
	ops := []*signal.Operator{
		copyOp(t, "a", sigs[1], sigs[0]),
		copyOp(t, "b", sigs[2], sigs[1]),
	}

	g := Build(ops)
	c := NewCondensable(g)
	c.Merge([]int{0})
	c.Merge([]int{1})

	order, err := c.Toposort()
	require.NoError(t, err)
	require.Len(t, order, 2)
	assert.Equal(t, []int{0}, c.Members(order[0]))
	assert.Equal(t, []int{1}, c.Members(order[1]))
}

package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSignalDefaults(t *testing.T) {
	s := New("x", Float32, 4, 3)

	assert.Equal(t, "x", s.Label)
	assert.Equal(t, []int{4, 3}, s.Shape)
	assert.Equal(t, 12, s.Size())
	assert.Equal(t, 4, s.Rows())
	assert.Equal(t, []int{3}, s.TailShape())
	assert.Equal(t, 3, s.RowSize())
	assert.False(t, s.IsView())
	assert.Same(t, s, s.Base())
	assert.Len(t, s.Initial, 12)
}

func TestScalarSignal(t *testing.T) {
	s := New("c", Float64)

	assert.Equal(t, 1, s.Size())
	assert.Equal(t, 1, s.Rows())
	assert.Empty(t, s.TailShape())
}

func TestReshapeView(t *testing.T) {
	base := New("x", Float32, 4, 3)
	v := base.Reshape(12)

	assert.True(t, v.IsView())
	assert.Same(t, base, v.Base())
	assert.Equal(t, []int{12}, v.Shape)
	assert.Equal(t, base.Size(), v.Size())
	assert.Equal(t, 0, v.ElemOffset)
}

func TestReshapeRejectsSizeChange(t *testing.T) {
	base := New("x", Float32, 4, 3)
	assert.Panics(t, func() { base.Reshape(5) })
}

func TestSliceView(t *testing.T) {
	base := New("x", Float32, 10, 3)
	v := base.Slice(2, 8, 2)

	assert.True(t, v.IsView())
	assert.Same(t, base, v.Base())
	assert.Equal(t, []int{3, 3}, v.Shape)
	assert.Equal(t, 6, v.ElemOffset)
	require.NotEmpty(t, v.ElemStrides)
	assert.Equal(t, 6, v.ElemStrides[0])
	assert.Equal(t, []int{6, 1}, v.ElemStrides)
}

func TestSliceOfViewKeepsBase(t *testing.T) {
	base := New("x", Float32, 10)
	v := base.Slice(2, 10, 1)
	vv := v.Slice(1, 3, 1)

	assert.Same(t, base, vv.Base())
	assert.Equal(t, 3, vv.ElemOffset)
	assert.Equal(t, []int{2}, vv.Shape)
}

func TestAllSignalsRoleOrder(t *testing.T) {
	a, b, c, d := New("a", Float32, 1), New("b", Float32, 1), New("c", Float32, 1), New("d", Float32, 1)
	op := &Operator{
		Kind:    KindCopy,
		Sets:    []*Signal{a},
		Incs:    []*Signal{b},
		Reads:   []*Signal{c},
		Updates: []*Signal{d},
	}

	assert.Equal(t, []*Signal{a, b, c, d}, op.AllSignals())
}

func TestInputSignalsDeclaredReadsOnly(t *testing.T) {
	r := New("r", Float32, 2)
	op := &Operator{Kind: KindCopy, Reads: []*Signal{r}}

	assert.Equal(t, []*Signal{r}, op.InputSignals())
}

func TestInputSignalsNeuronStateReadBack(t *testing.T) {
	in := New("in", Float32, 2)
	state := New("state", Float32, 2)
	op := &Operator{
		Kind:        KindNeuronStep,
		NeuronModel: "lif",
		Reads:       []*Signal{in},
		Updates:     []*Signal{state},
		States:      []*Signal{state},
	}

	assert.Equal(t, []*Signal{in, state}, op.InputSignals())
	// Derived, not stored: the declared reads list is untouched.
	assert.Equal(t, []*Signal{in}, op.Reads)
}

func TestInputSignalsLowpassReadBack(t *testing.T) {
	in := New("in", Float32, 2)
	out := New("out", Float32, 2)
	op := &Operator{
		Kind:        KindProcessStep,
		Process:     ProcessLowpass,
		Specialized: true,
		Reads:       []*Signal{in},
		Updates:     []*Signal{out},
	}

	assert.Equal(t, []*Signal{in, out}, op.InputSignals())
}

func TestInputSignalsGenericProcessNoReadBack(t *testing.T) {
	in := New("in", Float32, 2)
	out := New("out", Float32, 2)
	op := &Operator{
		Kind:    KindProcessStep,
		Process: "whitenoise",
		Reads:   []*Signal{in},
		Updates: []*Signal{out},
	}

	assert.Equal(t, []*Signal{in}, op.InputSignals())
}

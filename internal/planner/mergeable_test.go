package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vk/signalgrid/internal/signal"
)

// funcOp builds a func-call operator with one read and one set slot.
func funcOp(t *testing.T, label string, usesTime bool) *signal.Operator {
	t.Helper()
	return &signal.Operator{
		Kind:     signal.KindFuncCall,
		Label:    label,
		UsesTime: usesTime,
		Sets:     []*signal.Signal{signal.New(label+".out", signal.Float32, 2)},
		Reads:    []*signal.Signal{signal.New(label+".in", signal.Float32, 2)},
	}
}

func TestMergeableEmptyGroup(t *testing.T) {
	op := funcOp(t, "f", false)
	assert.True(t, Mergeable(op, nil))
}

func TestMergeableKindMismatch(t *testing.T) {
	a := funcOp(t, "a", false)
	b := &signal.Operator{
		Kind:  signal.KindCopy,
		Sets:  []*signal.Signal{signal.New("b.out", signal.Float32, 2)},
		Reads: []*signal.Signal{signal.New("b.in", signal.Float32, 2)},
	}
	assert.False(t, Mergeable(a, []*signal.Operator{b}))
}

func TestMergeableSignalCountMismatch(t *testing.T) {
	a := funcOp(t, "a", false)
	b := funcOp(t, "b", false)
	b.Reads = append(b.Reads, signal.New("b.in2", signal.Float32, 2))
	assert.False(t, Mergeable(a, []*signal.Operator{b}))
}

func TestMergeableDtypeMismatch(t *testing.T) {
	a := funcOp(t, "a", false)
	b := funcOp(t, "b", false)
	b.Reads[0].Dtype = signal.Int32
	assert.False(t, Mergeable(a, []*signal.Operator{b}))
}

func TestMergeableTailShapeMismatch(t *testing.T) {
	a := funcOp(t, "a", false)
	b := funcOp(t, "b", false)
	b.Reads[0] = signal.New("b.in", signal.Float32, 2, 3)
	assert.False(t, Mergeable(a, []*signal.Operator{b}))
}

func TestMergeableAxisZeroMayDiffer(t *testing.T) {
	a := funcOp(t, "a", false)
	b := funcOp(t, "b", false)
	b.Reads[0] = signal.New("b.in", signal.Float32, 7)
	assert.True(t, Mergeable(a, []*signal.Operator{b}))
}

func TestMergeableTrainableMismatch(t *testing.T) {
	a := funcOp(t, "a", false)
	b := funcOp(t, "b", false)
	b.Reads[0].Trainable = true
	assert.False(t, Mergeable(a, []*signal.Operator{b}))
}

func TestMergeableMinibatchedMismatch(t *testing.T) {
	a := funcOp(t, "a", false)
	b := funcOp(t, "b", false)
	b.Reads[0].Minibatched = true
	assert.False(t, Mergeable(a, []*signal.Operator{b}))
}

func TestMergeableCopyIncFlag(t *testing.T) {
	set := &signal.Operator{
		Kind:  signal.KindCopy,
		Sets:  []*signal.Signal{signal.New("x", signal.Float32, 2)},
		Reads: []*signal.Signal{signal.New("a", signal.Float32, 2)},
	}
	inc := &signal.Operator{
		Kind:  signal.KindCopy,
		Inc:   true,
		Sets:  []*signal.Signal{signal.New("y", signal.Float32, 2)},
		Reads: []*signal.Signal{signal.New("b", signal.Float32, 2)},
	}
	assert.False(t, Mergeable(set, []*signal.Operator{inc}))
}

func TestMergeableElementwiseIncRows(t *testing.T) {
	mk := func(rows int) *signal.Operator {
		return &signal.Operator{
			Kind: signal.KindElementwiseInc,
			Incs: []*signal.Signal{signal.New("y", signal.Float32, rows)},
			Reads: []*signal.Signal{
				signal.New("a", signal.Float32, rows),
				signal.New("x", signal.Float32, rows),
			},
		}
	}
	assert.True(t, Mergeable(mk(3), []*signal.Operator{mk(3)}))
	assert.False(t, Mergeable(mk(3), []*signal.Operator{mk(4)}))
}

func TestMergeableFuncCallTimeFlag(t *testing.T) {
	withTime := funcOp(t, "a", true)
	without := funcOp(t, "b", false)
	assert.False(t, Mergeable(withTime, []*signal.Operator{without}))
	assert.True(t, Mergeable(withTime, []*signal.Operator{funcOp(t, "c", true)}))
}

func TestMergeableNeuronModel(t *testing.T) {
	mk := func(model string) *signal.Operator {
		return &signal.Operator{
			Kind:        signal.KindNeuronStep,
			NeuronModel: model,
			Reads:       []*signal.Signal{signal.New("in", signal.Float32, 2)},
			Sets:        []*signal.Signal{signal.New("out", signal.Float32, 2)},
		}
	}
	assert.True(t, Mergeable(mk("lif"), []*signal.Operator{mk("lif")}))
	assert.False(t, Mergeable(mk("lif"), []*signal.Operator{mk("rectified_linear")}))
}

func TestMergeableProcessRules(t *testing.T) {
	mk := func(process string, specialized bool, mode signal.Mode) *signal.Operator {
		return &signal.Operator{
			Kind:        signal.KindProcessStep,
			Process:     process,
			Specialized: specialized,
			Mode:        mode,
			Updates:     []*signal.Signal{signal.New("out", signal.Float32, 2)},
		}
	}

	lp := mk(signal.ProcessLowpass, true, signal.ModeUpdate)
	assert.True(t, Mergeable(mk(signal.ProcessLowpass, true, signal.ModeUpdate), []*signal.Operator{lp}))
	// Specialized process types never mix with other types.
	assert.False(t, Mergeable(mk("alpha", true, signal.ModeUpdate), []*signal.Operator{lp}))
	// Generic processes never mix with specialized ones, in either direction.
	assert.False(t, Mergeable(mk("whitenoise", false, signal.ModeUpdate), []*signal.Operator{lp}))
	assert.False(t, Mergeable(lp, []*signal.Operator{mk("whitenoise", false, signal.ModeUpdate)}))
	// Two generic processes of different types do merge.
	assert.True(t, Mergeable(mk("whitenoise", false, signal.ModeUpdate), []*signal.Operator{mk("brownnoise", false, signal.ModeUpdate)}))
	// Execution mode must match.
	assert.False(t, Mergeable(mk("whitenoise", false, signal.ModeSet), []*signal.Operator{mk("brownnoise", false, signal.ModeUpdate)}))
}

func TestMergeableUserFuncNever(t *testing.T) {
	mk := func() *signal.Operator {
		return &signal.Operator{
			Kind:  signal.KindUserFunc,
			Reads: []*signal.Signal{signal.New("in", signal.Float32, 2)},
			Sets:  []*signal.Signal{signal.New("out", signal.Float32, 2)},
		}
	}
	assert.False(t, Mergeable(mk(), []*signal.Operator{mk()}))
}

// Compatibility with a realized group is transitive: anything that merges
// with the group merges with any of its members.
func TestMergeableTransitivity(t *testing.T) {
	group := []*signal.Operator{funcOp(t, "g0", false), funcOp(t, "g1", false)}
	a := funcOp(t, "a", false)
	b := funcOp(t, "b", false)

	assert.True(t, Mergeable(a, group))
	assert.True(t, Mergeable(b, group))
	assert.True(t, Mergeable(a, []*signal.Operator{b}))
}

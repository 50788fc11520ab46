package planner

import "github.com/vk/signalgrid/internal/signal"

// Mergeable reports whether op may join the candidate group. An empty group
// accepts anything. Otherwise op only needs to be checked against the
// group's first member: members are pairwise mergeable, so compatibility is
// transitive across the group.
//
// Pure predicate; neither op nor the group is modified.
func Mergeable(op *signal.Operator, group []*signal.Operator) bool {
	if len(group) == 0 {
		return true
	}
	c := group[0]

	// Operators batch through a shared kernel, so the kind must match.
	if op.Kind != c.Kind {
		return false
	}

	// Signal lists must line up slot for slot.
	if len(op.Sets) != len(c.Sets) || len(op.Incs) != len(c.Incs) ||
		len(op.Reads) != len(c.Reads) || len(op.Updates) != len(c.Updates) {
		return false
	}

	opAll := op.AllSignals()
	cAll := c.AllSignals()
	for i := range opAll {
		if !compatible(opAll[i], cAll[i]) {
			return false
		}
	}

	switch op.Kind {
	case signal.KindCopy:
		// Overwrites and accumulations cannot share a batch.
		if op.Inc != c.Inc {
			return false
		}
	case signal.KindElementwiseInc:
		// Stacking the arguments into one block relies on broadcasting,
		// which additionally needs the axis-0 extents to agree.
		for i := range opAll {
			if opAll[i].Rows() != cAll[i].Rows() {
				return false
			}
		}
	case signal.KindFuncCall:
		// A function fed simulation time cannot batch with one fed a
		// scalar input; the two are indistinguishable after merging.
		if op.UsesTime != c.UsesTime {
			return false
		}
	case signal.KindNeuronStep:
		if op.NeuronModel != c.NeuronModel {
			return false
		}
	case signal.KindProcessStep:
		// Processes with a dedicated batch implementation merge only
		// with the same process type; generic processes merge with each
		// other but never with specialized ones.
		if c.Specialized {
			if !op.Specialized || op.Process != c.Process {
				return false
			}
		} else if op.Specialized {
			return false
		}
		if op.Mode != c.Mode {
			return false
		}
	case signal.KindUserFunc:
		// Each one may compute something entirely different.
		return false
	}

	return true
}

// compatible reports whether two signals can live in the same base array
// slot: same dtype, same base and display shape beyond axis 0, and matching
// trainable/minibatched flags.
func compatible(s0, s1 *signal.Signal) bool {
	if s0.Dtype != s1.Dtype {
		return false
	}
	if !equalShape(s0.Base().TailShape(), s1.Base().TailShape()) {
		return false
	}
	if !equalShape(s0.TailShape(), s1.TailShape()) {
		return false
	}
	if s0.Trainable != s1.Trainable || s0.Minibatched != s1.Minibatched {
		return false
	}
	return true
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

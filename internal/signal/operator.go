package signal

import "fmt"

// Kind discriminates operator variants. The planners and the layout builder
// switch on the kind tag rather than on concrete types.
type Kind int

const (
	// KindReset overwrites its target with a constant.
	KindReset Kind = iota
	// KindCopy copies one signal into another, either overwriting or
	// accumulating depending on the Inc flag.
	KindCopy
	// KindElementwiseInc accumulates an elementwise product into its
	// target.
	KindElementwiseInc
	// KindFuncCall evaluates a host function, optionally consuming
	// simulation time.
	KindFuncCall
	// KindNeuronStep advances a neuron population one timestep. The model
	// subtype lives in Operator.NeuronModel and its internal state in
	// Operator.States.
	KindNeuronStep
	// KindProcessStep advances a stochastic process one timestep.
	KindProcessStep
	// KindUserFunc wraps an arbitrary user-supplied function. Never
	// batched with anything.
	KindUserFunc
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindReset:
		return "reset"
	case KindCopy:
		return "copy"
	case KindElementwiseInc:
		return "elementwise_inc"
	case KindFuncCall:
		return "func_call"
	case KindNeuronStep:
		return "neuron_step"
	case KindProcessStep:
		return "process_step"
	case KindUserFunc:
		return "user_func"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Mode describes how a process-step operator applies its result.
type Mode int

const (
	ModeUpdate Mode = iota
	ModeInc
	ModeSet
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeUpdate:
		return "update"
	case ModeInc:
		return "inc"
	case ModeSet:
		return "set"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ProcessLowpass is the process type of the first-order lowpass filter. It
// has a dedicated batch implementation, and it must read back its update
// target each step because the filter output feeds the next step.
const ProcessLowpass = "lowpass"

// Operator is one atomic computation unit over signal slices. Operators are
// supplied whole by the upstream graph builder and never mutated here; the
// same operators can safely be planned more than once.
type Operator struct {
	Kind  Kind
	Label string

	// Sets, Incs, Reads and Updates list the signals the operator
	// overwrites, accumulates into, reads, and reads-then-writes. Order
	// within each list is significant: the i-th entry is the operator's
	// i-th slot of that role.
	Sets    []*Signal
	Incs    []*Signal
	Reads   []*Signal
	Updates []*Signal

	// Inc distinguishes accumulating copies from overwriting copies.
	Inc bool
	// UsesTime marks func-call operators whose function consumes the
	// simulation time.
	UsesTime bool
	// NeuronModel is the exact model subtype of a neuron-step operator.
	NeuronModel string
	// States lists a neuron-step operator's internal state signals. They
	// are read back each step even though they appear under Updates.
	States []*Signal
	// Process is the process type of a process-step operator.
	Process string
	// Specialized marks process types with a dedicated batch
	// implementation; generic processes fall back to stepwise execution.
	Specialized bool
	// Mode is the application mode of a process-step operator.
	Mode Mode
}

// AllSignals returns the operator's signals in role order:
// sets, incs, reads, updates.
func (op *Operator) AllSignals() []*Signal {
	all := make([]*Signal, 0, len(op.Sets)+len(op.Incs)+len(op.Reads)+len(op.Updates))
	all = append(all, op.Sets...)
	all = append(all, op.Incs...)
	all = append(all, op.Reads...)
	all = append(all, op.Updates...)
	return all
}

// InputSignals returns every signal the operator needs as input: the declared
// reads plus any implicit read-backs (neuron state, lowpass filter output).
// The result is freshly derived on every call; stored lists are never
// modified.
func (op *Operator) InputSignals() []*Signal {
	inputs := make([]*Signal, 0, len(op.Reads)+len(op.States)+len(op.Updates))
	inputs = append(inputs, op.Reads...)
	switch op.Kind {
	case KindNeuronStep:
		inputs = append(inputs, op.States...)
	case KindProcessStep:
		if op.Process == ProcessLowpass {
			inputs = append(inputs, op.Updates...)
		}
	}
	return inputs
}

// String implements fmt.Stringer.
func (op *Operator) String() string {
	if op.Label != "" {
		return fmt.Sprintf("Operator(%s, %s)", op.Kind, op.Label)
	}
	return fmt.Sprintf("Operator(%s)", op.Kind)
}

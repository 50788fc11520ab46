package layout

import "github.com/vk/signalgrid/internal/signal"

// Key identifies one base array within a single layout build. Keys are
// minted by a counter local to the build; they carry no meaning across
// builds.
type Key int

// BaseArray is one contiguous backing buffer holding the concatenated
// initial values of the base signals assigned to it. All assigned signals
// share dtype, tail shape, and the trainable/minibatched flags.
type BaseArray struct {
	Key           Key
	Dtype         signal.Dtype
	Rows          int
	TailShape     []int
	Trainable     bool
	Minibatched   bool
	MinibatchSize int
	// Data is the flattened buffer in row-major order. Minibatched arrays
	// carry the minibatch copies along an added trailing axis, so each
	// logical element occupies MinibatchSize consecutive slots.
	Data []float64
}

// RowSize returns the number of buffer slots per axis-0 row.
func (b *BaseArray) RowSize() int {
	n := 1
	for _, d := range b.TailShape {
		n *= d
	}
	if b.Minibatched {
		n *= b.MinibatchSize
	}
	return n
}

// Row returns the buffer slots of one axis-0 row.
func (b *BaseArray) Row(r int) []float64 {
	size := b.RowSize()
	return b.Data[r*size : (r+1)*size]
}

// TensorSignal is the compiled view descriptor mapping a signal to a set of
// axis-0 rows of a base array. Descriptors for view signals are derived from
// their base's descriptor, never allocated independently.
type TensorSignal struct {
	Key         Key
	Dtype       signal.Dtype
	Shape       []int
	Minibatched bool
	// Indices lists the base array rows the signal occupies, in order.
	Indices []int
}

// Reshape returns a descriptor over the same rows with a new display shape.
func (t *TensorSignal) Reshape(shape []int) *TensorSignal {
	return &TensorSignal{
		Key:         t.Key,
		Dtype:       t.Dtype,
		Shape:       shape,
		Minibatched: t.Minibatched,
		Indices:     t.Indices,
	}
}

// slice returns a descriptor selecting every step-th row starting at start,
// taking count rows in total. step may be negative.
func (t *TensorSignal) slice(start, step, count int, shape []int) *TensorSignal {
	indices := make([]int, 0, count)
	for k := 0; k < count; k++ {
		indices = append(indices, t.Indices[start+k*step])
	}
	return &TensorSignal{
		Key:         t.Key,
		Dtype:       t.Dtype,
		Shape:       shape,
		Minibatched: t.Minibatched,
		Indices:     indices,
	}
}

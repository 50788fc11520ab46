// Package signal defines the data model consumed by the planners and the
// layout builder: signals (handles to regions of shared state, either a base
// allocation or a view onto one) and operators (kind-tagged computation units
// that read, overwrite, accumulate into, or update those signals).
package signal

import "fmt"

// Signal is a handle to a region of shared state. A base signal owns its
// region; a view aliases a sub-range of its base. Signals are immutable once
// handed to a planner.
type Signal struct {
	// Label is a human-readable name used in logs and error messages.
	Label string
	// Dtype is the element type of the signal's state.
	Dtype Dtype
	// Shape is the display shape. A nil/empty shape denotes a scalar.
	Shape []int
	// Trainable marks signals whose values participate in optimization.
	Trainable bool
	// Minibatched marks signals that carry one copy per minibatch item.
	Minibatched bool
	// Initial holds the flattened initial value in row-major order. A
	// single element is broadcast across the full shape at layout time.
	Initial []float64

	// base is nil for base signals and non-nil for views.
	base *Signal
	// ElemOffset is the view's starting position within the base, in
	// elements. Zero for base signals.
	ElemOffset int
	// ElemStrides holds per-axis strides in elements. Only axis 0 may be
	// non-contiguous; all later axes must have their natural stride.
	ElemStrides []int
}

// New returns a base signal with a zero initial value.
func New(label string, dtype Dtype, shape ...int) *Signal {
	n := prod(shape)
	return &Signal{
		Label:   label,
		Dtype:   dtype,
		Shape:   shape,
		Initial: make([]float64, n),
	}
}

// Base returns the signal's base, or the signal itself if it is not a view.
func (s *Signal) Base() *Signal {
	if s.base == nil {
		return s
	}
	return s.base
}

// IsView reports whether the signal aliases another signal's state.
func (s *Signal) IsView() bool { return s.base != nil }

// Size returns the number of elements in the display shape. Scalars count
// as one element.
func (s *Signal) Size() int { return prod(s.Shape) }

// Rows returns the extent along axis 0, treating scalars as length 1.
func (s *Signal) Rows() int {
	if len(s.Shape) == 0 {
		return 1
	}
	return s.Shape[0]
}

// TailShape returns the shape beyond axis 0.
func (s *Signal) TailShape() []int {
	if len(s.Shape) == 0 {
		return nil
	}
	return s.Shape[1:]
}

// RowSize returns the number of elements per axis-0 row.
func (s *Signal) RowSize() int { return prod(s.TailShape()) }

// Reshape returns a view covering the signal's entire state with a new
// display shape. The element count must be preserved.
func (s *Signal) Reshape(shape ...int) *Signal {
	if prod(shape) != s.Size() {
		panic(fmt.Sprintf("signal: reshape %v -> %v changes element count", s.Shape, shape))
	}
	v := *s
	v.Shape = shape
	v.base = s.Base()
	v.ElemOffset = s.ElemOffset
	v.ElemStrides = naturalStrides(shape)
	return &v
}

// Slice returns a view selecting rows [start, stop) of axis 0 with the given
// row step. The tail shape is unchanged, so the view stays layout-compatible
// with its base.
func (s *Signal) Slice(start, stop, step int) *Signal {
	if step == 0 {
		panic("signal: slice step must be non-zero")
	}
	count := (stop - start + step - 1) / step
	if step < 0 {
		count = (start - stop - step - 1) / -step
	}
	if count < 0 {
		count = 0
	}
	rowSize := s.RowSize()
	v := *s
	v.Shape = append([]int{count}, s.TailShape()...)
	v.base = s.Base()
	v.ElemOffset = s.ElemOffset + start*rowSize
	v.ElemStrides = append([]int{step * rowSize}, naturalStrides(s.TailShape())...)
	v.Initial = nil
	return &v
}

// String implements fmt.Stringer.
func (s *Signal) String() string {
	if s.IsView() {
		return fmt.Sprintf("Signal(%s, view of %s, shape=%v)", s.Label, s.Base().Label, s.Shape)
	}
	return fmt.Sprintf("Signal(%s, %s, shape=%v)", s.Label, s.Dtype, s.Shape)
}

func prod(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// naturalStrides returns the contiguous row-major strides for a shape.
func naturalStrides(shape []int) []int {
	strides := make([]int, len(shape))
	n := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = n
		n *= shape[i]
	}
	return strides
}

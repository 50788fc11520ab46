// Package layout packs ordered base signals into a small number of
// contiguous backing arrays and compiles a view descriptor for every signal,
// base and view alike. It is the final stage of the compile pass: it
// consumes the signal order produced by sigorder and the plan produced by a
// planner, and its output is handed to the execution backend.
package layout

import (
	"context"
	"fmt"
	"math"

	"github.com/vk/signalgrid/internal/ctxlog"
	"github.com/vk/signalgrid/internal/planner"
	"github.com/vk/signalgrid/internal/signal"
)

// Config holds the layout parameters.
type Config struct {
	// FloatType is the simulation precision. Both float widths collapse
	// to it. Must be Float32 or Float64.
	FloatType signal.Dtype
	// MinibatchSize is the number of copies tiled along the trailing axis
	// of minibatched signals.
	MinibatchSize int
}

// UnsupportedSignalError reports a signal the layout cannot express: an
// unsupported dtype, or a view that is both sliced and reshaped relative to
// its base.
type UnsupportedSignalError struct {
	Sig    *signal.Signal
	Reason string
}

// Error implements the error interface.
func (e *UnsupportedSignalError) Error() string {
	return fmt.Sprintf("unsupported signal %s: %s", e.Sig, e.Reason)
}

// ConsistencyError reports that the post-build checks failed. It signals an
// internal defect in the layout builder, not bad input.
type ConsistencyError struct {
	Sig    *signal.Signal
	Reason string
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("layout consistency check failed for %s: %s", e.Sig, e.Reason)
}

// Build partitions the ordered base signals into backing arrays and compiles
// every signal's view descriptor. sigs must contain base signals only, in
// their final memory order; plan supplies the operator groups whose read
// patterns drive the partitioning and whose signals (views included) need
// descriptors.
//
// On error, no partial layout is returned.
func Build(ctx context.Context, sigs []*signal.Signal, plan planner.Plan, cfg Config) (map[Key]*BaseArray, map[*signal.Signal]*TensorSignal, error) {
	logger := ctxlog.FromContext(ctx)

	if !cfg.FloatType.IsFloat() {
		return nil, nil, fmt.Errorf("layout: float type must be a floating dtype, got %s", cfg.FloatType)
	}
	if cfg.MinibatchSize < 1 {
		return nil, nil, fmt.Errorf("layout: minibatch size must be positive, got %d", cfg.MinibatchSize)
	}

	sigIdxs := make(map[*signal.Signal]int, len(sigs))
	for i, s := range sigs {
		sigIdxs[s] = i
	}

	breaks := partitionBreaks(sigs, sigIdxs, plan)

	arrays := make(map[Key]*BaseArray)
	descriptors := make(map[*signal.Signal]*TensorSignal)
	currKeys := make(map[string]Key)
	nextKey := Key(0)

	for i, sig := range sigs {
		if sig.IsView() {
			return nil, nil, fmt.Errorf("layout: signal order contains view %s; only bases are ordered", sig)
		}
		if _, dup := descriptors[sig]; dup {
			return nil, nil, fmt.Errorf("layout: signal %s appears twice in the order", sig)
		}

		if breaks[i] {
			// Close off every open allocation run; signals after a
			// partition break never share an array with signals
			// before it. Keys are minted lazily below so their
			// numbering follows signal-encounter order.
			clear(currKeys)
		}

		dtype, err := collapseDtype(sig, cfg.FloatType)
		if err != nil {
			return nil, nil, err
		}

		shape := normalShape(sig.Shape)
		params := paramsKey(dtype, shape[1:], sig.Trainable, sig.Minibatched)
		key, ok := currKeys[params]
		if !ok {
			key = nextKey
			nextKey++
			currKeys[params] = key
		}

		values, err := initialValues(sig, dtype, cfg.MinibatchSize)
		if err != nil {
			return nil, nil, err
		}

		arr, ok := arrays[key]
		if !ok {
			arr = &BaseArray{
				Key:           key,
				Dtype:         dtype,
				TailShape:     shape[1:],
				Trainable:     sig.Trainable,
				Minibatched:   sig.Minibatched,
				MinibatchSize: cfg.MinibatchSize,
			}
			arrays[key] = arr
		}
		start := arr.Rows
		arr.Data = append(arr.Data, values...)
		arr.Rows += shape[0]

		indices := make([]int, shape[0])
		for k := range indices {
			indices[k] = start + k
		}
		descriptors[sig] = &TensorSignal{
			Key:         key,
			Dtype:       dtype,
			Shape:       shape,
			Minibatched: sig.Minibatched,
			Indices:     indices,
		}
	}

	if err := addViews(plan, descriptors); err != nil {
		return nil, nil, err
	}

	if err := verify(arrays, descriptors); err != nil {
		return nil, nil, err
	}

	logger.Debug("layout complete", "signals", len(descriptors), "base_arrays", len(arrays))
	return arrays, descriptors, nil
}

// partitionBreaks scans the signal order with an open-interval count of the
// groups whose per-slot signal span straddles each position. Wherever the
// count returns to zero the run is independently allocatable, so fresh
// layout keys can start. Reset groups are excluded: the big constant-reset
// block would otherwise override most of the partitioning.
func partitionBreaks(sigs []*signal.Signal, sigIdxs map[*signal.Signal]int, plan planner.Plan) map[int]bool {
	diff := make(map[*signal.Signal]int)
	for _, ops := range plan {
		if len(ops) == 0 || ops[0].Kind == signal.KindReset {
			continue
		}
		all := make([][]*signal.Signal, len(ops))
		for k, op := range ops {
			all[k] = op.AllSignals()
		}
		for slot := range all[0] {
			minSig, maxSig := all[0][slot].Base(), all[0][slot].Base()
			for _, sigsOf := range all[1:] {
				b := sigsOf[slot].Base()
				if sigIdxs[b] < sigIdxs[minSig] {
					minSig = b
				}
				if sigIdxs[b] > sigIdxs[maxSig] {
					maxSig = b
				}
			}
			diff[minSig]++
			diff[maxSig]--
		}
	}

	breaks := make(map[int]bool)
	open := 0
	for i, s := range sigs {
		if d, ok := diff[s]; ok {
			open += d
		}
		if open == 0 {
			breaks[i+1] = true
		}
	}
	return breaks
}

// collapseDtype maps the signal's dtype onto the simulation dtypes: floats
// to the configured precision, ints to int32.
func collapseDtype(sig *signal.Signal, floatType signal.Dtype) (signal.Dtype, error) {
	switch {
	case sig.Dtype.IsFloat():
		return floatType, nil
	case sig.Dtype.IsInt():
		return signal.Int32, nil
	default:
		return signal.DtypeInvalid, &UnsupportedSignalError{Sig: sig, Reason: fmt.Sprintf("dtype %s", sig.Dtype)}
	}
}

// initialValues returns the signal's initial value cast to dtype, broadcast
// to the full shape if scalar, and tiled along an added trailing axis if
// minibatched.
func initialValues(sig *signal.Signal, dtype signal.Dtype, minibatch int) ([]float64, error) {
	size := sig.Size()
	src := sig.Initial
	if len(src) != size && len(src) != 1 {
		return nil, fmt.Errorf("layout: signal %s has %d initial values for %d elements", sig, len(src), size)
	}

	values := make([]float64, size)
	for i := range values {
		v := src[0]
		if len(src) == size {
			v = src[i]
		}
		values[i] = cast(v, dtype)
	}

	if !sig.Minibatched {
		return values, nil
	}
	tiled := make([]float64, 0, size*minibatch)
	for _, v := range values {
		for m := 0; m < minibatch; m++ {
			tiled = append(tiled, v)
		}
	}
	return tiled, nil
}

func cast(v float64, dtype signal.Dtype) float64 {
	switch dtype {
	case signal.Float32:
		return float64(float32(v))
	case signal.Int32:
		return float64(int32(v))
	default:
		return v
	}
}

// addViews derives descriptors for every view signal in the plan from its
// base's descriptor. Equal element count means a pure reshape; otherwise the
// view must be a strided axis-0 slice with the base's tail shape.
func addViews(plan planner.Plan, descriptors map[*signal.Signal]*TensorSignal) error {
	for _, ops := range plan {
		for _, op := range ops {
			for _, sig := range op.AllSignals() {
				if !sig.IsView() {
					continue
				}
				if _, done := descriptors[sig]; done {
					continue
				}
				base := descriptors[sig.Base()]
				if base == nil {
					return fmt.Errorf("layout: view %s has no laid-out base", sig)
				}

				if sig.Size() == sig.Base().Size() {
					descriptors[sig] = base.Reshape(normalShape(sig.Shape))
					continue
				}

				if !equalShape(sig.TailShape(), sig.Base().TailShape()) {
					return &UnsupportedSignalError{Sig: sig, Reason: "slicing and reshaping the same signal is not supported"}
				}
				if len(sig.ElemStrides) == 0 {
					return &UnsupportedSignalError{Sig: sig, Reason: "slice view without stride information"}
				}
				if !unitInnerStrides(sig.ElemStrides, sig.TailShape()) {
					return &UnsupportedSignalError{Sig: sig, Reason: "non-contiguous strides beyond axis 0"}
				}
				rowSize := sig.Base().RowSize()

				start := sig.ElemOffset / rowSize
				step := sig.ElemStrides[0] / rowSize
				descriptors[sig] = base.slice(start, step, sig.Rows(), normalShape(sig.Shape))
			}
		}
	}
	return nil
}

// verify re-derives every signal's initial value from its descriptor and
// the backing arrays. Always checked; a failure means the builder itself is
// broken.
func verify(arrays map[Key]*BaseArray, descriptors map[*signal.Signal]*TensorSignal) error {
	for sig, t := range descriptors {
		if !equalShape(t.Shape, normalShape(sig.Shape)) {
			return &ConsistencyError{Sig: sig, Reason: fmt.Sprintf("descriptor shape %v does not match signal shape %v", t.Shape, sig.Shape)}
		}

		arr := arrays[t.Key]
		if arr == nil {
			return &ConsistencyError{Sig: sig, Reason: "descriptor points at a missing base array"}
		}

		expected := viewInitial(sig)
		// Row width comes from the backing array, not the display shape:
		// reshape views keep their base's row indices under a new shape.
		rowSize := 1
		for _, d := range arr.TailShape {
			rowSize *= d
		}
		if len(expected) != len(t.Indices)*rowSize {
			return &ConsistencyError{Sig: sig, Reason: fmt.Sprintf("descriptor covers %d elements for %d initial values", len(t.Indices)*rowSize, len(expected))}
		}
		for k, r := range t.Indices {
			row := arr.Row(r)
			for e := 0; e < rowSize; e++ {
				want := expected[k*rowSize+e]
				var got float64
				if arr.Minibatched {
					// Every minibatch copy must match.
					for m := 0; m < arr.MinibatchSize; m++ {
						got = row[e*arr.MinibatchSize+m]
						if !allclose(got, want) {
							return &ConsistencyError{Sig: sig, Reason: fmt.Sprintf("placed value %g does not match initial value %g", got, want)}
						}
					}
				} else {
					got = row[e]
					if !allclose(got, want) {
						return &ConsistencyError{Sig: sig, Reason: fmt.Sprintf("placed value %g does not match initial value %g", got, want)}
					}
				}
			}
		}
	}
	return nil
}

// viewInitial returns the signal's initial value, deriving it from the base
// for view signals, broadcast to the full (normalized) shape.
func viewInitial(sig *signal.Signal) []float64 {
	size := sig.Size()
	if !sig.IsView() {
		return broadcast(sig.Initial, size)
	}

	base := sig.Base()
	baseVals := broadcast(base.Initial, base.Size())
	rowSize := base.RowSize()

	if sig.Size() == base.Size() {
		return baseVals
	}

	start := sig.ElemOffset / rowSize
	step := sig.ElemStrides[0] / rowSize
	out := make([]float64, 0, size)
	for k := 0; k < sig.Rows(); k++ {
		r := start + k*step
		out = append(out, baseVals[r*rowSize:(r+1)*rowSize]...)
	}
	return out
}

func broadcast(src []float64, size int) []float64 {
	if len(src) == size {
		return src
	}
	out := make([]float64, size)
	for i := range out {
		out[i] = src[0]
	}
	return out
}

// paramsKey canonicalizes the properties signals must share to live in the
// same base array.
func paramsKey(dtype signal.Dtype, tail []int, trainable, minibatched bool) string {
	return fmt.Sprintf("%s|%v|%t|%t", dtype, tail, trainable, minibatched)
}

func normalShape(shape []int) []int {
	if len(shape) == 0 {
		return []int{1}
	}
	return shape
}

func unitInnerStrides(strides, tail []int) bool {
	n := 1
	for i := len(tail) - 1; i >= 0; i-- {
		if strides[i+1] != n {
			return false
		}
		n *= tail[i]
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

func allclose(a, b float64) bool {
	return math.Abs(a-b) <= 1e-8+1e-5*math.Abs(b)
}

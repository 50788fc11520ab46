package signal

import "fmt"

// Dtype identifies the element type of a signal's backing state.
type Dtype int

const (
	DtypeInvalid Dtype = iota
	Float32
	Float64
	Int32
	Int64
)

// String implements fmt.Stringer.
func (d Dtype) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("Dtype(%d)", int(d))
	}
}

// IsFloat reports whether d is one of the floating point widths.
func (d Dtype) IsFloat() bool {
	return d == Float32 || d == Float64
}

// IsInt reports whether d is one of the integer widths.
func (d Dtype) IsInt() bool {
	return d == Int32 || d == Int64
}

// ParseDtype converts a configuration string into a Dtype. It returns
// DtypeInvalid and an error for anything it does not recognize.
func ParseDtype(s string) (Dtype, error) {
	switch s {
	case "float32":
		return Float32, nil
	case "float64":
		return Float64, nil
	case "int32":
		return Int32, nil
	case "int64":
		return Int64, nil
	default:
		return DtypeInvalid, fmt.Errorf("unknown dtype %q", s)
	}
}

package node

import (
	"math"

	"github.com/ssargent/skadi/pkg/e57"
)

// Integer is a terminal node holding an integer value with inclusive
// minimum/maximum bounds. The value and bounds are fixed at creation.
type Integer struct {
	base
	value   int64
	minimum int64
	maximum int64
}

// NewInteger creates an integer node. minimum <= value <= maximum must
// hold; a prototype field that carries no meaningful value should use
// value = 0 when in bounds, or value = minimum otherwise.
func NewInteger(dest Container, value, minimum, maximum int64) (*Integer, error) {
	b, err := newBase(dest)
	if err != nil {
		return nil, err
	}
	if minimum > maximum {
		return nil, e57.Newf(e57.BadAPIArgument, "integer minimum %d > maximum %d", minimum, maximum)
	}
	if value < minimum || value > maximum {
		return nil, e57.Newf(e57.ValueOutOfBounds, "integer value %d outside [%d, %d]", value, minimum, maximum)
	}
	return &Integer{base: b, value: value, minimum: minimum, maximum: maximum}, nil
}

func (n *Integer) Kind() Kind { return KindInteger }

// Value returns the stored integer value.
func (n *Integer) Value() (int64, error) {
	if err := n.checkOpen(); err != nil {
		return 0, err
	}
	return n.value, nil
}

// Minimum returns the declared lower bound.
func (n *Integer) Minimum() (int64, error) {
	if err := n.checkOpen(); err != nil {
		return 0, err
	}
	return n.minimum, nil
}

// Maximum returns the declared upper bound.
func (n *Integer) Maximum() (int64, error) {
	if err := n.checkOpen(); err != nil {
		return 0, err
	}
	return n.maximum, nil
}

func (n *Integer) Verify(bool) error {
	if !n.dest.IsOpen() {
		return nil
	}
	if n.value < n.minimum || n.value > n.maximum || n.minimum > n.maximum {
		return e57.Newf(e57.InvarianceViolation, "integer %q", n.PathName())
	}
	return nil
}

// ScaledInteger is a terminal node holding a raw integer value that
// represents the physical quantity rawValue*scale + offset. The raw
// value and its bounds follow the Integer rules; scale and offset are
// fixed at creation.
type ScaledInteger struct {
	base
	raw     int64
	minimum int64
	maximum int64
	scale   float64
	offset  float64
}

// NewScaledInteger creates a scaled integer node. The represented
// minimum and maximum must remain finite after scaling; a scale of zero
// is rejected because it cannot round-trip any value.
func NewScaledInteger(dest Container, raw, minimum, maximum int64, scale, offset float64) (*ScaledInteger, error) {
	b, err := newBase(dest)
	if err != nil {
		return nil, err
	}
	if minimum > maximum {
		return nil, e57.Newf(e57.BadAPIArgument, "scaled integer minimum %d > maximum %d", minimum, maximum)
	}
	if raw < minimum || raw > maximum {
		return nil, e57.Newf(e57.ValueOutOfBounds, "scaled integer raw value %d outside [%d, %d]", raw, minimum, maximum)
	}
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) || math.IsNaN(offset) || math.IsInf(offset, 0) {
		return nil, e57.Newf(e57.BadAPIArgument, "invalid scale %v / offset %v", scale, offset)
	}
	for _, bound := range []int64{minimum, maximum} {
		if v := float64(bound)*scale + offset; math.IsInf(v, 0) {
			return nil, e57.Newf(e57.ScaledValueNotRepresentable, "bound %d with scale %v offset %v", bound, scale, offset)
		}
	}
	return &ScaledInteger{base: b, raw: raw, minimum: minimum, maximum: maximum, scale: scale, offset: offset}, nil
}

func (n *ScaledInteger) Kind() Kind { return KindScaledInteger }

// RawValue returns the stored raw integer value.
func (n *ScaledInteger) RawValue() (int64, error) {
	if err := n.checkOpen(); err != nil {
		return 0, err
	}
	return n.raw, nil
}

// ScaledValue returns rawValue*scale + offset.
func (n *ScaledInteger) ScaledValue() (float64, error) {
	if err := n.checkOpen(); err != nil {
		return 0, err
	}
	return float64(n.raw)*n.scale + n.offset, nil
}

// Minimum returns the declared raw lower bound.
func (n *ScaledInteger) Minimum() (int64, error) {
	if err := n.checkOpen(); err != nil {
		return 0, err
	}
	return n.minimum, nil
}

// Maximum returns the declared raw upper bound.
func (n *ScaledInteger) Maximum() (int64, error) {
	if err := n.checkOpen(); err != nil {
		return 0, err
	}
	return n.maximum, nil
}

// Scale returns the declared scale factor.
func (n *ScaledInteger) Scale() (float64, error) {
	if err := n.checkOpen(); err != nil {
		return 0, err
	}
	return n.scale, nil
}

// Offset returns the declared offset.
func (n *ScaledInteger) Offset() (float64, error) {
	if err := n.checkOpen(); err != nil {
		return 0, err
	}
	return n.offset, nil
}

func (n *ScaledInteger) Verify(bool) error {
	if !n.dest.IsOpen() {
		return nil
	}
	if n.raw < n.minimum || n.raw > n.maximum || n.minimum > n.maximum || n.scale == 0 {
		return e57.Newf(e57.InvarianceViolation, "scaled integer %q", n.PathName())
	}
	return nil
}

// FloatPrecision selects the on-disk width of a float node's values.
type FloatPrecision int

const (
	// Single stores values as 32-bit IEEE-754.
	Single FloatPrecision = iota
	// Double stores values as 64-bit IEEE-754.
	Double
)

// Float is a terminal node holding a floating point value with bounds
// and a declared storage precision.
type Float struct {
	base
	value     float64
	precision FloatPrecision
	minimum   float64
	maximum   float64
}

// NewFloat creates a float node. With Single precision the value and
// both bounds must be representable as float32; larger magnitudes are a
// Real64TooLarge error, never a silent truncation.
func NewFloat(dest Container, value float64, precision FloatPrecision, minimum, maximum float64) (*Float, error) {
	b, err := newBase(dest)
	if err != nil {
		return nil, err
	}
	if precision != Single && precision != Double {
		return nil, e57.Newf(e57.BadAPIArgument, "invalid float precision %d", precision)
	}
	if math.IsNaN(minimum) || math.IsNaN(maximum) || minimum > maximum {
		return nil, e57.Newf(e57.BadAPIArgument, "float minimum %v > maximum %v", minimum, maximum)
	}
	if math.IsNaN(value) || value < minimum || value > maximum {
		return nil, e57.Newf(e57.ValueOutOfBounds, "float value %v outside [%v, %v]", value, minimum, maximum)
	}
	if precision == Single {
		for _, v := range []float64{value, minimum, maximum} {
			if fitsFloat32Err(v) != nil {
				return nil, fitsFloat32Err(v)
			}
		}
	}
	return &Float{base: b, value: value, precision: precision, minimum: minimum, maximum: maximum}, nil
}

// fitsFloat32Err reports Real64TooLarge when a finite float64 exceeds
// the float32 range.
func fitsFloat32Err(v float64) error {
	if !math.IsInf(v, 0) && math.Abs(v) > math.MaxFloat32 {
		return e57.Newf(e57.Real64TooLarge, "%v exceeds single precision range", v)
	}
	return nil
}

func (n *Float) Kind() Kind { return KindFloat }

// Value returns the stored value.
func (n *Float) Value() (float64, error) {
	if err := n.checkOpen(); err != nil {
		return 0, err
	}
	return n.value, nil
}

// Precision returns the declared storage precision.
func (n *Float) Precision() (FloatPrecision, error) {
	if err := n.checkOpen(); err != nil {
		return Single, err
	}
	return n.precision, nil
}

// Minimum returns the declared lower bound.
func (n *Float) Minimum() (float64, error) {
	if err := n.checkOpen(); err != nil {
		return 0, err
	}
	return n.minimum, nil
}

// Maximum returns the declared upper bound.
func (n *Float) Maximum() (float64, error) {
	if err := n.checkOpen(); err != nil {
		return 0, err
	}
	return n.maximum, nil
}

func (n *Float) Verify(bool) error {
	if !n.dest.IsOpen() {
		return nil
	}
	if n.value < n.minimum || n.value > n.maximum || n.minimum > n.maximum {
		return e57.Newf(e57.InvarianceViolation, "float %q", n.PathName())
	}
	return nil
}

// String is a terminal node holding a UTF-8 string value.
type String struct {
	base
	value string
}

// NewString creates a string node.
func NewString(dest Container, value string) (*String, error) {
	b, err := newBase(dest)
	if err != nil {
		return nil, err
	}
	return &String{base: b, value: value}, nil
}

func (n *String) Kind() Kind { return KindString }

// Value returns the stored string.
func (n *String) Value() (string, error) {
	if err := n.checkOpen(); err != nil {
		return "", err
	}
	return n.value, nil
}

func (n *String) Verify(bool) error { return nil }

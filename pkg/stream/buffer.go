package stream

import (
	"math"

	"github.com/ssargent/skadi/pkg/e57"
)

// MemoryType identifies the in-memory representation a Buffer wraps.
type MemoryType int

const (
	MemInt8 MemoryType = iota
	MemInt16
	MemInt32
	MemInt64
	MemUInt8
	MemUInt16
	MemUInt32
	MemUInt64
	MemReal32
	MemReal64
	MemUString
)

func (m MemoryType) String() string {
	switch m {
	case MemInt8:
		return "Int8"
	case MemInt16:
		return "Int16"
	case MemInt32:
		return "Int32"
	case MemInt64:
		return "Int64"
	case MemUInt8:
		return "UInt8"
	case MemUInt16:
		return "UInt16"
	case MemUInt32:
		return "UInt32"
	case MemUInt64:
		return "UInt64"
	case MemReal32:
		return "Real32"
	case MemReal64:
		return "Real64"
	case MemUString:
		return "UString"
	default:
		return "Unknown"
	}
}

func (m MemoryType) numeric() bool { return m != MemUString }

// BufferOptions control how values are converted between a buffer's
// memory representation and the bound field's on-disk representation.
type BufferOptions struct {
	// DoConversion permits representation changes (for example int32
	// memory against an integer field, or integer memory against a
	// float field). Without it any mismatch is a ConversionRequired
	// error.
	DoConversion bool

	// DoScaling applies rawValue*scale + offset when reading a scaled
	// integer field and the inverse when writing one. Without it the
	// buffer sees raw values.
	DoScaling bool
}

// Buffer associates one prototype field, by pathname, with a typed
// slice owned by the caller. The engine moves up to len(slice) records
// per transfer call directly in and out of that slice.
type Buffer struct {
	path     string
	mem      MemoryType
	opts     BufferOptions
	capacity int

	i8  []int8
	i16 []int16
	i32 []int32
	i64 []int64
	u8  []uint8
	u16 []uint16
	u32 []uint32
	u64 []uint64
	f32 []float32
	f64 []float64
	str []string
}

// NewBuffer wraps a caller-owned slice as a transfer buffer for the
// prototype field at the given pathname. data must be a non-empty slice
// of a supported element type.
func NewBuffer(path string, data any, opts BufferOptions) (*Buffer, error) {
	if path == "" {
		return nil, e57.New(e57.BadAPIArgument, "empty buffer pathname")
	}
	b := &Buffer{path: path, opts: opts}
	switch v := data.(type) {
	case []int8:
		b.mem, b.i8, b.capacity = MemInt8, v, len(v)
	case []int16:
		b.mem, b.i16, b.capacity = MemInt16, v, len(v)
	case []int32:
		b.mem, b.i32, b.capacity = MemInt32, v, len(v)
	case []int64:
		b.mem, b.i64, b.capacity = MemInt64, v, len(v)
	case []uint8:
		b.mem, b.u8, b.capacity = MemUInt8, v, len(v)
	case []uint16:
		b.mem, b.u16, b.capacity = MemUInt16, v, len(v)
	case []uint32:
		b.mem, b.u32, b.capacity = MemUInt32, v, len(v)
	case []uint64:
		b.mem, b.u64, b.capacity = MemUInt64, v, len(v)
	case []float32:
		b.mem, b.f32, b.capacity = MemReal32, v, len(v)
	case []float64:
		b.mem, b.f64, b.capacity = MemReal64, v, len(v)
	case []string:
		b.mem, b.str, b.capacity = MemUString, v, len(v)
	default:
		return nil, e57.Newf(e57.BadAPIArgument, "buffer %q has unsupported element type %T", path, data)
	}
	if b.capacity == 0 {
		return nil, e57.Newf(e57.BadAPIArgument, "buffer %q wraps an empty slice", path)
	}
	return b, nil
}

// PathName returns the prototype field pathname the buffer is bound to.
func (b *Buffer) PathName() string { return b.path }

// Capacity returns the number of records the buffer can hold.
func (b *Buffer) Capacity() int { return b.capacity }

// MemoryType returns the wrapped slice's element representation.
func (b *Buffer) MemoryType() MemoryType { return b.mem }

// setInt stores an integer into the slot, range-checked against the
// memory representation.
func (b *Buffer) setInt(slot int, v int64) error {
	switch b.mem {
	case MemInt8:
		if v < math.MinInt8 || v > math.MaxInt8 {
			return b.notRepresentable(v)
		}
		b.i8[slot] = int8(v)
	case MemInt16:
		if v < math.MinInt16 || v > math.MaxInt16 {
			return b.notRepresentable(v)
		}
		b.i16[slot] = int16(v)
	case MemInt32:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return b.notRepresentable(v)
		}
		b.i32[slot] = int32(v)
	case MemInt64:
		b.i64[slot] = v
	case MemUInt8:
		if v < 0 || v > math.MaxUint8 {
			return b.notRepresentable(v)
		}
		b.u8[slot] = uint8(v)
	case MemUInt16:
		if v < 0 || v > math.MaxUint16 {
			return b.notRepresentable(v)
		}
		b.u16[slot] = uint16(v)
	case MemUInt32:
		if v < 0 || v > math.MaxUint32 {
			return b.notRepresentable(v)
		}
		b.u32[slot] = uint32(v)
	case MemUInt64:
		if v < 0 {
			return b.notRepresentable(v)
		}
		b.u64[slot] = uint64(v)
	default:
		return e57.Newf(e57.Internal, "setInt on %s buffer %q", b.mem, b.path)
	}
	return nil
}

func (b *Buffer) notRepresentable(v any) error {
	return e57.Newf(e57.ValueNotRepresentable, "value %v does not fit %s buffer %q", v, b.mem, b.path)
}

// getInt loads the slot as an integer. Fails for uint64 values beyond
// the int64 range.
func (b *Buffer) getInt(slot int) (int64, error) {
	switch b.mem {
	case MemInt8:
		return int64(b.i8[slot]), nil
	case MemInt16:
		return int64(b.i16[slot]), nil
	case MemInt32:
		return int64(b.i32[slot]), nil
	case MemInt64:
		return b.i64[slot], nil
	case MemUInt8:
		return int64(b.u8[slot]), nil
	case MemUInt16:
		return int64(b.u16[slot]), nil
	case MemUInt32:
		return int64(b.u32[slot]), nil
	case MemUInt64:
		v := b.u64[slot]
		if v > math.MaxInt64 {
			return 0, b.notRepresentable(v)
		}
		return int64(v), nil
	default:
		return 0, e57.Newf(e57.Internal, "getInt on %s buffer %q", b.mem, b.path)
	}
}

// setFloat stores a float into a Real32 or Real64 slot.
func (b *Buffer) setFloat(slot int, v float64) error {
	switch b.mem {
	case MemReal32:
		if err := fitsFloat32(v, b.path); err != nil {
			return err
		}
		b.f32[slot] = float32(v)
	case MemReal64:
		b.f64[slot] = v
	default:
		return e57.Newf(e57.Internal, "setFloat on %s buffer %q", b.mem, b.path)
	}
	return nil
}

// getFloat loads the slot as a float.
func (b *Buffer) getFloat(slot int) (float64, error) {
	switch b.mem {
	case MemReal32:
		return float64(b.f32[slot]), nil
	case MemReal64:
		return b.f64[slot], nil
	default:
		return 0, e57.Newf(e57.Internal, "getFloat on %s buffer %q", b.mem, b.path)
	}
}

func (b *Buffer) setString(slot int, v string) { b.str[slot] = v }

func (b *Buffer) getString(slot int) string { return b.str[slot] }

// fitsFloat32 rejects finite magnitudes beyond the float32 range.
func fitsFloat32(v float64, path string) error {
	if !math.IsInf(v, 0) && math.Abs(v) > math.MaxFloat32 {
		return e57.Newf(e57.Real64TooLarge, "value %v exceeds single precision range of %q", v, path)
	}
	return nil
}

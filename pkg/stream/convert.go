package stream

import (
	"math"

	"github.com/ssargent/skadi/pkg/codec"
	"github.com/ssargent/skadi/pkg/e57"
	"github.com/ssargent/skadi/pkg/node"
)

// decodeValue moves the next value of one field out of a packet into a
// buffer slot, applying the buffer's conversion and scaling options.
// The string/numeric family and the conversion permission were checked
// when the buffer was bound.
func decodeValue(dec *codec.PacketDecoder, field int, fd *fieldDesc, buf *Buffer, slot int) error {
	switch fd.kind {
	case node.KindInteger:
		v, err := dec.ReadInteger(field)
		if err != nil {
			return err
		}
		return intoBuffer(buf, slot, v, fd.name)

	case node.KindScaledInteger:
		raw, err := dec.ReadInteger(field)
		if err != nil {
			return err
		}
		if !buf.opts.DoScaling {
			return intoBuffer(buf, slot, raw, fd.name)
		}
		scaled := float64(raw)*fd.scale + fd.offset
		if buf.mem.numeric() && buf.mem != MemReal32 && buf.mem != MemReal64 {
			rounded := math.Round(scaled)
			if err := buf.setInt(slot, int64(rounded)); err != nil {
				return e57.Newf(e57.ScaledValueNotRepresentable,
					"field %q scaled value %v does not fit %s buffer", fd.name, scaled, buf.mem)
			}
			return nil
		}
		return buf.setFloat(slot, scaled)

	case node.KindFloat:
		var v float64
		if fd.precision == node.Single {
			f, err := dec.ReadReal32(field)
			if err != nil {
				return err
			}
			v = float64(f)
		} else {
			f, err := dec.ReadReal64(field)
			if err != nil {
				return err
			}
			v = f
		}
		if buf.mem == MemReal32 || buf.mem == MemReal64 {
			return buf.setFloat(slot, v)
		}
		// Integer memory: only whole values convert.
		if math.Trunc(v) != v || v < math.MinInt64 || v >= math.MaxInt64 {
			return e57.Newf(e57.ConversionRequired,
				"field %q value %v is not integral", fd.name, v)
		}
		return buf.setInt(slot, int64(v))

	case node.KindString:
		s, err := dec.ReadString(field)
		if err != nil {
			return err
		}
		buf.setString(slot, s)
		return nil

	default:
		return e57.Newf(e57.Internal, "decode of field kind %s", fd.kind)
	}
}

// intoBuffer stores a field integer into a numeric buffer slot.
// Integer memory is range-checked; float memory requires a lossless
// conversion.
func intoBuffer(buf *Buffer, slot int, v int64, name string) error {
	switch buf.mem {
	case MemReal32:
		if int64(float32(v)) != v {
			return e57.Newf(e57.ConversionRequired,
				"field %q value %d is not exactly representable as float32", name, v)
		}
		return buf.setFloat(slot, float64(v))
	case MemReal64:
		if int64(float64(v)) != v {
			return e57.Newf(e57.ConversionRequired,
				"field %q value %d is not exactly representable as float64", name, v)
		}
		return buf.setFloat(slot, float64(v))
	default:
		return buf.setInt(slot, v)
	}
}

// encodeValue moves one buffer slot into the packet encoder, applying
// the inverse of the read-side conversions and checking the value
// against the field's declared bounds.
func encodeValue(enc *codec.PacketEncoder, field int, fd *fieldDesc, buf *Buffer, slot int) error {
	switch fd.kind {
	case node.KindInteger:
		v, err := fromBuffer(buf, slot, fd.name)
		if err != nil {
			return err
		}
		if v < fd.minimum || v > fd.maximum {
			return e57.Newf(e57.ValueNotRepresentable,
				"field %q value %d outside [%d, %d]", fd.name, v, fd.minimum, fd.maximum)
		}
		return enc.PutInteger(field, v)

	case node.KindScaledInteger:
		var raw int64
		if buf.opts.DoScaling {
			scaled, err := numericValue(buf, slot, fd.name)
			if err != nil {
				return err
			}
			r := math.Round((scaled - fd.offset) / fd.scale)
			if math.IsNaN(r) || r < float64(fd.minimum) || r > float64(fd.maximum) {
				return e57.Newf(e57.ScaledValueNotRepresentable,
					"field %q scaled value %v maps outside raw bounds [%d, %d]", fd.name, scaled, fd.minimum, fd.maximum)
			}
			raw = int64(r)
		} else {
			v, err := fromBuffer(buf, slot, fd.name)
			if err != nil {
				return err
			}
			raw = v
		}
		if raw < fd.minimum || raw > fd.maximum {
			return e57.Newf(e57.ValueNotRepresentable,
				"field %q raw value %d outside [%d, %d]", fd.name, raw, fd.minimum, fd.maximum)
		}
		return enc.PutInteger(field, raw)

	case node.KindFloat:
		v, err := numericValue(buf, slot, fd.name)
		if err != nil {
			return err
		}
		if math.IsNaN(v) || v < fd.fmin || v > fd.fmax {
			return e57.Newf(e57.ValueNotRepresentable,
				"field %q value %v outside [%v, %v]", fd.name, v, fd.fmin, fd.fmax)
		}
		if fd.precision == node.Single {
			if err := fitsFloat32(v, fd.name); err != nil {
				return err
			}
			return enc.PutReal32(field, float32(v))
		}
		return enc.PutReal64(field, v)

	case node.KindString:
		s := buf.getString(slot)
		if len(s) > codec.MaxStringLength {
			return e57.Newf(e57.ValueNotRepresentable,
				"field %q string of %d bytes exceeds limit %d", fd.name, len(s), codec.MaxStringLength)
		}
		return enc.PutString(field, s)

	default:
		return e57.Newf(e57.Internal, "encode of field kind %s", fd.kind)
	}
}

// fromBuffer loads a buffer slot as a field integer. Float memory must
// hold a whole value.
func fromBuffer(buf *Buffer, slot int, name string) (int64, error) {
	switch buf.mem {
	case MemReal32, MemReal64:
		v, err := buf.getFloat(slot)
		if err != nil {
			return 0, err
		}
		if math.Trunc(v) != v || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, e57.Newf(e57.ConversionRequired,
				"field %q value %v is not integral", name, v)
		}
		return int64(v), nil
	default:
		return buf.getInt(slot)
	}
}

// numericValue loads a buffer slot as a float, from either family of
// numeric memory.
func numericValue(buf *Buffer, slot int, name string) (float64, error) {
	switch buf.mem {
	case MemReal32, MemReal64:
		return buf.getFloat(slot)
	default:
		v, err := buf.getInt(slot)
		if err != nil {
			return 0, err
		}
		if int64(float64(v)) != v {
			return 0, e57.Newf(e57.ConversionRequired,
				"field %q value %d is not exactly representable as float64", name, v)
		}
		return float64(v), nil
	}
}

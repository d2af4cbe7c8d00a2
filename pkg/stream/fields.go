package stream

import (
	"github.com/ssargent/skadi/pkg/codec"
	"github.com/ssargent/skadi/pkg/e57"
	"github.com/ssargent/skadi/pkg/node"
)

// fieldDesc is the engine's flat view of one prototype field: enough to
// build the codec spec and to drive value conversion without walking
// the node tree per record.
type fieldDesc struct {
	name      string
	kind      node.Kind
	minimum   int64
	maximum   int64
	scale     float64
	offset    float64
	precision node.FloatPrecision
	fmin      float64
	fmax      float64
}

// prototypeFields flattens a record prototype into field descriptors
// and the matching codec layout. The prototype's container must still
// be open because the node accessors are guarded.
func prototypeFields(proto *node.Structure) ([]fieldDesc, []codec.FieldSpec, error) {
	count := proto.ChildCount()
	if count == 0 {
		return nil, nil, e57.New(e57.BadAPIArgument, "prototype has no fields")
	}
	fields := make([]fieldDesc, 0, count)
	specs := make([]codec.FieldSpec, 0, count)
	for i := 0; i < count; i++ {
		child, err := proto.At(i)
		if err != nil {
			return nil, nil, err
		}
		fd := fieldDesc{name: child.ElementName(), kind: child.Kind()}
		switch child.Kind() {
		case node.KindInteger:
			in, err := node.ToInteger(child)
			if err != nil {
				return nil, nil, err
			}
			if fd.minimum, err = in.Minimum(); err != nil {
				return nil, nil, err
			}
			if fd.maximum, err = in.Maximum(); err != nil {
				return nil, nil, err
			}
			specs = append(specs, codec.IntegerField(fd.name, fd.minimum, fd.maximum))

		case node.KindScaledInteger:
			sn, err := node.ToScaledInteger(child)
			if err != nil {
				return nil, nil, err
			}
			if fd.minimum, err = sn.Minimum(); err != nil {
				return nil, nil, err
			}
			if fd.maximum, err = sn.Maximum(); err != nil {
				return nil, nil, err
			}
			if fd.scale, err = sn.Scale(); err != nil {
				return nil, nil, err
			}
			if fd.offset, err = sn.Offset(); err != nil {
				return nil, nil, err
			}
			specs = append(specs, codec.IntegerField(fd.name, fd.minimum, fd.maximum))

		case node.KindFloat:
			fn, err := node.ToFloat(child)
			if err != nil {
				return nil, nil, err
			}
			if fd.precision, err = fn.Precision(); err != nil {
				return nil, nil, err
			}
			if fd.fmin, err = fn.Minimum(); err != nil {
				return nil, nil, err
			}
			if fd.fmax, err = fn.Maximum(); err != nil {
				return nil, nil, err
			}
			if fd.precision == node.Single {
				specs = append(specs, codec.Real32Field(fd.name))
			} else {
				specs = append(specs, codec.Real64Field(fd.name))
			}

		case node.KindString:
			specs = append(specs, codec.StringField(fd.name))

		default:
			return nil, nil, e57.Newf(e57.BadAPIArgument,
				"prototype field %q has non-scalar kind %s", fd.name, child.Kind())
		}
		fields = append(fields, fd)
	}
	return fields, specs, nil
}

// requiredMem is the memory representation that matches the field's
// on-disk representation exactly, needing no conversion.
func (fd *fieldDesc) requiredMem(doScaling bool) MemoryType {
	switch fd.kind {
	case node.KindInteger:
		return MemInt64
	case node.KindScaledInteger:
		if doScaling {
			return MemReal64
		}
		return MemInt64
	case node.KindFloat:
		if fd.precision == node.Single {
			return MemReal32
		}
		return MemReal64
	default:
		return MemUString
	}
}

// checkBinding validates a buffer against the field before any record
// moves: string/numeric families must agree, and a representation
// mismatch needs the conversion option.
func (fd *fieldDesc) checkBinding(buf *Buffer) error {
	fieldIsString := fd.kind == node.KindString
	if fieldIsString && buf.mem.numeric() {
		return e57.Newf(e57.ExpectingUString, "field %q holds strings, buffer is %s", fd.name, buf.mem)
	}
	if !fieldIsString && !buf.mem.numeric() {
		return e57.Newf(e57.ExpectingNumeric, "field %q holds numbers, buffer is %s", fd.name, buf.mem)
	}
	if buf.mem != fd.requiredMem(buf.opts.DoScaling) && !buf.opts.DoConversion {
		return e57.Newf(e57.ConversionRequired,
			"field %q needs %s memory, buffer is %s", fd.name, fd.requiredMem(buf.opts.DoScaling), buf.mem)
	}
	return nil
}

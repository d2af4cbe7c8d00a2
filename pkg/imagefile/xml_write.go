package imagefile

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/ssargent/skadi/pkg/e57"
	"github.com/ssargent/skadi/pkg/node"
)

// rootElement names the document element of the serialized tree.
const rootElement = "e57Root"

// vectorChildElement names vector children, which are addressed by
// index and have no element name of their own.
const vectorChildElement = "vectorChild"

// serializeTree renders the element tree as the XML section written at
// the end of the file. Child order follows insertion order so the
// section is deterministic.
func serializeTree(root *node.Structure) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, "<%s type=%q>\n", rootElement, node.KindStructure)
	if err := writeChildren(&b, root, 1); err != nil {
		return nil, err
	}
	fmt.Fprintf(&b, "</%s>\n", rootElement)
	return b.Bytes(), nil
}

func writeChildren(b *bytes.Buffer, s *node.Structure, depth int) error {
	for i := 0; i < s.ChildCount(); i++ {
		name, err := s.NameAt(i)
		if err != nil {
			return err
		}
		child, err := s.At(i)
		if err != nil {
			return err
		}
		if err := writeNode(b, name, child, depth); err != nil {
			return err
		}
	}
	return nil
}

func writeNode(b *bytes.Buffer, name string, n node.Node, depth int) error {
	indent(b, depth)
	switch n.Kind() {
	case node.KindInteger:
		in, err := node.ToInteger(n)
		if err != nil {
			return err
		}
		v, err := in.Value()
		if err != nil {
			return err
		}
		minimum, err := in.Minimum()
		if err != nil {
			return err
		}
		maximum, err := in.Maximum()
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "<%s type=%q minimum=%q maximum=%q>%d</%s>\n",
			name, n.Kind(), formatInt(minimum), formatInt(maximum), v, name)

	case node.KindScaledInteger:
		sn, err := node.ToScaledInteger(n)
		if err != nil {
			return err
		}
		raw, err := sn.RawValue()
		if err != nil {
			return err
		}
		minimum, err := sn.Minimum()
		if err != nil {
			return err
		}
		maximum, err := sn.Maximum()
		if err != nil {
			return err
		}
		scale, err := sn.Scale()
		if err != nil {
			return err
		}
		offset, err := sn.Offset()
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "<%s type=%q minimum=%q maximum=%q scale=%q offset=%q>%d</%s>\n",
			name, n.Kind(), formatInt(minimum), formatInt(maximum), formatFloat(scale), formatFloat(offset), raw, name)

	case node.KindFloat:
		fn, err := node.ToFloat(n)
		if err != nil {
			return err
		}
		v, err := fn.Value()
		if err != nil {
			return err
		}
		precision, err := fn.Precision()
		if err != nil {
			return err
		}
		minimum, err := fn.Minimum()
		if err != nil {
			return err
		}
		maximum, err := fn.Maximum()
		if err != nil {
			return err
		}
		p := "double"
		if precision == node.Single {
			p = "single"
		}
		fmt.Fprintf(b, "<%s type=%q precision=%q minimum=%q maximum=%q>%s</%s>\n",
			name, n.Kind(), p, formatFloat(minimum), formatFloat(maximum), formatFloat(v), name)

	case node.KindString:
		sn, err := node.ToString(n)
		if err != nil {
			return err
		}
		v, err := sn.Value()
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "<%s type=%q>%s</%s>\n", name, n.Kind(), escapeText(v), name)

	case node.KindStructure:
		sn, err := node.ToStructure(n)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "<%s type=%q>\n", name, n.Kind())
		if err := writeChildren(b, sn, depth+1); err != nil {
			return err
		}
		indent(b, depth)
		fmt.Fprintf(b, "</%s>\n", name)

	case node.KindVector:
		vn, err := node.ToVector(n)
		if err != nil {
			return err
		}
		hetero := "0"
		if vn.AllowsHeterogeneousChildren() {
			hetero = "1"
		}
		fmt.Fprintf(b, "<%s type=%q allowHeterogeneousChildren=%q>\n", name, n.Kind(), hetero)
		for i := 0; i < vn.ChildCount(); i++ {
			child, err := vn.At(i)
			if err != nil {
				return err
			}
			if err := writeNode(b, vectorChildElement, child, depth+1); err != nil {
				return err
			}
		}
		indent(b, depth)
		fmt.Fprintf(b, "</%s>\n", name)

	case node.KindCompressedVector:
		cv, err := node.ToCompressedVector(n)
		if err != nil {
			return err
		}
		off, err := cv.SectionOffset()
		if err != nil {
			return err
		}
		count, err := cv.RecordCount()
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "<%s type=%q fileOffset=%q recordCount=%q>\n",
			name, n.Kind(), formatInt(off), formatInt(count))
		if err := writeNode(b, "prototype", cv.Prototype(), depth+1); err != nil {
			return err
		}
		indent(b, depth)
		fmt.Fprintf(b, "</%s>\n", name)

	default:
		return e57.Newf(e57.Internal, "serializing node kind %s", n.Kind())
	}
	return nil
}

func indent(b *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func escapeText(s string) string {
	var b bytes.Buffer
	// EscapeText only fails on a failing writer; bytes.Buffer never does.
	xml.EscapeText(&b, []byte(s)) //nolint:errcheck
	return b.String()
}

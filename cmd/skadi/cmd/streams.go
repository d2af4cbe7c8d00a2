package cmd

import (
	"github.com/ssargent/skadi/pkg/node"
	"github.com/ssargent/skadi/pkg/stream"
)

// streamRef is one compressed-vector stream found in a file's tree.
type streamRef struct {
	path string
	cv   *node.CompressedVector
}

// findStreams walks the element tree and collects every record stream.
func findStreams(n node.Node) []streamRef {
	var out []streamRef
	switch n.Kind() {
	case node.KindCompressedVector:
		if cv, err := node.ToCompressedVector(n); err == nil {
			out = append(out, streamRef{path: cv.PathName(), cv: cv})
		}
	case node.KindStructure:
		s, err := node.ToStructure(n)
		if err != nil {
			return out
		}
		for i := 0; i < s.ChildCount(); i++ {
			if child, err := s.At(i); err == nil {
				out = append(out, findStreams(child)...)
			}
		}
	case node.KindVector:
		v, err := node.ToVector(n)
		if err != nil {
			return out
		}
		for i := 0; i < v.ChildCount(); i++ {
			if child, err := v.At(i); err == nil {
				out = append(out, findStreams(child)...)
			}
		}
	}
	return out
}

// fieldBuffers allocates one buffer per prototype field, typed to the
// field's natural memory representation, plus the backing slices for
// printing.
func fieldBuffers(cv *node.CompressedVector, capacity int) ([]*stream.Buffer, []string, []any, error) {
	proto := cv.Prototype()
	var bufs []*stream.Buffer
	var names []string
	var backing []any
	for i := 0; i < proto.ChildCount(); i++ {
		child, err := proto.At(i)
		if err != nil {
			return nil, nil, nil, err
		}
		name := child.ElementName()

		var data any
		opts := stream.BufferOptions{}
		switch child.Kind() {
		case node.KindInteger:
			data = make([]int64, capacity)
		case node.KindScaledInteger:
			data = make([]float64, capacity)
			opts = stream.BufferOptions{DoConversion: true, DoScaling: true}
		case node.KindFloat:
			data = make([]float64, capacity)
			opts = stream.BufferOptions{DoConversion: true}
		default:
			data = make([]string, capacity)
		}

		buf, err := stream.NewBuffer(name, data, opts)
		if err != nil {
			return nil, nil, nil, err
		}
		bufs = append(bufs, buf)
		names = append(names, name)
		backing = append(backing, data)
	}
	return bufs, names, backing, nil
}

// valueAt formats one record slot of a backing slice.
func valueAt(backing any, i int) any {
	switch v := backing.(type) {
	case []int64:
		return v[i]
	case []float64:
		return v[i]
	case []string:
		return v[i]
	default:
		return nil
	}
}

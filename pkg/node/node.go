// Package node implements the element tree of an E57 file: bounded
// scalar leaves (integer, scaled integer, float, string) and the
// structure, vector and compressed-vector containers built from them.
//
// Nodes are created against a destination container (the image file)
// and are immutable once constructed; "mutation" means replacing a node
// in its parent, never changing one in place. A node joins the file
// when it is attached under the container's root, directly or through
// its ancestors, and can be attached at most once.
package node

import "github.com/ssargent/skadi/pkg/e57"

// Kind identifies the concrete type of a node. The set is closed: these
// are exactly the element kinds the E57 format defines.
type Kind int

const (
	KindInteger Kind = iota
	KindScaledInteger
	KindFloat
	KindString
	KindStructure
	KindVector
	KindCompressedVector
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "Integer"
	case KindScaledInteger:
		return "ScaledInteger"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindStructure:
		return "Structure"
	case KindVector:
		return "Vector"
	case KindCompressedVector:
		return "CompressedVector"
	default:
		return "Unknown"
	}
}

// Container is the narrow view of the image file the tree needs. The
// concrete implementation lives in pkg/imagefile.
type Container interface {
	IsOpen() bool
	IsWritable() bool
	ReaderCount() int
	WriterCount() int
}

// Node is the capability interface shared by every element kind.
// Downcasting to a concrete type is a checked type assertion via the
// To* helpers below.
type Node interface {
	Kind() Kind
	ElementName() string
	PathName() string
	Attached() bool
	Destination() Container

	// Verify checks the node's documented invariants, recursing into
	// children when asked. It is an on-demand debug pass, not part of
	// any hot path.
	Verify(recurse bool) error

	adopt(parent Node, name string) error
	markAttached()
}

// base carries the state common to every node kind.
type base struct {
	dest     Container
	parent   Node
	name     string
	attached bool
}

func newBase(dest Container) (base, error) {
	if dest == nil {
		return base{}, e57.New(e57.BadAPIArgument, "nil destination container")
	}
	if !dest.IsOpen() {
		return base{}, e57.New(e57.ImageFileNotOpen, "creating node")
	}
	if !dest.IsWritable() {
		return base{}, e57.New(e57.FileReadOnly, "creating node")
	}
	return base{dest: dest}, nil
}

func (b *base) ElementName() string { return b.name }

func (b *base) Attached() bool { return b.attached }

func (b *base) Destination() Container { return b.dest }

// PathName returns the absolute pathname of the node, "/" for an
// unparented root.
func (b *base) PathName() string {
	if b.parent == nil {
		return "/"
	}
	prefix := b.parent.PathName()
	if prefix == "/" {
		return "/" + b.name
	}
	return prefix + "/" + b.name
}

func (b *base) adopt(parent Node, name string) error {
	if b.parent != nil {
		return e57.Newf(e57.BadAPIArgument, "node already has a parent %q", b.parent.PathName())
	}
	b.parent = parent
	b.name = name
	return nil
}

func (b *base) markAttached() { b.attached = true }

// checkOpen guards accessors: reading any attribute of a node whose
// destination file is closed is an ImageFileNotOpen error.
func (b *base) checkOpen() error {
	if b.dest == nil || !b.dest.IsOpen() {
		return e57.New(e57.ImageFileNotOpen, "node accessor")
	}
	return nil
}

// validElementName enforces the identifier grammar for element names:
// a leading letter or underscore, then letters, digits, underscores,
// hyphens or periods. Names double as XML element names in the file's
// tree section, so anything looser would not survive a reparse.
func validElementName(name string) error {
	if name == "" {
		return e57.New(e57.BadAPIArgument, "empty element name")
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_':
		case i > 0 && (r >= '0' && r <= '9' || r == '-' || r == '.'):
		default:
			return e57.Newf(e57.BadAPIArgument, "element name %q: character %q not allowed", name, r)
		}
	}
	return nil
}

// sameDestination rejects mixing nodes from different image files.
func sameDestination(parent, child Node) error {
	if parent.Destination() != child.Destination() {
		return e57.New(e57.BadAPIArgument, "child was created for a different image file")
	}
	return nil
}

// AttachRoot marks a node and its descendants as attached to their
// destination file. Called by the file layer when installing a root
// structure, never by API users; children attached later inherit the
// mark through their parent.
func AttachRoot(n Node) {
	n.markAttached()
}

// ToInteger downcasts a generic node handle to *Integer.
func ToInteger(n Node) (*Integer, error) {
	if v, ok := n.(*Integer); ok {
		return v, nil
	}
	return nil, downcastErr(n, KindInteger)
}

// ToScaledInteger downcasts a generic node handle to *ScaledInteger.
func ToScaledInteger(n Node) (*ScaledInteger, error) {
	if v, ok := n.(*ScaledInteger); ok {
		return v, nil
	}
	return nil, downcastErr(n, KindScaledInteger)
}

// ToFloat downcasts a generic node handle to *Float.
func ToFloat(n Node) (*Float, error) {
	if v, ok := n.(*Float); ok {
		return v, nil
	}
	return nil, downcastErr(n, KindFloat)
}

// ToString downcasts a generic node handle to *String.
func ToString(n Node) (*String, error) {
	if v, ok := n.(*String); ok {
		return v, nil
	}
	return nil, downcastErr(n, KindString)
}

// ToStructure downcasts a generic node handle to *Structure.
func ToStructure(n Node) (*Structure, error) {
	if v, ok := n.(*Structure); ok {
		return v, nil
	}
	return nil, downcastErr(n, KindStructure)
}

// ToVector downcasts a generic node handle to *Vector.
func ToVector(n Node) (*Vector, error) {
	if v, ok := n.(*Vector); ok {
		return v, nil
	}
	return nil, downcastErr(n, KindVector)
}

// ToCompressedVector downcasts a generic node handle to *CompressedVector.
func ToCompressedVector(n Node) (*CompressedVector, error) {
	if v, ok := n.(*CompressedVector); ok {
		return v, nil
	}
	return nil, downcastErr(n, KindCompressedVector)
}

func downcastErr(n Node, want Kind) error {
	return e57.Newf(e57.BadNodeDowncast, "node %q is %s, not %s", n.PathName(), n.Kind(), want)
}

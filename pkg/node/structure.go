package node

import (
	"strconv"

	"github.com/ssargent/skadi/pkg/e57"
)

// Structure is an interior node holding an ordered set of uniquely
// named children.
type Structure struct {
	base
	names    []string
	children map[string]Node
}

// NewStructure creates an empty structure node.
func NewStructure(dest Container) (*Structure, error) {
	b, err := newBase(dest)
	if err != nil {
		return nil, err
	}
	return &Structure{base: b, children: map[string]Node{}}, nil
}

func (s *Structure) Kind() Kind { return KindStructure }

// Set adds a named child. The name must be unique within the structure
// and the child must have been created for the same image file and not
// yet have a parent.
func (s *Structure) Set(name string, child Node) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validElementName(name); err != nil {
		return err
	}
	if child == nil {
		return e57.New(e57.BadAPIArgument, "nil child node")
	}
	if _, exists := s.children[name]; exists {
		return e57.Newf(e57.DuplicatePathName, "%s/%s", s.PathName(), name)
	}
	if err := sameDestination(s, child); err != nil {
		return err
	}
	if err := child.adopt(s, name); err != nil {
		return err
	}
	s.names = append(s.names, name)
	s.children[name] = child
	if s.attached {
		child.markAttached()
	}
	return nil
}

// Get returns the child with the given element name.
func (s *Structure) Get(name string) (Node, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	child, ok := s.children[name]
	if !ok {
		return nil, e57.Newf(e57.PathUndefined, "%s/%s", s.PathName(), name)
	}
	return child, nil
}

// Has reports whether a child with the given name exists.
func (s *Structure) Has(name string) bool {
	_, ok := s.children[name]
	return ok
}

// ChildCount returns the number of children.
func (s *Structure) ChildCount() int { return len(s.names) }

// NameAt returns the element name of the i-th child in insertion order.
func (s *Structure) NameAt(i int) (string, error) {
	if i < 0 || i >= len(s.names) {
		return "", e57.Newf(e57.BadAPIArgument, "child index %d out of range [0, %d)", i, len(s.names))
	}
	return s.names[i], nil
}

// At returns the i-th child in insertion order.
func (s *Structure) At(i int) (Node, error) {
	name, err := s.NameAt(i)
	if err != nil {
		return nil, err
	}
	return s.children[name], nil
}

func (s *Structure) markAttached() {
	s.base.markAttached()
	for _, name := range s.names {
		s.children[name].markAttached()
	}
}

func (s *Structure) Verify(recurse bool) error {
	if !s.dest.IsOpen() {
		return nil
	}
	if len(s.names) != len(s.children) {
		return e57.Newf(e57.InvarianceViolation, "structure %q child bookkeeping", s.PathName())
	}
	if recurse {
		for _, name := range s.names {
			if err := s.children[name].Verify(true); err != nil {
				return err
			}
		}
	}
	return nil
}

// Vector is an interior node holding an ordered list of children
// addressed by index. Unless heterogeneous children are allowed at
// creation, every child must have the same kind as the first.
type Vector struct {
	base
	allowHetero bool
	children    []Node
}

// NewVector creates an empty vector node.
func NewVector(dest Container, allowHeterogeneousChildren bool) (*Vector, error) {
	b, err := newBase(dest)
	if err != nil {
		return nil, err
	}
	return &Vector{base: b, allowHetero: allowHeterogeneousChildren}, nil
}

func (v *Vector) Kind() Kind { return KindVector }

// AllowsHeterogeneousChildren reports whether children of mixed kinds
// may be appended.
func (v *Vector) AllowsHeterogeneousChildren() bool { return v.allowHetero }

// Append adds a child at the end of the vector.
func (v *Vector) Append(child Node) error {
	if err := v.checkOpen(); err != nil {
		return err
	}
	if child == nil {
		return e57.New(e57.BadAPIArgument, "nil child node")
	}
	if !v.allowHetero && len(v.children) > 0 && child.Kind() != v.children[0].Kind() {
		return e57.Newf(e57.BadAPIArgument,
			"homogeneous vector %q holds %s children, got %s", v.PathName(), v.children[0].Kind(), child.Kind())
	}
	if err := sameDestination(v, child); err != nil {
		return err
	}
	if err := child.adopt(v, strconv.Itoa(len(v.children))); err != nil {
		return err
	}
	v.children = append(v.children, child)
	if v.attached {
		child.markAttached()
	}
	return nil
}

// ChildCount returns the number of children.
func (v *Vector) ChildCount() int { return len(v.children) }

// At returns the i-th child.
func (v *Vector) At(i int) (Node, error) {
	if i < 0 || i >= len(v.children) {
		return nil, e57.Newf(e57.BadAPIArgument, "child index %d out of range [0, %d)", i, len(v.children))
	}
	return v.children[i], nil
}

func (v *Vector) markAttached() {
	v.base.markAttached()
	for _, child := range v.children {
		child.markAttached()
	}
}

func (v *Vector) Verify(recurse bool) error {
	if !v.dest.IsOpen() {
		return nil
	}
	if recurse {
		for _, child := range v.children {
			if err := child.Verify(true); err != nil {
				return err
			}
		}
	}
	return nil
}

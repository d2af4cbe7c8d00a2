package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/skadi/pkg/e57"
)

func xyzPrototype(t *testing.T, c Container) *Structure {
	t.Helper()
	proto, err := NewStructure(c)
	require.NoError(t, err)
	for _, name := range []string{"cartesianX", "cartesianY", "cartesianZ"} {
		f, err := NewFloat(c, 0, Double, -1e6, 1e6)
		require.NoError(t, err)
		require.NoError(t, proto.Set(name, f))
	}
	return proto
}

func TestNewCompressedVector(t *testing.T) {
	c := newFakeContainer()
	proto := xyzPrototype(t, c)

	cv, err := NewCompressedVector(c, proto)
	require.NoError(t, err)

	assert.Same(t, proto, cv.Prototype())
	count, err := cv.RecordCount()
	require.NoError(t, err)
	assert.Zero(t, count)

	off, err := cv.SectionOffset()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), off)
}

func TestNewCompressedVectorRejectsBadPrototypes(t *testing.T) {
	c := newFakeContainer()

	t.Run("nil prototype", func(t *testing.T) {
		_, err := NewCompressedVector(c, nil)
		assert.ErrorIs(t, err, e57.ErrBadAPIArgument)
	})

	t.Run("empty prototype", func(t *testing.T) {
		empty, err := NewStructure(c)
		require.NoError(t, err)
		_, err = NewCompressedVector(c, empty)
		assert.ErrorIs(t, err, e57.ErrBadAPIArgument)
	})

	t.Run("non-scalar field", func(t *testing.T) {
		proto, err := NewStructure(c)
		require.NoError(t, err)
		nested, err := NewStructure(c)
		require.NoError(t, err)
		require.NoError(t, proto.Set("nested", nested))
		_, err = NewCompressedVector(c, proto)
		assert.ErrorIs(t, err, e57.ErrBadAPIArgument)
	})

	t.Run("prototype from another file", func(t *testing.T) {
		other := newFakeContainer()
		proto := xyzPrototype(t, other)
		_, err := NewCompressedVector(c, proto)
		assert.ErrorIs(t, err, e57.ErrBadAPIArgument)
	})
}

func TestCompressedVectorCommitSection(t *testing.T) {
	c := newFakeContainer()
	cv, err := NewCompressedVector(c, xyzPrototype(t, c))
	require.NoError(t, err)

	require.NoError(t, cv.CommitSection(48, 10000))

	count, err := cv.RecordCount()
	require.NoError(t, err)
	assert.Equal(t, int64(10000), count)

	off, err := cv.SectionOffset()
	require.NoError(t, err)
	assert.Equal(t, int64(48), off)

	assert.ErrorIs(t, cv.CommitSection(-1, 5), e57.ErrInvarianceViolation)
}

func TestCompressedVectorPrototypeCannotBeReused(t *testing.T) {
	c := newFakeContainer()
	proto := xyzPrototype(t, c)

	_, err := NewCompressedVector(c, proto)
	require.NoError(t, err)

	// The prototype is owned by the first compressed vector now.
	_, err = NewCompressedVector(c, proto)
	assert.ErrorIs(t, err, e57.ErrBadAPIArgument)
}

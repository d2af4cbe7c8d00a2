package node

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/skadi/pkg/e57"
)

func TestNewIntegerStoresTriple(t *testing.T) {
	c := newFakeContainer()

	tests := []struct {
		name            string
		value, min, max int64
	}{
		{"zero in wide bounds", 0, -100, 100},
		{"value at minimum", -100, -100, 100},
		{"value at maximum", 100, -100, 100},
		{"degenerate bounds", 7, 7, 7},
		{"full int64 range", 0, math.MinInt64, math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewInteger(c, tt.value, tt.min, tt.max)
			require.NoError(t, err)

			v, err := n.Value()
			require.NoError(t, err)
			assert.Equal(t, tt.value, v)

			lo, err := n.Minimum()
			require.NoError(t, err)
			assert.Equal(t, tt.min, lo)

			hi, err := n.Maximum()
			require.NoError(t, err)
			assert.Equal(t, tt.max, hi)
		})
	}
}

func TestNewIntegerRejectsInvalidTriples(t *testing.T) {
	c := newFakeContainer()

	tests := []struct {
		name            string
		value, min, max int64
		want            error
	}{
		{"value below minimum", -101, -100, 100, e57.ErrValueOutOfBounds},
		{"value above maximum", 101, -100, 100, e57.ErrValueOutOfBounds},
		{"inverted bounds", 0, 10, -10, e57.ErrBadAPIArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewInteger(c, tt.value, tt.min, tt.max)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, n)
		})
	}
}

func TestIntegerAccessorsAfterContainerClose(t *testing.T) {
	c := newFakeContainer()
	n, err := NewInteger(c, 5, 0, 10)
	require.NoError(t, err)

	c.open = false

	_, err = n.Value()
	assert.ErrorIs(t, err, e57.ErrImageFileNotOpen)
	_, err = n.Minimum()
	assert.ErrorIs(t, err, e57.ErrImageFileNotOpen)
	_, err = n.Maximum()
	assert.ErrorIs(t, err, e57.ErrImageFileNotOpen)
}

func TestNodeCreationPreconditions(t *testing.T) {
	t.Run("closed container", func(t *testing.T) {
		c := newFakeContainer()
		c.open = false
		_, err := NewInteger(c, 0, 0, 1)
		assert.ErrorIs(t, err, e57.ErrImageFileNotOpen)
	})

	t.Run("read-only container", func(t *testing.T) {
		c := newFakeContainer()
		c.writable = false
		_, err := NewInteger(c, 0, 0, 1)
		assert.ErrorIs(t, err, e57.ErrFileReadOnly)
	})

	t.Run("nil container", func(t *testing.T) {
		_, err := NewInteger(nil, 0, 0, 1)
		assert.ErrorIs(t, err, e57.ErrBadAPIArgument)
	})
}

func TestNewScaledInteger(t *testing.T) {
	c := newFakeContainer()

	n, err := NewScaledInteger(c, 1250, -100000, 100000, 0.001, 0)
	require.NoError(t, err)

	raw, err := n.RawValue()
	require.NoError(t, err)
	assert.Equal(t, int64(1250), raw)

	sv, err := n.ScaledValue()
	require.NoError(t, err)
	assert.InDelta(t, 1.25, sv, 1e-12)

	scale, err := n.Scale()
	require.NoError(t, err)
	assert.Equal(t, 0.001, scale)
}

func TestNewScaledIntegerRejectsBadScale(t *testing.T) {
	c := newFakeContainer()

	_, err := NewScaledInteger(c, 0, -10, 10, 0, 0)
	assert.ErrorIs(t, err, e57.ErrBadAPIArgument)

	_, err = NewScaledInteger(c, 0, -10, 10, math.Inf(1), 0)
	assert.ErrorIs(t, err, e57.ErrBadAPIArgument)

	_, err = NewScaledInteger(c, 11, -10, 10, 0.5, 0)
	assert.ErrorIs(t, err, e57.ErrValueOutOfBounds)
}

func TestNewScaledIntegerRejectsUnrepresentableBounds(t *testing.T) {
	c := newFakeContainer()

	_, err := NewScaledInteger(c, 0, math.MinInt64, math.MaxInt64, math.MaxFloat64, 0)
	assert.ErrorIs(t, err, e57.ErrScaledValueNotRepresentable)
}

func TestNewFloat(t *testing.T) {
	c := newFakeContainer()

	n, err := NewFloat(c, 1.5, Double, -10, 10)
	require.NoError(t, err)

	v, err := n.Value()
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	p, err := n.Precision()
	require.NoError(t, err)
	assert.Equal(t, Double, p)
}

func TestNewFloatSinglePrecisionRange(t *testing.T) {
	c := newFakeContainer()

	// Fits in float32.
	_, err := NewFloat(c, 1e30, Single, -1e38, 1e38)
	require.NoError(t, err)

	// Value only representable in float64.
	_, err = NewFloat(c, 1e200, Single, -1e300, 1e300)
	assert.ErrorIs(t, err, e57.ErrReal64TooLarge)
}

func TestNewFloatRejectsOutOfBounds(t *testing.T) {
	c := newFakeContainer()

	_, err := NewFloat(c, 11, Double, -10, 10)
	assert.ErrorIs(t, err, e57.ErrValueOutOfBounds)

	_, err = NewFloat(c, 0, Double, 10, -10)
	assert.ErrorIs(t, err, e57.ErrBadAPIArgument)
}

func TestNewString(t *testing.T) {
	c := newFakeContainer()

	n, err := NewString(c, "ASTM E57 3D Imaging Data File")
	require.NoError(t, err)

	v, err := n.Value()
	require.NoError(t, err)
	assert.Equal(t, "ASTM E57 3D Imaging Data File", v)

	c.open = false
	_, err = n.Value()
	assert.ErrorIs(t, err, e57.ErrImageFileNotOpen)
}

func TestDowncastHelpers(t *testing.T) {
	c := newFakeContainer()
	n, err := NewInteger(c, 1, 0, 2)
	require.NoError(t, err)

	var generic Node = n

	back, err := ToInteger(generic)
	require.NoError(t, err)
	assert.Same(t, n, back)

	_, err = ToFloat(generic)
	assert.ErrorIs(t, err, e57.ErrBadNodeDowncast)
	_, err = ToStructure(generic)
	assert.ErrorIs(t, err, e57.ErrBadNodeDowncast)
}

package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/skadi/pkg/codec"
	"github.com/ssargent/skadi/pkg/e57"
	"github.com/ssargent/skadi/pkg/node"
)

func TestWriterRequiresEveryField(t *testing.T) {
	f := newFakeFile()
	cv := pointStream(t, f)

	bx, err := NewBuffer("cartesianX", make([]float64, 10), BufferOptions{})
	require.NoError(t, err)

	_, err = NewWriter(f, cv, []*Buffer{bx}, 0)
	assert.ErrorIs(t, err, e57.ErrPathUndefined)
}

func TestWriterRejectsRewrite(t *testing.T) {
	f := newFakeFile()
	cv := pointStream(t, f)
	writePoints(t, f, cv, 10, 10)

	bufs, _, _, _ := pointBuffers(t, 10)
	_, err := NewWriter(f, cv, bufs, 0)
	assert.ErrorIs(t, err, e57.ErrBadAPIArgument)
}

func TestWriterRejectsReadOnlyFile(t *testing.T) {
	f := newFakeFile()
	cv := pointStream(t, f)
	f.writable = false

	bufs, _, _, _ := pointBuffers(t, 10)
	_, err := NewWriter(f, cv, bufs, 0)
	assert.ErrorIs(t, err, e57.ErrFileReadOnly)
}

func TestWriterExclusiveWithReaders(t *testing.T) {
	f := newFakeFile()
	cv := pointStream(t, f)
	writePoints(t, f, cv, 10, 10)

	bufs, _, _, _ := pointBuffers(t, 10)
	r, err := NewReader(f, cv, bufs)
	require.NoError(t, err)
	defer r.Close()

	other := mixedStream(t, f)
	bi, err := NewBuffer("intensity", make([]int64, 4), BufferOptions{})
	require.NoError(t, err)
	bt, err := NewBuffer("temperature", make([]int64, 4), BufferOptions{})
	require.NoError(t, err)
	bl, err := NewBuffer("label", make([]string, 4), BufferOptions{})
	require.NoError(t, err)

	_, err = NewWriter(f, other, []*Buffer{bi, bt, bl}, 0)
	assert.Error(t, err)
}

func TestWriteRecordCountBounds(t *testing.T) {
	f := newFakeFile()
	cv := pointStream(t, f)

	bufs, _, _, _ := pointBuffers(t, 10)
	w, err := NewWriter(f, cv, bufs, 0)
	require.NoError(t, err)
	defer w.Close()

	assert.ErrorIs(t, w.Write(11), e57.ErrBadAPIArgument)
	assert.ErrorIs(t, w.Write(-1), e57.ErrBadAPIArgument)
	assert.NoError(t, w.Write(0))
	assert.NoError(t, w.Write(10))
	assert.Equal(t, int64(10), w.RecordsWritten())
}

func TestOutOfBoundsValuePoisonsWriter(t *testing.T) {
	f := newFakeFile()
	cv := mixedStream(t, f)

	intensities := []int64{50, 200000} // maximum is 100000
	temps := []int64{0, 0}
	labels := []string{"a", "b"}
	bi, err := NewBuffer("intensity", intensities, BufferOptions{})
	require.NoError(t, err)
	bt, err := NewBuffer("temperature", temps, BufferOptions{})
	require.NoError(t, err)
	bl, err := NewBuffer("label", labels, BufferOptions{})
	require.NoError(t, err)

	w, err := NewWriter(f, cv, []*Buffer{bi, bt, bl}, 0)
	require.NoError(t, err)

	err = w.Write(2)
	assert.ErrorIs(t, err, e57.ErrValueNotRepresentable)

	// Conversion errors poison the stream but not the file.
	assert.True(t, f.IsOpen())
	assert.True(t, w.IsOpen())

	err = w.Write(1)
	assert.ErrorIs(t, err, e57.ErrValueNotRepresentable)
	assert.False(t, w.IsOpen())

	assert.ErrorIs(t, w.Write(1), e57.ErrWriterNotOpen)
	assert.Zero(t, f.WriterCount())
}

func TestScaledValueOutsideRawBounds(t *testing.T) {
	f := newFakeFile()
	cv := mixedStream(t, f)

	temps := []float64{99999} // raw bound is 40000 at scale 0.001
	bi, err := NewBuffer("intensity", make([]int64, 1), BufferOptions{})
	require.NoError(t, err)
	bt, err := NewBuffer("temperature", temps, BufferOptions{DoScaling: true, DoConversion: true})
	require.NoError(t, err)
	bl, err := NewBuffer("label", make([]string, 1), BufferOptions{})
	require.NoError(t, err)

	w, err := NewWriter(f, cv, []*Buffer{bi, bt, bl}, 0)
	require.NoError(t, err)

	err = w.Write(1)
	assert.ErrorIs(t, err, e57.ErrScaledValueNotRepresentable)
}

func TestIntegerConversionRoundTrip(t *testing.T) {
	f := newFakeFile()
	cv := mixedStream(t, f)

	intensities := []int32{0, 1, 99999, 100000}
	bi, err := NewBuffer("intensity", intensities, BufferOptions{DoConversion: true})
	require.NoError(t, err)
	bt, err := NewBuffer("temperature", make([]int64, 4), BufferOptions{})
	require.NoError(t, err)
	bl, err := NewBuffer("label", make([]string, 4), BufferOptions{})
	require.NoError(t, err)

	w, err := NewWriter(f, cv, []*Buffer{bi, bt, bl}, 0)
	require.NoError(t, err)
	require.NoError(t, w.Write(4))
	require.NoError(t, w.Close())

	got := make([]int16, 4)
	rbi, err := NewBuffer("intensity", got, BufferOptions{DoConversion: true})
	require.NoError(t, err)
	r, err := NewReader(f, cv, []*Buffer{rbi})
	require.NoError(t, err)
	defer r.Close()

	// 99999 does not fit int16 memory: the read fails and poisons
	// the stream but not the file.
	_, err = r.Read()
	assert.ErrorIs(t, err, e57.ErrValueNotRepresentable)
	assert.True(t, f.IsOpen())
}

func TestSmallPacketTarget(t *testing.T) {
	f := newFakeFile()
	cv := pointStream(t, f)

	bufs, xs, ys, zs := pointBuffers(t, 64)
	w, err := NewWriter(f, cv, bufs, 256)
	require.NoError(t, err)
	for i := 0; i < 64; i++ {
		xs[i], ys[i], zs[i] = pointAt(int64(i))
	}
	require.NoError(t, w.Write(64))
	require.NoError(t, w.Close())

	rbufs, gx, _, _ := pointBuffers(t, 64)
	r, err := NewReader(f, cv, rbufs)
	require.NoError(t, err)
	defer r.Close()

	n, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, 64, n)
	for i := 0; i < 64; i++ {
		wx, _, _ := pointAt(int64(i))
		assert.Equal(t, wx, gx[i])
	}
}

func TestMaxPacketTargetRoundTrip(t *testing.T) {
	f := newFakeFile()
	cv := pointStream(t, f)

	// At the largest legal target the packet overflows before the flush
	// threshold can trigger; the overflowing record is carried into the
	// next packet instead of failing the write.
	bufs, xs, ys, zs := pointBuffers(t, 1000)
	w, err := NewWriter(f, cv, bufs, codec.MaxPacketSize)
	require.NoError(t, err)
	for written := int64(0); written < 5000; written += 1000 {
		for i := 0; i < 1000; i++ {
			xs[i], ys[i], zs[i] = pointAt(written + int64(i))
		}
		require.NoError(t, w.Write(1000))
	}
	require.NoError(t, w.Close())
	assert.True(t, f.IsOpen())

	count, err := cv.RecordCount()
	require.NoError(t, err)
	require.Equal(t, int64(5000), count)

	rbufs, gx, gy, gz := pointBuffers(t, 512)
	r, err := NewReader(f, cv, rbufs)
	require.NoError(t, err)
	defer r.Close()

	var seen int64
	for {
		n, err := r.Read()
		require.NoError(t, err)
		if n == 0 {
			break
		}
		for i := 0; i < n; i++ {
			wx, wy, wz := pointAt(seen + int64(i))
			require.Equal(t, wx, gx[i])
			require.Equal(t, wy, gy[i])
			require.Equal(t, wz, gz[i])
		}
		seen += int64(n)
	}
	assert.Equal(t, int64(5000), seen)
}

func TestWriterClosePersistsSection(t *testing.T) {
	f := newFakeFile()
	cv := pointStream(t, f)
	writePoints(t, f, cv, 123, 50)

	off, err := cv.SectionOffset()
	require.NoError(t, err)
	assert.Equal(t, int64(48), off)

	count, err := cv.RecordCount()
	require.NoError(t, err)
	assert.Equal(t, int64(123), count)

	// The binary end moved past the section for the next stream.
	assert.Greater(t, f.BinaryEnd(), off+int64(SectionHeaderSize))
	assert.Zero(t, f.WriterCount())
}

func TestWriterVerify(t *testing.T) {
	f := newFakeFile()
	cv := pointStream(t, f)

	bufs, _, _, _ := pointBuffers(t, 10)
	w, err := NewWriter(f, cv, bufs, 0)
	require.NoError(t, err)

	assert.NoError(t, w.Verify())
	require.NoError(t, w.Write(10))
	assert.NoError(t, w.Verify())
	require.NoError(t, w.Close())
	assert.NoError(t, w.Verify())
	assert.False(t, w.IsOpen())
}

func TestStringFieldOnNumericBufferRejected(t *testing.T) {
	f := newFakeFile()
	cv := mixedStream(t, f)

	bi, err := NewBuffer("intensity", make([]int64, 1), BufferOptions{})
	require.NoError(t, err)
	bt, err := NewBuffer("temperature", make([]int64, 1), BufferOptions{})
	require.NoError(t, err)
	bl, err := NewBuffer("label", make([]int64, 1), BufferOptions{DoConversion: true})
	require.NoError(t, err)

	_, err = NewWriter(f, cv, []*Buffer{bi, bt, bl}, 0)
	assert.ErrorIs(t, err, e57.ErrExpectingUString)
}

var _ node.Container = (*fakeFile)(nil)
var _ File = (*fakeFile)(nil)

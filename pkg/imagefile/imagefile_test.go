package imagefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/skadi/pkg/e57"
	"github.com/ssargent/skadi/pkg/node"
	"github.com/ssargent/skadi/pkg/stream"
)

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "scan.e57")
}

// buildPoints attaches an xyz stream at /points and returns it.
func buildPoints(t *testing.T, imf *ImageFile) *node.CompressedVector {
	t.Helper()
	proto, err := node.NewStructure(imf)
	require.NoError(t, err)
	for _, name := range []string{"cartesianX", "cartesianY", "cartesianZ"} {
		fl, err := node.NewFloat(imf, 0, node.Double, -1e9, 1e9)
		require.NoError(t, err)
		require.NoError(t, proto.Set(name, fl))
	}
	cv, err := node.NewCompressedVector(imf, proto)
	require.NoError(t, err)
	require.NoError(t, imf.Root().Set("points", cv))
	return cv
}

func pointBuffers(t *testing.T, capacity int) ([]*stream.Buffer, []float64, []float64, []float64) {
	t.Helper()
	xs := make([]float64, capacity)
	ys := make([]float64, capacity)
	zs := make([]float64, capacity)
	var bufs []*stream.Buffer
	for name, data := range map[string][]float64{
		"cartesianX": xs, "cartesianY": ys, "cartesianZ": zs,
	} {
		b, err := stream.NewBuffer(name, data, stream.BufferOptions{})
		require.NoError(t, err)
		bufs = append(bufs, b)
	}
	return bufs, xs, ys, zs
}

func TestCreateWriteOpenRead(t *testing.T) {
	path := tempPath(t)

	imf, err := Create(path)
	require.NoError(t, err)
	guid := imf.GUID()
	require.NotEmpty(t, guid)

	cv := buildPoints(t, imf)
	bufs, xs, ys, zs := pointBuffers(t, 500)
	w, err := imf.NewWriter(cv, bufs, 0)
	require.NoError(t, err)
	for batch := 0; batch < 5; batch++ {
		for i := 0; i < 500; i++ {
			n := float64(batch*500 + i)
			xs[i], ys[i], zs[i] = n, n*0.5, -n
		}
		require.NoError(t, w.Write(500))
	}
	require.NoError(t, w.Close())
	require.NoError(t, imf.Close())

	// Reopen and read everything back.
	in, err := Open(path)
	require.NoError(t, err)
	defer in.Close()

	assert.Equal(t, guid, in.GUID())
	major, minor := in.Version()
	assert.Equal(t, uint32(VersionMajor), major)
	assert.Equal(t, uint32(VersionMinor), minor)
	assert.False(t, in.IsWritable())
	assert.NoError(t, in.Verify())

	child, err := in.Root().Get("points")
	require.NoError(t, err)
	rcv, err := node.ToCompressedVector(child)
	require.NoError(t, err)
	count, err := rcv.RecordCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2500), count)

	rbufs, gx, gy, gz := pointBuffers(t, 512)
	r, err := in.NewReader(rcv, rbufs)
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
			want := float64(seen + int64(i))
			assert.Equal(t, want, gx[i])
			assert.Equal(t, want*0.5, gy[i])
			assert.Equal(t, -want, gz[i])
		}
		seen += int64(n)
	}
	assert.Equal(t, int64(2500), seen)
}

func TestTreeRoundTripAllKinds(t *testing.T) {
	path := tempPath(t)

	imf, err := Create(path)
	require.NoError(t, err)
	root := imf.Root()

	in, err := node.NewInteger(imf, -7, -100, 100)
	require.NoError(t, err)
	require.NoError(t, root.Set("temperatureOffset", in))

	si, err := node.NewScaledInteger(imf, 12345, 0, 100000, 0.001, -5)
	require.NoError(t, err)
	require.NoError(t, root.Set("range", si))

	fl, err := node.NewFloat(imf, 2.5, node.Single, 0, 10)
	require.NoError(t, err)
	require.NoError(t, root.Set("gain", fl))

	st, err := node.NewString(imf, "tilted <45> & \"raised\"")
	require.NoError(t, err)
	require.NoError(t, root.Set("pose", st))

	inner, err := node.NewStructure(imf)
	require.NoError(t, err)
	marker, err := node.NewInteger(imf, 1, 0, 1)
	require.NoError(t, err)
	require.NoError(t, inner.Set("enabled", marker))
	require.NoError(t, root.Set("sensor", inner))

	vec, err := node.NewVector(imf, false)
	require.NoError(t, err)
	for i := int64(0); i < 3; i++ {
		item, err := node.NewInteger(imf, i, 0, 10)
		require.NoError(t, err)
		require.NoError(t, vec.Append(item))
	}
	require.NoError(t, root.Set("timestamps", vec))

	require.NoError(t, imf.Close())

	got, err := Open(path)
	require.NoError(t, err)
	defer got.Close()

	gi, err := got.Root().Get("temperatureOffset")
	require.NoError(t, err)
	gin, err := node.ToInteger(gi)
	require.NoError(t, err)
	v, err := gin.Value()
	require.NoError(t, err)
	assert.Equal(t, int64(-7), v)
	minimum, err := gin.Minimum()
	require.NoError(t, err)
	assert.Equal(t, int64(-100), minimum)

	gs, err := got.Root().Get("range")
	require.NoError(t, err)
	gsi, err := node.ToScaledInteger(gs)
	require.NoError(t, err)
	sv, err := gsi.ScaledValue()
	require.NoError(t, err)
	assert.InDelta(t, 12345*0.001-5, sv, 1e-12)

	gf, err := got.Root().Get("gain")
	require.NoError(t, err)
	gfl, err := node.ToFloat(gf)
	require.NoError(t, err)
	p, err := gfl.Precision()
	require.NoError(t, err)
	assert.Equal(t, node.Single, p)
	fv, err := gfl.Value()
	require.NoError(t, err)
	assert.Equal(t, 2.5, fv)

	gt, err := got.Root().Get("pose")
	require.NoError(t, err)
	gst, err := node.ToString(gt)
	require.NoError(t, err)
	tv, err := gst.Value()
	require.NoError(t, err)
	assert.Equal(t, "tilted <45> & \"raised\"", tv)

	gn, err := got.Root().Get("sensor")
	require.NoError(t, err)
	gsn, err := node.ToStructure(gn)
	require.NoError(t, err)
	assert.Equal(t, 1, gsn.ChildCount())

	gv, err := got.Root().Get("timestamps")
	require.NoError(t, err)
	gvec, err := node.ToVector(gv)
	require.NoError(t, err)
	require.Equal(t, 3, gvec.ChildCount())
	item, err := gvec.At(2)
	require.NoError(t, err)
	iv, err := node.ToInteger(item)
	require.NoError(t, err)
	ivv, err := iv.Value()
	require.NoError(t, err)
	assert.Equal(t, int64(2), ivv)
}

func TestTwoStreamsInOneFile(t *testing.T) {
	path := tempPath(t)

	imf, err := Create(path)
	require.NoError(t, err)

	first := buildPoints(t, imf)
	bufs, xs, ys, zs := pointBuffers(t, 100)
	for i := 0; i < 100; i++ {
		xs[i], ys[i], zs[i] = float64(i), 0, 0
	}
	w, err := imf.NewWriter(first, bufs, 0)
	require.NoError(t, err)
	require.NoError(t, w.Write(100))
	require.NoError(t, w.Close())

	// A second stream lands after the first one's section.
	proto, err := node.NewStructure(imf)
	require.NoError(t, err)
	intensity, err := node.NewInteger(imf, 0, 0, 4095)
	require.NoError(t, err)
	require.NoError(t, proto.Set("intensity", intensity))
	second, err := node.NewCompressedVector(imf, proto)
	require.NoError(t, err)
	require.NoError(t, imf.Root().Set("intensities", second))

	vals := make([]int64, 40)
	for i := range vals {
		vals[i] = int64(i * 100)
	}
	bi, err := stream.NewBuffer("intensity", vals, stream.BufferOptions{})
	require.NoError(t, err)
	w2, err := imf.NewWriter(second, []*stream.Buffer{bi}, 0)
	require.NoError(t, err)
	require.NoError(t, w2.Write(40))
	require.NoError(t, w2.Close())

	off1, err := first.SectionOffset()
	require.NoError(t, err)
	off2, err := second.SectionOffset()
	require.NoError(t, err)
	assert.Greater(t, off2, off1)

	require.NoError(t, imf.Close())

	in, err := Open(path)
	require.NoError(t, err)
	defer in.Close()

	child, err := in.Root().Get("intensities")
	require.NoError(t, err)
	rcv, err := node.ToCompressedVector(child)
	require.NoError(t, err)

	got := make([]int64, 64)
	rb, err := stream.NewBuffer("intensity", got, stream.BufferOptions{})
	require.NoError(t, err)
	r, err := in.NewReader(rcv, []*stream.Buffer{rb})
	require.NoError(t, err)
	defer r.Close()

	n, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, 40, n)
	for i := 0; i < 40; i++ {
		assert.Equal(t, int64(i*100), got[i])
	}
}

func TestOpenRejectsBadSignature(t *testing.T) {
	path := tempPath(t)
	require.NoError(t, os.WriteFile(path, []byte("NOT-AN-E57-FILE-AT-ALL-PADDING-TO-48-BYTES......"), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, e57.ErrBadFileSignature)
}

func TestOpenRejectsShortFile(t *testing.T) {
	path := tempPath(t)
	require.NoError(t, os.WriteFile(path, []byte("ASTM-E57"), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, e57.ErrBadFileHeader)
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	path := tempPath(t)

	imf, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, imf.Close())

	st, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, st.Size()-10))

	_, err = Open(path)
	assert.ErrorIs(t, err, e57.ErrBadFileHeader)
}

func TestReadOnlyFileRejectsWriter(t *testing.T) {
	path := tempPath(t)

	imf, err := Create(path)
	require.NoError(t, err)
	buildPoints(t, imf)
	require.NoError(t, imf.Close())

	in, err := Open(path)
	require.NoError(t, err)
	defer in.Close()

	child, err := in.Root().Get("points")
	require.NoError(t, err)
	cv, err := node.ToCompressedVector(child)
	require.NoError(t, err)

	bufs, _, _, _ := pointBuffers(t, 4)
	_, err = in.NewWriter(cv, bufs, 0)
	assert.ErrorIs(t, err, e57.ErrFileReadOnly)
}

func TestCloseRejectedWithAttachedHandles(t *testing.T) {
	path := tempPath(t)

	imf, err := Create(path)
	require.NoError(t, err)
	cv := buildPoints(t, imf)

	bufs, _, _, _ := pointBuffers(t, 4)
	w, err := imf.NewWriter(cv, bufs, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, imf.Close(), e57.ErrBadAPIArgument)
	require.NoError(t, w.Close())
	assert.NoError(t, imf.Close())
}

func TestNodeAccessorsFailAfterClose(t *testing.T) {
	path := tempPath(t)

	imf, err := Create(path)
	require.NoError(t, err)
	cv := buildPoints(t, imf)
	require.NoError(t, imf.Close())

	_, err = cv.RecordCount()
	assert.ErrorIs(t, err, e57.ErrImageFileNotOpen)
}

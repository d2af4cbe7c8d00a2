// Package imagefile implements the E57 container: a fixed 48-byte
// header, binary record sections in the middle, and the XML-serialized
// element tree at the end of the file.
//
// A file is created writable or opened read-only. While writable the
// caller builds the element tree and streams records through writers;
// Close serializes the tree, appends it after the last binary section
// and backpatches the header. An opened file parses the tree back and
// serves readers.
package imagefile

import (
	"encoding/binary"
	"os"

	"github.com/google/uuid"

	"github.com/ssargent/skadi/internal/logging"
	"github.com/ssargent/skadi/pkg/e57"
	"github.com/ssargent/skadi/pkg/node"
	"github.com/ssargent/skadi/pkg/stream"
)

const (
	// Signature opens every E57 file.
	Signature = "ASTM-E57"

	// HeaderSize is the fixed physical header: signature, two version
	// words, physical length, XML offset, XML length.
	HeaderSize = 48

	VersionMajor = 1
	VersionMinor = 0
)

// ImageFile is the on-disk container. It implements both the node
// tree's Container view and the stream engine's File view.
type ImageFile struct {
	path     string
	f        *os.File
	writable bool
	open     bool
	poisoned bool

	major uint32
	minor uint32
	guid  string
	root  *node.Structure

	binaryEnd int64
	readers   int
	writers   int
}

// Create creates a new writable image file at path, truncating any
// existing file. The returned file has a fresh GUID stored at /guid
// and an empty root ready for tree building.
func Create(path string) (*ImageFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, e57.Newf(e57.WriteFailed, "creating %q: %v", path, err)
	}
	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		f.Close()
		return nil, e57.Newf(e57.WriteFailed, "reserving header of %q: %v", path, err)
	}

	imf := &ImageFile{
		path:      path,
		f:         f,
		writable:  true,
		open:      true,
		major:     VersionMajor,
		minor:     VersionMinor,
		guid:      uuid.New().String(),
		binaryEnd: HeaderSize,
	}

	root, err := node.NewStructure(imf)
	if err != nil {
		f.Close()
		return nil, err
	}
	guidNode, err := node.NewString(imf, imf.guid)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := root.Set("guid", guidNode); err != nil {
		f.Close()
		return nil, err
	}
	node.AttachRoot(root)
	imf.root = root

	logging.Debug("image file created", "path", path, "guid", imf.guid)
	return imf, nil
}

// Open opens an existing image file read-only, validates its header
// and parses the element tree.
func Open(path string) (*ImageFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, e57.Newf(e57.ReadFailed, "opening %q: %v", path, err)
	}
	imf, err := load(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	logging.Debug("image file opened", "path", path, "guid", imf.guid)
	return imf, nil
}

func load(path string, f *os.File) (*ImageFile, error) {
	hdr := make([]byte, HeaderSize)
	if n, err := f.ReadAt(hdr, 0); err != nil || n != HeaderSize {
		return nil, e57.Newf(e57.BadFileHeader, "%q is too short for a file header", path)
	}
	if string(hdr[0:8]) != Signature {
		return nil, e57.Newf(e57.BadFileSignature, "%q does not start with %q", path, Signature)
	}
	major := binary.LittleEndian.Uint32(hdr[8:12])
	minor := binary.LittleEndian.Uint32(hdr[12:16])
	physical := int64(binary.LittleEndian.Uint64(hdr[16:24]))
	xmlOffset := int64(binary.LittleEndian.Uint64(hdr[24:32]))
	xmlLength := int64(binary.LittleEndian.Uint64(hdr[32:40]))

	if major != VersionMajor {
		return nil, e57.Newf(e57.BadFileHeader, "unsupported file version %d.%d", major, minor)
	}
	st, err := f.Stat()
	if err != nil {
		return nil, e57.Newf(e57.ReadFailed, "stat %q: %v", path, err)
	}
	if physical > st.Size() {
		return nil, e57.Newf(e57.BadFileHeader,
			"%q declares %d bytes but holds %d", path, physical, st.Size())
	}
	if xmlOffset < HeaderSize || xmlLength <= 0 || xmlOffset+xmlLength > physical {
		return nil, e57.Newf(e57.BadFileHeader,
			"XML section [%d, %d) outside file body", xmlOffset, xmlOffset+xmlLength)
	}

	imf := &ImageFile{
		path:      path,
		f:         f,
		open:      true,
		major:     major,
		minor:     minor,
		binaryEnd: xmlOffset,
	}

	xml := make([]byte, xmlLength)
	if n, err := f.ReadAt(xml, xmlOffset); err != nil || int64(n) != xmlLength {
		return nil, e57.Newf(e57.ReadFailed, "reading XML section of %q: %v", path, err)
	}

	// The tree is rebuilt through the normal constructors, which need
	// a writable destination; the file turns read-only once parsing
	// is done.
	imf.writable = true
	root, err := parseTree(imf, xml)
	imf.writable = false
	if err != nil {
		return nil, err
	}
	imf.root = root

	if root.Has("guid") {
		if child, err := root.Get("guid"); err == nil {
			if s, err := node.ToString(child); err == nil {
				imf.guid, _ = s.Value()
			}
		}
	}
	return imf, nil
}

// Close closes the file. On a writable file it first serializes the
// element tree after the last binary section and backpatches the
// header; the file is closed even when that fails. Close fails without
// closing while stream handles are still attached.
func (imf *ImageFile) Close() error {
	if !imf.open {
		return nil
	}
	if imf.readers > 0 || imf.writers > 0 {
		return e57.Newf(e57.BadAPIArgument,
			"closing %q with %d readers and %d writers attached", imf.path, imf.readers, imf.writers)
	}

	var commitErr error
	if imf.writable && !imf.poisoned {
		commitErr = imf.commit()
	}
	imf.open = false
	if err := imf.f.Close(); err != nil && commitErr == nil {
		commitErr = e57.Newf(e57.WriteFailed, "closing %q: %v", imf.path, err)
	}
	if commitErr != nil {
		logging.Error("image file close failed", "path", imf.path, "err", commitErr)
		return commitErr
	}
	logging.Debug("image file closed", "path", imf.path)
	return nil
}

func (imf *ImageFile) commit() error {
	xml, err := serializeTree(imf.root)
	if err != nil {
		return err
	}
	if _, err := imf.f.WriteAt(xml, imf.binaryEnd); err != nil {
		return e57.Newf(e57.WriteFailed, "writing XML section of %q: %v", imf.path, err)
	}

	hdr := make([]byte, HeaderSize)
	copy(hdr[0:8], Signature)
	binary.LittleEndian.PutUint32(hdr[8:12], imf.major)
	binary.LittleEndian.PutUint32(hdr[12:16], imf.minor)
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(imf.binaryEnd+int64(len(xml))))
	binary.LittleEndian.PutUint64(hdr[24:32], uint64(imf.binaryEnd))
	binary.LittleEndian.PutUint64(hdr[32:40], uint64(len(xml)))
	if _, err := imf.f.WriteAt(hdr, 0); err != nil {
		return e57.Newf(e57.WriteFailed, "writing header of %q: %v", imf.path, err)
	}
	if err := imf.f.Sync(); err != nil {
		return e57.Newf(e57.WriteFailed, "syncing %q: %v", imf.path, err)
	}
	return nil
}

// Root returns the element tree root.
func (imf *ImageFile) Root() *node.Structure { return imf.root }

// GUID returns the file's globally unique identifier.
func (imf *ImageFile) GUID() string { return imf.guid }

// Path returns the file's on-disk path.
func (imf *ImageFile) Path() string { return imf.path }

// Version returns the format version read from or written to the
// header.
func (imf *ImageFile) Version() (major, minor uint32) { return imf.major, imf.minor }

// Verify runs the invariant checks of the whole element tree.
func (imf *ImageFile) Verify() error {
	if imf.root == nil {
		return nil
	}
	return imf.root.Verify(true)
}

// NewReader opens a record stream reader on this file.
func (imf *ImageFile) NewReader(cv *node.CompressedVector, bufs []*stream.Buffer) (*stream.Reader, error) {
	return stream.NewReader(imf, cv, bufs)
}

// NewWriter opens the record stream writer on this file. targetSize is
// the packet flush threshold; zero selects the default.
func (imf *ImageFile) NewWriter(cv *node.CompressedVector, bufs []*stream.Buffer, targetSize int) (*stream.Writer, error) {
	return stream.NewWriter(imf, cv, bufs, targetSize)
}

// Container and stream.File views.

func (imf *ImageFile) IsOpen() bool { return imf.open && !imf.poisoned }

func (imf *ImageFile) IsWritable() bool { return imf.writable }

func (imf *ImageFile) ReaderCount() int { return imf.readers }

func (imf *ImageFile) WriterCount() int { return imf.writers }

// AttachReader registers a reader handle; readers and the writer are
// mutually exclusive.
func (imf *ImageFile) AttachReader() error {
	if !imf.IsOpen() {
		return e57.New(e57.ImageFileNotOpen, "attaching reader")
	}
	if imf.writers > 0 {
		return e57.Newf(e57.BadAPIArgument, "%q has an active writer", imf.path)
	}
	imf.readers++
	return nil
}

func (imf *ImageFile) DetachReader() {
	if imf.readers > 0 {
		imf.readers--
	}
}

// AttachWriter registers the single writer handle.
func (imf *ImageFile) AttachWriter() error {
	if !imf.IsOpen() {
		return e57.New(e57.ImageFileNotOpen, "attaching writer")
	}
	if !imf.writable {
		return e57.New(e57.FileReadOnly, "attaching writer")
	}
	if imf.writers > 0 || imf.readers > 0 {
		return e57.Newf(e57.BadAPIArgument,
			"%q has %d readers and %d writers attached", imf.path, imf.readers, imf.writers)
	}
	imf.writers++
	return nil
}

func (imf *ImageFile) DetachWriter() {
	if imf.writers > 0 {
		imf.writers--
	}
}

func (imf *ImageFile) ReadAt(p []byte, off int64) (int, error) {
	return imf.f.ReadAt(p, off)
}

func (imf *ImageFile) WriteAt(p []byte, off int64) (int, error) {
	return imf.f.WriteAt(p, off)
}

func (imf *ImageFile) Flush() error { return imf.f.Sync() }

// BinaryEnd is the offset one past the last committed binary section.
func (imf *ImageFile) BinaryEnd() int64 { return imf.binaryEnd }

func (imf *ImageFile) SetBinaryEnd(off int64) { imf.binaryEnd = off }

// Poison marks the file unusable after a structural or I/O failure in
// a stream. Close still releases the descriptor but no longer commits
// the tree.
func (imf *ImageFile) Poison() {
	if !imf.poisoned {
		imf.poisoned = true
		logging.Warn("image file poisoned", "path", imf.path)
	}
}

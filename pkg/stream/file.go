// Package stream implements the record transfer engine of an E57 file:
// typed field buffers, the block reader/writer state machines that move
// batches of records between caller memory and checksummed packets, and
// the open/poisoned/closed handle lifecycle.
package stream

// File is the narrow view of the container file the engine needs. The
// concrete implementation lives in pkg/imagefile; tests substitute an
// in-memory fake.
type File interface {
	IsOpen() bool
	IsWritable() bool
	ReaderCount() int
	WriterCount() int

	// AttachReader registers a reader handle. It fails while a writer
	// is active. AttachWriter registers the single writer and fails
	// while any reader or writer is active.
	AttachReader() error
	DetachReader()
	AttachWriter() error
	DetachWriter()

	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Flush() error

	// BinaryEnd is the physical offset one past the last committed
	// binary section, where the next section may be appended.
	BinaryEnd() int64
	SetBinaryEnd(off int64)

	// Poison marks the whole file unusable after a structural or I/O
	// failure. A poisoned file reports IsOpen() == false.
	Poison()
}

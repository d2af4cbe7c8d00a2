package stream

import (
	"github.com/segmentio/ksuid"

	"github.com/ssargent/skadi/internal/logging"
	"github.com/ssargent/skadi/pkg/codec"
	"github.com/ssargent/skadi/pkg/e57"
	"github.com/ssargent/skadi/pkg/metrics"
	"github.com/ssargent/skadi/pkg/node"
)

// Writer is the block-write handle on one compressed-vector stream. It
// is exclusive: while it is open no reader and no other writer may
// touch the file. Records are accumulated into packets and flushed at
// the target packet size; Close flushes the tail, backpatches the
// section header and commits the section to the stream node.
//
// Unlike readers, writers must bind a buffer for every prototype
// field: a record is only well formed when all of its fields are
// present.
type Writer struct {
	id     string
	file   File
	cv     *node.CompressedVector
	fields []fieldDesc
	specs  []codec.FieldSpec

	bound    []*Buffer // indexed by prototype field
	enc      *codec.PacketEncoder
	attached bool

	sectionStart int64
	nextWrite    int64
	written      int64

	state     handleState
	poisonErr error
}

// NewWriter opens the write handle on cv's record stream. targetSize
// is the packet flush threshold; zero selects the default. A stream
// can be written once; rewriting a committed stream is rejected.
func NewWriter(f File, cv *node.CompressedVector, bufs []*Buffer, targetSize int) (*Writer, error) {
	if f == nil || cv == nil {
		return nil, e57.New(e57.BadAPIArgument, "nil file or stream node")
	}
	if !f.IsOpen() {
		return nil, e57.New(e57.ImageFileNotOpen, "opening writer")
	}
	if !f.IsWritable() {
		return nil, e57.New(e57.FileReadOnly, "opening writer")
	}
	if dest, ok := f.(node.Container); !ok || cv.Destination() != dest {
		return nil, e57.New(e57.BadAPIArgument, "stream node belongs to a different image file")
	}
	if !cv.Attached() {
		return nil, e57.Newf(e57.BadAPIArgument, "stream node %q is not attached to the file tree", cv.PathName())
	}
	if off, err := cv.SectionOffset(); err != nil {
		return nil, err
	} else if off >= 0 {
		return nil, e57.Newf(e57.BadAPIArgument, "stream %q was already written", cv.PathName())
	}

	fields, specs, err := prototypeFields(cv.Prototype())
	if err != nil {
		return nil, err
	}
	enc, err := codec.NewPacketEncoder(specs, targetSize)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		id:     ksuid.New().String(),
		file:   f,
		cv:     cv,
		fields: fields,
		specs:  specs,
		enc:    enc,
	}
	if err := w.bind(bufs); err != nil {
		return nil, err
	}

	if err := f.AttachWriter(); err != nil {
		return nil, err
	}
	w.attached = true
	w.sectionStart = f.BinaryEnd()
	w.nextWrite = w.sectionStart + SectionHeaderSize
	logging.Debug("writer opened", "id", w.id, "stream", cv.PathName(), "section", w.sectionStart)
	return w, nil
}

// bind validates a buffer set covering every prototype field exactly
// once and installs it in field order.
func (w *Writer) bind(bufs []*Buffer) error {
	if len(bufs) == 0 {
		return e57.New(e57.BadAPIArgument, "no buffers")
	}
	ordered := make([]*Buffer, len(w.fields))
	for _, buf := range bufs {
		if buf == nil {
			return e57.New(e57.BadAPIArgument, "nil buffer")
		}
		if buf.Capacity() != bufs[0].Capacity() {
			return e57.Newf(e57.BufferSizeMismatch,
				"buffer %q holds %d records, %q holds %d", buf.PathName(), buf.Capacity(), bufs[0].PathName(), bufs[0].Capacity())
		}
		fi := w.fieldIndex(buf.PathName())
		if fi < 0 {
			return e57.Newf(e57.PathUndefined, "prototype has no field %q", buf.PathName())
		}
		if ordered[fi] != nil {
			return e57.Newf(e57.DuplicatePathName, "two buffers bound to field %q", buf.PathName())
		}
		if err := w.fields[fi].checkBinding(buf); err != nil {
			return err
		}
		ordered[fi] = buf
	}
	for fi, buf := range ordered {
		if buf == nil {
			return e57.Newf(e57.PathUndefined, "no buffer for prototype field %q", w.fields[fi].name)
		}
	}
	w.bound = ordered
	return nil
}

func (w *Writer) fieldIndex(path string) int {
	name := path
	if len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	for i := range w.fields {
		if w.fields[i].name == name {
			return i
		}
	}
	return -1
}

// Write appends recordCount records taken from the front of the bound
// buffers. recordCount must not exceed the buffers' capacity.
func (w *Writer) Write(recordCount int) error {
	return w.WriteBuffers(nil, recordCount)
}

// WriteBuffers is Write with a replacement buffer set, which must
// cover every prototype field. The buffers are validated before any
// record is consumed.
func (w *Writer) WriteBuffers(bufs []*Buffer, recordCount int) error {
	if err := w.precheck(); err != nil {
		return err
	}
	if bufs != nil {
		if err := w.bind(bufs); err != nil {
			w.poisonWith(err)
			return err
		}
	}
	if recordCount < 0 || recordCount > w.bound[0].Capacity() {
		return e57.Newf(e57.BadAPIArgument,
			"record count %d outside buffer capacity %d", recordCount, w.bound[0].Capacity())
	}
	if err := w.transfer(recordCount); err != nil {
		w.poisonWith(err)
		return err
	}
	return nil
}

func (w *Writer) transfer(recordCount int) error {
	for i := 0; i < recordCount; i++ {
		for fi := range w.fields {
			if err := encodeValue(w.enc, fi, &w.fields[fi], w.bound[fi], i); err != nil {
				return err
			}
		}
		if err := w.enc.EndRecord(); err != nil {
			return err
		}
		if w.enc.Full() {
			if err := w.flush(); err != nil {
				return err
			}
		}
	}
	w.written += int64(recordCount)
	metrics.RecordRecordsWritten(int64(recordCount))
	return nil
}

func (w *Writer) flush() error {
	if w.enc.Empty() {
		return nil
	}
	pkt, err := w.enc.Encode()
	if err != nil {
		return err
	}
	if err := writeFull(w.file, pkt, w.nextWrite); err != nil {
		return err
	}
	w.nextWrite += int64(len(pkt))
	return nil
}

func (w *Writer) precheck() error {
	switch w.state {
	case stateClosed:
		return e57.New(e57.WriterNotOpen, "handle is closed")
	case statePoisoned:
		err := w.poisonErr
		w.shut()
		return err
	}
	if !w.file.IsOpen() {
		return e57.New(e57.ImageFileNotOpen, "writer operation")
	}
	return nil
}

func (w *Writer) poisonWith(err error) {
	code := e57.CodeOf(err)
	if !code.PoisonsStream() {
		return
	}
	w.state = statePoisoned
	w.poisonErr = err
	metrics.RecordStreamPoisoned("write")
	logging.Warn("writer poisoned", "id", w.id, "code", code.String(), "err", err)
	if code.PoisonsFile() {
		w.file.Poison()
	}
}

func (w *Writer) shut() {
	if w.state == stateClosed {
		return
	}
	w.state = stateClosed
	if w.attached {
		w.file.DetachWriter()
		w.attached = false
	}
}

// Close flushes the tail packet, backpatches the section header with
// the final length and record count, and commits the section to the
// stream node. A failing close poisons the file; the handle is closed
// either way.
func (w *Writer) Close() error {
	if w.state == stateClosed {
		return nil
	}
	if w.state == statePoisoned {
		w.shut()
		return nil
	}
	err := w.commit()
	w.shut()
	if err != nil {
		w.file.Poison()
		logging.Error("writer close failed", "id", w.id, "err", err)
		return err
	}
	logging.Debug("writer closed", "id", w.id, "records", w.written)
	return nil
}

func (w *Writer) commit() error {
	if !w.file.IsOpen() {
		return e57.New(e57.ImageFileNotOpen, "closing writer")
	}
	// An overflow flush leaves a carried record pending, so drain.
	for !w.enc.Empty() {
		if err := w.flush(); err != nil {
			return err
		}
	}
	hdr := sectionHeader{
		length:      w.nextWrite - w.sectionStart,
		recordCount: w.written,
	}
	if err := writeFull(w.file, hdr.marshal(), w.sectionStart); err != nil {
		return err
	}
	if err := w.file.Flush(); err != nil {
		return e57.Newf(e57.WriteFailed, "flushing section: %v", err)
	}
	if err := w.cv.CommitSection(w.sectionStart, w.written); err != nil {
		return err
	}
	w.file.SetBinaryEnd(w.nextWrite)
	return nil
}

// IsOpen reports whether the handle still accepts operations. A
// poisoned writer reports open; its state is only resolved by the next
// data operation.
func (w *Writer) IsOpen() bool { return w.state != stateClosed }

// ID returns the handle's unique identifier, used in logs.
func (w *Writer) ID() string { return w.id }

// RecordsWritten returns the number of records appended so far.
func (w *Writer) RecordsWritten() int64 { return w.written }

// StreamNode returns the compressed-vector node the writer was opened
// on. Legal in every handle state.
func (w *Writer) StreamNode() *node.CompressedVector { return w.cv }

// Verify checks the handle's documented invariants.
func (w *Writer) Verify() error {
	if w.state == stateClosed || !w.file.IsOpen() {
		return nil
	}
	if !w.cv.Attached() {
		return e57.Newf(e57.InvarianceViolation, "writer %s on detached stream node", w.id)
	}
	if w.file.WriterCount() != 1 {
		return e57.Newf(e57.InvarianceViolation, "writer %s not registered with its file", w.id)
	}
	if w.file.ReaderCount() != 0 {
		return e57.Newf(e57.InvarianceViolation, "writer %s coexists with a reader", w.id)
	}
	if w.written < 0 || w.nextWrite < w.sectionStart+SectionHeaderSize {
		return e57.Newf(e57.InvarianceViolation, "writer %s section bookkeeping", w.id)
	}
	return nil
}

func writeFull(f File, p []byte, off int64) error {
	n, err := f.WriteAt(p, off)
	if err != nil || n != len(p) {
		return e57.Newf(e57.WriteFailed, "write of %d bytes at offset %d: got %d, %v", len(p), off, n, err)
	}
	return nil
}

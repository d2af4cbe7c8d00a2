package stream

import (
	"github.com/segmentio/ksuid"

	"github.com/ssargent/skadi/internal/logging"
	"github.com/ssargent/skadi/pkg/codec"
	"github.com/ssargent/skadi/pkg/e57"
	"github.com/ssargent/skadi/pkg/metrics"
	"github.com/ssargent/skadi/pkg/node"
)

type handleState int

const (
	stateOpen handleState = iota
	statePoisoned
	stateClosed
)

// Reader is a block-read handle on one compressed-vector stream. It
// moves batches of records from the stream's binary section into the
// typed buffers bound at creation, decoding packets lazily and
// verifying every packet checksum before use.
//
// A reader moves through three states. It opens usable; a transfer
// failure that is not a pure usage error poisons it, after which it
// still reports open but the next data operation returns the recorded
// error and closes it; close is terminal and idempotent.
type Reader struct {
	id     string
	file   File
	cv     *node.CompressedVector
	fields []fieldDesc
	specs  []codec.FieldSpec

	bound    []*Buffer
	boundIdx []int // prototype field index per bound buffer

	recordCount int64
	pos         int64

	dataStart int64 // first packet offset
	dataEnd   int64 // one past the last packet

	// Packet cursor. When dec is non-nil it covers records
	// [pktFirst, pktFirst+dec.Records()) starting at pktOff, with
	// consumed records already delivered; nextPacket is the offset of
	// the following packet. When dec is nil, pktFirst is the record
	// index of the packet at nextPacket.
	dec        *codec.PacketDecoder
	pktOff     int64
	pktFirst   int64
	nextPacket int64
	consumed   int

	state     handleState
	poisonErr error
}

// NewReader opens a read handle on cv's record stream with an initial
// buffer set. The buffer set fixes which prototype fields the reader
// delivers; later transfers may swap buffer memory but not the field
// set. The file must have no active writer.
func NewReader(f File, cv *node.CompressedVector, bufs []*Buffer) (*Reader, error) {
	if f == nil || cv == nil {
		return nil, e57.New(e57.BadAPIArgument, "nil file or stream node")
	}
	if !f.IsOpen() {
		return nil, e57.New(e57.ImageFileNotOpen, "opening reader")
	}
	if dest, ok := f.(node.Container); !ok || cv.Destination() != dest {
		return nil, e57.New(e57.BadAPIArgument, "stream node belongs to a different image file")
	}
	if !cv.Attached() {
		return nil, e57.Newf(e57.BadAPIArgument, "stream node %q is not attached to the file tree", cv.PathName())
	}

	fields, specs, err := prototypeFields(cv.Prototype())
	if err != nil {
		return nil, err
	}

	r := &Reader{
		id:     ksuid.New().String(),
		file:   f,
		cv:     cv,
		fields: fields,
		specs:  specs,
	}
	if err := r.bind(bufs, true); err != nil {
		return nil, err
	}

	count, err := cv.RecordCount()
	if err != nil {
		return nil, err
	}
	off, err := cv.SectionOffset()
	if err != nil {
		return nil, err
	}
	if off >= 0 {
		hdr := make([]byte, SectionHeaderSize)
		if err := readFull(f, hdr, off); err != nil {
			return nil, err
		}
		sh, err := parseSectionHeader(hdr)
		if err != nil {
			return nil, err
		}
		if sh.recordCount != count {
			return nil, e57.Newf(e57.BadPacket,
				"section holds %d records, stream node declares %d", sh.recordCount, count)
		}
		r.recordCount = sh.recordCount
		r.dataStart = off + SectionHeaderSize
		r.dataEnd = off + sh.length
		r.nextPacket = r.dataStart
		r.pktOff = r.dataStart
	}

	if err := f.AttachReader(); err != nil {
		return nil, err
	}
	logging.Debug("reader opened", "id", r.id, "stream", cv.PathName(), "records", r.recordCount)
	return r, nil
}

// bind validates a buffer set and installs it. After the initial bind
// the field set is fixed: a later set must cover exactly the same
// fields, though capacity and memory may differ.
func (r *Reader) bind(bufs []*Buffer, initial bool) error {
	if len(bufs) == 0 {
		return e57.New(e57.BadAPIArgument, "no buffers")
	}
	idx := make([]int, len(bufs))
	seen := make(map[int]bool, len(bufs))
	for i, buf := range bufs {
		if buf == nil {
			return e57.New(e57.BadAPIArgument, "nil buffer")
		}
		if buf.Capacity() != bufs[0].Capacity() {
			return e57.Newf(e57.BufferSizeMismatch,
				"buffer %q holds %d records, %q holds %d", buf.PathName(), buf.Capacity(), bufs[0].PathName(), bufs[0].Capacity())
		}
		fi := r.fieldIndex(buf.PathName())
		if fi < 0 {
			return e57.Newf(e57.PathUndefined, "prototype has no field %q", buf.PathName())
		}
		if seen[fi] {
			return e57.Newf(e57.DuplicatePathName, "two buffers bound to field %q", buf.PathName())
		}
		seen[fi] = true
		if err := r.fields[fi].checkBinding(buf); err != nil {
			return err
		}
		idx[i] = fi
	}
	if !initial {
		if len(bufs) != len(r.bound) {
			return e57.Newf(e57.BufferSizeMismatch,
				"%d buffers supplied, %d were bound at open", len(bufs), len(r.bound))
		}
		for _, fi := range r.boundIdx {
			if !seen[fi] {
				return e57.Newf(e57.BadAPIArgument,
					"buffer set no longer covers field %q bound at open", r.fields[fi].name)
			}
		}
	}
	r.bound = bufs
	r.boundIdx = idx
	return nil
}

func (r *Reader) fieldIndex(path string) int {
	name := path
	if len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	for i := range r.fields {
		if r.fields[i].name == name {
			return i
		}
	}
	return -1
}

// Read transfers up to the bound buffers' capacity worth of records,
// starting at the current position, and returns how many were
// delivered. Zero with a nil error means the end of the stream.
func (r *Reader) Read() (int, error) {
	return r.ReadBuffers(nil)
}

// ReadBuffers is Read with a replacement buffer set, which must cover
// the same fields as the set bound at open. The buffers are validated
// before the position moves.
func (r *Reader) ReadBuffers(bufs []*Buffer) (int, error) {
	if err := r.precheck(); err != nil {
		return 0, err
	}
	if bufs != nil {
		if err := r.bind(bufs, false); err != nil {
			r.poisonWith(err)
			return 0, err
		}
	}
	n, err := r.transfer()
	if err != nil {
		r.poisonWith(err)
		return 0, err
	}
	return n, nil
}

func (r *Reader) transfer() (int, error) {
	want := int64(r.bound[0].Capacity())
	if remain := r.recordCount - r.pos; remain < want {
		want = remain
	}
	if want <= 0 {
		return 0, nil
	}

	moved := 0
	for int64(moved) < want {
		if r.dec == nil || r.consumed >= r.dec.Records() {
			if err := r.loadNextPacket(); err != nil {
				return 0, err
			}
		}
		batch := int(want) - moved
		if avail := r.dec.Records() - r.consumed; avail < batch {
			batch = avail
		}
		for i := 0; i < batch; i++ {
			for bi, buf := range r.bound {
				fi := r.boundIdx[bi]
				if err := decodeValue(r.dec, fi, &r.fields[fi], buf, moved+i); err != nil {
					return 0, err
				}
			}
			r.consumed++
		}
		moved += batch
	}

	r.pos += int64(moved)
	metrics.RecordRecordsRead(int64(moved))
	return moved, nil
}

func (r *Reader) loadNextPacket() error {
	if r.nextPacket+codec.HeaderSize > r.dataEnd {
		return e57.Newf(e57.BadPacket,
			"section exhausted at offset %d with records remaining", r.nextPacket)
	}
	hdr := make([]byte, codec.HeaderSize)
	if err := readFull(r.file, hdr, r.nextPacket); err != nil {
		return err
	}
	info, err := codec.ParseHeader(hdr)
	if err != nil {
		return err
	}
	if r.nextPacket+int64(info.Length) > r.dataEnd {
		return e57.Newf(e57.BadPacket, "packet at offset %d overruns its section", r.nextPacket)
	}
	data := make([]byte, info.Length)
	if err := readFull(r.file, data, r.nextPacket); err != nil {
		return err
	}
	dec, err := codec.DecodePacket(r.specs, data)
	if err != nil {
		return err
	}

	if r.dec != nil {
		r.pktFirst += int64(r.dec.Records())
	}
	r.dec = dec
	r.pktOff = r.nextPacket
	r.nextPacket += int64(info.Length)
	r.consumed = 0
	return nil
}

// Seek repositions the reader to the given record number. Record
// recordCount, one past the last record, is a legal position from
// which every read returns zero. The position is located by walking
// packet headers from the nearest known packet boundary; payloads are
// only decoded for the packet the target lands in.
func (r *Reader) Seek(recordNumber int64) error {
	if err := r.precheck(); err != nil {
		return err
	}
	if recordNumber < 0 || recordNumber > r.recordCount {
		return e57.Newf(e57.BadAPIArgument,
			"seek to record %d outside [0, %d]", recordNumber, r.recordCount)
	}
	if recordNumber == r.pos {
		return nil
	}
	if recordNumber == r.recordCount {
		r.dec = nil
		r.consumed = 0
		r.pktOff = r.dataEnd
		r.pktFirst = recordNumber
		r.nextPacket = r.dataEnd
		r.pos = recordNumber
		return nil
	}

	// Scan forward from the current packet when the target is at or
	// past it, otherwise from the start of the section.
	off, first := r.dataStart, int64(0)
	if recordNumber >= r.pktFirst {
		if r.dec != nil {
			off, first = r.pktOff, r.pktFirst
		} else {
			off, first = r.nextPacket, r.pktFirst
		}
	}
	if err := r.seekScan(recordNumber, off, first); err != nil {
		r.poisonWith(err)
		return err
	}
	return nil
}

func (r *Reader) seekScan(recordNumber, off, first int64) error {
	hdr := make([]byte, codec.HeaderSize)
	for {
		if off+codec.HeaderSize > r.dataEnd {
			return e57.Newf(e57.SeekFailed,
				"record %d not found before section end", recordNumber)
		}
		if err := readFull(r.file, hdr, off); err != nil {
			return err
		}
		info, err := codec.ParseHeader(hdr)
		if err != nil {
			return err
		}
		if off+int64(info.Length) > r.dataEnd {
			return e57.Newf(e57.BadPacket, "packet at offset %d overruns its section", off)
		}
		if recordNumber < first+int64(info.RecordCount) {
			data := make([]byte, info.Length)
			if err := readFull(r.file, data, off); err != nil {
				return err
			}
			dec, err := codec.DecodePacket(r.specs, data)
			if err != nil {
				return err
			}
			skip := int(recordNumber - first)
			for _, fi := range r.boundIdx {
				if err := dec.SkipRecords(fi, skip); err != nil {
					return err
				}
			}
			r.dec = dec
			r.consumed = skip
			r.pktOff = off
			r.pktFirst = first
			r.nextPacket = off + int64(info.Length)
			r.pos = recordNumber
			return nil
		}
		first += int64(info.RecordCount)
		off += int64(info.Length)
	}
}

// precheck gates every data operation on the handle and file state. A
// poisoned handle surfaces its recorded error once and closes.
func (r *Reader) precheck() error {
	switch r.state {
	case stateClosed:
		return e57.New(e57.ReaderNotOpen, "handle is closed")
	case statePoisoned:
		err := r.poisonErr
		r.shut()
		return err
	}
	if !r.file.IsOpen() {
		return e57.New(e57.ImageFileNotOpen, "reader operation")
	}
	return nil
}

func (r *Reader) poisonWith(err error) {
	code := e57.CodeOf(err)
	if !code.PoisonsStream() {
		return
	}
	r.state = statePoisoned
	r.poisonErr = err
	metrics.RecordStreamPoisoned("read")
	logging.Warn("reader poisoned", "id", r.id, "code", code.String(), "err", err)
	if code.PoisonsFile() {
		r.file.Poison()
	}
}

func (r *Reader) shut() {
	if r.state == stateClosed {
		return
	}
	r.state = stateClosed
	r.file.DetachReader()
}

// Close releases the handle. Closing an already closed or poisoned
// reader is not an error.
func (r *Reader) Close() error {
	r.shut()
	return nil
}

// IsOpen reports whether the handle still accepts operations. A
// poisoned reader reports open; its state is only resolved by the next
// data operation.
func (r *Reader) IsOpen() bool { return r.state != stateClosed }

// ID returns the handle's unique identifier, used in logs.
func (r *Reader) ID() string { return r.id }

// Position returns the record number the next read starts at.
func (r *Reader) Position() int64 { return r.pos }

// RecordCount returns the total number of records in the stream.
func (r *Reader) RecordCount() int64 { return r.recordCount }

// StreamNode returns the compressed-vector node the reader was opened
// on. Legal in every handle state.
func (r *Reader) StreamNode() *node.CompressedVector { return r.cv }

// Verify checks the handle's documented invariants. Like the node
// checks it is inert once the handle or the file is closed.
func (r *Reader) Verify() error {
	if r.state == stateClosed || !r.file.IsOpen() {
		return nil
	}
	if !r.cv.Attached() {
		return e57.Newf(e57.InvarianceViolation, "reader %s on detached stream node", r.id)
	}
	if r.file.ReaderCount() < 1 {
		return e57.Newf(e57.InvarianceViolation, "reader %s not registered with its file", r.id)
	}
	if r.file.WriterCount() != 0 {
		return e57.Newf(e57.InvarianceViolation, "reader %s coexists with a writer", r.id)
	}
	if r.pos < 0 || r.pos > r.recordCount {
		return e57.Newf(e57.InvarianceViolation, "reader %s position %d of %d", r.id, r.pos, r.recordCount)
	}
	return nil
}

func readFull(f File, p []byte, off int64) error {
	n, err := f.ReadAt(p, off)
	if err != nil || n != len(p) {
		return e57.Newf(e57.ReadFailed, "read of %d bytes at offset %d: got %d, %v", len(p), off, n, err)
	}
	return nil
}

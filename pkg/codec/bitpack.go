package codec

import (
	"encoding/binary"
	"math/bits"

	"github.com/ssargent/skadi/pkg/e57"
)

// BitWidth returns the smallest number of bits that can represent any
// value in [minimum, maximum], i.e. the width of maximum-minimum. The
// subtraction is done in uint64 so the full int64 range (width 64) is
// handled. A degenerate range (minimum == maximum) needs zero bits.
func BitWidth(minimum, maximum int64) uint8 {
	return uint8(bits.Len64(uint64(maximum) - uint64(minimum)))
}

// bitWriter packs values LSB-first into a growing byte slice. Values
// are written back-to-back with no per-value alignment; the final byte
// is zero-padded.
type bitWriter struct {
	buf   []byte
	nbits uint   // bits used in the last byte of buf, 0 = byte-aligned
	mark  uint64 // bit position at the last committed record boundary
}

func (w *bitWriter) writeBits(v uint64, width uint8) {
	n := uint(width)
	for n > 0 {
		if w.nbits == 0 {
			w.buf = append(w.buf, 0)
		}
		take := 8 - w.nbits
		if take > n {
			take = n
		}
		w.buf[len(w.buf)-1] |= byte(v&((1<<take)-1)) << w.nbits
		v >>= take
		w.nbits = (w.nbits + take) % 8
		n -= take
	}
}

// writeUvarint appends a varint-encoded length. Only used on
// byte-aligned (string) streams.
func (w *bitWriter) writeUvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.writeBytes(tmp[:n])
}

func (w *bitWriter) writeBytes(p []byte) {
	// String streams never hold partial bytes.
	w.buf = append(w.buf, p...)
}

func (w *bitWriter) bytes() []byte { return w.buf }

func (w *bitWriter) size() int { return len(w.buf) }

func (w *bitWriter) pos() uint64 {
	if w.nbits == 0 {
		return uint64(len(w.buf)) * 8
	}
	return uint64(len(w.buf)-1)*8 + uint64(w.nbits)
}

// markRecord remembers the current position as a record boundary the
// run can later be split at.
func (w *bitWriter) markRecord() { w.mark = w.pos() }

// splitAtMark cuts the run at the last marked record boundary: the
// bytes before the mark are returned as a finished payload, the bits
// after it are shifted down to seed the next run.
func (w *bitWriter) splitAtMark() []byte {
	old := w.buf
	end := w.pos()
	committed := make([]byte, (w.mark+7)/8)
	copy(committed, old)
	if rem := w.mark % 8; rem != 0 {
		committed[len(committed)-1] &= byte(1<<rem) - 1
	}

	r := bitReader{data: old, pos: w.mark}
	w.buf = nil
	w.nbits = 0
	w.mark = 0
	for r.pos < end {
		take := uint8(8)
		if end-r.pos < 8 {
			take = uint8(end - r.pos)
		}
		v, _ := r.readBits(take)
		w.writeBits(v, take)
	}
	return committed
}

func (w *bitWriter) reset() {
	w.buf = w.buf[:0]
	w.nbits = 0
	w.mark = 0
}

// bitReader is the decoding dual of bitWriter: an LSB-first cursor over
// one field's packet payload.
type bitReader struct {
	data []byte
	pos  uint64 // bit position
}

func (r *bitReader) remainingBits() uint64 {
	return uint64(len(r.data))*8 - r.pos
}

func (r *bitReader) readBits(width uint8) (uint64, error) {
	if uint64(width) > r.remainingBits() {
		return 0, e57.New(e57.BadPacket, "field payload exhausted")
	}
	var v uint64
	got := uint(0)
	n := uint(width)
	for got < n {
		idx := r.pos / 8
		off := uint(r.pos % 8)
		take := 8 - off
		if take > n-got {
			take = n - got
		}
		chunk := (r.data[idx] >> off) & byte((1<<take)-1)
		v |= uint64(chunk) << got
		r.pos += uint64(take)
		got += take
	}
	return v, nil
}

func (r *bitReader) skipBits(n uint64) error {
	if n > r.remainingBits() {
		return e57.New(e57.BadPacket, "field payload exhausted")
	}
	r.pos += n
	return nil
}

// readUvarint reads a varint length prefix. The cursor must be
// byte-aligned, which holds for string streams by construction.
func (r *bitReader) readUvarint() (uint64, error) {
	if r.pos%8 != 0 {
		return 0, e57.New(e57.Internal, "unaligned varint read")
	}
	v, n := binary.Uvarint(r.data[r.pos/8:])
	if n <= 0 {
		return 0, e57.New(e57.BadPacket, "truncated string length")
	}
	r.pos += uint64(n) * 8
	return v, nil
}

func (r *bitReader) readBytes(n uint64) ([]byte, error) {
	if r.pos%8 != 0 {
		return nil, e57.New(e57.Internal, "unaligned byte read")
	}
	if n*8 > r.remainingBits() {
		return nil, e57.New(e57.BadPacket, "field payload exhausted")
	}
	start := r.pos / 8
	r.pos += n * 8
	return r.data[start : start+n], nil
}

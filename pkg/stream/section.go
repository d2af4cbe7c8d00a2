package stream

import (
	"encoding/binary"

	"github.com/ssargent/skadi/pkg/e57"
)

// A compressed-vector binary section starts with a fixed 32-byte header
// followed by its packets. The writer reserves the header space up
// front and backpatches it on close, once the section length and record
// count are final.
const (
	sectionKindRecords = 0x01

	// SectionHeaderSize is the fixed on-disk size of a binary section
	// header.
	SectionHeaderSize = 32
)

type sectionHeader struct {
	length      int64 // whole section including this header
	recordCount int64
}

func (h sectionHeader) marshal() []byte {
	buf := make([]byte, SectionHeaderSize)
	buf[0] = sectionKindRecords
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.length))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.recordCount))
	return buf
}

func parseSectionHeader(buf []byte) (sectionHeader, error) {
	if len(buf) < SectionHeaderSize {
		return sectionHeader{}, e57.Newf(e57.BadPacket, "short section header: %d bytes", len(buf))
	}
	if buf[0] != sectionKindRecords {
		return sectionHeader{}, e57.Newf(e57.BadPacket, "unknown section kind 0x%02x", buf[0])
	}
	h := sectionHeader{
		length:      int64(binary.LittleEndian.Uint64(buf[8:16])),
		recordCount: int64(binary.LittleEndian.Uint64(buf[16:24])),
	}
	if h.length < SectionHeaderSize {
		return sectionHeader{}, e57.Newf(e57.BadPacket, "section length %d too small", h.length)
	}
	if h.recordCount < 0 {
		return sectionHeader{}, e57.Newf(e57.BadPacket, "negative section record count")
	}
	return h, nil
}

// Package codec transforms runs of typed field values into bit-packed,
// checksummed on-disk packets and back. It knows nothing about the node
// tree or buffers; the stream engine drives it with flat field
// specifications derived from a record prototype.
//
// Packet layout (all integers little-endian):
//
//	0              kind (0x01 = data)
//	1              field count
//	2..3           packet length, including header and CRC
//	4..5           record count
//	6..            field count u16 payload lengths
//	...            per-field payloads, byte-aligned between fields
//	last 4 bytes   CRC-32C over all preceding packet bytes
//
// Integer payloads hold recordCount values bit-packed LSB-first at the
// field's declared width. Float payloads hold raw IEEE-754 values.
// String payloads hold one uvarint length prefix plus UTF-8 bytes per
// record.
package codec

import (
	"encoding/binary"
	"hash/crc32"
	"math"

	"github.com/ssargent/skadi/pkg/e57"
	"github.com/ssargent/skadi/pkg/metrics"
)

const (
	// PacketKindData identifies a data packet.
	PacketKindData = 0x01

	// HeaderSize is the fixed packet header prefix, before the
	// per-field payload lengths.
	HeaderSize = 6

	crcSize = 4

	// MaxPacketSize bounds one packet; the length field is 16 bits.
	MaxPacketSize = 0xFFFF

	// MaxFieldCount bounds the prototype width; the field count is 8 bits.
	MaxFieldCount = 255

	// MaxStringLength bounds a single string value so that any record
	// still fits a packet.
	MaxStringLength = 32 * 1024

	// DefaultTargetPacketSize is the flush threshold used by writers
	// unless configured otherwise.
	DefaultTargetPacketSize = 16 * 1024
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// FieldKind is the codec-level type of one field's payload.
type FieldKind int

const (
	FieldInteger FieldKind = iota
	FieldReal32
	FieldReal64
	FieldString
)

func (k FieldKind) String() string {
	switch k {
	case FieldInteger:
		return "Integer"
	case FieldReal32:
		return "Real32"
	case FieldReal64:
		return "Real64"
	case FieldString:
		return "String"
	default:
		return "Unknown"
	}
}

// FieldSpec describes one field of a packet: its payload kind, the bit
// width of a value, and for integers the bias subtracted before
// packing. Specs are derived from the record prototype once and are
// fixed for the life of a stream.
type FieldSpec struct {
	Name string
	Kind FieldKind
	Bits uint8
	Min  int64
}

// IntegerField builds the spec for a bounded integer field.
func IntegerField(name string, minimum, maximum int64) FieldSpec {
	return FieldSpec{Name: name, Kind: FieldInteger, Bits: BitWidth(minimum, maximum), Min: minimum}
}

// Real32Field builds the spec for a single precision float field.
func Real32Field(name string) FieldSpec {
	return FieldSpec{Name: name, Kind: FieldReal32, Bits: 32}
}

// Real64Field builds the spec for a double precision float field.
func Real64Field(name string) FieldSpec {
	return FieldSpec{Name: name, Kind: FieldReal64, Bits: 64}
}

// StringField builds the spec for a length-prefixed string field.
func StringField(name string) FieldSpec {
	return FieldSpec{Name: name, Kind: FieldString}
}

func validateSpecs(specs []FieldSpec) error {
	if len(specs) == 0 {
		return e57.New(e57.BadAPIArgument, "no field specs")
	}
	if len(specs) > MaxFieldCount {
		return e57.Newf(e57.BadAPIArgument, "%d fields exceeds the packet limit of %d", len(specs), MaxFieldCount)
	}
	for _, s := range specs {
		switch s.Kind {
		case FieldInteger:
			if s.Bits > 64 {
				return e57.Newf(e57.BadAPIArgument, "field %q width %d", s.Name, s.Bits)
			}
		case FieldReal32:
			if s.Bits != 32 {
				return e57.Newf(e57.BadAPIArgument, "field %q real32 width %d", s.Name, s.Bits)
			}
		case FieldReal64:
			if s.Bits != 64 {
				return e57.Newf(e57.BadAPIArgument, "field %q real64 width %d", s.Name, s.Bits)
			}
		case FieldString:
			if s.Bits != 0 {
				return e57.Newf(e57.BadAPIArgument, "field %q string width %d", s.Name, s.Bits)
			}
		default:
			return e57.Newf(e57.BadAPIArgument, "field %q unknown kind %d", s.Name, s.Kind)
		}
	}
	return nil
}

// PacketInfo is the decoded fixed header prefix of a packet, enough to
// walk the packet structure without touching payload bytes.
type PacketInfo struct {
	Kind        uint8
	FieldCount  int
	Length      int
	RecordCount int
}

// ParseHeader validates and decodes the fixed packet header prefix.
// The caller supplies at least HeaderSize bytes read at a packet
// boundary.
func ParseHeader(prefix []byte) (PacketInfo, error) {
	if len(prefix) < HeaderSize {
		return PacketInfo{}, e57.Newf(e57.BadPacket, "short packet header: %d bytes", len(prefix))
	}
	info := PacketInfo{
		Kind:        prefix[0],
		FieldCount:  int(prefix[1]),
		Length:      int(binary.LittleEndian.Uint16(prefix[2:4])),
		RecordCount: int(binary.LittleEndian.Uint16(prefix[4:6])),
	}
	if info.Kind != PacketKindData {
		return PacketInfo{}, e57.Newf(e57.BadPacket, "unknown packet kind 0x%02x", info.Kind)
	}
	if info.FieldCount == 0 {
		return PacketInfo{}, e57.New(e57.BadPacket, "packet with zero fields")
	}
	if info.RecordCount == 0 {
		return PacketInfo{}, e57.New(e57.BadPacket, "packet with zero records")
	}
	if info.Length < HeaderSize+2*info.FieldCount+crcSize {
		return PacketInfo{}, e57.Newf(e57.BadPacket, "packet length %d too small", info.Length)
	}
	return info, nil
}

// PacketEncoder accumulates per-field value runs and emits complete
// packets. One encoder serves a whole stream; Encode resets it for the
// next packet.
type PacketEncoder struct {
	specs   []FieldSpec
	fields  []bitWriter
	records int
	marked  int // records up to the last committed boundary
	target  int

	// overflow is set when the pending run has grown past the maximum
	// packet size; Encode then emits the marked records and carries the
	// rest into the next packet.
	overflow bool
}

// NewPacketEncoder creates an encoder for the given field layout.
// targetSize is the flush threshold; zero selects the default.
func NewPacketEncoder(specs []FieldSpec, targetSize int) (*PacketEncoder, error) {
	if err := validateSpecs(specs); err != nil {
		return nil, err
	}
	if targetSize <= 0 {
		targetSize = DefaultTargetPacketSize
	}
	if targetSize > MaxPacketSize {
		targetSize = MaxPacketSize
	}
	return &PacketEncoder{
		specs:  specs,
		fields: make([]bitWriter, len(specs)),
		target: targetSize,
	}, nil
}

// PutInteger appends one biased integer value to a field's run. The
// caller has already bounds-checked raw against the field's declared
// minimum/maximum.
func (e *PacketEncoder) PutInteger(field int, raw int64) error {
	s := &e.specs[field]
	if s.Kind != FieldInteger {
		return e57.Newf(e57.Internal, "field %q is %s, not integer", s.Name, s.Kind)
	}
	e.fields[field].writeBits(uint64(raw)-uint64(s.Min), s.Bits)
	return nil
}

// PutReal32 appends one single precision value to a field's run.
func (e *PacketEncoder) PutReal32(field int, v float32) error {
	s := &e.specs[field]
	if s.Kind != FieldReal32 {
		return e57.Newf(e57.Internal, "field %q is %s, not real32", s.Name, s.Kind)
	}
	e.fields[field].writeBits(uint64(math.Float32bits(v)), 32)
	return nil
}

// PutReal64 appends one double precision value to a field's run.
func (e *PacketEncoder) PutReal64(field int, v float64) error {
	s := &e.specs[field]
	if s.Kind != FieldReal64 {
		return e57.Newf(e57.Internal, "field %q is %s, not real64", s.Name, s.Kind)
	}
	e.fields[field].writeBits(math.Float64bits(v), 64)
	return nil
}

// PutString appends one string value to a field's run.
func (e *PacketEncoder) PutString(field int, v string) error {
	s := &e.specs[field]
	if s.Kind != FieldString {
		return e57.Newf(e57.Internal, "field %q is %s, not string", s.Name, s.Kind)
	}
	if len(v) > MaxStringLength {
		return e57.Newf(e57.BadAPIArgument, "string value of %d bytes exceeds limit %d", len(v), MaxStringLength)
	}
	e.fields[field].writeUvarint(uint64(len(v)))
	e.fields[field].writeBytes([]byte(v))
	return nil
}

// EndRecord marks one whole record as appended across every field.
// A record that overflows the pending packet is carried into the next
// one by Encode; only a record run with no committed boundary to flush
// behind, meaning it can never fit any packet, is an error.
func (e *PacketEncoder) EndRecord() error {
	e.records++
	if e.size() <= MaxPacketSize {
		for i := range e.fields {
			e.fields[i].markRecord()
		}
		e.marked = e.records
		return nil
	}
	if e.marked == 0 {
		return e57.Newf(e57.BadPacket, "record run of %d bytes cannot fit one packet", e.size())
	}
	e.overflow = true
	return nil
}

// Records returns the number of whole records accumulated so far.
func (e *PacketEncoder) Records() int { return e.records }

// Empty reports whether no records are pending.
func (e *PacketEncoder) Empty() bool { return e.records == 0 }

// Full reports whether the pending packet has reached the flush
// threshold, overflowed the maximum packet size, or hit the per-packet
// record count limit.
func (e *PacketEncoder) Full() bool {
	return e.overflow || e.size() >= e.target || e.records >= math.MaxUint16
}

func (e *PacketEncoder) size() int {
	n := HeaderSize + 2*len(e.specs) + crcSize
	for i := range e.fields {
		n += e.fields[i].size()
	}
	return n
}

// Encode builds the pending packet and returns the packet bytes. An
// overflowing run is split at the last committed record boundary; the
// remainder stays pending for the next packet. Otherwise the encoder is
// reset empty.
func (e *PacketEncoder) Encode() ([]byte, error) {
	if e.records == 0 {
		return nil, e57.New(e57.Internal, "encoding an empty packet")
	}
	if e.overflow {
		return e.encodeCommitted()
	}
	// Reachable only for a carried record too large for any packet.
	total := e.size()
	if total > MaxPacketSize {
		return nil, e57.Newf(e57.BadPacket, "record run of %d bytes cannot fit one packet", total)
	}

	buf := make([]byte, 0, total)
	buf = append(buf, PacketKindData, byte(len(e.specs)))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(total))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(e.records))
	for i := range e.fields {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(e.fields[i].size()))
	}
	for i := range e.fields {
		buf = append(buf, e.fields[i].bytes()...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, crc32.Checksum(buf, castagnoli))

	for i := range e.fields {
		e.fields[i].reset()
	}
	e.records = 0
	e.marked = 0

	metrics.RecordPacketEncoded()
	return buf, nil
}

// encodeCommitted emits the records up to the last committed boundary
// and keeps the overflowing remainder pending.
func (e *PacketEncoder) encodeCommitted() ([]byte, error) {
	if e.marked == 0 {
		return nil, e57.Newf(e57.BadPacket, "record run of %d bytes cannot fit one packet", e.size())
	}
	records := e.marked
	payloads := make([][]byte, len(e.fields))
	total := HeaderSize + 2*len(e.specs) + crcSize
	for i := range e.fields {
		payloads[i] = e.fields[i].splitAtMark()
		total += len(payloads[i])
	}
	e.records -= records
	e.marked = 0
	e.overflow = false
	if e.size() <= MaxPacketSize {
		for i := range e.fields {
			e.fields[i].markRecord()
		}
		e.marked = e.records
	}

	buf := make([]byte, 0, total)
	buf = append(buf, PacketKindData, byte(len(e.specs)))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(total))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(records))
	for i := range payloads {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payloads[i])))
	}
	for i := range payloads {
		buf = append(buf, payloads[i]...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, crc32.Checksum(buf, castagnoli))

	metrics.RecordPacketEncoded()
	return buf, nil
}

// PacketDecoder reads values back out of one packet. Per-field cursors
// advance independently so a reader bound to a subset of the prototype
// never pays for fields it does not want, and a packet can be consumed
// across several transfer calls.
type PacketDecoder struct {
	specs  []FieldSpec
	info   PacketInfo
	fields []bitReader
}

// DecodePacket verifies a packet's checksum and structure and returns a
// decoder over its payloads. The checksum is verified before any
// payload byte is interpreted; a mismatch is a BadChecksum error.
func DecodePacket(specs []FieldSpec, data []byte) (*PacketDecoder, error) {
	d, err := decodePacket(specs, data)
	if err != nil {
		metrics.RecordPacketDecoded(false)
		return nil, err
	}
	metrics.RecordPacketDecoded(true)
	return d, nil
}

func decodePacket(specs []FieldSpec, data []byte) (*PacketDecoder, error) {
	if err := validateSpecs(specs); err != nil {
		return nil, err
	}
	info, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if info.Length != len(data) {
		return nil, e57.Newf(e57.BadPacket, "packet length %d != buffer %d", info.Length, len(data))
	}
	if info.FieldCount != len(specs) {
		return nil, e57.Newf(e57.BadPacket, "packet has %d fields, prototype has %d", info.FieldCount, len(specs))
	}

	stored := binary.LittleEndian.Uint32(data[len(data)-crcSize:])
	if computed := crc32.Checksum(data[:len(data)-crcSize], castagnoli); computed != stored {
		metrics.RecordChecksumFailure()
		return nil, e57.Newf(e57.BadChecksum, "stored %08x computed %08x", stored, computed)
	}

	d := &PacketDecoder{
		specs:  specs,
		info:   info,
		fields: make([]bitReader, len(specs)),
	}

	offset := HeaderSize + 2*len(specs)
	payloadEnd := len(data) - crcSize
	for i := range specs {
		plen := int(binary.LittleEndian.Uint16(data[HeaderSize+2*i:]))
		if offset+plen > payloadEnd {
			return nil, e57.Newf(e57.BadPacket, "field %q payload overruns packet", specs[i].Name)
		}
		d.fields[i] = bitReader{data: data[offset : offset+plen]}
		offset += plen
	}
	if offset != payloadEnd {
		return nil, e57.Newf(e57.BadPacket, "%d trailing payload bytes", payloadEnd-offset)
	}

	// Fixed-width payloads must hold exactly the advertised records.
	for i, s := range specs {
		if s.Kind == FieldString {
			continue
		}
		want := (uint64(info.RecordCount)*uint64(s.Bits) + 7) / 8
		if uint64(len(d.fields[i].data)) != want {
			return nil, e57.Newf(e57.BadPacket,
				"field %q payload %d bytes, want %d for %d records", s.Name, len(d.fields[i].data), want, info.RecordCount)
		}
	}
	return d, nil
}

// Records returns the number of whole records in the packet.
func (d *PacketDecoder) Records() int { return d.info.RecordCount }

// ReadInteger decodes the next value of an integer field.
func (d *PacketDecoder) ReadInteger(field int) (int64, error) {
	s := &d.specs[field]
	v, err := d.fields[field].readBits(s.Bits)
	if err != nil {
		return 0, err
	}
	return int64(uint64(s.Min) + v), nil
}

// ReadReal32 decodes the next value of a single precision field.
func (d *PacketDecoder) ReadReal32(field int) (float32, error) {
	v, err := d.fields[field].readBits(32)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(v)), nil
}

// ReadReal64 decodes the next value of a double precision field.
func (d *PacketDecoder) ReadReal64(field int) (float64, error) {
	v, err := d.fields[field].readBits(64)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadString decodes the next value of a string field.
func (d *PacketDecoder) ReadString(field int) (string, error) {
	r := &d.fields[field]
	n, err := r.readUvarint()
	if err != nil {
		return "", err
	}
	if n > MaxStringLength {
		return "", e57.Newf(e57.BadPacket, "string length %d exceeds limit %d", n, MaxStringLength)
	}
	b, err := r.readBytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SkipRecords advances one field's cursor past k records without
// materializing values. Used when a transfer starts mid-packet after a
// seek.
func (d *PacketDecoder) SkipRecords(field, k int) error {
	s := &d.specs[field]
	if s.Kind != FieldString {
		return d.fields[field].skipBits(uint64(k) * uint64(s.Bits))
	}
	r := &d.fields[field]
	for i := 0; i < k; i++ {
		n, err := r.readUvarint()
		if err != nil {
			return err
		}
		if n > MaxStringLength {
			return e57.Newf(e57.BadPacket, "string length %d exceeds limit %d", n, MaxStringLength)
		}
		if _, err := r.readBytes(n); err != nil {
			return err
		}
	}
	return nil
}

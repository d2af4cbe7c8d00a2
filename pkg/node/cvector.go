package node

import "github.com/ssargent/skadi/pkg/e57"

// CompressedVector is the record-stream node: a sequence of fixed-shape
// records stored in a checksummed binary section of the file. Its
// prototype structure defines the shape of every record and is fixed
// for the lifetime of the stream.
type CompressedVector struct {
	base
	prototype *Structure

	// Set by the stream writer when the binary section is committed,
	// or by the file layer when parsing an existing file.
	recordCount   int64
	sectionOffset int64
}

// NewCompressedVector creates a record-stream node with the given
// prototype. Every prototype field must be a bounded scalar kind.
func NewCompressedVector(dest Container, prototype *Structure) (*CompressedVector, error) {
	b, err := newBase(dest)
	if err != nil {
		return nil, err
	}
	if prototype == nil {
		return nil, e57.New(e57.BadAPIArgument, "nil prototype")
	}
	if prototype.Destination() != dest {
		return nil, e57.New(e57.BadAPIArgument, "prototype was created for a different image file")
	}
	if prototype.ChildCount() == 0 {
		return nil, e57.New(e57.BadAPIArgument, "prototype has no fields")
	}
	for i := 0; i < prototype.ChildCount(); i++ {
		child, _ := prototype.At(i)
		switch child.Kind() {
		case KindInteger, KindScaledInteger, KindFloat, KindString:
		default:
			return nil, e57.Newf(e57.BadAPIArgument,
				"prototype field %q has non-scalar kind %s", child.ElementName(), child.Kind())
		}
	}
	cv := &CompressedVector{base: b, prototype: prototype, sectionOffset: -1}
	if err := prototype.adopt(cv, "prototype"); err != nil {
		return nil, err
	}
	return cv, nil
}

func (cv *CompressedVector) Kind() Kind { return KindCompressedVector }

// Prototype returns the record shape shared by every record.
func (cv *CompressedVector) Prototype() *Structure { return cv.prototype }

// RecordCount returns the number of records in the stream.
func (cv *CompressedVector) RecordCount() (int64, error) {
	if err := cv.checkOpen(); err != nil {
		return 0, err
	}
	return cv.recordCount, nil
}

// SectionOffset returns the physical offset of the stream's binary
// section, or -1 when nothing has been written yet.
func (cv *CompressedVector) SectionOffset() (int64, error) {
	if err := cv.checkOpen(); err != nil {
		return 0, err
	}
	return cv.sectionOffset, nil
}

// CommitSection records the binary section location and final record
// count. It is called by the stream writer on close and by the file
// layer when materializing a parsed tree, never by API users.
func (cv *CompressedVector) CommitSection(offset, recordCount int64) error {
	if offset < 0 || recordCount < 0 {
		return e57.Newf(e57.InvarianceViolation,
			"compressed vector %q commit offset=%d count=%d", cv.PathName(), offset, recordCount)
	}
	cv.sectionOffset = offset
	cv.recordCount = recordCount
	return nil
}

func (cv *CompressedVector) markAttached() {
	cv.base.markAttached()
	cv.prototype.markAttached()
}

func (cv *CompressedVector) Verify(recurse bool) error {
	if !cv.dest.IsOpen() {
		return nil
	}
	if cv.prototype == nil || cv.prototype.ChildCount() == 0 {
		return e57.Newf(e57.InvarianceViolation, "compressed vector %q prototype", cv.PathName())
	}
	if cv.recordCount < 0 {
		return e57.Newf(e57.InvarianceViolation, "compressed vector %q record count", cv.PathName())
	}
	if recurse {
		return cv.prototype.Verify(true)
	}
	return nil
}

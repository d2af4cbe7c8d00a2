// Package e57 defines the error vocabulary shared by the node tree, the
// packet codec and the record stream engine. Every failure surfaces as a
// distinct named code so callers can tell usage mistakes apart from
// conditions that leave a stream or a file unusable.
package e57

import "fmt"

// ErrorCode identifies a single failure condition.
type ErrorCode int

const (
	// Success is the zero value and never appears in a returned error.
	Success ErrorCode = iota

	// Usage errors. Detected before any I/O, state unchanged.
	BadAPIArgument
	ValueOutOfBounds
	FileReadOnly
	ImageFileNotOpen
	ReaderNotOpen
	WriterNotOpen
	PathUndefined
	DuplicatePathName
	BufferSizeMismatch
	BadNodeDowncast

	// Conversion and bounds errors. Poison the stream handle only.
	ConversionRequired
	ValueNotRepresentable
	ScaledValueNotRepresentable
	Real64TooLarge
	ExpectingNumeric
	ExpectingUString

	// Structural and I/O errors. Poison the stream handle and the
	// owning image file.
	BadPacket
	BadChecksum
	SeekFailed
	ReadFailed
	WriteFailed
	BadFileSignature
	BadFileHeader
	BadXMLFormat

	// Internal invariant violations. Fatal to all related objects.
	InvarianceViolation
	Internal
)

var codeNames = map[ErrorCode]string{
	Success:                     "Success",
	BadAPIArgument:              "BadAPIArgument",
	ValueOutOfBounds:            "ValueOutOfBounds",
	FileReadOnly:                "FileReadOnly",
	ImageFileNotOpen:            "ImageFileNotOpen",
	ReaderNotOpen:               "ReaderNotOpen",
	WriterNotOpen:               "WriterNotOpen",
	PathUndefined:               "PathUndefined",
	DuplicatePathName:           "DuplicatePathName",
	BufferSizeMismatch:          "BufferSizeMismatch",
	BadNodeDowncast:             "BadNodeDowncast",
	ConversionRequired:          "ConversionRequired",
	ValueNotRepresentable:       "ValueNotRepresentable",
	ScaledValueNotRepresentable: "ScaledValueNotRepresentable",
	Real64TooLarge:              "Real64TooLarge",
	ExpectingNumeric:            "ExpectingNumeric",
	ExpectingUString:            "ExpectingUString",
	BadPacket:                   "BadPacket",
	BadChecksum:                 "BadChecksum",
	SeekFailed:                  "SeekFailed",
	ReadFailed:                  "ReadFailed",
	WriteFailed:                 "WriteFailed",
	BadFileSignature:            "BadFileSignature",
	BadFileHeader:               "BadFileHeader",
	BadXMLFormat:                "BadXMLFormat",
	InvarianceViolation:         "InvarianceViolation",
	Internal:                    "Internal",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Usage reports whether the code is a pure usage error: state is
// unchanged and the caller can retry after correcting the call.
func (c ErrorCode) Usage() bool {
	return c >= BadAPIArgument && c <= BadNodeDowncast
}

// PoisonsStream reports whether the code leaves the stream handle
// unusable (conversion, bounds, structural and I/O failures).
func (c ErrorCode) PoisonsStream() bool {
	return c >= ConversionRequired && c <= Internal
}

// PoisonsFile reports whether the code also leaves the owning image
// file unusable, because file position or integrity can no longer be
// trusted.
func (c ErrorCode) PoisonsFile() bool {
	return c >= BadPacket && c <= Internal
}

// Error is the concrete error type returned by every package in this
// module. Context carries call-site detail (paths, offsets, values) and
// is for humans, not for matching; match on the code with errors.Is.
type Error struct {
	Code    ErrorCode
	Context string
}

func (e *Error) Error() string {
	if e.Context == "" {
		return "e57: " + e.Code.String()
	}
	return "e57: " + e.Code.String() + ": " + e.Context
}

// Is matches any *Error carrying the same code, so
// errors.Is(err, e57.ErrBadChecksum) works regardless of context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New returns an error with the given code and context.
func New(code ErrorCode, context string) *Error {
	return &Error{Code: code, Context: context}
}

// Newf is New with fmt.Sprintf formatting of the context.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Context: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from an error produced by this module.
// Errors from elsewhere report Internal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return Success
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return Internal
}

// Sentinel values for errors.Is matching. Context-free on purpose.
var (
	ErrBadAPIArgument              = New(BadAPIArgument, "")
	ErrValueOutOfBounds            = New(ValueOutOfBounds, "")
	ErrFileReadOnly                = New(FileReadOnly, "")
	ErrImageFileNotOpen            = New(ImageFileNotOpen, "")
	ErrReaderNotOpen               = New(ReaderNotOpen, "")
	ErrWriterNotOpen               = New(WriterNotOpen, "")
	ErrPathUndefined               = New(PathUndefined, "")
	ErrDuplicatePathName           = New(DuplicatePathName, "")
	ErrBufferSizeMismatch          = New(BufferSizeMismatch, "")
	ErrBadNodeDowncast             = New(BadNodeDowncast, "")
	ErrConversionRequired          = New(ConversionRequired, "")
	ErrValueNotRepresentable       = New(ValueNotRepresentable, "")
	ErrScaledValueNotRepresentable = New(ScaledValueNotRepresentable, "")
	ErrReal64TooLarge              = New(Real64TooLarge, "")
	ErrExpectingNumeric            = New(ExpectingNumeric, "")
	ErrExpectingUString            = New(ExpectingUString, "")
	ErrBadPacket                   = New(BadPacket, "")
	ErrBadChecksum                 = New(BadChecksum, "")
	ErrSeekFailed                  = New(SeekFailed, "")
	ErrReadFailed                  = New(ReadFailed, "")
	ErrWriteFailed                 = New(WriteFailed, "")
	ErrBadFileSignature            = New(BadFileSignature, "")
	ErrBadFileHeader               = New(BadFileHeader, "")
	ErrBadXMLFormat                = New(BadXMLFormat, "")
	ErrInvarianceViolation         = New(InvarianceViolation, "")
	ErrInternal                    = New(Internal, "")
)

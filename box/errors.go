package box

import "errors"

// Errors returned by the box package, per spec.md §7. Wrapping at I/O and
// short-read boundaries uses github.com/pkg/errors so callers that want a
// stack trace get one from the first wrap point (see reader.go, scanner.go).
var (
	// ErrZeroSizeAtom is returned when a header reports atom_size == 0.
	ErrZeroSizeAtom = errors.New("box: zero-size atom")

	// ErrAtomMismatch is returned when a typed decoder is invoked on the
	// wrong FourCC.
	ErrAtomMismatch = errors.New("box: atom type mismatch")

	// ErrBounds is returned when a read/seek would cross a declared
	// boundary, or a cross-stream sync is requested outside the moov
	// region.
	ErrBounds = errors.New("box: bounds check failed")

	// ErrMissingHandlerName is returned when hdlr has no remaining bytes
	// for the component name.
	ErrMissingHandlerName = errors.New("box: hdlr has no component name")

	// ErrInvalidFourCC is returned when a FourCC equal to four zero bytes
	// is rejected in contexts where that is known to be padding (udta).
	ErrInvalidFourCC = errors.New("box: invalid (zero) FourCC")

	// ErrEndOfFile is returned when the navigator is asked to read past
	// the last byte of its stream.
	ErrEndOfFile = errors.New("box: end of stream")

	// ErrShortRead is returned when a read or seek did not land where
	// requested (spec's ReadMismatch/OffsetMismatch).
	ErrShortRead = errors.New("box: short read or seek mismatch")
)

package box

import "github.com/pkg/errors"

// headerSize32 is the minimal atom header: a 4-byte size field followed by
// a 4-byte type (FourCC).
const headerSize32 = 8

// headerSize64 is the header size when the 32-bit size field reads as 1,
// signaling an additional 8-byte "largesize" field follows the type.
const headerSize64 = 16

// Header is a decoded atom header: the box's type, its declared size, and
// the stream offsets needed to locate its payload and its sibling.
type Header struct {
	Type BoxType

	// start is the stream offset of the first byte of this header (the
	// size field), relative to the stream it was read from.
	start int64

	// size is the atom's total size in bytes, including the header
	// itself, widened to 64 bits regardless of whether it came from the
	// 32-bit or 64-bit size field.
	size int64

	// headerLen is 8 for a standard header or 16 when a 64-bit largesize
	// field was present.
	headerLen int64
}

// ReadHeader decodes one atom header from s. streamBase is added to the
// stream's reported position to produce Header.start, letting a FileStream
// (whose Pos() is absolute within the file) and a MoovStream (whose Pos()
// is relative to the moov payload) share this decoder: callers pass the
// appropriate base so Header.Offset()/End() come out in a consistent
// coordinate space for that stream.
func ReadHeader(s stream, streamBase int64) (Header, error) {
	start := streamBase + s.Pos()

	size32, err := s.ReadUint32()
	if err != nil {
		return Header{}, errors.Wrap(err, "header: read size")
	}

	var typeBytes [4]byte
	raw, err := s.ReadBytes(Sized(4))
	if err != nil {
		return Header{}, errors.Wrap(err, "header: read type")
	}
	copy(typeBytes[:], raw)

	size := int64(size32)
	headerLen := int64(headerSize32)

	switch size32 {
	case 0:
		// spec.md §3/§4.2: atom_size == 0 is invalid and fails outright,
		// unlike the wider ISO BMFF convention (where it may mean "extends
		// to end of file"); this module follows the spec's stricter rule.
		return Header{}, errors.Wrapf(ErrZeroSizeAtom, "header: atom at offset %d has size 0", start)
	case 1:
		large, err := s.ReadUint64()
		if err != nil {
			return Header{}, errors.Wrap(err, "header: read largesize")
		}
		size = int64(large)
		headerLen = headerSize64
	}

	if size < headerLen {
		return Header{}, errors.Wrapf(ErrZeroSizeAtom, "header: size %d smaller than header %d", size, headerLen)
	}

	return Header{
		Type:      BoxType(typeBytes),
		start:     start,
		size:      size,
		headerLen: headerLen,
	}, nil
}

// Offset returns the absolute offset (in the coordinate space chosen by the
// streamBase passed to ReadHeader) of the first byte of this header.
func (h Header) Offset() int64 { return h.start }

// HeaderSize returns 8 or 16, depending on whether a 64-bit largesize field
// was present.
func (h Header) HeaderSize() int64 { return h.headerLen }

// Size returns the atom's total size in bytes, including its header.
// ReadHeader never produces a Header with size 0; see its ErrZeroSizeAtom
// handling.
func (h Header) Size() int64 { return h.size }

// DataOffset returns the absolute offset of this atom's payload, i.e. the
// first byte following the header.
func (h Header) DataOffset() int64 { return h.start + h.headerLen }

// DataSize returns the payload length implied by Size().
func (h Header) DataSize() int64 { return h.size - h.headerLen }

// End returns the absolute offset one past the last byte of this atom.
func (h Header) End() int64 { return h.start + h.size }

// NextRelative returns the stream-relative offset to seek to in order to
// land on this atom's next sibling, given the same streamBase used to
// decode it.
func (h Header) NextRelative(streamBase int64) int64 { return h.End() - streamBase }

// IsContainer reports whether this atom's payload is a sequence of child
// atoms (per the closed set in IsContainerBox) rather than an opaque leaf
// record. Containers are what Reader.Enter descends into.
func (h Header) IsContainer() bool { return IsContainerBox(h.Type) }

// IsFull reports whether this atom's type carries a version/flags prefix
// per the closed set in IsFullBox.
func (h Header) IsFull() bool { return IsFullBox(h.Type) }

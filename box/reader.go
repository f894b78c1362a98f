package box

import "github.com/pkg/errors"

// maxReaderDepth bounds Enter nesting, guarding against a malformed file
// whose containers loop back on themselves.
const maxReaderDepth = 16

// readerFrame records the boundary of one level of container nesting, so
// Exit can restore the parent's horizon for sibling iteration.
type readerFrame struct {
	end           int64 // absolute end offset of the container we entered
	start         int64 // absolute start offset (DataOffset) of that container's children
	containerType BoxType
}

// Reader walks the atom tree held in a MoovStream: sibling iteration via
// Next, descent into a container via Enter, ascent back to the parent via
// Exit, and a handful of search helpers layered on top (FindHeader,
// FindHeaderUntil, FindAtom, ClosestAtom). It never touches file I/O; all
// payload access is against the in-memory moov buffer already read by the
// caller.
type Reader struct {
	s *MoovStream

	cur Header
	at  bool // true once Next has produced a current header

	end   int64 // end of the current nesting level (parent container end, or stream end at depth 0)
	start int64 // start of the current nesting level (0 at depth 0)
	stack [maxReaderDepth]readerFrame
	depth int

	containerType BoxType // type of the container whose children are being walked; zero at depth 0
	err           error   // first fatal error Next encountered that isn't plain end-of-level
}

// NewReader builds a Reader over a moov payload already read into memory.
func NewReader(moovPayload []byte) *Reader {
	s := NewMoovStream(moovPayload)
	return &Reader{s: s, end: s.Len()}
}

// Depth returns the current container nesting depth; 0 at the top level of
// the moov payload.
func (r *Reader) Depth() int { return r.depth }

// Type returns the current atom's FourCC. Only valid after Next returns
// true.
func (r *Reader) Type() BoxType { return r.cur.Type }

// Size returns the current atom's total size, including its header.
func (r *Reader) Size() int64 { return r.cur.Size() }

// Offset returns the current atom's absolute start offset within the moov
// payload.
func (r *Reader) Offset() int64 { return r.cur.Offset() }

// DataOffset returns the current atom's payload start offset.
func (r *Reader) DataOffset() int64 { return r.cur.DataOffset() }

// HeaderSize returns 8 or 16 for the current atom.
func (r *Reader) HeaderSize() int64 { return r.cur.HeaderSize() }

// Next advances to the next sibling atom at the current nesting level. It
// returns false once the level's boundary is reached, on a read failure, or
// on encountering a zero FourCC directly inside a udta container (trailing
// zero-padding some producers leave after udta's last real child; stopping
// here rather than trying to interpret padding as an atom). Next itself
// reports only the boolean, matching the teacher's iterator-style walk; a
// caller wanting the underlying error should check Err or prefer
// FindHeader.
func (r *Reader) Next() bool {
	if r.at {
		if _, err := r.s.Seek(SeekAbs(r.cur.NextRelative(0))); err != nil {
			return false
		}
	}
	if r.s.Pos() >= r.end {
		return false
	}
	h, err := ReadHeader(r.s, 0)
	if err != nil {
		return false
	}
	if r.containerType == TypeUdta && h.Type.IsZero() {
		r.err = errors.Wrapf(ErrInvalidFourCC, "box: zero FourCC padding at offset %d", h.Offset())
		return false
	}
	if _, err := r.s.Seek(SeekAbs(h.DataOffset())); err != nil {
		return false
	}
	r.cur = h
	r.at = true
	return true
}

// Err returns the first error Next encountered beyond plain end-of-level,
// or nil. Currently only set when Next stops on udta zero-padding.
func (r *Reader) Err() error { return r.err }

// Enter descends into the current atom, which must be a container box
// (Header.IsContainer). Subsequent Next calls iterate the container's
// children. Exit must be called to return to the parent level.
func (r *Reader) Enter() error {
	if !r.at {
		return errors.New("box: Enter called with no current atom")
	}
	if !r.cur.IsContainer() {
		return errors.Errorf("box: cannot enter leaf atom %s", r.cur.Type)
	}
	if r.depth >= maxReaderDepth {
		return errors.Errorf("box: container nesting exceeds %d", maxReaderDepth)
	}
	if _, err := r.s.Seek(SeekAbs(r.cur.DataOffset())); err != nil {
		return err
	}
	r.stack[r.depth] = readerFrame{end: r.end, start: r.start, containerType: r.containerType}
	r.depth++
	r.start = r.cur.DataOffset()
	r.end = r.cur.End()
	r.containerType = r.cur.Type
	r.at = false
	return nil
}

// Exit returns to the parent nesting level, positioned just after the
// container that was entered.
func (r *Reader) Exit() error {
	if r.depth == 0 {
		return errors.New("box: Exit called at top level")
	}
	containerEnd := r.end
	r.depth--
	r.end = r.stack[r.depth].end
	r.start = r.stack[r.depth].start
	r.containerType = r.stack[r.depth].containerType
	if _, err := r.s.Seek(SeekAbs(containerEnd)); err != nil {
		return err
	}
	r.at = false
	r.err = nil
	return nil
}

// Skip advances past the current atom without entering it; equivalent to
// the implicit behavior of calling Next again, exposed for symmetry with
// the teacher's reader API.
func (r *Reader) Skip() error {
	if !r.at {
		return errors.New("box: Skip called with no current atom")
	}
	_, err := r.s.Seek(SeekAbs(r.cur.NextRelative(0)))
	r.at = false
	return err
}

// Data returns the current atom's full payload bytes.
func (r *Reader) Data() ([]byte, error) {
	if !r.at {
		return nil, errors.New("box: Data called with no current atom")
	}
	save := r.s.Pos()
	defer r.s.Seek(SeekAbs(save))
	if _, err := r.s.Seek(SeekAbs(r.cur.DataOffset())); err != nil {
		return nil, err
	}
	return r.s.ReadBytes(Sized(int(r.cur.DataSize())))
}

// RawBox returns the current atom's bytes including its header.
func (r *Reader) RawBox() ([]byte, error) {
	if !r.at {
		return nil, errors.New("box: RawBox called with no current atom")
	}
	save := r.s.Pos()
	defer r.s.Seek(SeekAbs(save))
	if _, err := r.s.Seek(SeekAbs(r.cur.Offset())); err != nil {
		return nil, err
	}
	return r.s.ReadBytes(Sized(int(r.cur.Size())))
}

// Header returns a copy of the current decoded header.
func (r *Reader) Header() Header { return r.cur }

// FindHeader scans forward at the current nesting level for the first atom
// of the given type, leaving the reader positioned on it. It returns
// ErrEndOfFile if the level is exhausted first.
func (r *Reader) FindHeader(t BoxType) (Header, error) {
	for r.Next() {
		if r.cur.Type == t {
			return r.cur, nil
		}
	}
	return Header{}, errors.Wrapf(ErrEndOfFile, "box: %s not found", t)
}

// FindHeaderUntil is FindHeader, but aborts early with ErrEndOfFile if an
// atom whose FourCC equals sentinel is encountered before target is found.
// Used to stop a search from running past a known boundary atom, e.g.
// bailing out of a trak's own children the moment a second trak's own tkhd
// would otherwise be mistaken for the first.
func (r *Reader) FindHeaderUntil(target, sentinel BoxType) (Header, error) {
	for r.Next() {
		if r.cur.Type == target {
			return r.cur, nil
		}
		if r.cur.Type == sentinel {
			return Header{}, errors.Wrapf(ErrEndOfFile, "box: %s not found before sentinel %s", target, sentinel)
		}
	}
	return Header{}, errors.Wrapf(ErrEndOfFile, "box: %s not found", target)
}

// ClosestAtom returns the header of the atom at the current nesting level
// whose span [Offset, End) contains offset, using half-open interval
// semantics: an atom starting exactly at offset is considered "closest";
// one ending exactly at offset is not.
func (r *Reader) ClosestAtom(offset int64) (Header, error) {
	save := r.s.Pos()
	savedAt, savedCur := r.at, r.cur
	defer func() {
		r.s.Seek(SeekAbs(save))
		r.at, r.cur = savedAt, savedCur
	}()

	if _, err := r.s.Seek(SeekAbs(r.start)); err != nil {
		return Header{}, err
	}
	r.at = false

	for r.Next() {
		if offset >= r.cur.Offset() && offset < r.cur.End() {
			return r.cur, nil
		}
	}
	return Header{}, errors.Wrapf(ErrEndOfFile, "box: no atom contains offset %d", offset)
}

// FindAtom locates the first atom of type t at the current nesting level
// and decodes its payload with decode (one of the package's DecodeXxx
// functions, which verify the header's FourCC themselves), leaving the
// reader positioned on the found atom exactly like FindHeader, so callers
// can keep iterating from there.
func FindAtom[T any](r *Reader, t BoxType, decode func(BoxType, []byte) (T, error)) (T, error) {
	var zero T
	if _, err := r.FindHeader(t); err != nil {
		return zero, err
	}
	data, err := r.Data()
	if err != nil {
		return zero, err
	}
	return decode(r.Type(), data)
}

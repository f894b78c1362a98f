package box

import "github.com/pkg/errors"

// Scanner walks top-level atoms in a file via a FileStream: ftyp, moov,
// mdat, free/skip and siblings, without descending into any of them. It is
// the entry point for locating moov before a Reader takes over for
// metadata navigation, and for seeking to sample payloads inside mdat once
// a track view has resolved their offsets.
type Scanner struct {
	fs  *FileStream
	cur Header
	at  bool
	err error
}

// NewScanner builds a Scanner over fs, starting at fs's current position.
func NewScanner(fs *FileStream) *Scanner {
	return &Scanner{fs: fs}
}

// Next advances to the next top-level atom. It returns false at end of
// file or on error; callers should check Err afterward to distinguish the
// two.
func (sc *Scanner) Next() bool {
	if sc.err != nil {
		return false
	}
	if sc.at {
		if _, err := sc.fs.Seek(SeekAbs(sc.cur.NextRelative(0))); err != nil {
			sc.err = err
			return false
		}
	}
	if sc.fs.Pos() >= sc.fs.Len() {
		return false
	}
	h, err := ReadHeader(sc.fs, 0)
	if err != nil {
		sc.err = err
		return false
	}
	if _, err := sc.fs.Seek(SeekAbs(h.DataOffset())); err != nil {
		sc.err = err
		return false
	}
	sc.cur = h
	sc.at = true
	return true
}

// Entry returns the header of the current top-level atom.
func (sc *Scanner) Entry() Header { return sc.cur }

// ReadBody reads and returns the current atom's full payload. For a moov
// atom this is what a caller loads into a MoovStream to hand off to a
// Reader; for an mdat it is typically skipped in favor of seeking to
// individual sample offsets instead.
func (sc *Scanner) ReadBody() ([]byte, error) {
	if !sc.at {
		return nil, errors.New("box: ReadBody called with no current atom")
	}
	if _, err := sc.fs.Seek(SeekAbs(sc.cur.DataOffset())); err != nil {
		return nil, err
	}
	return sc.fs.ReadBytes(Sized(int(sc.cur.DataSize())))
}

// Err returns the first error Next encountered, or nil if Next simply
// reached end of file.
func (sc *Scanner) Err() error { return sc.err }

// SeekTo repositions the underlying FileStream to an absolute file offset,
// for reading sample payloads resolved by a track view.
func (sc *Scanner) SeekTo(offset int64) error {
	_, err := sc.fs.Seek(SeekAbs(offset))
	return err
}

// ReadAt reads n bytes at the current FileStream position, for sample
// payload access after SeekTo.
func (sc *Scanner) ReadAt(n int) ([]byte, error) {
	return sc.fs.ReadBytes(Sized(n))
}

package box

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// DefaultBufferSize is the bufio.Reader capacity a FileStream uses when none
// is specified: large enough to amortize syscalls over a run of small
// top-level box headers, small enough not to waste memory reading deep into
// an mdat the caller isn't about to scan sample-by-sample.
const DefaultBufferSize = 8 * 1024

// FileStream is a positioned, buffered stream over an io.ReadSeeker, used
// for reading top-level box headers and sample payloads out of files too
// large to hold in memory. Metadata navigation happens on a MoovStream
// instead; see SyncStreams.
type FileStream struct {
	rs  io.ReadSeeker
	br  *bufio.Reader
	pos int64
	len int64
}

// NewFileStream wraps rs with a buffered reader of the given capacity. If
// capacity <= 0, DefaultBufferSize is used.
func NewFileStream(rs io.ReadSeeker, capacity int) (*FileStream, error) {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	length, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := rs.Seek(pos, io.SeekStart); err != nil {
		return nil, errors.WithStack(err)
	}
	return &FileStream{
		rs:  rs,
		br:  bufio.NewReaderSize(rs, capacity),
		pos: pos,
		len: length,
	}, nil
}

func (s *FileStream) Pos() int64 { return s.pos }
func (s *FileStream) Len() int64 { return s.len }

// Seek repositions the stream. Relative modes resolve against the stream's
// own logical position, not the wrapped ReadSeeker's cursor, which bufio's
// look-ahead keeps further along. Any seek discards that look-ahead buffer.
func (s *FileStream) Seek(sk Seek) (int64, error) {
	var target int64
	switch sk.Mode {
	case SeekStart:
		target = sk.Offset
	case SeekCurrent:
		target = s.pos + sk.Offset
	case SeekEnd:
		target = s.len + sk.Offset
	}
	if target < 0 || target > s.len {
		return s.pos, errors.Wrapf(ErrBounds, "file: seek to %d outside [0, %d]", target, s.len)
	}
	if _, err := s.rs.Seek(target, io.SeekStart); err != nil {
		return s.pos, errors.WithStack(err)
	}
	s.br.Reset(s.rs)
	s.pos = target
	return s.pos, nil
}

func (s *FileStream) RemainingIn(min, max int64) (int64, error) {
	if err := s.BoundsCheck(min, max); err != nil {
		return 0, err
	}
	return max - s.pos, nil
}

func (s *FileStream) BoundsCheck(min, max int64) error {
	return boundsCheck(s.pos, min, max)
}

func (s *FileStream) read(n int) ([]byte, error) {
	if n < 0 || s.pos+int64(n) > s.len {
		return nil, errors.Wrapf(ErrShortRead, "file: need %d bytes at %d, have %d remaining", n, s.pos, s.len-s.pos)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(s.br, b); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(ErrEndOfFile, "file: short read at %d", s.pos)
		}
		return nil, errors.WithStack(err)
	}
	s.pos += int64(n)
	return b, nil
}

func (s *FileStream) ReadUint8() (uint8, error) {
	b, err := s.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *FileStream) ReadUint16() (uint16, error) {
	b, err := s.read(2)
	if err != nil {
		return 0, err
	}
	return be.Uint16(b), nil
}

func (s *FileStream) ReadUint32() (uint32, error) {
	b, err := s.read(4)
	if err != nil {
		return 0, err
	}
	return be.Uint32(b), nil
}

func (s *FileStream) ReadUint64() (uint64, error) {
	b, err := s.read(8)
	if err != nil {
		return 0, err
	}
	return be.Uint64(b), nil
}

func (s *FileStream) ReadBytes(opt ByteOption) ([]byte, error) {
	switch opt.kind {
	case optSized:
		return s.read(opt.n)
	case optCounted:
		n, err := s.ReadUint8()
		if err != nil {
			return nil, err
		}
		return s.ReadBytes(Sized(int(n)))
	case optUntil:
		var out []byte
		for {
			b, err := s.read(1)
			if err != nil {
				return nil, err
			}
			out = append(out, b[0])
			if b[0] == opt.sentinel {
				return out, nil
			}
		}
	}
	return nil, errors.Errorf("file: unknown byte option")
}

func (s *FileStream) ReadISO8859_1(opt ByteOption) (string, error) {
	b, err := s.ReadBytes(opt)
	if err != nil {
		return "", err
	}
	return decodeISO8859_1(b), nil
}

// SyncStreams forces both streams to the same absolute file offset:
// fs to absOffset itself, moov to absOffset relative to the moov payload's
// start in the file (fileMoovStart). The offset must lie within the moov
// payload's span in the file; anywhere else the two streams have no common
// coordinate, and ErrBounds is returned.
func SyncStreams(fs *FileStream, moov *MoovStream, fileMoovStart, absOffset int64) error {
	rel := absOffset - fileMoovStart
	if rel < 0 || rel > moov.Len() {
		return errors.Wrapf(ErrBounds, "sync: offset %d outside moov span [%d, %d]", absOffset, fileMoovStart, fileMoovStart+moov.Len())
	}
	if _, err := moov.Seek(SeekAbs(rel)); err != nil {
		return err
	}
	_, err := fs.Seek(SeekAbs(absOffset))
	return err
}

var _ stream = (*FileStream)(nil)

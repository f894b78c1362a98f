package box

import "github.com/pkg/errors"

// MoovStream is an in-memory stream over a fully-loaded moov payload. All
// metadata navigation (box tree walks, typed decodes) runs against a
// MoovStream: the payload is small relative to a file's sample data and
// random access within it is frequent, so holding it resident avoids the
// seek/read-syscall churn a FileStream would pay for the same walk.
//
// MoovStream never fails on I/O: every error it returns is a bounds
// violation against the slice it was built from.
type MoovStream struct {
	buf []byte
	pos int64
}

// NewMoovStream wraps a moov box's payload for navigation.
func NewMoovStream(payload []byte) *MoovStream {
	return &MoovStream{buf: payload}
}

func (s *MoovStream) Pos() int64 { return s.pos }
func (s *MoovStream) Len() int64 { return int64(len(s.buf)) }

func (s *MoovStream) Seek(sk Seek) (int64, error) {
	var target int64
	switch sk.Mode {
	case SeekStart:
		target = sk.Offset
	case SeekCurrent:
		target = s.pos + sk.Offset
	case SeekEnd:
		target = s.Len() + sk.Offset
	}
	if target < 0 || target > s.Len() {
		return s.pos, errors.Wrapf(ErrBounds, "moov: seek to %d outside [0, %d]", target, s.Len())
	}
	s.pos = target
	return s.pos, nil
}

// RemainingIn returns the number of bytes between the current position and
// max, failing if the current position does not already lie in [min, max].
func (s *MoovStream) RemainingIn(min, max int64) (int64, error) {
	if err := s.BoundsCheck(min, max); err != nil {
		return 0, err
	}
	return max - s.pos, nil
}

func (s *MoovStream) BoundsCheck(min, max int64) error {
	return boundsCheck(s.pos, min, max)
}

func (s *MoovStream) take(n int) ([]byte, error) {
	if n < 0 || s.pos+int64(n) > s.Len() {
		return nil, errors.Wrapf(ErrShortRead, "moov: need %d bytes at %d, have %d", n, s.pos, s.Len())
	}
	b := s.buf[s.pos : s.pos+int64(n)]
	s.pos += int64(n)
	return b, nil
}

func (s *MoovStream) ReadUint8() (uint8, error) {
	b, err := s.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *MoovStream) ReadUint16() (uint16, error) {
	b, err := s.take(2)
	if err != nil {
		return 0, err
	}
	return be.Uint16(b), nil
}

func (s *MoovStream) ReadUint32() (uint32, error) {
	b, err := s.take(4)
	if err != nil {
		return 0, err
	}
	return be.Uint32(b), nil
}

func (s *MoovStream) ReadUint64() (uint64, error) {
	b, err := s.take(8)
	if err != nil {
		return 0, err
	}
	return be.Uint64(b), nil
}

func (s *MoovStream) ReadBytes(opt ByteOption) ([]byte, error) {
	switch opt.kind {
	case optSized:
		b, err := s.take(opt.n)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case optCounted:
		n, err := s.ReadUint8()
		if err != nil {
			return nil, err
		}
		return s.ReadBytes(Sized(int(n)))
	case optUntil:
		start := s.pos
		for s.pos < s.Len() {
			if s.buf[s.pos] == opt.sentinel {
				s.pos++
				b := make([]byte, s.pos-start)
				copy(b, s.buf[start:s.pos])
				return b, nil
			}
			s.pos++
		}
		return nil, errors.Wrapf(ErrShortRead, "moov: sentinel 0x%02x not found from %d", opt.sentinel, start)
	}
	return nil, errors.Errorf("moov: unknown byte option")
}

func (s *MoovStream) ReadISO8859_1(opt ByteOption) (string, error) {
	b, err := s.ReadBytes(opt)
	if err != nil {
		return "", err
	}
	return decodeISO8859_1(b), nil
}

var _ stream = (*MoovStream)(nil)

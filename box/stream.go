package box

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// be is the byte order every box field on the wire uses. Named short
// because it appears on nearly every decode line.
var be = binary.BigEndian

// SeekMode selects the anchor for a Seek call, mirroring io.Seek's whence
// values but as a closed sum type so a stream can't be asked to seek with a
// nonsensical whence (spec.md §4.1: Start(abs) / Current(rel) / End(rel)).
type SeekMode int

const (
	SeekStart SeekMode = iota
	SeekCurrent
	SeekEnd
)

// Seek is a seek request. Offset is interpreted according to Mode.
type Seek struct {
	Mode   SeekMode
	Offset int64
}

func SeekAbs(abs int64) Seek     { return Seek{SeekStart, abs} }
func SeekRel(rel int64) Seek     { return Seek{SeekCurrent, rel} }
func SeekFromEnd(rel int64) Seek { return Seek{SeekEnd, rel} }

// byteOptionKind distinguishes the three ways ReadBytes/ReadISO8859_1 can be
// asked to delimit a run of bytes.
type byteOptionKind int

const (
	optSized byteOptionKind = iota
	optUntil
	optCounted
)

// ByteOption selects how ReadBytes/ReadISO8859_1 determine how many bytes to
// consume, per spec.md §4.1.
type ByteOption struct {
	kind     byteOptionKind
	n        int
	sentinel byte
}

// Sized reads exactly n bytes.
func Sized(n int) ByteOption { return ByteOption{kind: optSized, n: n} }

// Until reads up to and including the first occurrence of sentinel.
func Until(sentinel byte) ByteOption { return ByteOption{kind: optUntil, sentinel: sentinel} }

// Counted treats the first byte read as the length of the remainder.
func Counted() ByteOption { return ByteOption{kind: optCounted} }

// stream is the common positioned-byte-stream API shared by FileStream and
// MoovStream (spec.md §4.1's "dual reader"). Both streams carry independent
// mutable cursor state; no method may be called concurrently on the same
// instance.
type stream interface {
	Seek(Seek) (int64, error)
	Pos() int64
	Len() int64
	RemainingIn(min, max int64) (int64, error)
	ReadUint8() (uint8, error)
	ReadUint16() (uint16, error)
	ReadUint32() (uint32, error)
	ReadUint64() (uint64, error)
	ReadBytes(ByteOption) ([]byte, error)
	ReadISO8859_1(ByteOption) (string, error)
	BoundsCheck(min, max int64) error
}

// boundsCheck is the shared implementation of BoundsCheck, used by both
// stream implementations: the current position must lie in [min, max].
func boundsCheck(pos, min, max int64) error {
	if pos < min || pos > max {
		return errors.Wrapf(ErrBounds, "position %d outside [%d, %d]", pos, min, max)
	}
	return nil
}

// decodeISO8859_1 interprets raw bytes as ISO-8859-1 code points (not
// UTF-8): every byte value 0x00-0xFF maps 1:1 to the Unicode code point of
// the same value, so widening to rune is the entire "decode". Required
// because handler/udta strings and FourCCs may carry bytes >= 0x80.
func decodeISO8859_1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

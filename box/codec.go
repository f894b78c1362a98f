package box

import (
	"strings"

	"github.com/pkg/errors"
)

// This file holds the typed decoders for the well-known box set: each
// DecodeXxx takes a box's FourCC and raw payload (as returned by
// Reader.Type and Reader.Data) and produces a typed record. Full boxes (IsFullBox) carry a leading
// version/flags prefix this file strips before reading the rest of the
// payload.

// fullBoxPrefix splits off the 1-byte version and 3-byte flags common to
// "full boxes".
func fullBoxPrefix(data []byte) (version uint8, flags uint32, rest []byte, err error) {
	if len(data) < 4 {
		return 0, 0, nil, errors.Wrap(ErrShortRead, "full box: payload shorter than 4 bytes")
	}
	version = data[0]
	flags = be.Uint32(data[0:4]) &^ 0xff000000
	return version, flags, data[4:], nil
}

// Ftyp is the file type compatibility box.
type Ftyp struct {
	MajorBrand       BoxType
	MinorVersion     uint32
	CompatibleBrands []BoxType
}

func DecodeFtyp(t BoxType, data []byte) (Ftyp, error) {
	if t != TypeFtyp {
		return Ftyp{}, errors.Wrapf(ErrAtomMismatch, "ftyp: got %s", t)
	}
	if len(data) < 8 {
		return Ftyp{}, errors.Wrap(ErrShortRead, "ftyp: payload too short")
	}
	var f Ftyp
	copy(f.MajorBrand[:], data[0:4])
	f.MinorVersion = be.Uint32(data[4:8])
	for off := 8; off+4 <= len(data); off += 4 {
		var b BoxType
		copy(b[:], data[off:off+4])
		f.CompatibleBrands = append(f.CompatibleBrands, b)
	}
	return f, nil
}

// Mvhd is the movie header box: overall timescale and duration, plus the
// identity/placement fields every implementation ignores but every decoder
// still has to skip past correctly.
type Mvhd struct {
	Version          uint8
	Flags            uint32
	CreationTime     uint64
	ModificationTime uint64
	Timescale        uint32
	Duration         uint64
	Rate             int32 // 16.16 fixed point
	Volume           int16 // 8.8 fixed point
	Matrix           [9]int32
	NextTrackID      uint32
}

func DecodeMvhd(t BoxType, data []byte) (Mvhd, error) {
	if t != TypeMvhd {
		return Mvhd{}, errors.Wrapf(ErrAtomMismatch, "mvhd: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Mvhd{}, errors.Wrap(err, "mvhd")
	}
	var m Mvhd
	m.Version, m.Flags = version, flags

	var dateSize, timeFieldsSize int
	if version == 1 {
		dateSize, timeFieldsSize = 8, 8+8+4+8
	} else {
		dateSize, timeFieldsSize = 4, 4+4+4+4
	}
	if len(rest) < timeFieldsSize {
		return Mvhd{}, errors.Wrap(ErrShortRead, "mvhd: payload too short for version")
	}
	off := 0
	if version == 1 {
		m.CreationTime = be.Uint64(rest[off:])
		off += dateSize
		m.ModificationTime = be.Uint64(rest[off:])
		off += dateSize
		m.Timescale = be.Uint32(rest[off:])
		off += 4
		m.Duration = be.Uint64(rest[off:])
		off += 8
	} else {
		m.CreationTime = uint64(be.Uint32(rest[off:]))
		off += dateSize
		m.ModificationTime = uint64(be.Uint32(rest[off:]))
		off += dateSize
		m.Timescale = be.Uint32(rest[off:])
		off += 4
		m.Duration = uint64(be.Uint32(rest[off:]))
		off += 4
	}
	if len(rest) < off+4+2+10+36+24+4 {
		return Mvhd{}, errors.Wrap(ErrShortRead, "mvhd: payload too short for rate/volume/matrix")
	}
	m.Rate = int32(be.Uint32(rest[off:]))
	off += 4
	m.Volume = int16(be.Uint16(rest[off:]))
	off += 2
	off += 10 // reserved
	for i := 0; i < 9; i++ {
		m.Matrix[i] = int32(be.Uint32(rest[off:]))
		off += 4
	}
	off += 24 // pre_defined
	m.NextTrackID = be.Uint32(rest[off:])
	return m, nil
}

// Tkhd is the track header box.
type Tkhd struct {
	Version          uint8
	Flags            uint32
	CreationTime     uint64
	ModificationTime uint64
	TrackID          uint32
	Duration         uint64
	Layer            int16
	AlternateGroup   int16
	Volume           int16
	Matrix           [9]int32
	Width            uint32 // 16.16 fixed point
	Height           uint32 // 16.16 fixed point
}

func DecodeTkhd(boxType BoxType, data []byte) (Tkhd, error) {
	if boxType != TypeTkhd {
		return Tkhd{}, errors.Wrapf(ErrAtomMismatch, "tkhd: got %s", boxType)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Tkhd{}, errors.Wrap(err, "tkhd")
	}
	var t Tkhd
	t.Version, t.Flags = version, flags

	var timeFieldsSize int
	if version == 1 {
		timeFieldsSize = 8 + 8 + 4 + 4 + 8
	} else {
		timeFieldsSize = 4 + 4 + 4 + 4 + 4
	}
	if len(rest) < timeFieldsSize {
		return Tkhd{}, errors.Wrap(ErrShortRead, "tkhd: payload too short for version")
	}
	off := 0
	if version == 1 {
		t.CreationTime = be.Uint64(rest[off:])
		off += 8
		t.ModificationTime = be.Uint64(rest[off:])
		off += 8
		t.TrackID = be.Uint32(rest[off:])
		off += 4
		off += 4 // reserved
		t.Duration = be.Uint64(rest[off:])
		off += 8
	} else {
		t.CreationTime = uint64(be.Uint32(rest[off:]))
		off += 4
		t.ModificationTime = uint64(be.Uint32(rest[off:]))
		off += 4
		t.TrackID = be.Uint32(rest[off:])
		off += 4
		off += 4 // reserved
		t.Duration = uint64(be.Uint32(rest[off:]))
		off += 4
	}
	if len(rest) < off+8+2+2+2+2+36+4+4 {
		return Tkhd{}, errors.Wrap(ErrShortRead, "tkhd: payload too short")
	}
	off += 8 // reserved[2]
	t.Layer = int16(be.Uint16(rest[off:]))
	off += 2
	t.AlternateGroup = int16(be.Uint16(rest[off:]))
	off += 2
	t.Volume = int16(be.Uint16(rest[off:]))
	off += 2
	off += 2 // reserved
	for i := 0; i < 9; i++ {
		t.Matrix[i] = int32(be.Uint32(rest[off:]))
		off += 4
	}
	t.Width = be.Uint32(rest[off:])
	off += 4
	t.Height = be.Uint32(rest[off:])
	return t, nil
}

// decodeISO639 decodes mdhd's packed 5-bit-per-character language code
// into the ISO-639-2/T string it represents. Each of the three characters
// is (raw + 0x60), per the original "pad" code offset so that a-z maps
// onto 1-26.
func decodeISO639(packed uint16) string {
	packed &^= 0x8000 // top bit is a pad/reserved bit, not part of the code
	c1 := byte((packed>>10)&0x1f) + 0x60
	c2 := byte((packed>>5)&0x1f) + 0x60
	c3 := byte(packed&0x1f) + 0x60
	return string([]byte{c1, c2, c3})
}

// Mdhd is the media header box: the track's own timescale/duration plus
// its ISO-639-2/T language code.
type Mdhd struct {
	Version          uint8
	Flags            uint32
	CreationTime     uint64
	ModificationTime uint64
	Timescale        uint32
	Duration         uint64
	Language         string
}

func DecodeMdhd(t BoxType, data []byte) (Mdhd, error) {
	if t != TypeMdhd {
		return Mdhd{}, errors.Wrapf(ErrAtomMismatch, "mdhd: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Mdhd{}, errors.Wrap(err, "mdhd")
	}
	var m Mdhd
	m.Version, m.Flags = version, flags

	var timeFieldsSize int
	if version == 1 {
		timeFieldsSize = 8 + 8 + 4 + 8
	} else {
		timeFieldsSize = 4 + 4 + 4 + 4
	}
	if len(rest) < timeFieldsSize {
		return Mdhd{}, errors.Wrap(ErrShortRead, "mdhd: payload too short for version")
	}
	off := 0
	if version == 1 {
		m.CreationTime = be.Uint64(rest[off:])
		off += 8
		m.ModificationTime = be.Uint64(rest[off:])
		off += 8
		m.Timescale = be.Uint32(rest[off:])
		off += 4
		m.Duration = be.Uint64(rest[off:])
		off += 8
	} else {
		m.CreationTime = uint64(be.Uint32(rest[off:]))
		off += 4
		m.ModificationTime = uint64(be.Uint32(rest[off:]))
		off += 4
		m.Timescale = be.Uint32(rest[off:])
		off += 4
		m.Duration = uint64(be.Uint32(rest[off:]))
		off += 4
	}
	if len(rest) < off+2+2 {
		return Mdhd{}, errors.Wrap(ErrShortRead, "mdhd: payload too short for language")
	}
	m.Language = decodeISO639(be.Uint16(rest[off:]))
	return m, nil
}

// Hdlr is the handler reference box. ComponentName decode follows a
// fallback heuristic: the field is specified as a Pascal string (1-byte
// length prefix) but QuickTime-derived files are routinely seen with a
// bare, unprefixed, NUL-terminated or unterminated ASCII string instead. A
// length byte that is zero or larger than the number of bytes following it
// is treated as the first character of a bare string rather than a length.
type Hdlr struct {
	Version       uint8
	Flags         uint32
	PreDefined    uint32
	HandlerType   BoxType
	ComponentName string
}

func DecodeHdlr(t BoxType, data []byte) (Hdlr, error) {
	if t != TypeHdlr {
		return Hdlr{}, errors.Wrapf(ErrAtomMismatch, "hdlr: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Hdlr{}, errors.Wrap(err, "hdlr")
	}
	if len(rest) < 20 {
		return Hdlr{}, errors.Wrap(ErrShortRead, "hdlr: payload too short")
	}
	var h Hdlr
	h.Version, h.Flags = version, flags
	h.PreDefined = be.Uint32(rest[0:4])
	copy(h.HandlerType[:], rest[4:8])
	// rest[8:20] is reserved[3].
	remainder := rest[20:]
	name, err := decodeComponentName(remainder)
	if err != nil {
		return Hdlr{}, errors.Wrap(err, "hdlr")
	}
	h.ComponentName = name
	return h, nil
}

// decodeComponentName implements the Pascal-vs-bare fallback described on
// Hdlr: a declared length that plausibly fits the remaining bytes is
// treated as a Pascal-style count, otherwise the whole remainder is the
// string. Either way, embedded NULs are dropped and surrounding whitespace
// is trimmed before returning. An empty remainder fails with
// ErrMissingHandlerName.
func decodeComponentName(b []byte) (string, error) {
	if len(b) == 0 {
		return "", errors.WithStack(ErrMissingHandlerName)
	}
	declaredLen := int(b[0])
	var raw []byte
	if declaredLen > 0 && declaredLen <= len(b)-1 {
		// Plausible Pascal string: declared length fits in what remains.
		raw = b[1 : 1+declaredLen]
	} else {
		raw = b
	}
	cleaned := make([]byte, 0, len(raw))
	for _, c := range raw {
		if c != 0 {
			cleaned = append(cleaned, c)
		}
	}
	return strings.TrimSpace(decodeISO8859_1(cleaned)), nil
}

// Vmhd is the video media header box.
type Vmhd struct {
	Version      uint8
	Flags        uint32
	GraphicsMode uint16
	OpColor      [3]uint16
}

func DecodeVmhd(t BoxType, data []byte) (Vmhd, error) {
	if t != TypeVmhd {
		return Vmhd{}, errors.Wrapf(ErrAtomMismatch, "vmhd: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Vmhd{}, errors.Wrap(err, "vmhd")
	}
	if len(rest) < 8 {
		return Vmhd{}, errors.Wrap(ErrShortRead, "vmhd: payload too short")
	}
	var v Vmhd
	v.Version, v.Flags = version, flags
	v.GraphicsMode = be.Uint16(rest[0:2])
	v.OpColor[0] = be.Uint16(rest[2:4])
	v.OpColor[1] = be.Uint16(rest[4:6])
	v.OpColor[2] = be.Uint16(rest[6:8])
	return v, nil
}

// Smhd is the sound media header box.
type Smhd struct {
	Version uint8
	Flags   uint32
	Balance int16
}

func DecodeSmhd(t BoxType, data []byte) (Smhd, error) {
	if t != TypeSmhd {
		return Smhd{}, errors.Wrapf(ErrAtomMismatch, "smhd: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Smhd{}, errors.Wrap(err, "smhd")
	}
	if len(rest) < 2 {
		return Smhd{}, errors.Wrap(ErrShortRead, "smhd: payload too short")
	}
	return Smhd{Version: version, Flags: flags, Balance: int16(be.Uint16(rest[0:2]))}, nil
}

// DataEntry is one dref entry: a data reference (URL, URN, or an opaque
// handler-specific form).
type DataEntry struct {
	Type    BoxType
	Version uint8
	Flags   uint32
	Data    []byte
}

// SelfContained reports whether this entry's flags mark the media data as
// stored in the same file (the overwhelmingly common case).
func (d DataEntry) SelfContained() bool { return d.Flags&0x000001 != 0 }

// Dref is the data reference box.
type Dref struct {
	Version uint8
	Flags   uint32
	Entries []DataEntry
}

func DecodeDref(t BoxType, data []byte) (Dref, error) {
	if t != TypeDref {
		return Dref{}, errors.Wrapf(ErrAtomMismatch, "dref: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Dref{}, errors.Wrap(err, "dref")
	}
	if len(rest) < 4 {
		return Dref{}, errors.Wrap(ErrShortRead, "dref: payload too short")
	}
	count := be.Uint32(rest[0:4])
	off := 4
	d := Dref{Version: version, Flags: flags}
	for i := uint32(0); i < count; i++ {
		h, err := ReadHeader(NewMoovStream(rest[off:]), int64(off))
		if err != nil {
			return Dref{}, errors.Wrapf(err, "dref: entry %d header", i)
		}
		entryEnd := off + int(h.Size())
		if entryEnd > len(rest) {
			return Dref{}, errors.Wrapf(ErrShortRead, "dref: entry %d overruns payload", i)
		}
		payload := rest[off+int(h.HeaderSize()) : entryEnd]
		var evers uint8
		var eflags uint32
		var ebody []byte
		// Every dref entry (url , urn , alis, ...) carries a version/flags prefix.
		if len(payload) >= 4 {
			evers, eflags, ebody, _ = fullBoxPrefix(payload)
		} else {
			ebody = payload
		}
		d.Entries = append(d.Entries, DataEntry{Type: h.Type, Version: evers, Flags: eflags, Data: ebody})
		off = entryEnd
	}
	return d, nil
}

// ElstEntry is one edit-list segment.
type ElstEntry struct {
	SegmentDuration   uint64
	MediaTime         int64
	MediaRateInteger  int16
	MediaRateFraction int16
}

// Elst is the edit list box.
type Elst struct {
	Version uint8
	Flags   uint32
	Entries []ElstEntry
}

func DecodeElst(t BoxType, data []byte) (Elst, error) {
	if t != TypeElst {
		return Elst{}, errors.Wrapf(ErrAtomMismatch, "elst: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Elst{}, errors.Wrap(err, "elst")
	}
	if len(rest) < 4 {
		return Elst{}, errors.Wrap(ErrShortRead, "elst: payload too short")
	}
	count := be.Uint32(rest[0:4])
	off := 4
	entrySize := 12
	if version == 1 {
		entrySize = 20
	}
	e := Elst{Version: version, Flags: flags}
	for i := uint32(0); i < count; i++ {
		if off+entrySize > len(rest) {
			return Elst{}, errors.Wrapf(ErrShortRead, "elst: entry %d overruns payload", i)
		}
		var entry ElstEntry
		if version == 1 {
			entry.SegmentDuration = be.Uint64(rest[off:])
			entry.MediaTime = int64(be.Uint64(rest[off+8:]))
			entry.MediaRateInteger = int16(be.Uint16(rest[off+16:]))
			entry.MediaRateFraction = int16(be.Uint16(rest[off+18:]))
		} else {
			entry.SegmentDuration = uint64(be.Uint32(rest[off:]))
			entry.MediaTime = int64(int32(be.Uint32(rest[off+4:])))
			entry.MediaRateInteger = int16(be.Uint16(rest[off+8:]))
			entry.MediaRateFraction = int16(be.Uint16(rest[off+10:]))
		}
		e.Entries = append(e.Entries, entry)
		off += entrySize
	}
	return e, nil
}

// Stsz is the sample-size box. If SampleSize is nonzero, every sample has
// that constant size and EntrySizes is nil.
type Stsz struct {
	Version     uint8
	Flags       uint32
	SampleSize  uint32
	SampleCount uint32
	EntrySizes  []uint32
}

func DecodeStsz(t BoxType, data []byte) (Stsz, error) {
	if t != TypeStsz {
		return Stsz{}, errors.Wrapf(ErrAtomMismatch, "stsz: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Stsz{}, errors.Wrap(err, "stsz")
	}
	if len(rest) < 8 {
		return Stsz{}, errors.Wrap(ErrShortRead, "stsz: payload too short")
	}
	s := Stsz{Version: version, Flags: flags}
	s.SampleSize = be.Uint32(rest[0:4])
	s.SampleCount = be.Uint32(rest[4:8])
	if s.SampleSize == 0 {
		if len(rest) < 8+int(s.SampleCount)*4 {
			return Stsz{}, errors.Wrap(ErrShortRead, "stsz: entry table truncated")
		}
		s.EntrySizes = make([]uint32, s.SampleCount)
		off := 8
		for i := range s.EntrySizes {
			s.EntrySizes[i] = be.Uint32(rest[off:])
			off += 4
		}
	}
	return s, nil
}

// Stco is the 32-bit chunk-offset box. Offsets are widened to 64 bits so
// callers never need to care whether a file used stco or co64.
type Stco struct {
	Version      uint8
	Flags        uint32
	ChunkOffsets []uint64
}

func DecodeStco(t BoxType, data []byte) (Stco, error) {
	if t != TypeStco {
		return Stco{}, errors.Wrapf(ErrAtomMismatch, "stco: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Stco{}, errors.Wrap(err, "stco")
	}
	if len(rest) < 4 {
		return Stco{}, errors.Wrap(ErrShortRead, "stco: payload too short")
	}
	count := be.Uint32(rest[0:4])
	if len(rest) < 4+int(count)*4 {
		return Stco{}, errors.Wrap(ErrShortRead, "stco: entry table truncated")
	}
	s := Stco{Version: version, Flags: flags, ChunkOffsets: make([]uint64, count)}
	off := 4
	for i := range s.ChunkOffsets {
		s.ChunkOffsets[i] = uint64(be.Uint32(rest[off:]))
		off += 4
	}
	return s, nil
}

func DecodeCo64(t BoxType, data []byte) (Stco, error) {
	if t != TypeCo64 {
		return Stco{}, errors.Wrapf(ErrAtomMismatch, "co64: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Stco{}, errors.Wrap(err, "co64")
	}
	if len(rest) < 4 {
		return Stco{}, errors.Wrap(ErrShortRead, "co64: payload too short")
	}
	count := be.Uint32(rest[0:4])
	if len(rest) < 4+int(count)*8 {
		return Stco{}, errors.Wrap(ErrShortRead, "co64: entry table truncated")
	}
	s := Stco{Version: version, Flags: flags, ChunkOffsets: make([]uint64, count)}
	off := 4
	for i := range s.ChunkOffsets {
		s.ChunkOffsets[i] = be.Uint64(rest[off:])
		off += 8
	}
	return s, nil
}

// SttsEntry is one decoding time-to-sample run.
type SttsEntry struct {
	SampleCount uint32
	SampleDelta uint32
}

// Stts is the decoding time-to-sample box.
type Stts struct {
	Version uint8
	Flags   uint32
	Entries []SttsEntry
}

func DecodeStts(t BoxType, data []byte) (Stts, error) {
	if t != TypeStts {
		return Stts{}, errors.Wrapf(ErrAtomMismatch, "stts: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Stts{}, errors.Wrap(err, "stts")
	}
	if len(rest) < 4 {
		return Stts{}, errors.Wrap(ErrShortRead, "stts: payload too short")
	}
	count := be.Uint32(rest[0:4])
	if len(rest) < 4+int(count)*8 {
		return Stts{}, errors.Wrap(ErrShortRead, "stts: entry table truncated")
	}
	s := Stts{Version: version, Flags: flags, Entries: make([]SttsEntry, count)}
	off := 4
	for i := range s.Entries {
		s.Entries[i] = SttsEntry{
			SampleCount: be.Uint32(rest[off:]),
			SampleDelta: be.Uint32(rest[off+4:]),
		}
		off += 8
	}
	return s, nil
}

// CttsEntry is one composition-time-offset run. Offset is signed in
// version 1 (negative offsets allowed, per the B-frame reordering case);
// version 0 stores it as an unsigned value that is always non-negative.
type CttsEntry struct {
	SampleCount  uint32
	SampleOffset int32
}

// Ctts is the composition time-to-sample box.
type Ctts struct {
	Version uint8
	Flags   uint32
	Entries []CttsEntry
}

func DecodeCtts(t BoxType, data []byte) (Ctts, error) {
	if t != TypeCtts {
		return Ctts{}, errors.Wrapf(ErrAtomMismatch, "ctts: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Ctts{}, errors.Wrap(err, "ctts")
	}
	if len(rest) < 4 {
		return Ctts{}, errors.Wrap(ErrShortRead, "ctts: payload too short")
	}
	count := be.Uint32(rest[0:4])
	if len(rest) < 4+int(count)*8 {
		return Ctts{}, errors.Wrap(ErrShortRead, "ctts: entry table truncated")
	}
	c := Ctts{Version: version, Flags: flags, Entries: make([]CttsEntry, count)}
	off := 4
	for i := range c.Entries {
		sampleCount := be.Uint32(rest[off:])
		raw := be.Uint32(rest[off+4:])
		var offset int32
		if version == 1 {
			offset = int32(raw)
		} else {
			offset = int32(raw) // version 0 is unsigned but always >= 0; widening is exact
		}
		c.Entries[i] = CttsEntry{SampleCount: sampleCount, SampleOffset: offset}
		off += 8
	}
	return c, nil
}

// StscEntry is one sample-to-chunk run. FirstChunk is 1-based, per the
// box's own indexing convention.
type StscEntry struct {
	FirstChunk      uint32
	SamplesPerChunk uint32
	SampleDescIndex uint32
}

// Stsc is the sample-to-chunk box.
type Stsc struct {
	Version uint8
	Flags   uint32
	Entries []StscEntry
}

func DecodeStsc(t BoxType, data []byte) (Stsc, error) {
	if t != TypeStsc {
		return Stsc{}, errors.Wrapf(ErrAtomMismatch, "stsc: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Stsc{}, errors.Wrap(err, "stsc")
	}
	if len(rest) < 4 {
		return Stsc{}, errors.Wrap(ErrShortRead, "stsc: payload too short")
	}
	count := be.Uint32(rest[0:4])
	if len(rest) < 4+int(count)*12 {
		return Stsc{}, errors.Wrap(ErrShortRead, "stsc: entry table truncated")
	}
	s := Stsc{Version: version, Flags: flags, Entries: make([]StscEntry, count)}
	off := 4
	for i := range s.Entries {
		s.Entries[i] = StscEntry{
			FirstChunk:      be.Uint32(rest[off:]),
			SamplesPerChunk: be.Uint32(rest[off+4:]),
			SampleDescIndex: be.Uint32(rest[off+8:]),
		}
		off += 12
	}
	return s, nil
}

// Stss is the sync-sample box: 1-based sample numbers that are
// random-access points (keyframes). Its absence means every sample is a
// sync sample.
type Stss struct {
	Version uint8
	Flags   uint32
	Samples []uint32
}

func DecodeStss(t BoxType, data []byte) (Stss, error) {
	if t != TypeStss {
		return Stss{}, errors.Wrapf(ErrAtomMismatch, "stss: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Stss{}, errors.Wrap(err, "stss")
	}
	if len(rest) < 4 {
		return Stss{}, errors.Wrap(ErrShortRead, "stss: payload too short")
	}
	count := be.Uint32(rest[0:4])
	if len(rest) < 4+int(count)*4 {
		return Stss{}, errors.Wrap(ErrShortRead, "stss: entry table truncated")
	}
	s := Stss{Version: version, Flags: flags, Samples: make([]uint32, count)}
	off := 4
	for i := range s.Samples {
		s.Samples[i] = be.Uint32(rest[off:])
		off += 4
	}
	return s, nil
}

// Sdtp is the independent-and-disposable-samples box: one flags byte per
// sample, order matching stsz/stts.
type Sdtp struct {
	Version uint8
	Flags   uint32
	Entries []byte
}

func DecodeSdtp(t BoxType, data []byte) (Sdtp, error) {
	if t != TypeSdtp {
		return Sdtp{}, errors.Wrapf(ErrAtomMismatch, "sdtp: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Sdtp{}, errors.Wrap(err, "sdtp")
	}
	out := make([]byte, len(rest))
	copy(out, rest)
	return Sdtp{Version: version, Flags: flags, Entries: out}, nil
}

// SampleEntry is one stsd child: the sample description for a run of
// samples, classified by ClassifyFormat into Video/Audio/Binary shape.
type SampleEntry struct {
	Format BoxType
	Kind   FormatKind

	// DataReferenceIndex indexes into the track's dref table.
	DataReferenceIndex uint16

	// Video fields (Kind == FormatVideo).
	Width, Height   uint16
	HorizResolution uint32 // 16.16 fixed point
	VertResolution  uint32 // 16.16 fixed point
	FrameCount      uint16
	CompressorName  string
	Depth           uint16

	// Audio fields (Kind == FormatAudio).
	ChannelCount uint16
	SampleSize   uint16
	SampleRate   uint32 // 16.16 fixed point

	// ChildOffset is the byte offset, within this entry's own payload, at
	// which nested boxes (avcC, esds, btrt, pasp, ...) begin.
	ChildOffset int

	// Raw is the complete entry payload, for decoding nested boxes with a
	// fresh Reader seeded at ChildOffset.
	Raw []byte
}

// Children returns a Reader positioned to walk this entry's nested boxes
// (avcC, esds, pasp, btrt, and similar), if any.
func (e SampleEntry) Children() *Reader {
	if e.ChildOffset >= len(e.Raw) {
		return NewReader(nil)
	}
	return NewReader(e.Raw[e.ChildOffset:])
}

// Tmcd reinterprets this entry's raw payload as a Tmcd record, per
// spec.md §4.4's note that a tmcd stsd entry, while classified Binary by
// ClassifyFormat, carries a typed timecode-configuration record rather
// than an opaque blob. Fails with ErrAtomMismatch if this entry's format
// isn't tmcd.
func (e SampleEntry) Tmcd() (Tmcd, error) {
	return DecodeTmcd(e.Format, e.Raw)
}

func decodeSampleEntryCommon(data []byte) (dataRefIndex uint16, rest []byte, err error) {
	if len(data) < 8 {
		return 0, nil, errors.Wrap(ErrShortRead, "sample entry: payload too short")
	}
	// reserved[6], data_reference_index
	dataRefIndex = be.Uint16(data[6:8])
	return dataRefIndex, data[8:], nil
}

func decodeVisualSampleEntry(format BoxType, data []byte) (SampleEntry, error) {
	dataRefIndex, rest, err := decodeSampleEntryCommon(data)
	if err != nil {
		return SampleEntry{}, err
	}
	if len(rest) < 70 {
		return SampleEntry{}, errors.Wrap(ErrShortRead, "visual sample entry: payload too short")
	}
	e := SampleEntry{Format: format, Kind: FormatVideo, DataReferenceIndex: dataRefIndex, Raw: data}
	// pre_defined, reserved, pre_defined[3]
	off := 2 + 2 + 12
	e.Width = be.Uint16(rest[off:])
	off += 2
	e.Height = be.Uint16(rest[off:])
	off += 2
	e.HorizResolution = be.Uint32(rest[off:])
	off += 4
	e.VertResolution = be.Uint32(rest[off:])
	off += 4
	off += 4 // reserved
	e.FrameCount = be.Uint16(rest[off:])
	off += 2
	nameLen := int(rest[off])
	if off+1+31 <= len(rest) {
		e.CompressorName = decodeISO8859_1(rest[off+1 : off+1+min(nameLen, 31)])
	}
	off += 32
	e.Depth = be.Uint16(rest[off:])
	off += 2
	off += 2 // pre_defined == -1
	e.ChildOffset = 8 + off
	return e, nil
}

func decodeAudioSampleEntry(format BoxType, data []byte) (SampleEntry, error) {
	dataRefIndex, rest, err := decodeSampleEntryCommon(data)
	if err != nil {
		return SampleEntry{}, err
	}
	if len(rest) < 20 {
		return SampleEntry{}, errors.Wrap(ErrShortRead, "audio sample entry: payload too short")
	}
	e := SampleEntry{Format: format, Kind: FormatAudio, DataReferenceIndex: dataRefIndex, Raw: data}
	off := 8 // reserved[2] uint32
	e.ChannelCount = be.Uint16(rest[off:])
	off += 2
	e.SampleSize = be.Uint16(rest[off:])
	off += 2
	off += 4 // pre_defined, reserved
	e.SampleRate = be.Uint32(rest[off:])
	off += 4
	e.ChildOffset = 8 + off
	return e, nil
}

func decodeBinarySampleEntry(format BoxType, data []byte) (SampleEntry, error) {
	dataRefIndex, _, err := decodeSampleEntryCommon(data)
	if err != nil {
		return SampleEntry{}, err
	}
	return SampleEntry{Format: format, Kind: FormatBinary, DataReferenceIndex: dataRefIndex, Raw: data, ChildOffset: 8}, nil
}

func decodeSampleEntry(format BoxType, data []byte) (SampleEntry, error) {
	switch ClassifyFormat(format) {
	case FormatVideo:
		return decodeVisualSampleEntry(format, data)
	case FormatAudio:
		return decodeAudioSampleEntry(format, data)
	default:
		return decodeBinarySampleEntry(format, data)
	}
}

// Stsd is the sample description box.
type Stsd struct {
	Version uint8
	Flags   uint32
	Entries []SampleEntry
}

func DecodeStsd(t BoxType, data []byte) (Stsd, error) {
	if t != TypeStsd {
		return Stsd{}, errors.Wrapf(ErrAtomMismatch, "stsd: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Stsd{}, errors.Wrap(err, "stsd")
	}
	if len(rest) < 4 {
		return Stsd{}, errors.Wrap(ErrShortRead, "stsd: payload too short")
	}
	count := be.Uint32(rest[0:4])
	off := 4
	s := Stsd{Version: version, Flags: flags}
	for i := uint32(0); i < count; i++ {
		if off+8 > len(rest) {
			return Stsd{}, errors.Wrapf(ErrShortRead, "stsd: entry %d header overruns payload", i)
		}
		h, err := ReadHeader(NewMoovStream(rest[off:]), int64(off))
		if err != nil {
			return Stsd{}, errors.Wrapf(err, "stsd: entry %d header", i)
		}
		entryEnd := off + int(h.Size())
		if entryEnd > len(rest) {
			return Stsd{}, errors.Wrapf(ErrShortRead, "stsd: entry %d overruns payload", i)
		}
		entry, err := decodeSampleEntry(h.Type, rest[off+int(h.HeaderSize()):entryEnd])
		if err != nil {
			return Stsd{}, errors.Wrapf(err, "stsd: entry %d", i)
		}
		s.Entries = append(s.Entries, entry)
		off = entryEnd
	}
	return s, nil
}

// Tmcd is the timecode sample description box, used by a tmcd track to
// describe how its timecode samples (a single frame-count uint32 each) map
// onto wall-clock time.
type Tmcd struct {
	Reserved      uint32
	Flags         uint32
	TimeScale     uint32
	FrameDuration uint32
	NumFrames     uint8
}

// DropFrame reports whether this timecode uses drop-frame counting (NTSC
// 29.97fps convention).
func (t Tmcd) DropFrame() bool { return t.Flags&0x0001 != 0 }

func DecodeTmcd(t BoxType, data []byte) (Tmcd, error) {
	if t != TypeTmcd {
		return Tmcd{}, errors.Wrapf(ErrAtomMismatch, "tmcd: got %s", t)
	}
	_, rest, err := decodeSampleEntryCommon(data)
	if err != nil {
		return Tmcd{}, errors.Wrap(err, "tmcd")
	}
	if len(rest) < 4+4+4+4+1+1 {
		return Tmcd{}, errors.Wrap(ErrShortRead, "tmcd: payload too short")
	}
	return Tmcd{
		Reserved:      be.Uint32(rest[0:4]),
		Flags:         be.Uint32(rest[4:8]),
		TimeScale:     be.Uint32(rest[8:12]),
		FrameDuration: be.Uint32(rest[12:16]),
		NumFrames:     rest[16],
	}, nil
}

// Mehd is the movie extends header box (fragmented files).
type Mehd struct {
	Version          uint8
	Flags            uint32
	FragmentDuration uint64
}

func DecodeMehd(t BoxType, data []byte) (Mehd, error) {
	if t != TypeMehd {
		return Mehd{}, errors.Wrapf(ErrAtomMismatch, "mehd: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Mehd{}, errors.Wrap(err, "mehd")
	}
	var dur uint64
	if version == 1 {
		if len(rest) < 8 {
			return Mehd{}, errors.Wrap(ErrShortRead, "mehd: payload too short")
		}
		dur = be.Uint64(rest)
	} else {
		if len(rest) < 4 {
			return Mehd{}, errors.Wrap(ErrShortRead, "mehd: payload too short")
		}
		dur = uint64(be.Uint32(rest))
	}
	return Mehd{Version: version, Flags: flags, FragmentDuration: dur}, nil
}

// Trex is the track extends box (fragmented files): per-track defaults
// applied to trun entries that omit a given field.
type Trex struct {
	Version                       uint8
	Flags                         uint32
	TrackID                       uint32
	DefaultSampleDescriptionIndex uint32
	DefaultSampleDuration         uint32
	DefaultSampleSize             uint32
	DefaultSampleFlags            uint32
}

func DecodeTrex(t BoxType, data []byte) (Trex, error) {
	if t != TypeTrex {
		return Trex{}, errors.Wrapf(ErrAtomMismatch, "trex: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Trex{}, errors.Wrap(err, "trex")
	}
	if len(rest) < 20 {
		return Trex{}, errors.Wrap(ErrShortRead, "trex: payload too short")
	}
	return Trex{
		Version: version, Flags: flags,
		TrackID:                       be.Uint32(rest[0:4]),
		DefaultSampleDescriptionIndex: be.Uint32(rest[4:8]),
		DefaultSampleDuration:         be.Uint32(rest[8:12]),
		DefaultSampleSize:             be.Uint32(rest[12:16]),
		DefaultSampleFlags:            be.Uint32(rest[16:20]),
	}, nil
}

// Mfhd is the movie fragment header box.
type Mfhd struct {
	Version        uint8
	Flags          uint32
	SequenceNumber uint32
}

func DecodeMfhd(t BoxType, data []byte) (Mfhd, error) {
	if t != TypeMfhd {
		return Mfhd{}, errors.Wrapf(ErrAtomMismatch, "mfhd: got %s", t)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Mfhd{}, errors.Wrap(err, "mfhd")
	}
	if len(rest) < 4 {
		return Mfhd{}, errors.Wrap(ErrShortRead, "mfhd: payload too short")
	}
	return Mfhd{Version: version, Flags: flags, SequenceNumber: be.Uint32(rest)}, nil
}

// Tfhd flag bits (fragmented files).
const (
	TfhdBaseDataOffsetPresent         = 0x000001
	TfhdSampleDescriptionIndexPresent = 0x000002
	TfhdDefaultSampleDurationPresent  = 0x000008
	TfhdDefaultSampleSizePresent      = 0x000010
	TfhdDefaultSampleFlagsPresent     = 0x000020
	TfhdDurationIsEmpty               = 0x010000
	TfhdDefaultBaseIsMoof             = 0x020000
)

// Tfhd is the track fragment header box.
type Tfhd struct {
	Version                uint8
	Flags                  uint32
	TrackID                uint32
	BaseDataOffset         uint64
	SampleDescriptionIndex uint32
	DefaultSampleDuration  uint32
	DefaultSampleSize      uint32
	DefaultSampleFlags     uint32
}

func DecodeTfhd(boxType BoxType, data []byte) (Tfhd, error) {
	if boxType != TypeTfhd {
		return Tfhd{}, errors.Wrapf(ErrAtomMismatch, "tfhd: got %s", boxType)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Tfhd{}, errors.Wrap(err, "tfhd")
	}
	if len(rest) < 4 {
		return Tfhd{}, errors.Wrap(ErrShortRead, "tfhd: payload too short")
	}
	t := Tfhd{Version: version, Flags: flags, TrackID: be.Uint32(rest[0:4])}
	off := 4
	if flags&TfhdBaseDataOffsetPresent != 0 {
		t.BaseDataOffset = be.Uint64(rest[off:])
		off += 8
	}
	if flags&TfhdSampleDescriptionIndexPresent != 0 {
		t.SampleDescriptionIndex = be.Uint32(rest[off:])
		off += 4
	}
	if flags&TfhdDefaultSampleDurationPresent != 0 {
		t.DefaultSampleDuration = be.Uint32(rest[off:])
		off += 4
	}
	if flags&TfhdDefaultSampleSizePresent != 0 {
		t.DefaultSampleSize = be.Uint32(rest[off:])
		off += 4
	}
	if flags&TfhdDefaultSampleFlagsPresent != 0 {
		t.DefaultSampleFlags = be.Uint32(rest[off:])
		off += 4
	}
	return t, nil
}

// Tfdt is the track fragment base decode time box.
type Tfdt struct {
	Version             uint8
	Flags               uint32
	BaseMediaDecodeTime uint64
}

func DecodeTfdt(boxType BoxType, data []byte) (Tfdt, error) {
	if boxType != TypeTfdt {
		return Tfdt{}, errors.Wrapf(ErrAtomMismatch, "tfdt: got %s", boxType)
	}
	version, flags, rest, err := fullBoxPrefix(data)
	if err != nil {
		return Tfdt{}, errors.Wrap(err, "tfdt")
	}
	var t uint64
	if version == 1 {
		if len(rest) < 8 {
			return Tfdt{}, errors.Wrap(ErrShortRead, "tfdt: payload too short")
		}
		t = be.Uint64(rest)
	} else {
		if len(rest) < 4 {
			return Tfdt{}, errors.Wrap(ErrShortRead, "tfdt: payload too short")
		}
		t = uint64(be.Uint32(rest))
	}
	return Tfdt{Version: version, Flags: flags, BaseMediaDecodeTime: t}, nil
}

// Mdat is the media data box. Decoding it produces only its span; callers
// read sample payloads out of it via the facade's FileStream using offsets
// from the sample-offset reconstructor, never by loading the whole box.
type Mdat struct {
	Offset int64
	Size   int64
}

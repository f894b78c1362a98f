package box

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFullBoxV0(version uint8, flags uint32, body []byte) []byte {
	out := make([]byte, 4)
	be.PutUint32(out, (uint32(version)<<24)|(flags&0x00ffffff))
	return append(out, body...)
}

func TestDecodeMvhdVersion0(t *testing.T) {
	body := make([]byte, 4+4+4+4+4+2+10+36+24+4)
	off := 0
	be.PutUint32(body[off:], 1000) // creation time
	off += 4
	be.PutUint32(body[off:], 2000) // modification time
	off += 4
	be.PutUint32(body[off:], 600) // timescale
	off += 4
	be.PutUint32(body[off:], 6000) // duration
	off += 4
	be.PutUint32(body[off:], 0x00010000) // rate
	off += 4
	be.PutUint16(body[off:], 0x0100) // volume
	off += 2
	off += 10 // reserved
	for i := 0; i < 9; i++ {
		be.PutUint32(body[off:], 0)
		off += 4
	}
	off += 24
	be.PutUint32(body[off:], 5) // next track id

	payload := buildFullBoxV0(0, 0, body)
	m, err := DecodeMvhd(TypeMvhd, payload)
	require.NoError(t, err)
	assert.EqualValues(t, 600, m.Timescale)
	assert.EqualValues(t, 6000, m.Duration)
	assert.EqualValues(t, 5, m.NextTrackID)
}

func TestDecodeMvhdTruncatedTail(t *testing.T) {
	// Long enough for the time fields but cut off inside the matrix: must
	// fail with ErrShortRead, not panic.
	body := make([]byte, 16+4+2+10+20)
	payload := buildFullBoxV0(0, 0, body)
	_, err := DecodeMvhd(TypeMvhd, payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestDecodeMvhdRejectsWrongType(t *testing.T) {
	_, err := DecodeMvhd(TypeTkhd, buildFullBoxV0(0, 0, make([]byte, 100)))
	assert.ErrorIs(t, err, ErrAtomMismatch)
}

func TestDecodeMdhdLanguage(t *testing.T) {
	body := make([]byte, 4+4+4+4+2+2)
	off := 0
	be.PutUint32(body[off:], 0)
	off += 4
	be.PutUint32(body[off:], 0)
	off += 4
	be.PutUint32(body[off:], 48000)
	off += 4
	be.PutUint32(body[off:], 48000)
	off += 4
	// "eng" packed per ISO-639-2/T's 5-bit-per-letter scheme: each letter's
	// code is (char - 0x60), i.e. 'a' packs to 1.
	packed := uint16('e'-0x60)<<10 | uint16('n'-0x60)<<5 | uint16('g'-0x60)
	be.PutUint16(body[off:], packed)

	payload := buildFullBoxV0(0, 0, body)
	m, err := DecodeMdhd(TypeMdhd, payload)
	require.NoError(t, err)
	assert.Equal(t, "eng", m.Language)
	assert.EqualValues(t, 48000, m.Timescale)
}

func TestDecodeMdhdVersion1Truncated(t *testing.T) {
	// version 1 widens creation/modification time to 8 bytes each; a
	// payload long enough for version 0 but not version 1 must fail with
	// ErrShortRead rather than panic.
	body := make([]byte, 4+4+4+4)
	payload := buildFullBoxV0(1, 0, body)
	_, err := DecodeMdhd(TypeMdhd, payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestDecodeTkhdVersion1Truncated(t *testing.T) {
	body := make([]byte, 4+4+4+4+4)
	payload := buildFullBoxV0(1, 0, body)
	_, err := DecodeTkhd(TypeTkhd, payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestDecodeHdlrPascalName(t *testing.T) {
	body := make([]byte, 4+4+12)
	name := "VideoHandler"
	body = append(body, byte(len(name)))
	body = append(body, []byte(name)...)
	payload := buildFullBoxV0(0, 0, body)
	copy(payload[4:8], []byte{0, 0, 0, 0})
	copy(payload[8:12], "vide")
	h, err := DecodeHdlr(TypeHdlr, payload)
	require.NoError(t, err)
	assert.Equal(t, BoxType{'v', 'i', 'd', 'e'}, h.HandlerType)
	assert.Equal(t, "VideoHandler", h.ComponentName)
}

func TestDecodeHdlrBareNameGoProMET(t *testing.T) {
	// S5: remainder's first byte (0x47 == 71) exceeds the 9-byte remainder,
	// so the Pascal-count heuristic must fall back to whole-remainder.
	body := make([]byte, 4+4+12)
	body = append(body, 0x47, 0x6F, 0x50, 0x72, 0x6F, 0x20, 0x4D, 0x45, 0x54)
	payload := buildFullBoxV0(0, 0, body)
	copy(payload[8:12], "meta")
	h, err := DecodeHdlr(TypeHdlr, payload)
	require.NoError(t, err)
	assert.Equal(t, "GoPro MET", h.ComponentName)
}

func TestDecodeMdhdLanguageLiteralCodes(t *testing.T) {
	// S6: 0x55C4 -> "und", 0x15C7 -> "eng", taken verbatim from spec.md.
	for _, tc := range []struct {
		packed uint16
		want   string
	}{
		{0x55C4, "und"},
		{0x15C7, "eng"},
	} {
		body := make([]byte, 4+4+4+4+2+2)
		be.PutUint16(body[16:18], tc.packed)
		payload := buildFullBoxV0(0, 0, body)
		m, err := DecodeMdhd(TypeMdhd, payload)
		require.NoError(t, err)
		assert.Equal(t, tc.want, m.Language)
	}
}

func TestDecodeHdlrBareName(t *testing.T) {
	body := make([]byte, 4+4+12)
	bare := []byte("Apple Video Media Handler\x00")
	body = append(body, bare...)
	payload := buildFullBoxV0(0, 0, body)
	copy(payload[8:12], "vide")
	h, err := DecodeHdlr(TypeHdlr, payload)
	require.NoError(t, err)
	assert.Equal(t, "Apple Video Media Handler", h.ComponentName)
}

func TestDecodeHdlrEmptyRemainderFails(t *testing.T) {
	body := make([]byte, 4+4+12)
	payload := buildFullBoxV0(0, 0, body)
	copy(payload[8:12], "vide")
	_, err := DecodeHdlr(TypeHdlr, payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingHandlerName)
}

func TestDecodeHdlrRejectsWrongType(t *testing.T) {
	_, err := DecodeHdlr(TypeMdhd, make([]byte, 24))
	assert.ErrorIs(t, err, ErrAtomMismatch)
}

func TestDecodeStszConstantSize(t *testing.T) {
	body := make([]byte, 8)
	be.PutUint32(body[0:4], 1024)
	be.PutUint32(body[4:8], 10)
	payload := buildFullBoxV0(0, 0, body)
	s, err := DecodeStsz(TypeStsz, payload)
	require.NoError(t, err)
	assert.EqualValues(t, 1024, s.SampleSize)
	assert.EqualValues(t, 10, s.SampleCount)
	assert.Nil(t, s.EntrySizes)
}

func TestDecodeStco(t *testing.T) {
	body := make([]byte, 4+8)
	be.PutUint32(body[0:4], 2)
	be.PutUint32(body[4:8], 100)
	be.PutUint32(body[8:12], 200)
	payload := buildFullBoxV0(0, 0, body)
	s, err := DecodeStco(TypeStco, payload)
	require.NoError(t, err)
	require.Len(t, s.ChunkOffsets, 2)
	assert.EqualValues(t, 100, s.ChunkOffsets[0])
	assert.EqualValues(t, 200, s.ChunkOffsets[1])
}

func TestDecodeCo64WidensTo64Bit(t *testing.T) {
	body := make([]byte, 4+8)
	be.PutUint32(body[0:4], 1)
	be.PutUint64(body[4:12], 0x100000000)
	payload := buildFullBoxV0(0, 0, body)
	s, err := DecodeCo64(TypeCo64, payload)
	require.NoError(t, err)
	require.Len(t, s.ChunkOffsets, 1)
	assert.EqualValues(t, 0x100000000, s.ChunkOffsets[0])
}

func TestClassifyFormat(t *testing.T) {
	assert.Equal(t, FormatVideo, ClassifyFormat(TypeAvc1))
	assert.Equal(t, FormatAudio, ClassifyFormat(TypeMp4a))
	assert.Equal(t, FormatBinary, ClassifyFormat(TypeTmcd))
}

func TestSampleEntryTmcdReinterpretsBinaryPayload(t *testing.T) {
	raw := make([]byte, 8+4+4+4+4+1+1)
	be.PutUint32(raw[12:16], 1)     // flags: drop-frame
	be.PutUint32(raw[16:20], 30000) // time_scale
	be.PutUint32(raw[20:24], 1001)  // frame_duration
	raw[24] = 30                    // num_frames
	e := SampleEntry{Format: TypeTmcd, Kind: FormatBinary, Raw: raw}

	tm, err := e.Tmcd()
	require.NoError(t, err)
	assert.EqualValues(t, 30000, tm.TimeScale)
	assert.EqualValues(t, 1001, tm.FrameDuration)
	assert.True(t, tm.DropFrame())
}

func TestSampleEntryTmcdRejectsWrongFormat(t *testing.T) {
	e := SampleEntry{Format: TypeAvc1}
	_, err := e.Tmcd()
	assert.ErrorIs(t, err, ErrAtomMismatch)
}

package mp4nav

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var be = binary.BigEndian

func mkbox(fourcc string, body []byte) []byte {
	out := make([]byte, 8)
	be.PutUint32(out[0:4], uint32(8+len(body)))
	copy(out[4:8], fourcc)
	return append(out, body...)
}

func container(fourcc string, children ...[]byte) []byte {
	var body []byte
	for _, c := range children {
		body = append(body, c...)
	}
	return mkbox(fourcc, body)
}

func fullBox(body []byte) []byte {
	return append(make([]byte, 4), body...)
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	be.PutUint32(b, v)
	return b
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	be.PutUint16(b, v)
	return b
}

// buildMinimalMP4 constructs a single-video-track file with two samples
// stored in its mdat, laid out the way a real encoder would: ftyp, moov
// (mvhd, trak), mdat.
func buildMinimalMP4(t *testing.T) string {
	t.Helper()

	mvhdBody := fullBox(nil)
	mvhdBody = append(mvhdBody, u32(0)...)           // creation time
	mvhdBody = append(mvhdBody, u32(0)...)           // modification time
	mvhdBody = append(mvhdBody, u32(1000)...)        // timescale
	mvhdBody = append(mvhdBody, u32(2000)...)        // duration
	mvhdBody = append(mvhdBody, u32(0x00010000)...)  // rate
	mvhdBody = append(mvhdBody, u16(0x0100)...)      // volume
	mvhdBody = append(mvhdBody, make([]byte, 10)...) // reserved
	mvhdBody = append(mvhdBody, make([]byte, 36)...) // matrix
	mvhdBody = append(mvhdBody, make([]byte, 24)...) // pre_defined
	mvhdBody = append(mvhdBody, u32(2)...)           // next track id
	mvhd := mkbox("mvhd", mvhdBody)

	tkhdBody := fullBox(nil)
	tkhdBody = append(tkhdBody, u32(0)...)          // creation time
	tkhdBody = append(tkhdBody, u32(0)...)          // modification time
	tkhdBody = append(tkhdBody, u32(1)...)          // track id
	tkhdBody = append(tkhdBody, u32(0)...)          // reserved
	tkhdBody = append(tkhdBody, u32(2000)...)       // duration
	tkhdBody = append(tkhdBody, make([]byte, 8)...) // reserved
	tkhdBody = append(tkhdBody, u16(0)...)          // layer
	tkhdBody = append(tkhdBody, u16(0)...)          // alternate group
	tkhdBody = append(tkhdBody, u16(0)...)          // volume
	tkhdBody = append(tkhdBody, u16(0)...)          // reserved
	tkhdBody = append(tkhdBody, make([]byte, 36)...)
	tkhdBody = append(tkhdBody, u32(640<<16)...) // width
	tkhdBody = append(tkhdBody, u32(480<<16)...) // height
	tkhd := mkbox("tkhd", tkhdBody)

	mdhdBody := fullBox(nil)
	mdhdBody = append(mdhdBody, u32(0)...)      // creation time
	mdhdBody = append(mdhdBody, u32(0)...)      // modification time
	mdhdBody = append(mdhdBody, u32(1000)...)   // timescale
	mdhdBody = append(mdhdBody, u32(2000)...)   // duration
	mdhdBody = append(mdhdBody, u16(0x55c4)...) // "und" language, packed
	mdhdBody = append(mdhdBody, u16(0)...)
	mdhd := mkbox("mdhd", mdhdBody)

	hdlrBody := fullBox(append(u32(0), append([]byte("vide"), make([]byte, 12)...)...))
	hdlrBody = append(hdlrBody, []byte("VideoHandler\x00")...)
	hdlr := mkbox("hdlr", hdlrBody)

	vmhd := mkbox("vmhd", fullBox(append(u16(0), make([]byte, 6)...)))
	dref := mkbox("dref", fullBox(append(u32(1), mkbox("url ", fullBox(nil))...)))
	dinf := container("dinf", dref)

	// stsd: one avc1 visual sample entry, empty (no avcC), just enough bytes.
	visualBody := make([]byte, 8) // reserved + data_reference_index
	visualBody = append(visualBody, make([]byte, 16)...)   // pre_defined/reserved/pre_defined[3]
	visualBody = append(visualBody, u16(640)...)           // width
	visualBody = append(visualBody, u16(480)...)           // height
	visualBody = append(visualBody, u32(0x00480000)...)    // horizresolution
	visualBody = append(visualBody, u32(0x00480000)...)    // vertresolution
	visualBody = append(visualBody, make([]byte, 4)...)    // reserved
	visualBody = append(visualBody, u16(1)...)             // frame_count
	visualBody = append(visualBody, make([]byte, 32)...)   // compressorname
	visualBody = append(visualBody, u16(0x0018)...)        // depth
	visualBody = append(visualBody, u16(0xffff)...)        // pre_defined
	avc1 := mkbox("avc1", visualBody)
	stsd := mkbox("stsd", fullBox(append(u32(1), avc1...)))

	stts := mkbox("stts", fullBox(append(u32(1), append(u32(2), u32(1000)...)...)))
	stsc := mkbox("stsc", fullBox(append(u32(1), append(append(u32(1), u32(2)...), u32(1)...)...)))
	stsz := mkbox("stsz", fullBox(append(append(u32(0), u32(2)...), append(u32(10), u32(20)...)...)))

	const mdatHeaderLen = 8

	// Two-pass layout: build moov once with placeholder chunk offsets,
	// measure its size, then rebuild stco with the real mdat payload
	// offset (ftypSize + moovSize + mdatHeaderLen).
	buildMoov := func(chunkOffset uint32) []byte {
		stco := mkbox("stco", fullBox(append(u32(1), u32(chunkOffset)...)))
		stbl := container("stbl", stsd, stts, stsc, stsz, stco)
		minf := container("minf", vmhd, dinf, stbl)
		mdia := container("mdia", mdhd, hdlr, minf)
		trak := container("trak", tkhd, mdia)
		return container("moov", mvhd, trak)
	}

	ftyp := mkbox("ftyp", append([]byte("isom"), u32(0)...))
	moovPlaceholder := buildMoov(0)
	chunkOffset := uint32(len(ftyp) + len(moovPlaceholder) + mdatHeaderLen)
	moov := buildMoov(chunkOffset)
	require.Equal(t, len(moovPlaceholder), len(moov))

	mdat := mkbox("mdat", append(make([]byte, 10), make([]byte, 20)...))

	data := append(append(ftyp, moov...), mdat...)

	dir := t.TempDir()
	path := filepath.Join(dir, "test.mp4")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOpenParsesMovieAndTrack(t *testing.T) {
	path := buildMinimalMP4(t)
	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	assert.EqualValues(t, 1000, f.Mvhd().Timescale)
	w, h, ok := f.Resolution()
	require.True(t, ok)
	assert.Equal(t, 640.0, w)
	assert.Equal(t, 480.0, h)

	vf, ok := f.VideoFormat()
	require.True(t, ok)
	assert.Equal(t, "avc1", vf.String())

	// 2 samples over a 2000-unit mdhd duration at timescale 1000.
	fps, ok := f.FrameRate()
	require.True(t, ok)
	assert.Equal(t, 1.0, fps)

	tracks := f.Tracks()
	require.Len(t, tracks, 1)
	assert.True(t, tracks[0].IsVideo())
	assert.Equal(t, 2, tracks[0].SampleCount())

	tr, found := f.Track(uint32(1))
	require.True(t, found)
	assert.Equal(t, "VideoHandler", tr.Attrs.ComponentName)

	var sizes []uint32
	for s := range tr.Samples() {
		sizes = append(sizes, s.Size)
	}
	assert.Equal(t, []uint32{10, 20}, sizes)
}

func TestOpenFtypAndMdatQueries(t *testing.T) {
	path := buildMinimalMP4(t)
	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	brand, ok := f.MajorBrand()
	require.True(t, ok)
	assert.Equal(t, "isom", brand.String())

	ft, ok := f.Ftyp()
	require.True(t, ok)
	assert.Equal(t, "isom", ft.MajorBrand.String())

	mdat, ok := f.Mdat()
	require.True(t, ok)
	assert.EqualValues(t, 30, mdat.Size)

	assert.EqualValues(t, 1000, f.Timescale())
}

func TestFindHeaderTopLevel(t *testing.T) {
	path := buildMinimalMP4(t)
	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	h, err := f.FindHeader(mustType("mdat"))
	require.NoError(t, err)
	assert.Equal(t, "mdat", h.Type.String())

	_, err = f.FindHeader(mustType("moof"))
	require.Error(t, err)
}

func TestReadSampleOutsideMdatRejected(t *testing.T) {
	path := buildMinimalMP4(t)
	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	// Offset 0 is the ftyp header, not sample data.
	_, err = f.ReadSample(0, 4)
	require.Error(t, err)
}

func TestAllIteratesTopLevelHeaders(t *testing.T) {
	path := buildMinimalMP4(t)
	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	var names []string
	for h := range f.All() {
		names = append(names, h.Type.String())
	}
	assert.Equal(t, []string{"ftyp", "moov", "mdat"}, names)
}

func TestOpenTwiceYieldsIdenticalHeaders(t *testing.T) {
	path := buildMinimalMP4(t)

	walk := func() []string {
		f, err := Open(path)
		require.NoError(t, err)
		defer f.Close()
		var names []string
		for h := range f.All() {
			names = append(names, h.Type.String())
		}
		return names
	}
	assert.Equal(t, walk(), walk())
}

func mustType(s string) (t [4]byte) {
	copy(t[:], s)
	return t
}

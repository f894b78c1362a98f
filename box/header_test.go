package box

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPayload(t *testing.T, size32 uint32, fourcc string, body []byte) []byte {
	t.Helper()
	buf := make([]byte, 8)
	be.PutUint32(buf[0:4], size32)
	copy(buf[4:8], fourcc)
	return append(buf, body...)
}

func TestReadHeaderStandard(t *testing.T) {
	data := mustPayload(t, 16, "free", make([]byte, 8))
	s := NewMoovStream(data)
	h, err := ReadHeader(s, 0)
	require.NoError(t, err)
	assert.Equal(t, TypeFree, h.Type)
	assert.EqualValues(t, 8, h.HeaderSize())
	assert.EqualValues(t, 16, h.Size())
	assert.EqualValues(t, 8, h.DataSize())
	assert.EqualValues(t, 16, h.End())
}

func TestReadHeaderLargeSize(t *testing.T) {
	buf := make([]byte, 16)
	be.PutUint32(buf[0:4], 1)
	copy(buf[4:8], "mdat")
	be.PutUint64(buf[8:16], 1024)
	s := NewMoovStream(append(buf, make([]byte, 1024-16)...))
	h, err := ReadHeader(s, 0)
	require.NoError(t, err)
	assert.Equal(t, TypeMdat, h.Type)
	assert.EqualValues(t, 16, h.HeaderSize())
	assert.EqualValues(t, 1024, h.Size())
}

func TestReadHeaderLargeSizeBeyond32Bits(t *testing.T) {
	// size32 == 1 with a largesize past 4 GiB: the next sibling must begin
	// exactly at offset + largesize even though only the header bytes are
	// present in the stream.
	buf := make([]byte, 16)
	be.PutUint32(buf[0:4], 1)
	copy(buf[4:8], "mdat")
	be.PutUint64(buf[8:16], 0x1_0000_0000)
	s := NewMoovStream(buf)
	h, err := ReadHeader(s, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 16, h.HeaderSize())
	assert.EqualValues(t, 16, h.DataOffset())
	assert.EqualValues(t, 0x1_0000_0000, h.End())
}

func TestHeaderIsContainer(t *testing.T) {
	for _, tc := range []struct {
		fourcc string
		want   bool
	}{
		{"moov", true},
		{"trak", true},
		{"stbl", true},
		{"udta", true},
		{"dinf", true},
		{"mvhd", false},
		{"mdat", false},
		{"meta", false}, // meta is a leaf for tree-walk purposes here
	} {
		s := NewMoovStream(mustPayload(t, 8, tc.fourcc, nil))
		h, err := ReadHeader(s, 0)
		require.NoError(t, err)
		assert.Equal(t, tc.want, h.IsContainer(), tc.fourcc)
	}
}

func TestReadHeaderZeroSizeIsError(t *testing.T) {
	data := mustPayload(t, 0, "mdat", make([]byte, 20))
	s := NewMoovStream(data)
	_, err := ReadHeader(s, 0)
	assert.ErrorIs(t, err, ErrZeroSizeAtom)
}

func TestReadHeaderSizeSmallerThanHeaderIsError(t *testing.T) {
	data := mustPayload(t, 4, "free", nil)
	s := NewMoovStream(data)
	_, err := ReadHeader(s, 0)
	assert.Error(t, err)
}

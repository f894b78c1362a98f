package box

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStreamReadAndLength(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef, 0x12, 0x34}
	fs, err := NewFileStream(bytes.NewReader(data), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 6, fs.Len())

	u32, err := fs.ReadUint32()
	require.NoError(t, err)
	assert.EqualValues(t, 0xdeadbeef, u32)
	assert.EqualValues(t, 4, fs.Pos())
}

func TestFileStreamRelativeSeekIgnoresBufferedLookahead(t *testing.T) {
	// A tiny bufio capacity still reads ahead of the logical position; a
	// relative seek must resolve against Pos(), not the wrapped reader's
	// cursor.
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	fs, err := NewFileStream(bytes.NewReader(data), 16)
	require.NoError(t, err)

	_, err = fs.ReadBytes(Sized(4)) // bufio now holds bytes past Pos()==4
	require.NoError(t, err)

	pos, err := fs.Seek(SeekRel(2))
	require.NoError(t, err)
	assert.EqualValues(t, 6, pos)

	b, err := fs.ReadBytes(Sized(1))
	require.NoError(t, err)
	assert.Equal(t, []byte{6}, b)

	pos, err = fs.Seek(SeekFromEnd(-4))
	require.NoError(t, err)
	assert.EqualValues(t, 60, pos)
}

func TestFileStreamSeekOutOfBounds(t *testing.T) {
	fs, err := NewFileStream(bytes.NewReader(make([]byte, 8)), 0)
	require.NoError(t, err)

	_, err = fs.Seek(SeekAbs(9))
	assert.ErrorIs(t, err, ErrBounds)

	_, err = fs.Seek(SeekAbs(-1))
	assert.ErrorIs(t, err, ErrBounds)
}

func TestFileStreamShortRead(t *testing.T) {
	fs, err := NewFileStream(bytes.NewReader(make([]byte, 2)), 0)
	require.NoError(t, err)
	_, err = fs.ReadUint32()
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestSyncStreamsPositionsBothCursors(t *testing.T) {
	fileData := make([]byte, 100)
	moovPayload := fileData[40:70]
	fs, err := NewFileStream(bytes.NewReader(fileData), 0)
	require.NoError(t, err)
	moov := NewMoovStream(moovPayload)

	require.NoError(t, SyncStreams(fs, moov, 40, 55))
	assert.EqualValues(t, 55, fs.Pos())
	assert.EqualValues(t, 15, moov.Pos())
}

func TestSyncStreamsOutsideMoovFails(t *testing.T) {
	fs, err := NewFileStream(bytes.NewReader(make([]byte, 100)), 0)
	require.NoError(t, err)
	moov := NewMoovStream(make([]byte, 30))

	assert.ErrorIs(t, SyncStreams(fs, moov, 40, 10), ErrBounds)
	assert.ErrorIs(t, SyncStreams(fs, moov, 40, 71), ErrBounds)
}

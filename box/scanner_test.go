package box

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerTopLevelWalk(t *testing.T) {
	data := append(buildBox("ftyp", []byte("isom")), buildBox("free", []byte{1, 2, 3, 4})...)
	fs, err := NewFileStream(bytes.NewReader(data), 0)
	require.NoError(t, err)
	sc := NewScanner(fs)

	require.True(t, sc.Next())
	assert.Equal(t, TypeFtyp, sc.Entry().Type)
	body, err := sc.ReadBody()
	require.NoError(t, err)
	assert.Equal(t, []byte("isom"), body)

	require.True(t, sc.Next())
	assert.Equal(t, TypeFree, sc.Entry().Type)

	assert.False(t, sc.Next())
	assert.NoError(t, sc.Err())
}

func TestScannerSeekToAndReadAt(t *testing.T) {
	data := append(buildBox("ftyp", []byte("isom")), buildBox("mdat", []byte{0xaa, 0xbb, 0xcc})...)
	fs, err := NewFileStream(bytes.NewReader(data), 16)
	require.NoError(t, err)
	sc := NewScanner(fs)

	require.NoError(t, sc.SeekTo(int64(len(data)-3)))
	got, err := sc.ReadAt(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc}, got)
}

package mem

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileReadWrite(t *testing.T) {
	var f File

	_, err := f.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("world"), 10)
	require.NoError(t, err)

	buf := make([]byte, 5)
	n, err := f.ReadAt(buf, 10)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))

	gap := make([]byte, 5)
	_, err = f.ReadAt(gap, 5)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 5), gap)
}

func TestFileCrossPage(t *testing.T) {
	var f File

	data := bytes.Repeat([]byte("0123456789"), 1000)
	_, err := f.WriteAt(data, pageSize-3)
	require.NoError(t, err)
	require.Equal(t, int64(pageSize-3+len(data)), f.Size())

	got := make([]byte, len(data))
	n, err := f.ReadAt(got, pageSize-3)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, got)
}

func TestFileReadEOF(t *testing.T) {
	var f File
	_, err := f.WriteAt([]byte("abc"), 0)
	require.NoError(t, err)

	buf := make([]byte, 8)
	n, err := f.ReadAt(buf, 1)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 2, n)
	require.Equal(t, "bc", string(buf[:n]))

	_, err = f.ReadAt(buf, 3)
	require.ErrorIs(t, err, io.EOF)
}

func TestFileTruncate(t *testing.T) {
	var f File
	_, err := f.WriteAt(bytes.Repeat([]byte{0xff}, pageSize+100), 0)
	require.NoError(t, err)

	require.NoError(t, f.Truncate(10))
	require.Equal(t, int64(10), f.Size())

	require.NoError(t, f.Truncate(pageSize+100))
	buf := make([]byte, pageSize+90)
	_, err = f.ReadAt(buf, 10)
	require.NoError(t, err)
	require.Equal(t, make([]byte, pageSize+90), buf)
}

func TestFileCloneAndReset(t *testing.T) {
	var f File
	_, err := f.WriteAt([]byte("keep"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	clone := f.Clone()
	f.Reset()
	require.Equal(t, int64(0), f.Size())

	buf := make([]byte, 4)
	_, err = clone.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "keep", string(buf))
}

package oplog

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dacapoday/vstore/mem"
)

const (
	tagMark uint16 = iota
	tagWide
	tagNone
)

var testKinds = Kinds{tagMark: 8, tagWide: 40, tagNone: 0}

func TestLogPushPop(t *testing.T) {
	requireT := require.New(t)

	var file mem.File
	log, err := Open(&file, 0x4f4c, testKinds)
	requireT.NoError(err)

	_, err = log.Type()
	requireT.ErrorIs(err, ErrEmpty)

	requireT.NoError(log.Push(tagMark, bytes.Repeat([]byte{1}, 8)))
	requireT.NoError(log.Push(tagWide, bytes.Repeat([]byte{2}, 40)))
	requireT.NoError(log.Push(tagNone, nil))
	requireT.Equal(uint64(3), log.Len())

	requireT.Error(log.Push(tagMark, []byte{1}))
	requireT.ErrorIs(log.Push(99, nil), ErrCorrupted)

	tag, payload, err := log.Top()
	requireT.NoError(err)
	requireT.Equal(tagNone, tag)
	requireT.Empty(payload)
	requireT.NoError(log.Pop())

	tag, payload, err = log.Top()
	requireT.NoError(err)
	requireT.Equal(tagWide, tag)
	requireT.Equal(bytes.Repeat([]byte{2}, 40), payload)
	requireT.NoError(log.Pop())

	tag, err = log.Type()
	requireT.NoError(err)
	requireT.Equal(tagMark, tag)
	requireT.NoError(log.Pop())
	requireT.ErrorIs(log.Pop(), ErrEmpty)
}

func TestLogReopen(t *testing.T) {
	requireT := require.New(t)

	var file mem.File
	log, err := Open(&file, 0x4f4c, testKinds)
	requireT.NoError(err)
	for i := range byte(5) {
		requireT.NoError(log.Push(tagMark, bytes.Repeat([]byte{i}, 8)))
	}
	requireT.NoError(log.Close())

	log, err = Open(&file, 0x4f4c, testKinds)
	requireT.NoError(err)
	requireT.Equal(uint64(5), log.Len())
	for i := byte(5); i > 0; i-- {
		_, payload, err := log.Top()
		requireT.NoError(err)
		requireT.Equal(bytes.Repeat([]byte{i - 1}, 8), payload)
		requireT.NoError(log.Pop())
	}

	_, err = Open(&file, 0x1111, testKinds)
	requireT.ErrorIs(err, ErrUnknownMagic)
}

func TestLogUnflushedEntriesAreDropped(t *testing.T) {
	requireT := require.New(t)

	var file mem.File
	log, err := Open(&file, 0x4f4c, testKinds)
	requireT.NoError(err)
	requireT.NoError(log.Push(tagMark, make([]byte, 8)))
	requireT.NoError(log.Flush())
	requireT.NoError(log.Push(tagMark, make([]byte, 8)))

	reopened, err := Open(file.Clone(), 0x4f4c, testKinds)
	requireT.NoError(err)
	requireT.Equal(uint64(1), reopened.Len())
}

func TestLogCorruptTrailer(t *testing.T) {
	var file mem.File
	log, err := Open(&file, 0x4f4c, testKinds)
	require.NoError(t, err)
	require.NoError(t, log.Push(tagMark, make([]byte, 8)))
	require.NoError(t, log.Flush())

	_, err = file.WriteAt([]byte{0, 0}, file.Size()-2)
	require.NoError(t, err)
	_, _, err = log.Top()
	require.ErrorIs(t, err, ErrCorrupted)
}

// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dacapoday/vstore"
	"github.com/dacapoday/vstore/mem"
	"github.com/dacapoday/vstore/version"
)

type testFiles struct {
	data, log, marks mem.File
}

func (f *testFiles) files() version.Files {
	return version.Files{Data: &f.data, Log: &f.log, Marks: &f.marks}
}

func openTestStore(t *testing.T, f *testFiles, capacity int, lazy bool) *Store {
	t.Helper()
	store, err := Open(f.files(), capacity, vstore.SHA256, version.Options{Lazy: lazy})
	require.NoError(t, err)
	return store
}

func pattern(n int, seed byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = seed + byte(i*7)
	}
	return data
}

func create(t *testing.T, store *Store, data []byte) uint64 {
	t.Helper()
	id, err := store.Create(uint64(len(data)))
	require.NoError(t, err)
	b, err := store.Open(id)
	require.NoError(t, err)
	n, err := b.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	return id
}

func content(t *testing.T, store *Store, id uint64) []byte {
	t.Helper()
	b, err := store.Open(id)
	require.NoError(t, err)
	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

func TestBlockCodec(t *testing.T) {
	requireT := require.New(t)
	codec := BlockCodec{Capacity: 8}
	requireT.Equal(32, codec.Size())

	buf := bytes.Repeat([]byte{0xff}, codec.Size())
	codec.Encode(buf, Block{Next: 3, Previous: None, Size: 5, Data: []byte("abc")})
	block := codec.Decode(buf)
	requireT.Equal(uint64(3), block.Next)
	requireT.Equal(None, block.Previous)
	requireT.Equal(uint64(5), block.Size)
	requireT.Equal([]byte("abc\x00\x00\x00\x00\x00"), block.Data)
}

func TestCreateReadWrite(t *testing.T) {
	for _, lazy := range []bool{false, true} {
		requireT := require.New(t)
		var f testFiles
		store := openTestStore(t, &f, 16, lazy)
		requireT.Equal(uint64(1), store.Len())

		empty := create(t, store, nil)
		small := create(t, store, []byte("hello"))
		large := create(t, store, pattern(100, 1))
		requireT.Equal(uint64(1+1+1+7), store.Len())

		requireT.Empty(content(t, store, empty))
		requireT.Equal([]byte("hello"), content(t, store, small))
		requireT.Equal(pattern(100, 1), content(t, store, large))

		b, err := store.Open(large)
		requireT.NoError(err)
		requireT.Equal(uint64(100), b.Size())
		buf := make([]byte, 20)
		n, err := b.ReadAt(buf, 10)
		requireT.NoError(err)
		requireT.Equal(20, n)
		requireT.Equal(pattern(100, 1)[10:30], buf)

		n, err = b.ReadAt(buf, 90)
		requireT.ErrorIs(err, io.EOF)
		requireT.Equal(10, n)

		pos, err := b.Seek(-4, io.SeekEnd)
		requireT.NoError(err)
		requireT.Equal(int64(96), pos)
		n, err = b.Write([]byte("world!"))
		requireT.NoError(err)
		requireT.Equal(6, n)
		requireT.Equal(uint64(102), b.Size())

		_, err = b.Seek(0, io.SeekStart)
		requireT.NoError(err)
		all, err := io.ReadAll(b)
		requireT.NoError(err)
		want := append(pattern(100, 1)[:96], "world!"...)
		requireT.Equal(want, all)

		hash, err := b.Hash()
		requireT.NoError(err)
		requireT.Equal(vstore.SHA256.Sum(want), hash)

		requireT.NoError(store.VerifyConsistency([]uint64{empty, small, large}))
		requireT.NoError(store.Close())
	}
}

func TestOpenInvalid(t *testing.T) {
	requireT := require.New(t)
	var f testFiles
	store := openTestStore(t, &f, 16, false)
	id := create(t, store, pattern(40, 2))

	_, err := store.Open(0)
	requireT.ErrorIs(err, ErrOutOfRange)
	_, err = store.Open(100)
	requireT.ErrorIs(err, ErrOutOfRange)
	_, err = store.Open(id + 1)
	requireT.ErrorIs(err, ErrCorrupted)
}

func TestResize(t *testing.T) {
	requireT := require.New(t)
	var f testFiles
	store := openTestStore(t, &f, 16, false)

	id := create(t, store, pattern(50, 3))
	other := create(t, store, pattern(20, 4))
	b, err := store.Open(id)
	requireT.NoError(err)

	requireT.NoError(b.Resize(18))
	requireT.Equal(pattern(50, 3)[:18], content(t, store, id))
	free, err := store.FreeCount()
	requireT.NoError(err)
	requireT.Equal(uint64(2), free)
	requireT.NoError(store.VerifyConsistency([]uint64{id, other}))

	// Growing again exposes zeros, not the truncated bytes.
	requireT.NoError(b.Resize(40))
	want := append(pattern(50, 3)[:18], make([]byte, 22)...)
	requireT.Equal(want, content(t, store, id))
	requireT.NoError(store.VerifyConsistency([]uint64{id, other}))

	requireT.NoError(b.Resize(0))
	requireT.Empty(content(t, store, id))
	requireT.NoError(b.Replace([]byte("replaced content spanning blocks")))
	requireT.Equal([]byte("replaced content spanning blocks"), content(t, store, id))
	requireT.Equal(pattern(20, 4), content(t, store, other))
	requireT.NoError(store.VerifyConsistency([]uint64{id, other}))
}

func TestFreeBlockReuse(t *testing.T) {
	for _, lazy := range []bool{false, true} {
		requireT := require.New(t)
		var f testFiles
		store := openTestStore(t, &f, 16, lazy)

		const n, size = 10, 70
		keep := create(t, store, pattern(5, 9))
		ids := make([]uint64, n)
		for i := range ids {
			ids[i] = create(t, store, pattern(size, byte(i)))
		}
		length := store.Len()

		for i := n - 1; i >= 0; i -= 2 {
			requireT.NoError(store.Erase(ids[i]))
		}
		for i := n - 2; i >= 0; i -= 2 {
			requireT.NoError(store.Erase(ids[i]))
		}
		free, err := store.FreeCount()
		requireT.NoError(err)
		requireT.Equal(uint64(n*5), free)
		requireT.NoError(store.VerifyConsistency([]uint64{keep}))

		for i := range ids {
			ids[i] = create(t, store, pattern(size, byte(i+50)))
		}
		requireT.Equal(length, store.Len())
		free, err = store.FreeCount()
		requireT.NoError(err)
		requireT.Zero(free)
		for i, id := range ids {
			requireT.Equal(pattern(size, byte(i+50)), content(t, store, id))
		}
		requireT.NoError(store.VerifyConsistency(append([]uint64{keep}, ids...)))
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	requireT := require.New(t)
	var f testFiles
	store := openTestStore(t, &f, 16, false)

	a := create(t, store, pattern(40, 1))
	b := create(t, store, pattern(40, 2))
	c := create(t, store, pattern(40, 3))
	requireT.NoError(store.Erase(b))
	requireT.NoError(store.VerifyConsistency([]uint64{a, c}))

	// A live blob missing from the id set leaves its blocks unaccounted for.
	requireT.ErrorIs(store.VerifyConsistency([]uint64{a}), ErrCorrupted)

	// Dropping a block from the free list.
	head, err := store.stack.Get(headIndex)
	requireT.NoError(err)
	corrupted := head
	corrupted.Size--
	requireT.NoError(store.stack.Set(headIndex, corrupted))
	requireT.ErrorIs(store.VerifyConsistency([]uint64{a, c}), ErrCorrupted)
	requireT.NoError(store.stack.Set(headIndex, head))

	// Pointing a chain into another blob.
	block, err := store.stack.Get(a)
	requireT.NoError(err)
	block.Next = c
	requireT.NoError(store.stack.Set(a, block))
	requireT.ErrorIs(store.VerifyConsistency([]uint64{a, c}), ErrCorrupted)
}

func TestCommitRevert(t *testing.T) {
	for _, lazy := range []bool{false, true} {
		requireT := require.New(t)
		var f testFiles
		store := openTestStore(t, &f, 16, lazy)

		a := create(t, store, []byte("first version"))
		h1 := vstore.SHA256.Sum([]byte("h1"))
		_, err := store.Commit(h1)
		requireT.NoError(err)
		length := store.Len()

		b, err := store.Open(a)
		requireT.NoError(err)
		requireT.NoError(b.Replace(pattern(90, 5)))
		extra := create(t, store, pattern(33, 6))
		requireT.NoError(store.Erase(extra))

		requireT.NoError(store.RevertToHash(h1))
		requireT.Equal(length, store.Len())
		requireT.Equal([]byte("first version"), content(t, store, a))
		requireT.NoError(store.VerifyConsistency([]uint64{a}))

		exists, err := store.HashExists(h1)
		requireT.NoError(err)
		requireT.True(exists)
		requireT.NoError(store.Close())

		store = openTestStore(t, &f, 16, lazy)
		requireT.Equal([]byte("first version"), content(t, store, a))
		requireT.Equal(h1, store.Current().Hash)
		requireT.NoError(store.Close())
	}
}

func TestCapacityMismatch(t *testing.T) {
	requireT := require.New(t)
	var f testFiles
	store := openTestStore(t, &f, 16, false)
	requireT.NoError(store.Close())

	_, err := Open(f.files(), 8, nil, version.Options{})
	requireT.Error(err)

	store, err = Open(f.files(), 16, nil, version.Options{})
	requireT.NoError(err)
	requireT.Equal(16, store.Capacity())
	requireT.NoError(store.Close())
}

func TestDeferredBlockData(t *testing.T) {
	for _, lazy := range []bool{false, true} {
		requireT := require.New(t)
		var f testFiles
		store := openTestStore(t, &f, 16, lazy)

		id, err := store.Create(5)
		requireT.NoError(err)
		b, err := store.Open(id)
		requireT.NoError(err)
		n, err := b.WriteAt([]byte("hello"), 0)
		requireT.NoError(err)
		requireT.Equal(5, n)
		requireT.Equal([]byte("hello"), content(t, store, id))

		block, err := store.block(id)
		requireT.NoError(err)
		requireT.Len(block.Data, 16)
		block.Data[0] = 'j'
		requireT.Equal([]byte("hello"), content(t, store, id))

		grown := create(t, store, nil)
		g, err := store.Open(grown)
		requireT.NoError(err)
		_, err = g.WriteAt(pattern(40, 3), 0)
		requireT.NoError(err)
		requireT.Equal(pattern(40, 3), content(t, store, grown))
		requireT.NoError(store.VerifyConsistency([]uint64{id, grown}))
		requireT.NoError(store.Close())

		store = openTestStore(t, &f, 16, false)
		requireT.Equal([]byte("hello"), content(t, store, id))
		requireT.Equal(pattern(40, 3), content(t, store, grown))
		requireT.NoError(store.Close())
	}
}

// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package docstore

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMmap(t *testing.T) {
	for _, lazy := range []bool{false, true} {
		t.Run("lazy="+strconv.FormatBool(lazy), func(t *testing.T) {
			requireT := require.New(t)
			dir := t.TempDir()
			store := openTestStore(t, dir, WithMmap(true), WithLazyIndex(lazy))

			for i := range 300 {
				set(t, store, "m"+strconv.Itoa(i), strconv.Itoa(i*i))
			}
			h, err := store.Commit()
			requireT.NoError(err)
			set(t, store, "m1", "changed")
			requireT.NoError(store.RevertToHash(h))
			requireT.Equal([]byte("1"), get(t, store, "m1").Data)
			requireT.NoError(store.VerifyConsistency())
			requireT.NoError(store.Close())

			// The mapped and positioned-I/O stacks share one file format.
			store, err = Open(dir)
			requireT.NoError(err)
			defer store.Close()
			requireT.Equal([]byte("89401"), get(t, store, "m299").Data)
			current, err := store.CurrentHash()
			requireT.NoError(err)
			requireT.Equal(h, current)
		})
	}
}

func TestMmapFresh(t *testing.T) {
	requireT := require.New(t)
	dir := t.TempDir()
	store := openTestStore(t, dir, WithMmap(true), WithBlockCapacity(8))
	defer store.Close()

	requireT.True(get(t, store, "a").Failed)
	set(t, store, "a", "a document spanning several blocks")
	set(t, store, "b", "short")
	requireT.Equal([]byte("a document spanning several blocks"), get(t, store, "a").Data)
	h, err := store.Commit()
	requireT.NoError(err)

	erased, err := store.Erase(key(store, "a"))
	requireT.NoError(err)
	requireT.True(erased)
	set(t, store, "b", "grown past one block")
	requireT.NoError(store.VerifyConsistency())

	requireT.NoError(store.RevertToHash(h))
	requireT.Equal([]byte("a document spanning several blocks"), get(t, store, "a").Data)
	requireT.Equal([]byte("short"), get(t, store, "b").Data)
	requireT.NoError(store.VerifyConsistency())
}

func TestMmapModel(t *testing.T) {
	for _, lazy := range []bool{false, true} {
		t.Run("lazy="+strconv.FormatBool(lazy), func(t *testing.T) {
			runModel(t, 400, WithMmap(true), WithLazyIndex(lazy), WithBlockCapacity(16))
		})
	}
}

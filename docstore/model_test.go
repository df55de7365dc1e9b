// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"maps"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dacapoday/vstore"
)

type snapshot struct {
	hash vstore.Digest
	docs map[string]string
}

// runModel drives a store with random writes, erases, commits, reverts and
// reopens, checking it against a map after every step.
func runModel(t *testing.T, steps int, opts ...Option) {
	requireT := require.New(t)
	dir := t.TempDir()
	store := openTestStore(t, dir, opts...)
	defer func() {
		if store != nil {
			store.Close()
		}
	}()

	rng := rand.New(rand.NewPCG(7, uint64(steps)))
	model := map[string]string{}
	var commits []snapshot

	name := func() string { return "doc" + strconv.Itoa(rng.IntN(40)) }
	value := func() string {
		b := make([]byte, 1+rng.IntN(50))
		for i := range b {
			b[i] = 'a' + byte(rng.IntN(26))
		}
		return string(b)
	}

	for step := range steps {
		switch op := rng.IntN(20); {
		case op < 9:
			k, v := name(), value()
			set(t, store, k, v)
			model[k] = v
		case op < 13:
			k := name()
			erased, err := store.Erase(key(store, k))
			requireT.NoError(err)
			_, had := model[k]
			requireT.Equal(had, erased, "step %d", step)
			delete(model, k)
		case op < 16:
			h, err := store.Commit()
			requireT.NoError(err)
			commits = append(commits, snapshot{h, maps.Clone(model)})
		case op < 18:
			if len(commits) == 0 {
				continue
			}
			j := rng.IntN(len(commits))
			target := commits[j]
			for range 2 {
				requireT.NoError(store.RevertToHash(target.hash), "step %d", step)
			}
			// Later commits are superseded by the revert.
			commits = commits[:j+1]
			model = maps.Clone(target.docs)
			current, err := store.CurrentHash()
			requireT.NoError(err)
			requireT.Equal(target.hash, current)
		default:
			requireT.NoError(store.Close())
			var err error
			store, err = Open(dir, opts...)
			requireT.NoError(err, "step %d", step)
		}

		size, err := store.Size()
		requireT.NoError(err)
		requireT.Equal(uint64(len(model)), size, "step %d", step)
		for k, v := range model {
			requireT.Equal([]byte(v), get(t, store, k).Data, "step %d: %s", step, k)
		}
		requireT.True(get(t, store, "absent").Failed)
		requireT.NoError(store.VerifyConsistency(), "step %d", step)
	}
}

func TestModel(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			runModel(t, 400, v.opts...)
		})
	}
}

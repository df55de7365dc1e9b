// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"fmt"
)

// VerifyConsistency checks that the chains of the live blobs ids and the
// free list together account for every block exactly once, and that the
// free list is ordered with a matching head. Violations wrap ErrCorrupted.
func (store *Store) VerifyConsistency(ids []uint64) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("blob.VerifyConsistency: %w", err)
		}
	}()

	n := store.stack.Len()
	seen := make([]uint8, n)
	mark := func(i uint64, owner string) error {
		if i >= n {
			return fmt.Errorf("%w: %s references block %d of %d", ErrCorrupted, owner, i, n)
		}
		if seen[i]++; seen[i] > 1 {
			return fmt.Errorf("%w: block %d reached again from %s", ErrCorrupted, i, owner)
		}
		return nil
	}
	if err = mark(headIndex, "free-list head"); err != nil {
		return
	}

	for _, id := range ids {
		var blocks []uint64
		if blocks, _, err = store.chain(id); err != nil {
			return
		}
		owner := fmt.Sprintf("blob %d", id)
		for _, i := range blocks {
			if err = mark(i, owner); err != nil {
				return
			}
		}
	}

	head, err := store.block(headIndex)
	if err != nil {
		return
	}
	var count uint64
	prev := uint64(headIndex)
	for i := head.Next; i != None; {
		if err = mark(i, "free list"); err != nil {
			return
		}
		if prev != headIndex && i <= prev {
			return fmt.Errorf("%w: free block %d follows %d", ErrCorrupted, i, prev)
		}
		var block Block
		if block, err = store.block(i); err != nil {
			return
		}
		if block.Previous != prev {
			return fmt.Errorf("%w: free block %d links back to %d, want %d", ErrCorrupted, i, block.Previous, prev)
		}
		count++
		prev, i = i, block.Next
	}
	if count != head.Size {
		return fmt.Errorf("%w: free list holds %d blocks, head counts %d", ErrCorrupted, count, head.Size)
	}
	if last := head.Previous; (count == 0 && last != None) || (count > 0 && last != prev) {
		return fmt.Errorf("%w: free list tail %d, head records %d", ErrCorrupted, prev, last)
	}

	for i, c := range seen {
		if c == 0 {
			return fmt.Errorf("%w: block %d is unaccounted for", ErrCorrupted, i)
		}
	}
	return
}

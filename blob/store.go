// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package blob stores variable-length byte sequences as chains of
// fixed-size blocks in a versioned record stack.
//
// Block 0 heads a free list kept in ascending index order. Allocation cuts
// blocks from the tail of the free list when it can and appends fresh
// blocks otherwise. A blob is addressed by the index of its first block.
package blob

import (
	"fmt"
	"slices"

	"github.com/dacapoday/vstore"
	"github.com/dacapoday/vstore/version"
)

var (
	ErrCorrupted  = vstore.ErrCorrupted
	ErrOutOfRange = vstore.ErrOutOfRange
)

// Magic of the block stack file.
const Magic uint16 = 0x6272

// Stack is the versioned block storage of a Store.
type Stack = version.Stack[Block, Meta]

// Store allocates blobs over a block stack.
//
// A Store is not safe for concurrent use.
type Store struct {
	stack    *Stack
	capacity int
	hasher   vstore.Hasher
}

// Open opens a blob store over stream-based stacks. capacity 0 selects
// DefaultCapacity.
func Open(files version.Files, capacity int, hasher vstore.Hasher, opt version.Options) (store *Store, err error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if opt.Magic == 0 {
		opt.Magic = Magic
	}
	stack, err := version.Open[Block, Meta](files, BlockCodec{Capacity: capacity}, MetaCodec{}, opt)
	if err != nil {
		return nil, fmt.Errorf("blob.Open: %w", err)
	}
	if store, err = New(stack, capacity, hasher); err != nil {
		stack.Close()
	}
	return
}

// New wraps an opened block stack whose codec holds capacity data bytes,
// initialising the free-list head of an empty stack.
func New(stack *Stack, capacity int, hasher vstore.Hasher) (*Store, error) {
	if hasher == nil {
		hasher = vstore.SHA256
	}
	store := &Store{stack: stack, capacity: capacity, hasher: hasher}
	if stack.Len() == 0 {
		if _, err := stack.Push(Block{Next: None, Previous: None}); err != nil {
			return nil, fmt.Errorf("blob.New: %w", err)
		}
		if err := stack.SetExtra(Meta{Capacity: uint64(capacity)}); err != nil {
			return nil, fmt.Errorf("blob.New: %w", err)
		}
	}
	if meta := stack.Extra(); meta.Capacity != uint64(capacity) {
		return nil, fmt.Errorf("blob.New: %w: block capacity %d, want %d", ErrCorrupted, meta.Capacity, capacity)
	}
	return store, nil
}

// Capacity returns the data bytes per block.
func (store *Store) Capacity() int {
	return store.capacity
}

// Len returns the number of blocks, the free-list head included.
func (store *Store) Len() uint64 {
	return store.stack.Len()
}

// FreeCount returns the number of blocks on the free list.
func (store *Store) FreeCount() (uint64, error) {
	head, err := store.block(headIndex)
	return head.Size, err
}

func (store *Store) block(i uint64) (block Block, err error) {
	if i >= store.stack.Len() {
		err = fmt.Errorf("blob: %w: block %d of %d", ErrOutOfRange, i, store.stack.Len())
		return
	}
	return store.stack.Get(i)
}

// place writes block i, appending when i is the next fresh index.
func (store *Store) place(i uint64, block Block) (err error) {
	if i == store.stack.Len() {
		_, err = store.stack.Push(block)
		return
	}
	return store.stack.Set(i, block)
}

// blocksFor returns the chain length of a blob of size bytes.
func (store *Store) blocksFor(size uint64) int {
	return max(1, int((size+uint64(store.capacity)-1)/uint64(store.capacity)))
}

// claim reserves count blocks. It cuts them from the tail of the free list
// when every one of them lies above minIndex, otherwise it returns fresh
// indices past the end of the stack. Claimed blocks must be placed in order.
func (store *Store) claim(minIndex uint64, count int) (indices []uint64, err error) {
	head, err := store.block(headIndex)
	if err != nil {
		return
	}
	if head.Size >= uint64(count) {
		indices = make([]uint64, count)
		i := head.Previous
		var block Block
		for k := count - 1; k >= 0; k-- {
			if i == None || i == headIndex {
				return nil, fmt.Errorf("blob: %w: free list shorter than %d", ErrCorrupted, head.Size)
			}
			if block, err = store.block(i); err != nil {
				return
			}
			indices[k] = i
			i = block.Previous
		}
		if indices[0] > minIndex {
			return indices, store.cut(head, i, count)
		}
	}

	first := store.stack.Len()
	indices = make([]uint64, count)
	for k := range indices {
		indices[k] = first + uint64(k)
	}
	return
}

// cut detaches the last count free blocks, leaving before as the new tail.
func (store *Store) cut(head Block, before uint64, count int) (err error) {
	head.Size -= uint64(count)
	if before == headIndex {
		head.Next, head.Previous = None, None
	} else {
		var block Block
		if block, err = store.block(before); err != nil {
			return
		}
		block.Next = None
		if err = store.stack.Set(before, block); err != nil {
			return
		}
		head.Previous = before
	}
	return store.stack.Set(headIndex, head)
}

// free returns blocks to the free list, keeping it in index order.
func (store *Store) free(blocks []uint64) (err error) {
	blocks = slices.Clone(blocks)
	slices.Sort(blocks)

	head, err := store.block(headIndex)
	if err != nil {
		return
	}
	cur, next := uint64(headIndex), head.Next
	for _, i := range blocks {
		if i == headIndex || i >= store.stack.Len() {
			return fmt.Errorf("blob: %w: free block %d of %d", ErrOutOfRange, i, store.stack.Len())
		}
		var block Block
		for next != None && next < i {
			if block, err = store.block(next); err != nil {
				return
			}
			cur, next = next, block.Next
		}
		if next == i || (cur == i && i != headIndex) {
			return fmt.Errorf("blob: %w: block %d freed twice", ErrCorrupted, i)
		}

		if err = store.stack.Set(i, Block{Next: next, Previous: cur}); err != nil {
			return
		}
		if cur == headIndex {
			head.Next = i
		} else if err = store.relink(cur, func(b *Block) { b.Next = i }); err != nil {
			return
		}
		if next == None {
			head.Previous = i
		} else if err = store.relink(next, func(b *Block) { b.Previous = i }); err != nil {
			return
		}
		head.Size++
		cur = i
	}
	return store.stack.Set(headIndex, head)
}

func (store *Store) relink(i uint64, update func(*Block)) error {
	block, err := store.block(i)
	if err != nil {
		return err
	}
	update(&block)
	return store.stack.Set(i, block)
}

// Create allocates a zero-filled blob of size bytes and returns its id.
func (store *Store) Create(size uint64) (id uint64, err error) {
	indices, err := store.claim(headIndex, store.blocksFor(size))
	if err != nil {
		return 0, fmt.Errorf("blob.Create: %w", err)
	}
	if err = store.link(indices, None, size); err != nil {
		return 0, fmt.Errorf("blob.Create: %w", err)
	}
	return indices[0], nil
}

// link places zeroed blocks as a chain following previous. size goes to the
// first block.
func (store *Store) link(indices []uint64, previous, size uint64) error {
	for k, i := range indices {
		block := Block{Next: None, Previous: previous}
		if k == 0 {
			block.Size = size
		}
		if k+1 < len(indices) {
			block.Next = indices[k+1]
		}
		if err := store.place(i, block); err != nil {
			return err
		}
		previous = i
	}
	return nil
}

// chain returns the block indices of blob id and its size.
func (store *Store) chain(id uint64) (blocks []uint64, size uint64, err error) {
	if id == headIndex {
		err = fmt.Errorf("%w: block 0 is not a blob", ErrOutOfRange)
		return
	}
	first, err := store.block(id)
	if err != nil {
		return
	}
	if first.Previous != None {
		err = fmt.Errorf("%w: block %d does not start a blob", ErrCorrupted, id)
		return
	}
	size = first.Size
	want := store.blocksFor(size)
	blocks = make([]uint64, 0, want)
	blocks = append(blocks, id)
	for i, block := id, first; block.Next != None; {
		if len(blocks) == want {
			err = fmt.Errorf("%w: blob %d longer than %d blocks", ErrCorrupted, id, want)
			return
		}
		next := block.Next
		if block, err = store.block(next); err != nil {
			return
		}
		if block.Previous != i {
			err = fmt.Errorf("%w: block %d links back to %d, want %d", ErrCorrupted, next, block.Previous, i)
			return
		}
		blocks = append(blocks, next)
		i = next
	}
	if len(blocks) != want {
		err = fmt.Errorf("%w: blob %d has %d blocks, want %d", ErrCorrupted, id, len(blocks), want)
	}
	return
}

// Open returns a handle positioned at the start of blob id.
func (store *Store) Open(id uint64) (*Blob, error) {
	blocks, size, err := store.chain(id)
	if err != nil {
		return nil, fmt.Errorf("blob.Open: %w", err)
	}
	return &Blob{store: store, id: id, size: size, blocks: blocks}, nil
}

// Erase frees every block of blob id.
func (store *Store) Erase(id uint64) error {
	blocks, _, err := store.chain(id)
	if err == nil {
		err = store.free(blocks)
	}
	if err != nil {
		return fmt.Errorf("blob.Erase: %w", err)
	}
	return nil
}

// Commit records the current state under hash.
func (store *Store) Commit(hash vstore.Digest) (version.Bookmark, error) {
	return store.stack.Commit(hash)
}

func (store *Store) HashExists(hash vstore.Digest) (bool, error) {
	return store.stack.HashExists(hash)
}

// RevertToHash restores the state committed under hash.
func (store *Store) RevertToHash(hash vstore.Digest) error {
	return store.stack.RevertToHash(hash)
}

// Revert restores the state of commit number seq.
func (store *Store) Revert(seq uint64) error {
	return store.stack.Revert(seq)
}

func (store *Store) Current() version.Bookmark {
	return store.stack.Current()
}

func (store *Store) Flush() error {
	return store.stack.Flush()
}

func (store *Store) Close() error {
	return store.stack.Close()
}

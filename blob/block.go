// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"github.com/dacapoday/vstore/internal/fileio"
)

// None marks an absent next or previous block.
const None = fileio.NoIndex

// DefaultCapacity is the number of data bytes per block.
const DefaultCapacity = 256

// headIndex is the block holding the free-list head.
const headIndex = 0

// Block is one fixed-size record of a chain.
//
// On the free-list head (block 0) Next is the first free block, Previous
// the last free block and Size the number of free blocks. On the first
// block of a blob Previous is None and Size is the blob length. Size is
// zero everywhere else.
type Block struct {
	Next     uint64
	Previous uint64
	Size     uint64
	Data     []byte
}

// blockHeaderSize covers next, previous and size, each u64 LE.
const blockHeaderSize = 24

// BlockCodec encodes blocks of Capacity data bytes:
//
//	[0:8]    next
//	[8:16]   previous
//	[16:24]  size | free count
//	[24:]    data
type BlockCodec struct {
	Capacity int
}

func (c BlockCodec) Size() int {
	return blockHeaderSize + c.Capacity
}

func (c BlockCodec) Encode(dst []byte, block Block) {
	fileio.PutUint64(dst, block.Next)
	fileio.PutUint64(dst[8:], block.Previous)
	fileio.PutUint64(dst[16:], block.Size)
	n := copy(dst[blockHeaderSize:blockHeaderSize+c.Capacity], block.Data)
	clear(dst[blockHeaderSize+n : blockHeaderSize+c.Capacity])
}

func (c BlockCodec) Decode(src []byte) (block Block) {
	block.Next = fileio.Uint64(src)
	block.Previous = fileio.Uint64(src[8:])
	block.Size = fileio.Uint64(src[16:])
	block.Data = make([]byte, c.Capacity)
	copy(block.Data, src[blockHeaderSize:])
	return
}

// Meta is the extra header of the block stack.
type Meta struct {
	Capacity uint64
}

type MetaCodec struct{}

func (MetaCodec) Size() int                    { return 8 }
func (MetaCodec) Encode(dst []byte, meta Meta) { fileio.PutUint64(dst, meta.Capacity) }
func (MetaCodec) Decode(src []byte) Meta       { return Meta{Capacity: fileio.Uint64(src)} }

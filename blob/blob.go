// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"errors"
	"fmt"
	"io"

	"github.com/dacapoday/vstore"
)

var errNegativeOffset = errors.New("blob: negative offset")

// Blob is a seekable handle on one blob. Writes past the end grow it.
// A handle is invalidated by erasing its blob or by a revert.
type Blob struct {
	store  *Store
	id     uint64
	size   uint64
	blocks []uint64
	offset int64
}

var (
	_ io.ReadWriteSeeker = (*Blob)(nil)
	_ io.ReaderAt        = (*Blob)(nil)
	_ io.WriterAt        = (*Blob)(nil)
)

// ID returns the index of the blob's first block.
func (b *Blob) ID() uint64 {
	return b.id
}

func (b *Blob) Size() uint64 {
	return b.size
}

// span calls fn for each block piece covering [off, end).
func (b *Blob) span(off, end uint64, fn func(i uint64, lo, hi int, n int) error) error {
	capacity := uint64(b.store.capacity)
	n := 0
	for pos := off; pos < end; {
		k := pos / capacity
		lo := pos % capacity
		hi := min(capacity, lo+end-pos)
		if err := fn(b.blocks[k], int(lo), int(hi), n); err != nil {
			return err
		}
		n += int(hi - lo)
		pos += hi - lo
	}
	return nil
}

func (b *Blob) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, errNegativeOffset
	}
	if len(p) == 0 {
		return
	}
	if uint64(off) >= b.size {
		return 0, io.EOF
	}
	end := min(uint64(off)+uint64(len(p)), b.size)
	err = b.span(uint64(off), end, func(i uint64, lo, hi, at int) error {
		block, err := b.store.block(i)
		if err != nil {
			return err
		}
		n += copy(p[at:], block.Data[lo:hi])
		return nil
	})
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return
}

func (b *Blob) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, errNegativeOffset
	}
	if len(p) == 0 {
		return
	}
	end := uint64(off) + uint64(len(p))
	if end > b.size {
		if err = b.Resize(end); err != nil {
			return
		}
	}
	err = b.span(uint64(off), end, func(i uint64, lo, hi, at int) error {
		block, err := b.store.block(i)
		if err != nil {
			return err
		}
		copy(block.Data[lo:hi], p[at:])
		if err = b.store.stack.Set(i, block); err != nil {
			return err
		}
		n += hi - lo
		return nil
	})
	return
}

func (b *Blob) Read(p []byte) (n int, err error) {
	n, err = b.ReadAt(p, b.offset)
	b.offset += int64(n)
	return
}

func (b *Blob) Write(p []byte) (n int, err error) {
	n, err = b.WriteAt(p, b.offset)
	b.offset += int64(n)
	return
}

func (b *Blob) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += b.offset
	case io.SeekEnd:
		offset += int64(b.size)
	default:
		return 0, fmt.Errorf("blob.Seek: invalid whence %d", whence)
	}
	if offset < 0 {
		return 0, errNegativeOffset
	}
	b.offset = offset
	return offset, nil
}

// Resize grows the blob with zero bytes or truncates it, extending or
// cutting its chain. The read/write offset is kept.
func (b *Blob) Resize(size uint64) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("blob.Resize: %w", err)
		}
	}()

	store := b.store
	want, have := store.blocksFor(size), len(b.blocks)
	switch {
	case want > have:
		last := b.blocks[have-1]
		var indices []uint64
		if indices, err = store.claim(last, want-have); err != nil {
			return
		}
		if err = store.link(indices, last, 0); err != nil {
			return
		}
		if err = store.relink(last, func(block *Block) { block.Next = indices[0] }); err != nil {
			return
		}

	case want < have:
		if err = store.relink(b.blocks[want-1], func(block *Block) { block.Next = None }); err != nil {
			return
		}
		if err = store.free(b.blocks[want:]); err != nil {
			return
		}
	}

	if size < b.size {
		// Bytes past the new end must read as zero if the blob grows again.
		if tail := int(size - uint64(want-1)*uint64(store.capacity)); tail < store.capacity {
			if err = store.relink(b.blocks[want-1], func(block *Block) { clear(block.Data[tail:]) }); err != nil {
				return
			}
		}
	}
	if err = store.relink(b.id, func(block *Block) { block.Size = size }); err != nil {
		return
	}

	b.blocks, b.size, err = store.chain(b.id)
	return
}

// Bytes returns the whole content.
func (b *Blob) Bytes() ([]byte, error) {
	data := make([]byte, b.size)
	if b.size == 0 {
		return data, nil
	}
	if _, err := b.ReadAt(data, 0); err != nil {
		return nil, fmt.Errorf("blob.Bytes: %w", err)
	}
	return data, nil
}

// Replace sets the content to data.
func (b *Blob) Replace(data []byte) (err error) {
	if err = b.Resize(uint64(len(data))); err != nil {
		return
	}
	_, err = b.WriteAt(data, 0)
	return
}

// Hash returns the hash of the content.
func (b *Blob) Hash() (hash vstore.Digest, err error) {
	data, err := b.Bytes()
	if err != nil {
		return
	}
	return b.store.hasher.Sum(data), nil
}

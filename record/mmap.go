// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package record

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// minMapSize is the smallest mapping created for a fresh file.
const minMapSize = 1 << 16

// Mmap is the memory-mapped record stack. The whole file is mapped shared;
// an access past the mapped window grows the file and remaps it.
type Mmap[T, D any] struct {
	file   *os.File
	data   []byte
	codec  Codec[T]
	extraC Codec[D]

	magic uint16
	count uint64
	extra D
}

var _ Store[uint64, struct{}] = (*Mmap[uint64, struct{}])(nil)

// OpenMmap maps file, initialising an empty stack if the file has no content.
func OpenMmap[T, D any](file *os.File, codec Codec[T], extra Codec[D], magic uint16) (stack *Mmap[T, D], err error) {
	stack = &Mmap[T, D]{
		file:   file,
		codec:  codec,
		extraC: extra,
		magic:  magic,
	}
	if err = stack.load(); err != nil {
		if stack.data != nil {
			unix.Munmap(stack.data)
		}
		stack = nil
		err = fmt.Errorf("record.OpenMmap: %w", err)
	}
	return
}

func (stack *Mmap[T, D]) load() (err error) {
	info, err := stack.file.Stat()
	if err != nil {
		return
	}
	size := info.Size()
	if size == 0 {
		if err = stack.remap(minMapSize); err != nil {
			return
		}
		stack.extra = stack.extraC.Decode(stack.data[baseHeaderSize:headerSize(stack.extraC)])
		encodeHeader(stack.data, stack.magic, 0, stack.extraC, stack.extra)
		return
	}
	if size < headerSize(stack.extraC) {
		return ErrFileTruncated
	}
	if err = stack.remap(size); err != nil {
		return
	}
	if stack.count, stack.extra, err = decodeHeader(stack.data, stack.magic, stack.extraC); err != nil {
		return
	}
	if stack.offset(stack.count) > size {
		err = fmt.Errorf("%w: %d records expected", ErrFileTruncated, stack.count)
	}
	return
}

// remap replaces the mapping with one covering size bytes, growing the file first.
func (stack *Mmap[T, D]) remap(size int64) (err error) {
	if stack.data != nil {
		if err = unix.Munmap(stack.data); err != nil {
			return
		}
		stack.data = nil
	}
	info, err := stack.file.Stat()
	if err != nil {
		return
	}
	if info.Size() < size {
		if err = stack.file.Truncate(size); err != nil {
			return
		}
	}
	stack.data, err = unix.Mmap(int(stack.file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	return
}

func (stack *Mmap[T, D]) ensure(end int64) error {
	if end <= int64(len(stack.data)) {
		return nil
	}
	size := max(end, 2*int64(len(stack.data)))
	page := int64(unix.Getpagesize())
	size = (size + page - 1) / page * page
	return stack.remap(size)
}

func (stack *Mmap[T, D]) offset(i uint64) int64 {
	return headerSize(stack.extraC) + int64(i)*int64(stack.codec.Size())
}

func (stack *Mmap[T, D]) slot(i uint64) []byte {
	off := stack.offset(i)
	return stack.data[off : off+int64(stack.codec.Size())]
}

func (stack *Mmap[T, D]) check(i uint64) error {
	if stack.data == nil {
		return ErrClosed
	}
	if i >= stack.count {
		return fmt.Errorf("%w: index %d, len %d", ErrOutOfRange, i, stack.count)
	}
	return nil
}

func (stack *Mmap[T, D]) Len() uint64 {
	return stack.count
}

func (stack *Mmap[T, D]) DirectWrite() bool {
	return true
}

func (stack *Mmap[T, D]) Get(i uint64) (v T, err error) {
	if err = stack.check(i); err != nil {
		return
	}
	v = stack.codec.Decode(stack.slot(i))
	return
}

func (stack *Mmap[T, D]) Set(i uint64, v T) (err error) {
	if err = stack.check(i); err != nil {
		return
	}
	stack.codec.Encode(stack.slot(i), v)
	return
}

func (stack *Mmap[T, D]) Push(v T) (i uint64, err error) {
	if stack.data == nil {
		err = ErrClosed
		return
	}
	i = stack.count
	if err = stack.ensure(stack.offset(i + 1)); err != nil {
		return
	}
	stack.codec.Encode(stack.slot(i), v)
	stack.count++
	return
}

func (stack *Mmap[T, D]) Top() (v T, err error) {
	if stack.count == 0 {
		err = ErrEmpty
		return
	}
	return stack.Get(stack.count - 1)
}

func (stack *Mmap[T, D]) Pop() (v T, err error) {
	if v, err = stack.Top(); err != nil {
		return
	}
	stack.count--
	return
}

func (stack *Mmap[T, D]) Swap(i, j uint64) (err error) {
	if err = stack.check(i); err != nil {
		return
	}
	if err = stack.check(j); err != nil {
		return
	}
	a, b := stack.slot(i), stack.slot(j)
	tmp := make([]byte, len(a))
	copy(tmp, a)
	copy(a, b)
	copy(b, tmp)
	return
}

func (stack *Mmap[T, D]) GetBulk(i uint64, dst []T) (err error) {
	if len(dst) == 0 {
		return
	}
	if err = stack.check(i + uint64(len(dst)) - 1); err != nil {
		return
	}
	for k := range dst {
		dst[k] = stack.codec.Decode(stack.slot(i + uint64(k)))
	}
	return
}

func (stack *Mmap[T, D]) SetBulk(i uint64, src []T) (err error) {
	if len(src) == 0 {
		return
	}
	if err = stack.check(i + uint64(len(src)) - 1); err != nil {
		return
	}
	for k, v := range src {
		stack.codec.Encode(stack.slot(i+uint64(k)), v)
	}
	return
}

func (stack *Mmap[T, D]) Resize(n uint64) (err error) {
	if stack.data == nil {
		return ErrClosed
	}
	if n > stack.count {
		if err = stack.ensure(stack.offset(n)); err != nil {
			return
		}
		clear(stack.data[stack.offset(stack.count):stack.offset(n)])
	}
	stack.count = n
	return
}

func (stack *Mmap[T, D]) Extra() D {
	return stack.extra
}

func (stack *Mmap[T, D]) SetExtra(extra D) error {
	if stack.data == nil {
		return ErrClosed
	}
	stack.extra = extra
	return nil
}

func (stack *Mmap[T, D]) Flush() (err error) {
	if stack.data == nil {
		return ErrClosed
	}
	encodeHeader(stack.data, stack.magic, stack.count, stack.extraC, stack.extra)
	if err = unix.Msync(stack.data, unix.MS_SYNC); err != nil {
		err = fmt.Errorf("record.Flush: msync: %w", err)
	}
	return
}

func (stack *Mmap[T, D]) Close() (err error) {
	if stack.data == nil {
		return
	}
	err = stack.Flush()
	if uerr := unix.Munmap(stack.data); err == nil {
		err = uerr
	}
	stack.data = nil
	if cerr := stack.file.Close(); err == nil {
		err = cerr
	}
	return
}

// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"fmt"
	"io"

	"github.com/dacapoday/vstore"
	"github.com/dacapoday/vstore/internal/fileio"
)

// Stack is the stream-based record stack. Records are read and written
// with ReadAt/WriteAt as they are accessed; the header is written on Flush.
type Stack[T, D any] struct {
	file   vstore.File
	codec  Codec[T]
	extraC Codec[D]
	buffer []byte

	magic  uint16
	count  uint64
	extra  D
	opened bool
}

var _ Store[uint64, struct{}] = (*Stack[uint64, struct{}])(nil)

// Open loads the stack stored in file, initialising an empty one if the
// file has no content.
func Open[T, D any](file vstore.File, codec Codec[T], extra Codec[D], magic uint16) (stack *Stack[T, D], err error) {
	stack = &Stack[T, D]{
		file:   file,
		codec:  codec,
		extraC: extra,
		buffer: make([]byte, codec.Size()),
		magic:  magic,
	}
	if err = stack.load(); err != nil {
		stack = nil
		err = fmt.Errorf("record.Open: %w", err)
		return
	}
	stack.opened = true
	return
}

func (stack *Stack[T, D]) load() (err error) {
	head := make([]byte, headerSize(stack.extraC))
	n, err := stack.file.ReadAt(head, 0)
	if n == 0 && (err == nil || err == io.EOF) {
		stack.extra = stack.extraC.Decode(head[baseHeaderSize:])
		return stack.writeHeader()
	}
	if n != len(head) {
		if err == nil || err == io.EOF {
			err = ErrFileTruncated
		}
		return
	}
	err = nil

	var extra D
	stack.count, extra, err = decodeHeader(head, stack.magic, stack.extraC)
	if err != nil {
		return
	}
	stack.extra = extra

	if !fileio.Probe(stack.file, stack.offset(stack.count)) {
		err = fmt.Errorf("%w: %d records expected", ErrFileTruncated, stack.count)
	}
	return
}

func decodeHeader[D any](head []byte, magic uint16, codec Codec[D]) (count uint64, extra D, err error) {
	if got := fileio.Uint16(head); got != magic {
		err = fmt.Errorf("%w %#04x", ErrUnknownMagic, got)
		return
	}
	count = fileio.Uint64(head[2:])
	extra = codec.Decode(head[baseHeaderSize:])
	return
}

func encodeHeader[D any](head []byte, magic uint16, count uint64, codec Codec[D], extra D) {
	fileio.PutUint16(head, magic)
	fileio.PutUint64(head[2:], count)
	codec.Encode(head[baseHeaderSize:], extra)
}

func (stack *Stack[T, D]) writeHeader() error {
	head := make([]byte, headerSize(stack.extraC))
	encodeHeader(head, stack.magic, stack.count, stack.extraC, stack.extra)
	return fileio.WriteFull(stack.file, head, 0)
}

func (stack *Stack[T, D]) offset(i uint64) int64 {
	return headerSize(stack.extraC) + int64(i)*int64(stack.codec.Size())
}

func (stack *Stack[T, D]) check(i uint64) error {
	if !stack.opened {
		return ErrClosed
	}
	if i >= stack.count {
		return fmt.Errorf("%w: index %d, len %d", ErrOutOfRange, i, stack.count)
	}
	return nil
}

func (stack *Stack[T, D]) Len() uint64 {
	return stack.count
}

func (stack *Stack[T, D]) DirectWrite() bool {
	return true
}

func (stack *Stack[T, D]) Get(i uint64) (v T, err error) {
	if err = stack.check(i); err != nil {
		return
	}
	if err = fileio.ReadFull(stack.file, stack.buffer, stack.offset(i)); err != nil {
		return
	}
	v = stack.codec.Decode(stack.buffer)
	return
}

func (stack *Stack[T, D]) write(i uint64, v T) error {
	stack.codec.Encode(stack.buffer, v)
	return fileio.WriteFull(stack.file, stack.buffer, stack.offset(i))
}

func (stack *Stack[T, D]) Set(i uint64, v T) (err error) {
	if err = stack.check(i); err != nil {
		return
	}
	return stack.write(i, v)
}

func (stack *Stack[T, D]) Push(v T) (i uint64, err error) {
	if !stack.opened {
		err = ErrClosed
		return
	}
	i = stack.count
	if err = stack.write(i, v); err != nil {
		return
	}
	stack.count++
	return
}

func (stack *Stack[T, D]) Top() (v T, err error) {
	if stack.count == 0 {
		err = ErrEmpty
		return
	}
	return stack.Get(stack.count - 1)
}

func (stack *Stack[T, D]) Pop() (v T, err error) {
	if v, err = stack.Top(); err != nil {
		return
	}
	stack.count--
	return
}

func (stack *Stack[T, D]) Swap(i, j uint64) (err error) {
	if i == j {
		return stack.check(i)
	}
	a, err := stack.Get(i)
	if err != nil {
		return
	}
	b, err := stack.Get(j)
	if err != nil {
		return
	}
	if err = stack.write(i, b); err != nil {
		return
	}
	return stack.write(j, a)
}

func (stack *Stack[T, D]) GetBulk(i uint64, dst []T) (err error) {
	if len(dst) == 0 {
		return
	}
	if err = stack.check(i + uint64(len(dst)) - 1); err != nil {
		return
	}
	size := stack.codec.Size()
	buffer := make([]byte, size*len(dst))
	if err = fileio.ReadFull(stack.file, buffer, stack.offset(i)); err != nil {
		return
	}
	for k := range dst {
		dst[k] = stack.codec.Decode(buffer[k*size:])
	}
	return
}

func (stack *Stack[T, D]) SetBulk(i uint64, src []T) (err error) {
	if len(src) == 0 {
		return
	}
	if err = stack.check(i + uint64(len(src)) - 1); err != nil {
		return
	}
	size := stack.codec.Size()
	buffer := make([]byte, size*len(src))
	for k, v := range src {
		stack.codec.Encode(buffer[k*size:], v)
	}
	return fileio.WriteFull(stack.file, buffer, stack.offset(i))
}

func (stack *Stack[T, D]) Resize(n uint64) (err error) {
	if !stack.opened {
		return ErrClosed
	}
	if n > stack.count {
		zero := make([]byte, int64(n-stack.count)*int64(stack.codec.Size()))
		if err = fileio.WriteFull(stack.file, zero, stack.offset(stack.count)); err != nil {
			return
		}
	}
	stack.count = n
	return
}

func (stack *Stack[T, D]) Extra() D {
	return stack.extra
}

func (stack *Stack[T, D]) SetExtra(extra D) error {
	if !stack.opened {
		return ErrClosed
	}
	stack.extra = extra
	return nil
}

func (stack *Stack[T, D]) Flush() (err error) {
	if !stack.opened {
		return ErrClosed
	}
	if err = stack.writeHeader(); err != nil {
		return fmt.Errorf("record.Flush: %w", err)
	}
	if err = stack.file.Sync(); err != nil {
		return fmt.Errorf("record.Flush: %w", err)
	}
	return
}

func (stack *Stack[T, D]) Close() (err error) {
	if !stack.opened {
		return
	}
	err = stack.Flush()
	stack.opened = false
	if cerr := stack.file.Close(); err == nil {
		err = cerr
	}
	return
}

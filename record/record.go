// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package record provides disk-backed stacks of uniform fixed-size records.
//
// Every stack file begins with a header
//
//	magic  uint16 LE
//	count  uint64 LE
//	extra  D (caller defined, fixed size)
//
// followed by count records of the codec's size, addressed by index.
package record

import (
	"github.com/dacapoday/vstore"
)

var (
	ErrClosed        = vstore.ErrClosed
	ErrOutOfRange    = vstore.ErrOutOfRange
	ErrEmpty         = vstore.ErrEmpty
	ErrUnknownMagic  = vstore.ErrUnknownMagic
	ErrFileTruncated = vstore.ErrFileTruncated
)

// Store is the contract shared by the stream, memory-mapped and cached stacks.
type Store[T, D any] interface {
	Len() uint64
	Get(i uint64) (T, error)
	Set(i uint64, v T) error
	Push(v T) (uint64, error)
	Pop() (T, error)
	Top() (T, error)
	Swap(i, j uint64) error

	// GetBulk fills dst with the records starting at i.
	GetBulk(i uint64, dst []T) error
	// SetBulk overwrites the records starting at i.
	SetBulk(i uint64, src []T) error
	// Resize truncates or grows the stack. Grown records hold zero bytes.
	Resize(n uint64) error

	Extra() D
	SetExtra(extra D) error

	// Flush persists the header and any deferred writes.
	Flush() error
	Close() error

	// DirectWrite reports whether mutations reach the file immediately.
	DirectWrite() bool
}

const baseHeaderSize = 2 + 8

func headerSize[D any](extra Codec[D]) int64 {
	return baseHeaderSize + int64(extra.Size())
}

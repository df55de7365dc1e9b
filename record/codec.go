// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"encoding/binary"

	"github.com/dacapoday/vstore"
)

// Codec encodes a value of T into a fixed number of bytes.
// Encode must write exactly Size() bytes to dst; Decode reads the same.
type Codec[T any] interface {
	Size() int
	Encode(dst []byte, v T)
	Decode(src []byte) T
}

// Empty is the codec of an absent extra header.
type Empty struct{}

func (Empty) Size() int                  { return 0 }
func (Empty) Encode([]byte, struct{})    {}
func (Empty) Decode([]byte) (v struct{}) { return }

// Uint64 stores a little-endian uint64.
type Uint64 struct{}

func (Uint64) Size() int                   { return 8 }
func (Uint64) Encode(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }
func (Uint64) Decode(src []byte) uint64    { return binary.LittleEndian.Uint64(src) }

// Digest stores a raw vstore.Digest.
type Digest struct{}

func (Digest) Size() int                          { return vstore.DigestSize }
func (Digest) Encode(dst []byte, v vstore.Digest) { copy(dst, v[:]) }
func (Digest) Decode(src []byte) (v vstore.Digest) {
	copy(v[:], src)
	return
}

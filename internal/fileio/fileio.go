// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package fileio holds the exact-length read/write helpers shared by the stacks.
package fileio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dacapoday/vstore"
)

// ReadFull reads exactly len(p) bytes at off.
func ReadFull(file io.ReaderAt, p []byte, off int64) error {
	n, err := file.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: read %d of %d bytes at %d", vstore.ErrShortIO, n, len(p), off)
	}
	return err
}

// WriteFull writes exactly len(p) bytes at off.
func WriteFull(file io.WriterAt, p []byte, off int64) error {
	n, err := file.WriteAt(p, off)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("%w: wrote %d of %d bytes at %d", vstore.ErrShortIO, n, len(p), off)
	}
	return nil
}

// Probe reports whether file holds at least size bytes.
func Probe(file io.ReaderAt, size int64) bool {
	if size <= 0 {
		return true
	}
	var b [1]byte
	n, _ := file.ReadAt(b[:], size-1)
	return n == 1
}

// Index helpers for the on-disk "no index" sentinel.
const NoIndex = ^uint64(0)

func PutUint16(dst []byte, v uint16) { binary.LittleEndian.PutUint16(dst, v) }
func PutUint64(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }
func Uint16(src []byte) uint16       { return binary.LittleEndian.Uint16(src) }
func Uint64(src []byte) uint64       { return binary.LittleEndian.Uint64(src) }

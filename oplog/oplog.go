// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package oplog provides an append-only stack of heterogeneously typed entries.
//
// File layout:
//
//	magic  uint16 LE
//	count  uint64 LE  number of entries
//	end    uint64 LE  byte offset one past the last entry
//	entry* payload | tag uint16 LE | guard uint16 LE
//
// The payload size of an entry depends only on its tag, so the stack can be
// walked backwards from end by reading the trailer of the top entry.
package oplog

import (
	"fmt"
	"io"

	"github.com/dacapoday/vstore"
	"github.com/dacapoday/vstore/internal/fileio"
)

var (
	ErrClosed        = vstore.ErrClosed
	ErrEmpty         = vstore.ErrEmpty
	ErrCorrupted     = vstore.ErrCorrupted
	ErrUnknownMagic  = vstore.ErrUnknownMagic
	ErrFileTruncated = vstore.ErrFileTruncated
)

const (
	headerSize  = 2 + 8 + 8
	trailerSize = 2 + 2
	guard       = 0x4c4f // "OL"
)

// Kinds maps every entry tag to its fixed payload size.
type Kinds map[uint16]int

// Log is the operation log.
type Log struct {
	file  vstore.File
	kinds Kinds
	magic uint16

	count uint64
	end   int64

	trailer [trailerSize]byte
	payload []byte
	opened  bool
}

// Open loads the log stored in file, initialising an empty one if the file has no content.
func Open(file vstore.File, magic uint16, kinds Kinds) (log *Log, err error) {
	largest := 0
	for _, size := range kinds {
		largest = max(largest, size)
	}
	log = &Log{
		file:    file,
		kinds:   kinds,
		magic:   magic,
		end:     headerSize,
		payload: make([]byte, largest),
	}
	if err = log.load(); err != nil {
		log = nil
		err = fmt.Errorf("oplog.Open: %w", err)
		return
	}
	log.opened = true
	return
}

func (log *Log) load() (err error) {
	var head [headerSize]byte
	n, err := log.file.ReadAt(head[:], 0)
	if n == 0 && (err == nil || err == io.EOF) {
		return log.writeHeader()
	}
	if n != headerSize {
		if err == nil || err == io.EOF {
			err = ErrFileTruncated
		}
		return
	}
	err = nil

	if got := fileio.Uint16(head[:]); got != log.magic {
		return fmt.Errorf("%w %#04x", ErrUnknownMagic, got)
	}
	log.count = fileio.Uint64(head[2:])
	log.end = int64(fileio.Uint64(head[10:]))
	if log.end < headerSize || (log.count == 0) != (log.end == headerSize) {
		return fmt.Errorf("%w: count %d, end %d", ErrCorrupted, log.count, log.end)
	}
	if !fileio.Probe(log.file, log.end) {
		return fmt.Errorf("%w: end %d", ErrFileTruncated, log.end)
	}
	return
}

func (log *Log) writeHeader() error {
	var head [headerSize]byte
	fileio.PutUint16(head[:], log.magic)
	fileio.PutUint64(head[2:], log.count)
	fileio.PutUint64(head[10:], uint64(log.end))
	return fileio.WriteFull(log.file, head[:], 0)
}

// Len returns the number of entries.
func (log *Log) Len() uint64 {
	return log.count
}

func (log *Log) size(tag uint16) (int, error) {
	size, ok := log.kinds[tag]
	if !ok {
		return 0, fmt.Errorf("%w: unknown entry tag %d", ErrCorrupted, tag)
	}
	return size, nil
}

// Push appends an entry. The payload length must match the tag's registered size.
func (log *Log) Push(tag uint16, payload []byte) (err error) {
	if !log.opened {
		return ErrClosed
	}
	size, err := log.size(tag)
	if err != nil {
		return
	}
	if len(payload) != size {
		return fmt.Errorf("oplog.Push: tag %d payload %d bytes, want %d", tag, len(payload), size)
	}

	entry := make([]byte, size+trailerSize)
	copy(entry, payload)
	fileio.PutUint16(entry[size:], tag)
	fileio.PutUint16(entry[size+2:], guard)
	if err = fileio.WriteFull(log.file, entry, log.end); err != nil {
		return fmt.Errorf("oplog.Push: %w", err)
	}
	log.end += int64(len(entry))
	log.count++
	return
}

// Type returns the tag of the top entry.
func (log *Log) Type() (tag uint16, err error) {
	if !log.opened {
		err = ErrClosed
		return
	}
	if log.count == 0 {
		err = ErrEmpty
		return
	}
	if err = fileio.ReadFull(log.file, log.trailer[:], log.end-trailerSize); err != nil {
		return
	}
	if fileio.Uint16(log.trailer[2:]) != guard {
		err = fmt.Errorf("%w: bad entry trailer at %d", ErrCorrupted, log.end-trailerSize)
		return
	}
	tag = fileio.Uint16(log.trailer[:])
	return
}

// Top returns the top entry. The payload is only valid until the next call on log.
func (log *Log) Top() (tag uint16, payload []byte, err error) {
	if tag, err = log.Type(); err != nil {
		return
	}
	size, err := log.size(tag)
	if err != nil {
		return
	}
	start := log.end - trailerSize - int64(size)
	if start < headerSize {
		err = fmt.Errorf("%w: entry before header", ErrCorrupted)
		return
	}
	payload = log.payload[:size]
	err = fileio.ReadFull(log.file, payload, start)
	return
}

// Pop removes the top entry.
func (log *Log) Pop() (err error) {
	tag, err := log.Type()
	if err != nil {
		return
	}
	size, err := log.size(tag)
	if err != nil {
		return
	}
	log.end -= int64(size + trailerSize)
	log.count--
	return
}

// Flush persists the header and syncs the file.
func (log *Log) Flush() (err error) {
	if !log.opened {
		return ErrClosed
	}
	if err = log.writeHeader(); err != nil {
		return fmt.Errorf("oplog.Flush: %w", err)
	}
	return log.file.Sync()
}

func (log *Log) Close() (err error) {
	if !log.opened {
		return
	}
	err = log.Flush()
	log.opened = false
	if cerr := log.file.Close(); err == nil {
		err = cerr
	}
	return
}

// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"github.com/dacapoday/vstore/internal/fileio"
	"github.com/dacapoday/vstore/oplog"
	"github.com/dacapoday/vstore/record"
)

// History entry tags. Each entry holds what is needed to undo one mutation.
const (
	tagBookmark uint16 = iota + 1 // Bookmark
	tagSwap                       // i u64 | j u64
	tagPop                        // popped record
	tagPush                       // empty
	tagSet                        // i u64 | previous record
	tagHeader                     // previous extra header
)

func historyKinds(recordSize, extraSize int) oplog.Kinds {
	return oplog.Kinds{
		tagBookmark: BookmarkCodec{}.Size(),
		tagSwap:     16,
		tagPop:      recordSize,
		tagPush:     0,
		tagSet:      8 + recordSize,
		tagHeader:   extraSize,
	}
}

type history[T, D any] struct {
	codec  record.Codec[T]
	extraC record.Codec[D]
	buffer []byte
}

func newHistory[T, D any](codec record.Codec[T], extra record.Codec[D]) history[T, D] {
	size := max(8+codec.Size(), extra.Size(), BookmarkCodec{}.Size(), 16)
	return history[T, D]{codec: codec, extraC: extra, buffer: make([]byte, size)}
}

func (h *history[T, D]) bookmark(b Bookmark) []byte {
	payload := h.buffer[:BookmarkCodec{}.Size()]
	BookmarkCodec{}.Encode(payload, b)
	return payload
}

func (h *history[T, D]) swap(i, j uint64) []byte {
	payload := h.buffer[:16]
	fileio.PutUint64(payload, i)
	fileio.PutUint64(payload[8:], j)
	return payload
}

func (h *history[T, D]) pop(v T) []byte {
	payload := h.buffer[:h.codec.Size()]
	h.codec.Encode(payload, v)
	return payload
}

func (h *history[T, D]) set(i uint64, v T) []byte {
	payload := h.buffer[:8+h.codec.Size()]
	fileio.PutUint64(payload, i)
	h.codec.Encode(payload[8:], v)
	return payload
}

func (h *history[T, D]) header(extra D) []byte {
	payload := h.buffer[:h.extraC.Size()]
	h.extraC.Encode(payload, extra)
	return payload
}

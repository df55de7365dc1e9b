// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"github.com/dacapoday/vstore"
	"github.com/dacapoday/vstore/internal/fileio"
	"github.com/dacapoday/vstore/record"
)

// Bookmark names a committed point of the operation log.
// Seq starts at 1; the zero Bookmark means nothing was committed yet.
type Bookmark struct {
	Seq  uint64
	Hash vstore.Digest
}

// BookmarkCodec stores a Bookmark as seq u64 LE followed by the raw hash.
type BookmarkCodec struct{}

func (BookmarkCodec) Size() int { return 8 + vstore.DigestSize }

func (BookmarkCodec) Encode(dst []byte, b Bookmark) {
	fileio.PutUint64(dst, b.Seq)
	copy(dst[8:], b.Hash[:])
}

func (BookmarkCodec) Decode(src []byte) (b Bookmark) {
	b.Seq = fileio.Uint64(src)
	copy(b.Hash[:], src[8:])
	return
}

// Header is the extra header of a versioned data stack: the caller's own
// header followed by the bookmark the stack was last committed or reverted to.
type Header[D any] struct {
	Extra   D
	Current Bookmark
}

type headerCodec[D any] struct {
	extra record.Codec[D]
}

// HeaderCodec wraps the caller's header codec.
func HeaderCodec[D any](extra record.Codec[D]) record.Codec[Header[D]] {
	return headerCodec[D]{extra: extra}
}

func (c headerCodec[D]) Size() int {
	return c.extra.Size() + BookmarkCodec{}.Size()
}

func (c headerCodec[D]) Encode(dst []byte, h Header[D]) {
	c.extra.Encode(dst, h.Extra)
	BookmarkCodec{}.Encode(dst[c.extra.Size():], h.Current)
}

func (c headerCodec[D]) Decode(src []byte) (h Header[D]) {
	h.Extra = c.extra.Decode(src)
	h.Current = BookmarkCodec{}.Decode(src[c.extra.Size():])
	return
}

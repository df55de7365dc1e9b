// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package version provides a record stack whose state can be committed under
// a content hash and later reverted to any committed hash.
//
// Every mutation first appends its inverse to an operation log and only then
// touches the records. Commit appends a bookmark entry; reverting pops the log,
// undoing entries, until the requested bookmark is on top. That bookmark is
// kept, so reverting twice to the same target is a no-op the second time.
// Bookmarks passed over on the way are discarded.
//
// A secondary stack of committed bookmarks answers HashExists without
// scanning the operation log.
package version

import (
	"errors"
	"fmt"

	"github.com/dacapoday/vstore"
	"github.com/dacapoday/vstore/internal/fileio"
	"github.com/dacapoday/vstore/oplog"
	"github.com/dacapoday/vstore/record"
)

var (
	ErrCorrupted        = vstore.ErrCorrupted
	ErrBookmarkNotFound = vstore.ErrBookmarkNotFound
	ErrUnknownHash      = vstore.ErrUnknownHash
)

// Files are the three backing files of a versioned stack opened with Open.
type Files struct {
	Data  vstore.File
	Log   vstore.File
	Marks vstore.File
}

// Options configures Open.
type Options struct {
	// Magic of the data file; the log and bookmark files use Magic+1 and Magic+2.
	Magic uint16
	// Lazy defers record writes until Flush.
	Lazy bool
}

// Stack is a versioned record stack.
type Stack[T, D any] struct {
	store   record.Store[T, Header[D]]
	log     *oplog.Log
	marks   *record.Stack[Bookmark, struct{}]
	history history[T, D]
	current Bookmark
}

// Open opens a versioned stack over stream-based record stacks.
func Open[T, D any](files Files, codec record.Codec[T], extra record.Codec[D], opt Options) (stack *Stack[T, D], err error) {
	data, err := record.Open(files.Data, codec, HeaderCodec(extra), opt.Magic)
	if err != nil {
		return
	}
	var store record.Store[T, Header[D]] = data
	if opt.Lazy {
		store = record.NewCache(store, codec)
	}
	if stack, err = New(store, files.Log, files.Marks, codec, extra, opt.Magic); err != nil {
		store.Close()
	}
	return
}

// New composes a versioned stack from an opened data store and the raw
// log and bookmark files. The stack owns store from now on.
func New[T, D any](store record.Store[T, Header[D]], logFile, marksFile vstore.File, codec record.Codec[T], extra record.Codec[D], magic uint16) (stack *Stack[T, D], err error) {
	log, err := oplog.Open(logFile, magic+1, historyKinds(codec.Size(), extra.Size()))
	if err != nil {
		return
	}
	marks, err := record.Open[Bookmark, struct{}](marksFile, BookmarkCodec{}, record.Empty{}, magic+2)
	if err != nil {
		log.Close()
		return
	}

	stack = &Stack[T, D]{
		store:   store,
		log:     log,
		marks:   marks,
		history: newHistory(codec, extra),
		current: store.Extra().Current,
	}
	if top, terr := marks.Top(); terr == nil && top.Seq < stack.current.Seq {
		err = fmt.Errorf("version.New: %w: bookmark %d beyond index %d", ErrCorrupted, stack.current.Seq, top.Seq)
		stack.Close()
		stack = nil
	}
	return
}

func (stack *Stack[T, D]) Len() uint64 {
	return stack.store.Len()
}

func (stack *Stack[T, D]) DirectWrite() bool {
	return stack.store.DirectWrite()
}

func (stack *Stack[T, D]) Get(i uint64) (T, error) {
	return stack.store.Get(i)
}

func (stack *Stack[T, D]) GetBulk(i uint64, dst []T) error {
	return stack.store.GetBulk(i, dst)
}

func (stack *Stack[T, D]) Top() (T, error) {
	return stack.store.Top()
}

func (stack *Stack[T, D]) Extra() D {
	return stack.store.Extra().Extra
}

// Current returns the bookmark of the last commit or revert.
func (stack *Stack[T, D]) Current() Bookmark {
	return stack.current
}

func (stack *Stack[T, D]) Set(i uint64, v T) (err error) {
	old, err := stack.store.Get(i)
	if err != nil {
		return
	}
	if err = stack.log.Push(tagSet, stack.history.set(i, old)); err != nil {
		return
	}
	return stack.store.Set(i, v)
}

func (stack *Stack[T, D]) Push(v T) (i uint64, err error) {
	if err = stack.log.Push(tagPush, nil); err != nil {
		return
	}
	return stack.store.Push(v)
}

func (stack *Stack[T, D]) Pop() (v T, err error) {
	if v, err = stack.store.Top(); err != nil {
		return
	}
	if err = stack.log.Push(tagPop, stack.history.pop(v)); err != nil {
		return
	}
	return stack.store.Pop()
}

func (stack *Stack[T, D]) Swap(i, j uint64) (err error) {
	if _, err = stack.store.Get(i); err != nil {
		return
	}
	if _, err = stack.store.Get(j); err != nil {
		return
	}
	if err = stack.log.Push(tagSwap, stack.history.swap(i, j)); err != nil {
		return
	}
	return stack.store.Swap(i, j)
}

func (stack *Stack[T, D]) SetExtra(extra D) (err error) {
	header := stack.store.Extra()
	if err = stack.log.Push(tagHeader, stack.history.header(header.Extra)); err != nil {
		return
	}
	header.Extra = extra
	return stack.store.SetExtra(header)
}

// Flush persists the operation log before the records it can undo.
func (stack *Stack[T, D]) Flush() (err error) {
	if err = stack.log.Flush(); err != nil {
		return
	}
	if err = stack.store.Flush(); err != nil {
		return
	}
	return stack.marks.Flush()
}

// Commit flushes the stack and records a bookmark for hash.
func (stack *Stack[T, D]) Commit(hash vstore.Digest) (bookmark Bookmark, err error) {
	if err = stack.Flush(); err != nil {
		err = fmt.Errorf("version.Commit: %w", err)
		return
	}

	bookmark = Bookmark{Seq: stack.current.Seq + 1, Hash: hash}
	if err = stack.log.Push(tagBookmark, stack.history.bookmark(bookmark)); err != nil {
		return
	}
	if err = stack.log.Flush(); err != nil {
		return
	}
	if _, err = stack.marks.Push(bookmark); err != nil {
		return
	}
	if err = stack.marks.Flush(); err != nil {
		return
	}
	if err = stack.setCurrent(bookmark); err != nil {
		err = fmt.Errorf("version.Commit: %w", err)
	}
	return
}

func (stack *Stack[T, D]) setCurrent(bookmark Bookmark) (err error) {
	header := stack.store.Extra()
	header.Current = bookmark
	if err = stack.store.SetExtra(header); err != nil {
		return
	}
	if err = stack.store.Flush(); err != nil {
		return
	}
	stack.current = bookmark
	return
}

// HashExists reports whether a live bookmark carries hash.
func (stack *Stack[T, D]) HashExists(hash vstore.Digest) (bool, error) {
	_, found, err := stack.find(func(b Bookmark) bool { return b.Hash == hash })
	return found, err
}

// find scans the bookmark index most recent first.
func (stack *Stack[T, D]) find(match func(Bookmark) bool) (bookmark Bookmark, found bool, err error) {
	for i := stack.marks.Len(); i > 0; i-- {
		if bookmark, err = stack.marks.Get(i - 1); err != nil {
			return
		}
		if match(bookmark) {
			found = true
			return
		}
	}
	return
}

// RevertToHash restores the state of the most recent commit of hash.
func (stack *Stack[T, D]) RevertToHash(hash vstore.Digest) (err error) {
	target, found, err := stack.find(func(b Bookmark) bool { return b.Hash == hash })
	if err != nil {
		return
	}
	if !found {
		return fmt.Errorf("version.RevertToHash: %w %v", ErrUnknownHash, hash)
	}
	return stack.revert(target)
}

// Revert restores the state of the commit numbered seq.
func (stack *Stack[T, D]) Revert(seq uint64) (err error) {
	target, found, err := stack.find(func(b Bookmark) bool { return b.Seq == seq })
	if err != nil {
		return
	}
	if !found {
		return fmt.Errorf("version.Revert: %w: seq %d", ErrBookmarkNotFound, seq)
	}
	return stack.revert(target)
}

func (stack *Stack[T, D]) revert(target Bookmark) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("version.revert(%d): %w", target.Seq, err)
		}
	}()

	for {
		tag, payload, terr := stack.log.Top()
		if errors.Is(terr, oplog.ErrEmpty) {
			return fmt.Errorf("%w: log exhausted", ErrBookmarkNotFound)
		}
		if terr != nil {
			return terr
		}

		reached, uerr := stack.undo(tag, payload, target)
		if uerr != nil {
			return uerr
		}
		if reached {
			// The popped log goes to disk before the records it restored.
			if err = stack.log.Flush(); err != nil {
				return
			}
			if err = stack.marks.Flush(); err != nil {
				return
			}
			return stack.setCurrent(target)
		}
		if err = stack.log.Pop(); err != nil {
			return
		}
	}
}

// undo applies the inverse held by one history entry. A bookmark entry is
// either the target, which stays on the log, or superseded and dropped from
// the bookmark index along with the log.
func (stack *Stack[T, D]) undo(tag uint16, payload []byte, target Bookmark) (reached bool, err error) {
	h := &stack.history
	switch tag {
	case tagBookmark:
		bookmark := BookmarkCodec{}.Decode(payload)
		if bookmark == target {
			reached = true
			return
		}
		if top, terr := stack.marks.Top(); terr == nil && top == bookmark {
			_, err = stack.marks.Pop()
		}
	case tagSwap:
		err = stack.store.Swap(fileio.Uint64(payload), fileio.Uint64(payload[8:]))
	case tagPop:
		_, err = stack.store.Push(h.codec.Decode(payload))
	case tagPush:
		_, err = stack.store.Pop()
	case tagSet:
		err = stack.store.Set(fileio.Uint64(payload), h.codec.Decode(payload[8:]))
	case tagHeader:
		header := stack.store.Extra()
		header.Extra = h.extraC.Decode(payload)
		err = stack.store.SetExtra(header)
	default:
		err = fmt.Errorf("%w: history tag %d", ErrCorrupted, tag)
	}
	return
}

// Close flushes and closes the log first, then the records and the bookmark index.
func (stack *Stack[T, D]) Close() (err error) {
	err = stack.log.Close()
	if serr := stack.store.Close(); err == nil {
		err = serr
	}
	if merr := stack.marks.Close(); err == nil {
		err = merr
	}
	return
}

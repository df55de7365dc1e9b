// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/dacapoday/vstore"
	"github.com/dacapoday/vstore/blob"
	"github.com/dacapoday/vstore/record"
	"github.com/dacapoday/vstore/trie"
	"github.com/dacapoday/vstore/version"
)

// Names of the files of a store directory.
const (
	IndexData  = "index.db"
	IndexLog   = "index.log"
	IndexMarks = "index.marks"
	BlobData   = "blob.db"
	BlobLog    = "blob.log"
	BlobMarks  = "blob.marks"
)

// fileSet opens the files of one versioned stack and closes them all if
// composing the stack fails.
type fileSet struct {
	dir    string
	create bool
	opened []*os.File
}

func (fs *fileSet) open(name string) (*os.File, error) {
	flag := os.O_RDWR
	if fs.create {
		flag |= os.O_CREATE
	}
	path := filepath.Join(fs.dir, name)
	file, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	fs.opened = append(fs.opened, file)
	return file, nil
}

func (fs *fileSet) files(data, log, marks string) (files version.Files, err error) {
	if files.Data, err = fs.open(data); err != nil {
		return
	}
	if files.Log, err = fs.open(log); err != nil {
		return
	}
	files.Marks, err = fs.open(marks)
	return
}

// abort closes every file opened so far.
func (fs *fileSet) abort() {
	for _, file := range fs.opened {
		file.Close()
	}
	fs.opened = nil
}

func (fs *fileSet) openTrie(hasher vstore.Hasher, cfg *Config) (*trie.Trie, error) {
	opt := version.Options{Magic: trie.Magic, Lazy: cfg.LazyIndex}
	if !cfg.Mmap {
		files, err := fs.files(IndexData, IndexLog, IndexMarks)
		if err != nil {
			return nil, err
		}
		return trie.Open(files, hasher, opt)
	}
	stack, err := openMapped[trie.Node, trie.Meta](fs, IndexData, IndexLog, IndexMarks, trie.NodeCodec{}, trie.MetaCodec{}, opt)
	if err != nil {
		return nil, errors.Wrap(err, "trie")
	}
	return trie.New(stack, hasher), nil
}

func (fs *fileSet) openBlobs(capacity int, hasher vstore.Hasher, cfg *Config) (*blob.Store, error) {
	opt := version.Options{Magic: blob.Magic}
	if !cfg.Mmap {
		files, err := fs.files(BlobData, BlobLog, BlobMarks)
		if err != nil {
			return nil, err
		}
		return blob.Open(files, capacity, hasher, opt)
	}
	stack, err := openMapped[blob.Block, blob.Meta](fs, BlobData, BlobLog, BlobMarks, blob.BlockCodec{Capacity: capacity}, blob.MetaCodec{}, opt)
	if err != nil {
		return nil, errors.Wrap(err, "blob")
	}
	store, err := blob.New(stack, capacity, hasher)
	if err != nil {
		stack.Close()
	}
	return store, err
}

// openMapped composes a versioned stack over a memory-mapped data file.
func openMapped[T, D any](fs *fileSet, data, log, marks string, codec record.Codec[T], extra record.Codec[D], opt version.Options) (stack *version.Stack[T, D], err error) {
	files, err := fs.files(data, log, marks)
	if err != nil {
		return
	}
	store, err := openMmap(files.Data.(*os.File), codec, version.HeaderCodec(extra), opt.Magic)
	if err != nil {
		return
	}
	if opt.Lazy {
		store = record.NewCache(store, codec)
	}
	if stack, err = version.New(store, files.Log, files.Marks, codec, extra, opt.Magic); err != nil {
		store.Close()
	}
	return
}

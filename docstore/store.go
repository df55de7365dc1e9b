// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package docstore is a versioned document store: a trie maps keys to blob
// ids, a blob store holds the documents, and both commit and revert in
// lock-step under the trie's root hash.
package docstore

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"sync"
	"sync/atomic"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dacapoday/vstore"
	"github.com/dacapoday/vstore/blob"
	"github.com/dacapoday/vstore/trie"
)

var (
	ErrClosed      = vstore.ErrClosed
	ErrCorrupted   = vstore.ErrCorrupted
	ErrDiverged    = vstore.ErrDiverged
	ErrUnknownHash = vstore.ErrUnknownHash
)

// ErrNotLocked is returned by Unlock without a matching Lock.
var ErrNotLocked = errors.New("docstore: session lock not held")

// Key addresses a document.
type Key = trie.Key

// Document is the result of a lookup. Failed reports a missing key.
type Document struct {
	Data       []byte
	Failed     bool
	WasCreated bool
}

// Entry is a key with its document content.
type Entry struct {
	Key  Key
	Data []byte
}

// Store is a versioned document store backed by a directory.
//
// Every method is serialised by one internal mutex. The session lock
// taken by Lock is independent of it and lets a caller hold the store
// across several calls.
type Store struct {
	mu       sync.Mutex
	dir      string
	manifest Manifest
	hasher   vstore.Hasher
	log      *zap.Logger

	index *trie.Trie
	blobs *blob.Store

	session sync.Mutex
	locked  atomic.Bool
}

// Open opens the store in dir.
func Open(dir string, opts ...Option) (store *Store, err error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	log := cfg.Logger.With(zap.String("dir", dir))

	if cfg.Create {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return nil, pkgerrors.Wrapf(err, "docstore.Open: mkdir %s", dir)
		}
	}
	manifest, err := readManifest(dir)
	switch {
	case err == nil:
		err = manifest.check(cfg)
	case errors.Is(err, os.ErrNotExist) && cfg.Create:
		manifest = newManifest(cfg)
		if _, err = vstore.HasherByName(manifest.Hasher); err == nil {
			err = writeManifest(dir, manifest)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("docstore.Open: %w", err)
	}
	hasher, err := vstore.HasherByName(manifest.Hasher)
	if err != nil {
		return nil, fmt.Errorf("docstore.Open: %w", err)
	}

	fs := &fileSet{dir: dir, create: cfg.Create}
	store = &Store{
		dir:      dir,
		manifest: manifest,
		hasher:   hasher,
		log:      log,
	}
	if store.index, err = fs.openTrie(hasher, cfg); err != nil {
		fs.abort()
		return nil, fmt.Errorf("docstore.Open: %w", err)
	}
	if store.blobs, err = fs.openBlobs(manifest.BlockCapacity, hasher, cfg); err != nil {
		store.index.Close()
		fs.abort()
		return nil, fmt.Errorf("docstore.Open: %w", err)
	}

	if ib, bb := store.index.Current(), store.blobs.Current(); ib != bb {
		log.Error("stacks diverged on open",
			zap.Uint64("index_seq", ib.Seq), zap.Stringer("index_hash", ib.Hash),
			zap.Uint64("blob_seq", bb.Seq), zap.Stringer("blob_hash", bb.Hash))
		store.closeStacks()
		return nil, fmt.Errorf("docstore.Open: %w: index at %d, blobs at %d", ErrDiverged, ib.Seq, bb.Seq)
	}

	log.Info("opened store",
		zap.Stringer("instance", manifest.InstanceID),
		zap.Uint64("seq", store.index.Current().Seq),
		zap.Bool("mmap", cfg.Mmap),
		zap.Bool("lazy_index", cfg.LazyIndex))
	return store, nil
}

func (store *Store) closeStacks() error {
	err := multierr.Append(store.index.Close(), store.blobs.Close())
	store.index, store.blobs = nil, nil
	return err
}

// Close flushes and closes the store.
func (store *Store) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.index == nil {
		return ErrClosed
	}
	if err := store.closeStacks(); err != nil {
		return fmt.Errorf("docstore.Close: %w", err)
	}
	store.log.Debug("closed store")
	return nil
}

// lock takes the internal mutex and fails on a closed store.
func (store *Store) lock() error {
	store.mu.Lock()
	if store.index == nil {
		store.mu.Unlock()
		return ErrClosed
	}
	return nil
}

// Dir returns the store directory.
func (store *Store) Dir() string {
	return store.dir
}

// Manifest returns the persisted parameters of the store.
func (store *Store) Manifest() Manifest {
	return store.manifest
}

// KeyOf derives the key of a document name.
func (store *Store) KeyOf(name []byte) Key {
	return Key(store.hasher.Sum(name))
}

// Flush persists deferred writes of both stacks.
func (store *Store) Flush() error {
	if err := store.lock(); err != nil {
		return err
	}
	defer store.mu.Unlock()
	return multierr.Append(store.index.Flush(), store.blobs.Flush())
}

func (store *Store) read(id uint64) ([]byte, error) {
	b, err := store.blobs.Open(id)
	if err != nil {
		return nil, err
	}
	return b.Bytes()
}

// Get returns the document of key. A missing key is a Failed document.
func (store *Store) Get(key Key) (doc Document, err error) {
	if err = store.lock(); err != nil {
		return
	}
	defer store.mu.Unlock()

	id, found, err := store.index.GetIfExists(key)
	if err != nil {
		return
	}
	if !found {
		doc.Failed = true
		return
	}
	if doc.Data, err = store.read(id); err != nil {
		err = fmt.Errorf("docstore.Get: %w", err)
	}
	return
}

// GetOrCreate returns the document of key, creating an empty one if absent.
func (store *Store) GetOrCreate(key Key) (doc Document, err error) {
	if err = store.lock(); err != nil {
		return
	}
	defer store.mu.Unlock()

	id, found, err := store.index.GetIfExists(key)
	if err != nil {
		return
	}
	if found {
		doc.Data, err = store.read(id)
		return
	}
	if err = store.insert(key, nil); err != nil {
		err = fmt.Errorf("docstore.GetOrCreate: %w", err)
		return
	}
	doc.Data = []byte{}
	doc.WasCreated = true
	return
}

// insert stores data under a key known to be absent.
func (store *Store) insert(key Key, data []byte) error {
	id, err := store.blobs.Create(uint64(len(data)))
	if err != nil {
		return err
	}
	b, err := store.blobs.Open(id)
	if err != nil {
		return err
	}
	if _, err = b.WriteAt(data, 0); err != nil {
		return err
	}
	return store.index.Set(key, id, store.hasher.Sum(data))
}

// Set stores data under key, replacing any previous document.
func (store *Store) Set(key Key, data []byte) (err error) {
	if err = store.lock(); err != nil {
		return
	}
	defer store.mu.Unlock()
	defer func() {
		if err != nil {
			err = fmt.Errorf("docstore.Set: %w", err)
		}
	}()

	id, found, err := store.index.GetIfExists(key)
	if err != nil {
		return
	}
	if !found {
		return store.insert(key, data)
	}
	b, err := store.blobs.Open(id)
	if err != nil {
		return
	}
	if err = b.Replace(data); err != nil {
		return
	}
	return store.index.Set(key, id, store.hasher.Sum(data))
}

// Erase removes the document of key and reports whether it existed.
func (store *Store) Erase(key Key) (erased bool, err error) {
	if err = store.lock(); err != nil {
		return
	}
	defer store.mu.Unlock()

	id, found, err := store.index.GetIfExists(key)
	if err != nil || !found {
		return
	}
	if err = store.blobs.Erase(id); err != nil {
		err = fmt.Errorf("docstore.Erase: %w", err)
		return
	}
	if erased, err = store.index.Erase(key); err != nil {
		err = fmt.Errorf("docstore.Erase: %w", err)
	}
	return
}

// Size returns the number of documents.
func (store *Store) Size() (uint64, error) {
	if err := store.lock(); err != nil {
		return 0, err
	}
	defer store.mu.Unlock()
	return store.index.Size()
}

// entries yields the documents visited by it while holding the store mutex.
// The loop body must not call back into the store.
func (store *Store) entries(start func() *trie.Iterator) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if err := store.lock(); err != nil {
			yield(Entry{}, err)
			return
		}
		defer store.mu.Unlock()

		it := start()
		for ; it.Valid(); it.Next() {
			data, err := store.read(it.Value())
			if err != nil {
				yield(Entry{Key: it.Key()}, fmt.Errorf("docstore: %v: %w", it.Key(), err))
				return
			}
			if !yield(Entry{Key: it.Key(), Data: data}, nil) {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield(Entry{}, err)
		}
	}
}

// All yields every document in key order.
func (store *Store) All() iter.Seq2[Entry, error] {
	return store.entries(func() *trie.Iterator { return store.index.Begin() })
}

// Find yields the document of key and every document after it.
// Nothing is yielded when key is absent.
func (store *Store) Find(key Key) iter.Seq2[Entry, error] {
	return store.entries(func() *trie.Iterator { return store.index.Find(key) })
}

// Subtree yields the documents whose keys share the first bits of prefix.
func (store *Store) Subtree(prefix Key, bits uint16) iter.Seq2[Entry, error] {
	return store.entries(func() *trie.Iterator { return store.index.Subtree(prefix, bits) })
}

// CurrentHash returns the root hash of the live state.
func (store *Store) CurrentHash() (vstore.Digest, error) {
	if err := store.lock(); err != nil {
		return vstore.Digest{}, err
	}
	defer store.mu.Unlock()
	return store.index.Hash()
}

// Commit records the live state under its root hash in both stacks.
func (store *Store) Commit() (hash vstore.Digest, err error) {
	if err = store.lock(); err != nil {
		return
	}
	defer store.mu.Unlock()

	if hash, err = store.index.Hash(); err != nil {
		err = fmt.Errorf("docstore.Commit: %w", err)
		return
	}
	ib, err := store.index.Commit(hash)
	if err != nil {
		err = fmt.Errorf("docstore.Commit: index: %w", err)
		return
	}
	bb, err := store.blobs.Commit(hash)
	if err != nil {
		err = fmt.Errorf("docstore.Commit: blobs: %w", err)
		return
	}
	if ib != bb {
		store.log.Error("stacks diverged on commit",
			zap.Uint64("index_seq", ib.Seq), zap.Uint64("blob_seq", bb.Seq), zap.Stringer("hash", hash))
		err = fmt.Errorf("docstore.Commit: %w: index at %d, blobs at %d", ErrDiverged, ib.Seq, bb.Seq)
		return
	}
	store.log.Info("committed", zap.Uint64("seq", ib.Seq), zap.Stringer("hash", hash))
	return
}

// hashExists consults both stacks, which must agree.
func (store *Store) hashExists(hash vstore.Digest) (exists bool, err error) {
	exists, err = store.index.HashExists(hash)
	if err != nil {
		return
	}
	inBlobs, err := store.blobs.HashExists(hash)
	if err != nil {
		return
	}
	if exists != inBlobs {
		store.log.Error("stacks diverged",
			zap.Stringer("hash", hash), zap.Bool("index", exists), zap.Bool("blobs", inBlobs))
		err = fmt.Errorf("%w: hash %v known to index %t, blobs %t", ErrDiverged, hash, exists, inBlobs)
	}
	return
}

// HashExists reports whether a state was committed under hash.
func (store *Store) HashExists(hash vstore.Digest) (bool, error) {
	if err := store.lock(); err != nil {
		return false, err
	}
	defer store.mu.Unlock()
	return store.hashExists(hash)
}

// RevertToHash restores the state committed under hash. An unknown hash
// fails with ErrUnknownHash and leaves the store untouched.
func (store *Store) RevertToHash(hash vstore.Digest) (err error) {
	if err = store.lock(); err != nil {
		return
	}
	defer store.mu.Unlock()
	defer func() {
		if err != nil {
			err = fmt.Errorf("docstore.RevertToHash: %w", err)
		}
	}()

	exists, err := store.hashExists(hash)
	if err != nil {
		return
	}
	if !exists {
		return fmt.Errorf("%w %v", ErrUnknownHash, hash)
	}
	if err = store.index.RevertToHash(hash); err != nil {
		return
	}
	if err = store.blobs.RevertToHash(hash); err != nil {
		store.log.Error("blob revert failed after index revert", zap.Stringer("hash", hash), zap.Error(err))
		return
	}

	root, err := store.index.Hash()
	if err != nil {
		return
	}
	if root != hash {
		store.log.Error("reverted index does not hash to its bookmark",
			zap.Stringer("hash", hash), zap.Stringer("root", root))
		return fmt.Errorf("%w: reverted root %v", ErrDiverged, root)
	}
	store.log.Info("reverted", zap.Uint64("seq", store.index.Current().Seq), zap.Stringer("hash", hash))
	return
}

// VerifyConsistency audits the trie structure, the block accounting of
// every blob and the free list, and the leaf hash of every document.
func (store *Store) VerifyConsistency() (err error) {
	if err = store.lock(); err != nil {
		return
	}
	defer store.mu.Unlock()
	defer func() {
		if err != nil {
			store.log.Error("consistency check failed", zap.Error(err))
			err = fmt.Errorf("docstore.VerifyConsistency: %w", err)
		}
	}()

	if _, err = store.index.Hash(); err != nil {
		return
	}
	if err = store.index.Verify(); err != nil {
		return
	}
	var ids []uint64
	it := store.index.Begin()
	for ; it.Valid(); it.Next() {
		ids = append(ids, it.Value())
	}
	if err = it.Error(); err != nil {
		return
	}
	if err = store.blobs.VerifyConsistency(ids); err != nil {
		return
	}

	for it = store.index.Begin(); it.Valid(); it.Next() {
		var data []byte
		if data, err = store.read(it.Value()); err != nil {
			return
		}
		if hash := store.hasher.Sum(data); hash != it.Hash() {
			return fmt.Errorf("%w: document %v hashes to %v, leaf holds %v", ErrCorrupted, it.Key(), hash, it.Hash())
		}
	}
	return it.Error()
}

// Lock takes the session lock, blocking until it is free.
func (store *Store) Lock() {
	store.session.Lock()
	store.locked.Store(true)
}

// Unlock releases the session lock.
func (store *Store) Unlock() error {
	if !store.locked.CompareAndSwap(true, false) {
		return ErrNotLocked
	}
	store.session.Unlock()
	return nil
}

// HasLock reports whether the session lock is held.
func (store *Store) HasLock() bool {
	return store.locked.Load()
}

// Stats describes the storage footprint of a store.
type Stats struct {
	Documents  uint64
	Nodes      uint64
	Blocks     uint64
	FreeBlocks uint64
	Seq        uint64
	Hash       vstore.Digest
}

// Stats reports document, node and block counts and the last bookmark.
func (store *Store) Stats() (stats Stats, err error) {
	if err = store.lock(); err != nil {
		return
	}
	defer store.mu.Unlock()

	if stats.Documents, err = store.index.Size(); err != nil {
		return
	}
	if stats.FreeBlocks, err = store.blobs.FreeCount(); err != nil {
		return
	}
	stats.Nodes = store.index.Len()
	stats.Blocks = store.blobs.Len()
	current := store.index.Current()
	stats.Seq, stats.Hash = current.Seq, current.Hash
	return
}

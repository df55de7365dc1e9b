// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package trie implements a versioned binary trie over fixed-width keys
// with a Merkle root hash.
//
// Nodes live in a version.Stack. Leaves carry a caller supplied hash, and a
// branch hash is the hash of its left and right child hashes, so the root
// hash depends only on the set of (key, leaf hash) pairs and not on the
// order of insertion. A trie with n leaves always holds exactly 2n-1 nodes.
package trie

import (
	"errors"
	"fmt"

	"github.com/dacapoday/vstore"
	"github.com/dacapoday/vstore/version"
)

var (
	ErrCorrupted   = vstore.ErrCorrupted
	ErrKeyNotFound = vstore.ErrKeyNotFound
	ErrUnknownHash = vstore.ErrUnknownHash
)

// Magic of the node stack file.
const Magic uint16 = 0x7472

// Stack is the versioned node storage of a Trie.
type Stack = version.Stack[Node, Meta]

// Trie is a binary trie keyed by Key, mapping to uint64 values.
//
// A Trie is not safe for concurrent use.
type Trie struct {
	stack  *Stack
	hasher vstore.Hasher

	// stale holds branches whose hash must be recomputed before the root
	// hash is observed. Only used when the stack defers its writes.
	stale map[Index]struct{}
}

// Open opens a trie over stream-based stacks.
// With opt.Lazy, writes and hashing are deferred until the root hash is needed.
func Open(files version.Files, hasher vstore.Hasher, opt version.Options) (*Trie, error) {
	if opt.Magic == 0 {
		opt.Magic = Magic
	}
	stack, err := version.Open[Node, Meta](files, NodeCodec{}, MetaCodec{}, opt)
	if err != nil {
		return nil, fmt.Errorf("trie.Open: %w", err)
	}
	return New(stack, hasher), nil
}

// New wraps an opened node stack. Hash updates are deferred exactly when
// the stack defers its writes.
func New(stack *Stack, hasher vstore.Hasher) *Trie {
	if hasher == nil {
		hasher = vstore.SHA256
	}
	return &Trie{
		stack:  stack,
		hasher: hasher,
		stale:  make(map[Index]struct{}),
	}
}

func (trie *Trie) meta() (meta Meta) {
	if meta = trie.stack.Extra(); meta.Leaves == 0 {
		meta.Root = None
	}
	return
}

func (trie *Trie) node(i Index) (node Node, err error) {
	if node, err = trie.stack.Get(uint64(i)); err != nil {
		err = fmt.Errorf("trie: node %v: %w", i, err)
	}
	return
}

func (trie *Trie) setNode(i Index, node Node) error {
	return trie.stack.Set(uint64(i), node)
}

// Empty reports whether the trie has no leaves.
func (trie *Trie) Empty() bool {
	return !trie.meta().Root.Valid()
}

// Len returns the number of nodes.
func (trie *Trie) Len() uint64 {
	return trie.stack.Len()
}

// Size returns the number of leaves. The node count must be 2*Size()-1.
func (trie *Trie) Size() (uint64, error) {
	meta := trie.meta()
	want := uint64(0)
	if meta.Leaves > 0 {
		want = 2*meta.Leaves - 1
	}
	if n := trie.stack.Len(); n != want || meta.Root.Valid() != (meta.Leaves > 0) {
		return 0, fmt.Errorf("trie.Size: %w: %d nodes for %d leaves", ErrCorrupted, n, meta.Leaves)
	}
	return meta.Leaves, nil
}

// lookup descends from the root towards key. It stops at the first node
// whose key disagrees with key before its split, or at a leaf.
// pos is the first differing bit, KeyBits on an exact leaf match.
func (trie *Trie) lookup(key Key) (i Index, node Node, pos uint16, err error) {
	i = trie.meta().Root
	for {
		if node, err = trie.node(i); err != nil {
			return
		}
		pos, _ = key.Compare(node.Key, node.Split)
		if pos < node.Split || node.IsLeaf() {
			return
		}
		i = node.child(key.Bit(node.Split))
	}
}

// find returns the leaf of key, if any.
func (trie *Trie) find(key Key) (i Index, node Node, found bool, err error) {
	if trie.Empty() {
		return
	}
	var pos uint16
	if i, node, pos, err = trie.lookup(key); err != nil {
		return
	}
	found = node.IsLeaf() && pos == KeyBits
	return
}

// GetIfExists returns the value of key and whether it is present.
func (trie *Trie) GetIfExists(key Key) (value uint64, found bool, err error) {
	_, node, found, err := trie.find(key)
	if found {
		value = node.Value
	}
	return
}

// Get returns the value of key or ErrKeyNotFound.
func (trie *Trie) Get(key Key) (value uint64, err error) {
	value, found, err := trie.GetIfExists(key)
	if err == nil && !found {
		err = fmt.Errorf("trie.Get: %w: %v", ErrKeyNotFound, key)
	}
	return
}

// Leaf returns the leaf node of key.
func (trie *Trie) Leaf(key Key) (node Node, found bool, err error) {
	_, node, found, err = trie.find(key)
	return
}

// Set maps key to value. leaf is the hash the leaf contributes to the root.
func (trie *Trie) Set(key Key, value uint64, leaf vstore.Digest) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("trie.Set: %w", err)
		} else {
			assertTrie("trie.Set", trie)
		}
	}()

	meta := trie.meta()
	if !meta.Root.Valid() {
		var i uint64
		if i, err = trie.stack.Push(newLeaf(key, value, leaf, None)); err != nil {
			return
		}
		return trie.stack.SetExtra(Meta{Root: Index(i), Leaves: 1})
	}

	i, node, pos, err := trie.lookup(key)
	if err != nil {
		return
	}
	if pos == KeyBits {
		if node.Value == value && node.Hash == leaf {
			return
		}
		node.Value, node.Hash = value, leaf
		if err = trie.setNode(i, node); err != nil {
			return
		}
		return trie.touch(node.Parent)
	}

	// A new branch splits at pos, above the node where the descent stopped.
	leafIndex := Index(trie.stack.Len())
	branchIndex := leafIndex + 1
	branch := Node{Key: key, Split: pos, Parent: node.Parent, Left: i, Right: leafIndex}
	if key.Bit(pos) == 0 {
		branch.Left, branch.Right = leafIndex, i
	}
	if _, err = trie.stack.Push(newLeaf(key, value, leaf, branchIndex)); err != nil {
		return
	}
	if _, err = trie.stack.Push(branch); err != nil {
		return
	}

	if err = trie.relink(node.Parent, i, branchIndex, &meta); err != nil {
		return
	}
	node.Parent = branchIndex
	if err = trie.setNode(i, node); err != nil {
		return
	}
	meta.Leaves++
	if err = trie.stack.SetExtra(meta); err != nil {
		return
	}
	return trie.touch(branchIndex)
}

func newLeaf(key Key, value uint64, hash vstore.Digest, parent Index) Node {
	return Node{
		Key:    key,
		Hash:   hash,
		Split:  KeyBits,
		Parent: parent,
		Left:   None,
		Right:  None,
		Value:  value,
	}
}

// relink points the child slot of parent that held from at to.
// Without a parent, to becomes the root.
func (trie *Trie) relink(parent, from, to Index, meta *Meta) (err error) {
	if !parent.Valid() {
		meta.Root = to
		return
	}
	node, err := trie.node(parent)
	if err != nil {
		return
	}
	if !node.replaceChild(from, to) {
		return fmt.Errorf("%w: node %v is not a child of %v", ErrCorrupted, from, parent)
	}
	return trie.setNode(parent, node)
}

// Erase removes key and reports whether it was present.
func (trie *Trie) Erase(key Key) (erased bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("trie.Erase: %w", err)
		} else if erased {
			assertTrie("trie.Erase", trie)
		}
	}()

	// Pending hashes refer to indices that erasing may move.
	if err = trie.updateHashes(); err != nil {
		return
	}
	i, node, found, err := trie.find(key)
	if err != nil || !found {
		return
	}
	erased = true

	meta := trie.meta()
	if !node.Parent.Valid() {
		if _, err = trie.stack.Pop(); err != nil {
			return
		}
		return erased, trie.stack.SetExtra(Meta{Root: None})
	}

	// The sibling takes the place of the parent branch.
	p := node.Parent
	parent, err := trie.node(p)
	if err != nil {
		return
	}
	s := parent.Left
	if s == i {
		s = parent.Right
	}
	sibling, err := trie.node(s)
	if err != nil {
		return
	}
	g := parent.Parent
	sibling.Parent = g
	if err = trie.setNode(s, sibling); err != nil {
		return
	}
	if err = trie.relink(g, p, s, &meta); err != nil {
		return
	}

	// Free the leaf and its parent, higher index first so that the first
	// removal cannot move the second.
	hi, lo := max(i, p), min(i, p)
	if err = trie.remove(hi, &meta, &g); err != nil {
		return
	}
	if err = trie.remove(lo, &meta, &g); err != nil {
		return
	}
	meta.Leaves--
	if err = trie.stack.SetExtra(meta); err != nil {
		return
	}
	return erased, trie.touch(g)
}

// remove frees the detached node at i by moving the last node into its slot
// and popping. References to the moved node are rewired; track follows it.
func (trie *Trie) remove(i Index, meta *Meta, track *Index) (err error) {
	last := Index(trie.stack.Len() - 1)
	if i != last {
		var moved Node
		if moved, err = trie.node(last); err != nil {
			return
		}
		if err = trie.stack.Swap(uint64(i), uint64(last)); err != nil {
			return
		}
		if err = trie.relink(moved.Parent, last, i, meta); err != nil {
			return
		}
		if !moved.IsLeaf() {
			for _, c := range [2]Index{moved.Left, moved.Right} {
				var child Node
				if child, err = trie.node(c); err != nil {
					return
				}
				child.Parent = i
				if err = trie.setNode(c, child); err != nil {
					return
				}
			}
		}
		if *track == last {
			*track = i
		}
	}
	_, err = trie.stack.Pop()
	return
}

// Hash returns the root hash, the zero digest for an empty trie.
func (trie *Trie) Hash() (hash vstore.Digest, err error) {
	if err = trie.updateHashes(); err != nil {
		return
	}
	meta := trie.meta()
	if !meta.Root.Valid() {
		return
	}
	root, err := trie.node(meta.Root)
	return root.Hash, err
}

// Commit records the current state under hash.
func (trie *Trie) Commit(hash vstore.Digest) (version.Bookmark, error) {
	if err := trie.updateHashes(); err != nil {
		return version.Bookmark{}, fmt.Errorf("trie.Commit: %w", err)
	}
	return trie.stack.Commit(hash)
}

// HashExists reports whether a state was committed under hash.
func (trie *Trie) HashExists(hash vstore.Digest) (bool, error) {
	return trie.stack.HashExists(hash)
}

// RevertToHash restores the state committed under hash.
// An unknown hash leaves the trie untouched.
func (trie *Trie) RevertToHash(hash vstore.Digest) (err error) {
	err = trie.stack.RevertToHash(hash)
	trie.afterRevert(err)
	return
}

// Revert restores the state of commit number seq.
func (trie *Trie) Revert(seq uint64) (err error) {
	err = trie.stack.Revert(seq)
	trie.afterRevert(err)
	return
}

func (trie *Trie) afterRevert(err error) {
	if err != nil && (errors.Is(err, version.ErrUnknownHash) || errors.Is(err, version.ErrBookmarkNotFound)) {
		return
	}
	// Committed states carry consistent hashes.
	clear(trie.stale)
}

// Current returns the bookmark of the last commit or revert.
func (trie *Trie) Current() version.Bookmark {
	return trie.stack.Current()
}

// Flush brings hashes up to date and persists the node stack.
func (trie *Trie) Flush() error {
	if err := trie.updateHashes(); err != nil {
		return fmt.Errorf("trie.Flush: %w", err)
	}
	return trie.stack.Flush()
}

func (trie *Trie) Close() error {
	ferr := trie.Flush()
	if err := trie.stack.Close(); err != nil {
		return err
	}
	return ferr
}

// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package trie

import (
	"iter"

	"github.com/dacapoday/vstore"
)

// Iterator walks leaves in key order within a subtree.
// Any mutation of the trie invalidates it.
type Iterator struct {
	trie  *Trie
	bound Index
	index Index
	node  Node
	err   error
}

// Begin positions an iterator at the smallest key.
func (trie *Trie) Begin() *Iterator {
	it := &Iterator{trie: trie, bound: trie.meta().Root, index: None}
	it.first(it.bound)
	return it
}

// Find positions an iterator at key; the iterator continues to the largest
// key. It is invalid when key is absent.
func (trie *Trie) Find(key Key) *Iterator {
	it := &Iterator{trie: trie, bound: trie.meta().Root, index: None}
	i, node, found, err := trie.find(key)
	switch {
	case err != nil:
		it.err = err
	case found:
		it.index, it.node = i, node
	}
	return it
}

// Subtree iterates the keys whose first bits agree with prefix.
// bits above KeyBits are clamped.
func (trie *Trie) Subtree(prefix Key, bits uint16) *Iterator {
	bits = min(bits, KeyBits)
	it := &Iterator{trie: trie, bound: None, index: None}
	i := trie.meta().Root
	for i.Valid() {
		node, err := trie.node(i)
		if err != nil {
			it.err = err
			return it
		}
		limit := min(node.Split, bits)
		if pos, _ := prefix.Compare(node.Key, limit); pos < limit {
			return it
		}
		if node.Split >= bits {
			it.bound = i
			it.first(i)
			return it
		}
		i = node.child(prefix.Bit(node.Split))
	}
	return it
}

// first positions at the leftmost leaf below i.
func (it *Iterator) first(i Index) {
	for i.Valid() {
		node, err := it.trie.node(i)
		if err != nil {
			it.err = err
			it.index = None
			return
		}
		if node.IsLeaf() {
			it.index, it.node = i, node
			return
		}
		i = node.Left
	}
	it.index = None
}

func (it *Iterator) Valid() bool {
	return it.err == nil && it.index.Valid()
}

// Next advances to the following key, climbing to the first ancestor
// entered from its left side.
func (it *Iterator) Next() {
	if !it.Valid() {
		return
	}
	i, parent := it.index, it.node.Parent
	for {
		if i == it.bound || !parent.Valid() {
			it.index = None
			return
		}
		node, err := it.trie.node(parent)
		if err != nil {
			it.err = err
			return
		}
		if node.Left == i {
			it.first(node.Right)
			return
		}
		i, parent = parent, node.Parent
	}
}

func (it *Iterator) Key() Key {
	return it.node.Key
}

func (it *Iterator) Value() uint64 {
	return it.node.Value
}

// Hash returns the leaf hash.
func (it *Iterator) Hash() vstore.Digest {
	return it.node.Hash
}

func (it *Iterator) Error() error {
	return it.err
}

// All yields the remaining entries. Check Error afterwards.
func (it *Iterator) All() iter.Seq2[Key, uint64] {
	return func(yield func(Key, uint64) bool) {
		for ; it.Valid(); it.Next() {
			if !yield(it.Key(), it.Value()) {
				return
			}
		}
	}
}

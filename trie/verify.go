// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package trie

import (
	"fmt"
)

// Verify walks the whole trie and checks its structure: parent links,
// split ordering, key prefixes, the 2n-1 node count and, when no hash
// update is pending, every branch hash.
func (trie *Trie) Verify() (err error) {
	leaves, err := trie.Size()
	if err != nil {
		return
	}
	meta := trie.meta()
	if !meta.Root.Valid() {
		return
	}
	root, err := trie.node(meta.Root)
	if err != nil {
		return
	}
	if root.Parent.Valid() {
		return fmt.Errorf("trie.Verify: %w: root %v has parent %v", ErrCorrupted, meta.Root, root.Parent)
	}

	checkHash := len(trie.stale) == 0
	var seen, found uint64
	var walk func(i Index, node Node) error
	walk = func(i Index, node Node) error {
		seen++
		if seen > trie.stack.Len() {
			return fmt.Errorf("%w: cycle through node %v", ErrCorrupted, i)
		}
		if node.IsLeaf() {
			found++
			return nil
		}
		if node.Split > KeyBits {
			return fmt.Errorf("%w: node %v split %d", ErrCorrupted, i, node.Split)
		}
		var children [2]Node
		for bit, c := range [2]Index{node.Left, node.Right} {
			child, err := trie.node(c)
			if err != nil {
				return err
			}
			if child.Parent != i {
				return fmt.Errorf("%w: node %v parent %v, want %v", ErrCorrupted, c, child.Parent, i)
			}
			if child.Split <= node.Split {
				return fmt.Errorf("%w: node %v split %d under split %d", ErrCorrupted, c, child.Split, node.Split)
			}
			if pos, _ := child.Key.Compare(node.Key, node.Split); pos < node.Split {
				return fmt.Errorf("%w: node %v leaves the prefix of %v at bit %d", ErrCorrupted, c, i, pos)
			}
			if child.Key.Bit(node.Split) != uint8(bit) {
				return fmt.Errorf("%w: node %v on the wrong side of %v", ErrCorrupted, c, i)
			}
			if err = walk(c, child); err != nil {
				return err
			}
			children[bit] = child
		}
		if checkHash {
			if want := trie.hasher.Sum(children[0].Hash[:], children[1].Hash[:]); want != node.Hash {
				return fmt.Errorf("%w: node %v hash %v, want %v", ErrCorrupted, i, node.Hash, want)
			}
		}
		return nil
	}
	if err = walk(meta.Root, root); err != nil {
		return fmt.Errorf("trie.Verify: %w", err)
	}
	if found != leaves {
		return fmt.Errorf("trie.Verify: %w: reached %d of %d leaves", ErrCorrupted, found, leaves)
	}
	return
}

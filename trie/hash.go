// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package trie

import (
	"container/heap"
)

// touch schedules the hash of branch i and its ancestors for recomputation.
// Direct-write stacks update the path immediately.
func (trie *Trie) touch(i Index) error {
	if !i.Valid() {
		return nil
	}
	if trie.stack.DirectWrite() {
		return trie.rehashPath(i)
	}
	trie.stale[i] = struct{}{}
	return nil
}

// rehash recomputes the hash of branch i from its children.
func (trie *Trie) rehash(i Index) (node Node, err error) {
	if node, err = trie.node(i); err != nil {
		return
	}
	left, err := trie.node(node.Left)
	if err != nil {
		return
	}
	right, err := trie.node(node.Right)
	if err != nil {
		return
	}
	hash := trie.hasher.Sum(left.Hash[:], right.Hash[:])
	if hash != node.Hash {
		node.Hash = hash
		err = trie.setNode(i, node)
	}
	return
}

func (trie *Trie) rehashPath(i Index) error {
	for i.Valid() {
		node, err := trie.rehash(i)
		if err != nil {
			return err
		}
		i = node.Parent
	}
	return nil
}

// updateHashes recomputes every stale branch and its ancestors once,
// deepest first, so that each node sees final child hashes.
func (trie *Trie) updateHashes() error {
	if len(trie.stale) == 0 {
		return nil
	}

	queue := make(depthQueue, 0, len(trie.stale))
	queued := make(map[Index]struct{}, len(trie.stale))
	var path []Index
	for i := range trie.stale {
		path = path[:0]
		for j := i; j.Valid(); {
			path = append(path, j)
			node, err := trie.node(j)
			if err != nil {
				return err
			}
			j = node.Parent
		}
		for k, j := range path {
			if _, ok := queued[j]; ok {
				break
			}
			queued[j] = struct{}{}
			queue = append(queue, pending{index: j, depth: len(path) - 1 - k})
		}
	}
	heap.Init(&queue)

	for queue.Len() > 0 {
		next := heap.Pop(&queue).(pending)
		if _, err := trie.rehash(next.index); err != nil {
			return err
		}
	}
	clear(trie.stale)
	return nil
}

type pending struct {
	index Index
	depth int
}

// depthQueue is a max-heap of branches ordered by depth.
type depthQueue []pending

func (q depthQueue) Len() int           { return len(q) }
func (q depthQueue) Less(i, j int) bool { return q[i].depth > q[j].depth }
func (q depthQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *depthQueue) Push(x any)        { *q = append(*q, x.(pending)) }
func (q *depthQueue) Pop() any {
	old := *q
	x := old[len(old)-1]
	*q = old[:len(old)-1]
	return x
}

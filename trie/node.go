// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package trie

import (
	"strconv"

	"github.com/dacapoday/vstore"
	"github.com/dacapoday/vstore/internal/fileio"
)

// Index addresses a node in the node stack.
type Index uint64

// None is the absent index: no parent, no child, empty trie.
const None = Index(fileio.NoIndex)

// Valid reports whether i refers to a node.
func (i Index) Valid() bool {
	return i != None
}

func (i Index) String() string {
	if i == None {
		return "none"
	}
	return strconv.FormatUint(uint64(i), 10)
}

// Node is a trie node. A node is a leaf exactly when Split == KeyBits.
//
// Left and Value occupy the same on-disk slot: Left is only meaningful on
// branches and Value only on leaves. Right is None on leaves.
type Node struct {
	Key    Key
	Hash   vstore.Digest
	Split  uint16
	Parent Index
	Left   Index
	Right  Index
	Value  uint64
}

// IsLeaf reports whether node holds a key/value mapping.
func (node *Node) IsLeaf() bool {
	return node.Split == KeyBits
}

// child returns the branch child on the side given by bit.
func (node *Node) child(bit uint8) Index {
	if bit == 0 {
		return node.Left
	}
	return node.Right
}

// replaceChild rewires the child pointer that referenced from.
func (node *Node) replaceChild(from, to Index) bool {
	switch from {
	case node.Left:
		node.Left = to
	case node.Right:
		node.Right = to
	default:
		return false
	}
	return true
}

// NodeSize is the encoded size of a Node.
//
//	[0:32]   key
//	[32:64]  hash
//	[64:66]  split     uint16 LE
//	[66:72]  reserved
//	[72:80]  parent    uint64 LE, ^0 when none
//	[80:88]  left | value
//	[88:96]  right     uint64 LE, ^0 on leaves
const NodeSize = 96

// NodeCodec is the record codec of trie nodes.
type NodeCodec struct{}

func (NodeCodec) Size() int { return NodeSize }

func (NodeCodec) Encode(dst []byte, node Node) {
	copy(dst[0:32], node.Key[:])
	copy(dst[32:64], node.Hash[:])
	fileio.PutUint16(dst[64:], node.Split)
	clear(dst[66:72])
	fileio.PutUint64(dst[72:], uint64(node.Parent))
	if node.IsLeaf() {
		fileio.PutUint64(dst[80:], node.Value)
		fileio.PutUint64(dst[88:], uint64(None))
	} else {
		fileio.PutUint64(dst[80:], uint64(node.Left))
		fileio.PutUint64(dst[88:], uint64(node.Right))
	}
}

func (NodeCodec) Decode(src []byte) (node Node) {
	copy(node.Key[:], src[0:32])
	copy(node.Hash[:], src[32:64])
	node.Split = fileio.Uint16(src[64:])
	node.Parent = Index(fileio.Uint64(src[72:]))
	if node.IsLeaf() {
		node.Value = fileio.Uint64(src[80:])
		node.Left = None
		node.Right = None
	} else {
		node.Left = Index(fileio.Uint64(src[80:]))
		node.Right = Index(fileio.Uint64(src[88:]))
	}
	return
}

// Meta is the extra header of the node stack.
type Meta struct {
	Root   Index
	Leaves uint64
}

// MetaCodec stores Meta as root u64 LE | leaves u64 LE.
type MetaCodec struct{}

func (MetaCodec) Size() int { return 16 }

func (MetaCodec) Encode(dst []byte, meta Meta) {
	fileio.PutUint64(dst, uint64(meta.Root))
	fileio.PutUint64(dst[8:], meta.Leaves)
}

func (MetaCodec) Decode(src []byte) (meta Meta) {
	meta.Root = Index(fileio.Uint64(src))
	meta.Leaves = fileio.Uint64(src[8:])
	// A zeroed header belongs to a fresh, empty node stack.
	if meta.Leaves == 0 {
		meta.Root = None
	}
	return
}

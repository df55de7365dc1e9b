// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package vstore defines the basic types shared by the versioned document store components.
package vstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/sha3"
)

// File provides access to a storage backend for the record stacks and logs.
// The File interface is the minimum implementation required.
//
// The *os.File type satisfies this interface.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Truncate changes the size of the file.
	Truncate(size int64) error

	// Sync commits the current contents of the file to stable storage.
	Sync() error
}

// DigestSize is the byte width of every hash stored by the engine.
const DigestSize = 32

// Digest is a fixed-width content hash.
type Digest [DigestSize]byte

// IsZero reports whether the digest is all zero bytes.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest decodes a hex encoded digest.
func ParseDigest(s string) (d Digest, err error) {
	if len(s) != 2*DigestSize {
		err = fmt.Errorf("%w: digest length %d", ErrOutOfRange, len(s))
		return
	}
	_, err = hex.Decode(d[:], []byte(s))
	return
}

// Hasher creates the hash function used for leaf and branch digests.
// Its output must be DigestSize bytes.
type Hasher func() hash.Hash

var (
	SHA256    Hasher = sha256.New
	Keccak256 Hasher = sha3.NewLegacyKeccak256
)

// Sum hashes the concatenation of parts.
func (hasher Hasher) Sum(parts ...[]byte) (d Digest) {
	h := hasher()
	for _, part := range parts {
		h.Write(part)
	}
	h.Sum(d[:0])
	return
}

// HasherByName resolves the names persisted in store manifests.
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "", "sha256":
		return SHA256, nil
	case "keccak256":
		return Keccak256, nil
	}
	return nil, fmt.Errorf("%w hasher %q", ErrUnsupported, name)
}

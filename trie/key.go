// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package trie

import (
	"encoding/hex"
	"math/bits"
)

// KeyBytes is the fixed width of trie keys.
const KeyBytes = 32

// KeyBits is the number of bits in a key and the split of every leaf.
const KeyBits = KeyBytes * 8

// Key is a fixed-width trie key. Bits are numbered from the least
// significant bit of byte 0 upwards: bit i is (key[i/8] >> (i%8)) & 1.
// Keys order by the first differing bit, a 0 bit sorting first.
type Key [KeyBytes]byte

// Bit returns bit i of key.
func (key Key) Bit(i uint16) uint8 {
	return (key[i/8] >> (i % 8)) & 1
}

// Compare returns the first bit position below limit at which key and other
// differ, with sign -1 if key has a 0 there and +1 if it has a 1.
// When the first limit bits agree it returns (limit, 0).
func (key Key) Compare(other Key, limit uint16) (pos uint16, sign int) {
	limit = min(limit, KeyBits)
	for b := uint16(0); b*8 < limit; b++ {
		x := key[b] ^ other[b]
		if x == 0 {
			continue
		}
		pos = b*8 + uint16(bits.TrailingZeros8(x))
		if pos >= limit {
			break
		}
		if key.Bit(pos) == 0 {
			return pos, -1
		}
		return pos, 1
	}
	return limit, 0
}

func (key Key) String() string {
	return hex.EncodeToString(key[:])
}

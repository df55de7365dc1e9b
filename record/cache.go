// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"fmt"
	"maps"
	"slices"
)

// Cache defers every write to the wrapped store until Flush.
// Modified records are held encoded, so a Get decodes a private copy just
// as the store would. Reads of records that were not modified fall through
// to the store.
type Cache[T, D any] struct {
	store Store[T, D]
	codec Codec[T]
	dirty map[uint64][]byte

	count      uint64
	extra      D
	extraDirty bool
}

var _ Store[uint64, struct{}] = (*Cache[uint64, struct{}])(nil)

// NewCache wraps store, whose records codec encodes. The cache owns
// store from now on.
func NewCache[T, D any](store Store[T, D], codec Codec[T]) *Cache[T, D] {
	return &Cache[T, D]{
		store: store,
		codec: codec,
		dirty: make(map[uint64][]byte),
		count: store.Len(),
		extra: store.Extra(),
	}
}

func (cache *Cache[T, D]) check(i uint64) error {
	if cache.dirty == nil {
		return ErrClosed
	}
	if i >= cache.count {
		return fmt.Errorf("%w: index %d, len %d", ErrOutOfRange, i, cache.count)
	}
	return nil
}

func (cache *Cache[T, D]) put(i uint64, v T) {
	buf := cache.dirty[i]
	if buf == nil {
		buf = make([]byte, cache.codec.Size())
	}
	cache.codec.Encode(buf, v)
	cache.dirty[i] = buf
}

func (cache *Cache[T, D]) Len() uint64 {
	return cache.count
}

func (cache *Cache[T, D]) DirectWrite() bool {
	return false
}

// Dirty returns the number of records waiting for Flush.
func (cache *Cache[T, D]) Dirty() int {
	return len(cache.dirty)
}

func (cache *Cache[T, D]) Get(i uint64) (v T, err error) {
	if err = cache.check(i); err != nil {
		return
	}
	if buf, ok := cache.dirty[i]; ok {
		return cache.codec.Decode(buf), nil
	}
	return cache.store.Get(i)
}

func (cache *Cache[T, D]) Set(i uint64, v T) (err error) {
	if err = cache.check(i); err != nil {
		return
	}
	cache.put(i, v)
	return
}

func (cache *Cache[T, D]) Push(v T) (i uint64, err error) {
	if cache.dirty == nil {
		err = ErrClosed
		return
	}
	i = cache.count
	cache.put(i, v)
	cache.count++
	return
}

func (cache *Cache[T, D]) Top() (v T, err error) {
	if cache.count == 0 {
		err = ErrEmpty
		return
	}
	return cache.Get(cache.count - 1)
}

func (cache *Cache[T, D]) Pop() (v T, err error) {
	if v, err = cache.Top(); err != nil {
		return
	}
	cache.count--
	delete(cache.dirty, cache.count)
	return
}

func (cache *Cache[T, D]) Swap(i, j uint64) (err error) {
	a, err := cache.Get(i)
	if err != nil {
		return
	}
	b, err := cache.Get(j)
	if err != nil {
		return
	}
	cache.put(i, b)
	cache.put(j, a)
	return
}

func (cache *Cache[T, D]) GetBulk(i uint64, dst []T) (err error) {
	for k := range dst {
		if dst[k], err = cache.Get(i + uint64(k)); err != nil {
			return
		}
	}
	return
}

func (cache *Cache[T, D]) SetBulk(i uint64, src []T) (err error) {
	if len(src) == 0 {
		return
	}
	if err = cache.check(i + uint64(len(src)) - 1); err != nil {
		return
	}
	for k, v := range src {
		cache.put(i+uint64(k), v)
	}
	return
}

func (cache *Cache[T, D]) Resize(n uint64) error {
	if cache.dirty == nil {
		return ErrClosed
	}
	for i := cache.count; i < n; i++ {
		cache.dirty[i] = make([]byte, cache.codec.Size())
	}
	for i := range cache.dirty {
		if i >= n {
			delete(cache.dirty, i)
		}
	}
	cache.count = n
	return nil
}

func (cache *Cache[T, D]) Extra() D {
	return cache.extra
}

func (cache *Cache[T, D]) SetExtra(extra D) error {
	if cache.dirty == nil {
		return ErrClosed
	}
	cache.extra = extra
	cache.extraDirty = true
	return nil
}

// Flush writes the dirty records in index order, then flushes the store.
func (cache *Cache[T, D]) Flush() (err error) {
	if cache.dirty == nil {
		return ErrClosed
	}
	if err = cache.store.Resize(cache.count); err != nil {
		return fmt.Errorf("record.Cache.Flush: %w", err)
	}
	for _, i := range slices.Sorted(maps.Keys(cache.dirty)) {
		if err = cache.store.Set(i, cache.codec.Decode(cache.dirty[i])); err != nil {
			return fmt.Errorf("record.Cache.Flush: %w", err)
		}
	}
	clear(cache.dirty)
	if cache.extraDirty {
		if err = cache.store.SetExtra(cache.extra); err != nil {
			return
		}
		cache.extraDirty = false
	}
	return cache.store.Flush()
}

func (cache *Cache[T, D]) Close() (err error) {
	if cache.dirty == nil {
		return
	}
	err = cache.Flush()
	cache.dirty = nil
	if cerr := cache.store.Close(); err == nil {
		err = cerr
	}
	return
}

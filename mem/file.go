// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package mem provides an in-memory vstore.File.
package mem

import (
	"io"
	"sync"

	"github.com/dacapoday/vstore"
)

const pageSize = 4096

// File is a sparse in-memory file made of fixed-size pages.
// It is safe for concurrent use by multiple goroutines.
//
// File requires no initialization:
//
//	var f mem.File
//	f.WriteAt([]byte("hello"), 0)
//
// Unlike an *os.File, Close keeps the content so that the same File can be
// reopened by a new store, which is how tests simulate a process restart.
type File struct {
	rw    sync.RWMutex
	pages [][]byte
	size  int64
}

var _ vstore.File = new(File)

// Close is a no-op; the content survives until Reset.
func (file *File) Close() error {
	return nil
}

// Reset discards all content.
func (file *File) Reset() {
	file.rw.Lock()
	file.pages = nil
	file.size = 0
	file.rw.Unlock()
}

// Size returns the current size of the file in bytes.
func (file *File) Size() int64 {
	file.rw.RLock()
	defer file.rw.RUnlock()
	return file.size
}

// Clone returns an independent copy of the file.
func (file *File) Clone() *File {
	file.rw.RLock()
	defer file.rw.RUnlock()
	clone := &File{size: file.size, pages: make([][]byte, len(file.pages))}
	for i, page := range file.pages {
		if page != nil {
			clone.pages[i] = append([]byte(nil), page...)
		}
	}
	return clone
}

// WriteAt writes len(p) bytes at off, growing the file as needed.
// Gaps read back as zero bytes.
func (file *File) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	file.rw.Lock()
	defer file.rw.Unlock()

	for n < len(p) {
		pos := off + int64(n)
		idx, at := int(pos/pageSize), int(pos%pageSize)
		page := file.page(idx)
		n += copy(page[at:], p[n:])
	}
	if end := off + int64(len(p)); end > file.size {
		file.size = end
	}
	return
}

// ReadAt reads len(p) bytes from off. It returns io.EOF when the read
// reaches the end of the file before p is filled.
func (file *File) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	file.rw.RLock()
	defer file.rw.RUnlock()

	if off >= file.size {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	want := len(p)
	if rest := file.size - off; int64(want) > rest {
		want = int(rest)
		err = io.EOF
	}
	for n < want {
		pos := off + int64(n)
		idx, at := int(pos/pageSize), int(pos%pageSize)
		chunk := min(pageSize-at, want-n)
		if idx < len(file.pages) && file.pages[idx] != nil {
			copy(p[n:n+chunk], file.pages[idx][at:])
		} else {
			clear(p[n : n+chunk])
		}
		n += chunk
	}
	return
}

// Truncate changes the size of the file. Growing fills with zero bytes.
func (file *File) Truncate(size int64) error {
	if size < 0 {
		return io.ErrUnexpectedEOF
	}
	file.rw.Lock()
	defer file.rw.Unlock()

	if size < file.size {
		keep := int((size + pageSize - 1) / pageSize)
		if keep < len(file.pages) {
			file.pages = file.pages[:keep]
		}
		if at := int(size % pageSize); at != 0 && keep > 0 && file.pages[keep-1] != nil {
			clear(file.pages[keep-1][at:])
		}
	}
	file.size = size
	return nil
}

// Sync is a no-op for in-memory files.
func (file *File) Sync() error {
	return nil
}

func (file *File) page(idx int) []byte {
	for idx >= len(file.pages) {
		file.pages = append(file.pages, nil)
	}
	if file.pages[idx] == nil {
		file.pages[idx] = make([]byte, pageSize)
	}
	return file.pages[idx]
}

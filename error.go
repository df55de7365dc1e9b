package vstore

import "errors"

var (
	ErrClosed           = errors.New("closed")
	ErrUnsupported      = errors.New("unsupported")
	ErrCorrupted        = errors.New("corrupted")
	ErrUnknownMagic     = errors.New("unknown magic code")
	ErrFileTruncated    = errors.New("file truncated")
	ErrOutOfRange       = errors.New("out of range")
	ErrEmpty            = errors.New("empty")
	ErrShortIO          = errors.New("short read or write")
	ErrBookmarkNotFound = errors.New("bookmark not found")
	ErrUnknownHash      = errors.New("unknown hash")
	ErrKeyNotFound      = errors.New("key not found")
	ErrDiverged         = errors.New("stores diverged")
)

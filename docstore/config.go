// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"go.uber.org/zap"
)

// Option configures Open.
type Option func(*Config)

// Config is the configuration of a Store.
//
// BlockCapacity and Hasher are fixed when the store is created; zero values
// adopt whatever the manifest records.
type Config struct {
	Create        bool
	BlockCapacity int
	Hasher        string
	Logger        *zap.Logger
	Mmap          bool
	LazyIndex     bool
}

// DefaultConfig returns the configuration used when no option is passed.
func DefaultConfig() *Config {
	return &Config{
		Logger: zap.NewNop(),
	}
}

// WithCreate creates the directory and files when absent.
func WithCreate(create bool) Option {
	return func(c *Config) {
		c.Create = create
	}
}

// WithBlockCapacity sets the data bytes per blob block of a new store.
func WithBlockCapacity(capacity int) Option {
	return func(c *Config) {
		c.BlockCapacity = capacity
	}
}

// WithHasher selects the digest function by name: "sha256" or "keccak256".
func WithHasher(name string) Option {
	return func(c *Config) {
		c.Hasher = name
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithMmap memory-maps the record files instead of using positioned I/O.
func WithMmap(mmap bool) Option {
	return func(c *Config) {
		c.Mmap = mmap
	}
}

// WithLazyIndex defers trie node writes and hash updates until the root
// hash is needed or the store is flushed.
func WithLazyIndex(lazy bool) Option {
	return func(c *Config) {
		c.LazyIndex = lazy
	}
}

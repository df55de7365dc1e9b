// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/dacapoday/vstore"
	"github.com/dacapoday/vstore/blob"
	"github.com/dacapoday/vstore/trie"
)

const (
	manifestName  = "manifest.cbor"
	formatVersion = 1
)

// Manifest records the immutable parameters of a store directory.
type Manifest struct {
	Version       int       `cbor:"version"`
	BlockCapacity int       `cbor:"block_capacity"`
	Hasher        string    `cbor:"hasher"`
	KeyBytes      int       `cbor:"key_bytes"`
	InstanceID    uuid.UUID `cbor:"instance_id"`
	Created       time.Time `cbor:"created"`
}

func newManifest(cfg *Config) Manifest {
	m := Manifest{
		Version:       formatVersion,
		BlockCapacity: cfg.BlockCapacity,
		Hasher:        cfg.Hasher,
		KeyBytes:      trie.KeyBytes,
		InstanceID:    uuid.New(),
		Created:       time.Now().UTC(),
	}
	if m.BlockCapacity <= 0 {
		m.BlockCapacity = blob.DefaultCapacity
	}
	if m.Hasher == "" {
		m.Hasher = "sha256"
	}
	return m
}

// check rejects a manifest this build cannot serve or that conflicts with cfg.
func (m *Manifest) check(cfg *Config) error {
	switch {
	case m.Version != formatVersion:
		return fmt.Errorf("%w: format version %d", vstore.ErrUnsupported, m.Version)
	case m.KeyBytes != trie.KeyBytes:
		return fmt.Errorf("%w: key width %d, want %d", vstore.ErrCorrupted, m.KeyBytes, trie.KeyBytes)
	case m.BlockCapacity <= 0:
		return fmt.Errorf("%w: block capacity %d", vstore.ErrCorrupted, m.BlockCapacity)
	case cfg.BlockCapacity > 0 && cfg.BlockCapacity != m.BlockCapacity:
		return fmt.Errorf("%w: block capacity %d, store has %d", vstore.ErrCorrupted, cfg.BlockCapacity, m.BlockCapacity)
	case cfg.Hasher != "" && cfg.Hasher != m.Hasher:
		return fmt.Errorf("%w: hasher %q, store has %q", vstore.ErrCorrupted, cfg.Hasher, m.Hasher)
	}
	return nil
}

func readManifest(dir string) (m Manifest, err error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		err = errors.WithStack(err)
		return
	}
	if err = cbor.Unmarshal(data, &m); err != nil {
		err = fmt.Errorf("%w: %s: %v", vstore.ErrCorrupted, manifestName, err)
	}
	return
}

// writeManifest replaces the manifest atomically.
func writeManifest(dir string, m Manifest) error {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	mode, err := opts.EncMode()
	if err != nil {
		return errors.WithStack(err)
	}
	data, err := mode.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}

	path := filepath.Join(dir, manifestName)
	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err = os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "rename %s", tmp)
	}
	return nil
}

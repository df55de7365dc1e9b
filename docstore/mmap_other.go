// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package docstore

import (
	"fmt"
	"os"

	"github.com/dacapoday/vstore"
	"github.com/dacapoday/vstore/record"
)

func openMmap[T, D any](*os.File, record.Codec[T], record.Codec[D], uint16) (record.Store[T, D], error) {
	return nil, fmt.Errorf("docstore: mmap: %w on this platform", vstore.ErrUnsupported)
}

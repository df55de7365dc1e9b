// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package docstore

import (
	"os"

	"github.com/dacapoday/vstore/record"
)

func openMmap[T, D any](file *os.File, codec record.Codec[T], extra record.Codec[D], magic uint16) (record.Store[T, D], error) {
	stack, err := record.OpenMmap(file, codec, extra, magic)
	if err != nil {
		return nil, err
	}
	return stack, nil
}

// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/hex"
	"io"
	"os"
	"strconv"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/dacapoday/vstore/trie"
)

const (
	previewSize  = 48
	minPreview   = 8
	defaultWidth = 80
	// key hex, two tabs and a size column.
	listOverhead = 2*trie.KeyBytes + 16
)

// terminalWidth reports the column count of w when it is an interactive terminal.
func terminalWidth(w io.Writer) (width int, ok bool) {
	f, isFile := w.(*os.File)
	if !isFile || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		width = defaultWidth
	}
	return width, true
}

// previewBudget is the number of document bytes an ls line can show.
func previewBudget(w io.Writer) int {
	width, ok := terminalWidth(w)
	if !ok {
		return previewSize
	}
	return max(minPreview, width-listOverhead)
}

func preview(data []byte, budget int) string {
	if len(data) > budget {
		data = data[:budget]
	}
	if utf8.Valid(data) {
		return strconv.Quote(string(data))
	}
	if len(data) > budget/2 {
		data = data[:budget/2]
	}
	return hex.EncodeToString(data)
}

// writeDocument prints data as is, or as a hex dump when a terminal would
// receive bytes that are not text.
func writeDocument(w io.Writer, data []byte, raw bool) (err error) {
	if _, tty := terminalWidth(w); raw || !tty || utf8.Valid(data) {
		_, err = w.Write(data)
		return
	}
	_, err = io.WriteString(w, hex.Dump(data))
	return
}

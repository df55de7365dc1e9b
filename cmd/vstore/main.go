// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// vstore inspects and edits a versioned document store directory.
//
// Usage:
//
//	vstore --dir ./data --create set alice '{"balance":10}'
//	vstore --dir ./data get alice
//	vstore --dir ./data commit             # prints the committed hash
//	vstore --dir ./data revert <hash>
//	vstore --dir ./data ls --prefix 3f --bits 6
//	vstore --dir ./data verify
//
// Every flag can also be set through the environment (VSTORE_DIR,
// VSTORE_LOG_LEVEL, ...) or a config file given by --config.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

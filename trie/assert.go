//go:build debug

package trie

import "fmt"

// assertTrie panics if the trie fails Verify.
// Only enabled with -tags debug.
func assertTrie(method string, trie *Trie) {
	if err := trie.Verify(); err != nil {
		panic(fmt.Sprintf("%s: %v", method, err))
	}
}

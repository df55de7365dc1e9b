//go:build !debug

package trie

// assertTrie is a no-op in production.
// Enable with -tags debug for runtime checks.
func assertTrie(string, *Trie) {}

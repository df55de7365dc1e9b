// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dacapoday/vstore"
	"github.com/dacapoday/vstore/docstore"
	"github.com/dacapoday/vstore/trie"
)

func (a *app) getCmd() *cobra.Command {
	const flagRaw = "raw"
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print the document stored under name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetBool(flagRaw)
			return a.withStore(func(store *docstore.Store) error {
				doc, err := store.Get(store.KeyOf([]byte(args[0])))
				if err != nil {
					return err
				}
				if doc.Failed {
					return errors.Errorf("%s: not found", args[0])
				}
				return writeDocument(cmd.OutOrStdout(), doc.Data, raw)
			})
		},
	}
	cmd.Flags().Bool(flagRaw, false, "write binary documents to a terminal without a hex dump")
	return cmd
}

func (a *app) setCmd() *cobra.Command {
	const flagFile = "file"
	cmd := &cobra.Command{
		Use:   "set <name> [value]",
		Short: "Store a document from the argument or --file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			switch path, _ := cmd.Flags().GetString(flagFile); {
			case path != "":
				var err error
				if data, err = os.ReadFile(path); err != nil {
					return errors.Wrapf(err, "read %s", path)
				}
			case len(args) == 2:
				data = []byte(args[1])
			default:
				return errors.New("set: value or --file required")
			}
			return a.withStore(func(store *docstore.Store) error {
				return store.Set(store.KeyOf([]byte(args[0])), data)
			})
		},
	}
	cmd.Flags().String(flagFile, "", "read the value from a file")
	return cmd
}

func (a *app) eraseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "erase <name>",
		Short: "Remove the document stored under name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *docstore.Store) error {
				erased, err := store.Erase(store.KeyOf([]byte(args[0])))
				if err != nil {
					return err
				}
				if !erased {
					fmt.Fprintln(cmd.OutOrStdout(), "absent")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "erased")
				return nil
			})
		},
	}
}

// parsePrefix decodes a hex key prefix; bits defaults to its full length.
func parsePrefix(s string, bits int) (prefix trie.Key, n uint16, err error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		err = errors.Wrapf(err, "prefix %q", s)
		return
	}
	if len(raw) > trie.KeyBytes {
		err = errors.Errorf("prefix %q longer than %d bytes", s, trie.KeyBytes)
		return
	}
	copy(prefix[:], raw)
	if bits < 0 {
		bits = 8 * len(raw)
	}
	if bits > 8*len(raw) {
		err = errors.Errorf("prefix %q has fewer than %d bits", s, bits)
		return
	}
	return prefix, uint16(bits), nil
}

func (a *app) lsCmd() *cobra.Command {
	const (
		flagPrefix = "prefix"
		flagBits   = "bits"
	)
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List documents in key order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hexPrefix, _ := cmd.Flags().GetString(flagPrefix)
			bits, _ := cmd.Flags().GetInt(flagBits)
			prefix, n, err := parsePrefix(hexPrefix, bits)
			if err != nil {
				return err
			}
			return a.withStore(func(store *docstore.Store) error {
				out := cmd.OutOrStdout()
				budget := previewBudget(out)
				for entry, err := range store.Subtree(prefix, n) {
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%v\t%d\t%s\n", entry.Key, len(entry.Data), preview(entry.Data, budget))
				}
				return nil
			})
		},
	}
	cmd.Flags().String(flagPrefix, "", "hex key prefix")
	cmd.Flags().Int(flagBits, -1, "number of prefix bits to match (default: all of --prefix)")
	return cmd
}

func (a *app) commitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit",
		Short: "Commit the current state and print its hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *docstore.Store) error {
				hash, err := store.Commit()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), hash)
				return nil
			})
		},
	}
}

func parseHash(s string) (vstore.Digest, error) {
	hash, err := vstore.ParseDigest(s)
	return hash, errors.Wrapf(err, "hash %q", s)
}

func (a *app) revertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revert <hash>",
		Short: "Revert to a committed hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := parseHash(args[0])
			if err != nil {
				return err
			}
			return a.withStore(func(store *docstore.Store) error {
				return store.RevertToHash(hash)
			})
		},
	}
}

func (a *app) hashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Print the root hash of the current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *docstore.Store) error {
				hash, err := store.CurrentHash()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), hash)
				return nil
			})
		},
	}
}

func (a *app) existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <hash>",
		Short: "Report whether a hash was committed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := parseHash(args[0])
			if err != nil {
				return err
			}
			return a.withStore(func(store *docstore.Store) error {
				exists, err := store.HashExists(hash)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), exists)
				return nil
			})
		},
	}
}

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Audit the trie, blob chains and free list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *docstore.Store) error {
				if err := store.VerifyConsistency(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			})
		},
	}
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print store parameters and usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *docstore.Store) error {
				stats, err := store.Stats()
				if err != nil {
					return err
				}
				m := store.Manifest()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "instance:    %s\n", m.InstanceID)
				fmt.Fprintf(out, "created:     %s\n", m.Created.Format("2006-01-02T15:04:05Z07:00"))
				fmt.Fprintf(out, "hasher:      %s\n", m.Hasher)
				fmt.Fprintf(out, "block size:  %d\n", m.BlockCapacity)
				fmt.Fprintf(out, "documents:   %d\n", stats.Documents)
				fmt.Fprintf(out, "trie nodes:  %d\n", stats.Nodes)
				fmt.Fprintf(out, "blocks:      %d (%d free)\n", stats.Blocks, stats.FreeBlocks)
				fmt.Fprintf(out, "commit:      %d %v\n", stats.Seq, stats.Hash)
				return nil
			})
		},
	}
}

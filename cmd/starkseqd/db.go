// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/starkcore/sequencer/cliutil"
	"github.com/starkcore/sequencer/config"
	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/kv"
	"github.com/starkcore/sequencer/kv/pebblekv"
	"github.com/starkcore/sequencer/provider"
	"github.com/starkcore/sequencer/trie"
)

// newDBCmd groups the database utility subcommands (spec §6, "(ii)
// database utilities (open read-only, inspect a trie root, set a stage
// checkpoint)").
func newDBCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database utilities",
	}
	cmd.AddCommand(newDBOpenCmd(load))
	cmd.AddCommand(newDBRootCmd(load))
	cmd.AddCommand(newDBStageCmd(load))
	return cmd
}

func newDBOpenCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Open the database (read-write) and report its schema version and chain tip",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			db, err := pebblekv.Open(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("db open: %w", err)
			}
			defer func() { _ = db.Close() }()

			p := provider.New(db)
			n, exists, err := p.TipBlockNumber(cmd.Context())
			if err != nil {
				return fmt.Errorf("db open: read tip: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version: %s\n", kv.SchemaVersion)
			if !exists {
				fmt.Fprintln(cmd.OutOrStdout(), "chain tip: (empty, no blocks sealed yet)")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "chain tip: block %d\n", n)
			return nil
		},
	}
}

func newDBRootCmd(load configLoader) *cobra.Command {
	var which string
	var addrHex string
	cmd := &cobra.Command{
		Use:   "root",
		Short: "Print a trie's committed root (contracts, classes, or one contract's storage subtrie)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			root, err := inspectTrieRoot(cmd.Context(), cfg, which, addrHex)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", root)
			return nil
		},
	}
	cmd.Flags().StringVar(&which, "trie", "contracts", "trie to inspect: contracts, classes, or storage")
	cmd.Flags().StringVar(&addrHex, "address", "", "contract address (required when --trie=storage)")
	return cmd
}

func inspectTrieRoot(ctx context.Context, cfg config.NodeConfig, which, addrHex string) (felt.Felt, error) {
	db, err := pebblekv.Open(cfg.DataDir)
	if err != nil {
		return felt.Felt{}, fmt.Errorf("db root: %w", err)
	}
	defer func() { _ = db.Close() }()

	p := provider.New(db)
	tx, err := p.BeginRead(ctx)
	if err != nil {
		return felt.Felt{}, fmt.Errorf("db root: %w", err)
	}
	defer tx.Rollback()

	switch which {
	case "contracts":
		return trie.New(p.ContractsTrieStoreRO(tx), felt.Pedersen).Root()
	case "classes":
		return trie.New(p.ClassesTrieStoreRO(tx), felt.Poseidon).Root()
	case "storage":
		if addrHex == "" {
			return felt.Felt{}, newUsageError("db root --trie=storage requires --address")
		}
		raw, err := felt.ParseHex(addrHex)
		if err != nil {
			return felt.Felt{}, newUsageError("db root: --address: %v", err)
		}
		addr := felt.NewContractAddress(raw)
		return trie.New(p.StorageTrieStoreRO(tx, addr), felt.Pedersen).Root()
	default:
		return felt.Felt{}, newUsageError("db root: unknown --trie %q: must be contracts, classes, or storage", which)
	}
}

func newDBStageCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "stage <name> [block_number]",
		Short: "Read or set a stage checkpoint",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			db, err := pebblekv.Open(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("db stage: %w", err)
			}
			defer func() { _ = db.Close() }()

			name := args[0]
			if len(args) == 1 {
				n, ok, err := readStageCheckpoint(cmd.Context(), db, name)
				if err != nil {
					return fmt.Errorf("db stage: %w", err)
				}
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: (unset)\n", name)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", name, n)
				return nil
			}

			n, ok := cliutil.ParseUint64(args[1])
			if !ok {
				return newUsageError("db stage: invalid block number %q", args[1])
			}
			if err := writeStageCheckpoint(cmd.Context(), db, name, n); err != nil {
				return fmt.Errorf("db stage: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: set to %d\n", name, n)
			return nil
		},
	}
}

func readStageCheckpoint(ctx context.Context, db kv.Db, name string) (uint64, bool, error) {
	var n uint64
	var ok bool
	err := db.View(ctx, func(tx kv.RoTx) error {
		v, err := tx.Get(kv.StageCheckpoints, []byte(name))
		if err == kv.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		n = kv.DecodeBlockNum(v)
		return nil
	})
	return n, ok, err
}

func writeStageCheckpoint(ctx context.Context, db kv.Db, name string, n uint64) error {
	return db.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put(kv.StageCheckpoints, []byte(name), kv.EncodeBlockNum(n))
	})
}

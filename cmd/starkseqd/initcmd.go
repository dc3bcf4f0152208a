// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/starkcore/sequencer/config"
)

// newInitCmd scaffolds a chain config directory (spec §6, "(iii) init
// (create a chain config directory)").
func newInitCmd() *cobra.Command {
	var chainID string
	cmd := &cobra.Command{
		Use:   "init <directory>",
		Short: "Create a chain config directory with a default config.yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			cfg := config.Default()
			if chainID != "" {
				cfg.Chain.ChainID = chainID
			}
			if err := config.WriteChainConfigDir(dir, cfg); err != nil {
				return fmt.Errorf("init: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote chain config to %s\n", dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&chainID, "chain-id", "", "chain id as a 0x-prefixed hex string (default: Starknet Sepolia)")
	return cmd
}

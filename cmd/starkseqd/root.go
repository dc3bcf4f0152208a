// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

// Command starkseqd is the sequencer node's single top-level binary: node
// launch, database utilities, chain config initialization and shell
// completion, all as cobra subcommands (spec §6, "CLI surface"). It is
// intentionally thin — every subcommand wires the core packages
// (provider, txpool, produce, query) together and gets out of the way;
// no JSON-RPC transport is started here, since that surface, like the
// CLI itself, only has its contract specified, not its wire
// implementation.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/starkcore/sequencer/config"
)

// usageError marks a cobra RunE failure as an operator mistake (bad flag
// combination, missing argument) rather than a runtime fault, so main can
// tell the two apart for exit code 2 vs 1 (spec §6, "Exit codes").
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func newUsageError(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// rootFlags holds the persistent flags every subcommand reads through the
// shared viper instance.
type rootFlags struct {
	configPath string
	dataDir    string
	dev        bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	v := viper.New()

	root := &cobra.Command{
		Use:           "starkseqd",
		Short:         "Starknet sequencer node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a config.yaml (default: none, built-in defaults apply)")
	root.PersistentFlags().StringVar(&flags.dataDir, "datadir", "", "database directory (overrides config file)")
	root.PersistentFlags().BoolVar(&flags.dev, "dev", false, "enable development-mode logging and relaxed defaults")

	loadConfig := func() (config.NodeConfig, error) {
		if err := v.BindPFlag("datadir", root.PersistentFlags().Lookup("datadir")); err != nil {
			return config.NodeConfig{}, err
		}
		if err := v.BindPFlag("dev", root.PersistentFlags().Lookup("dev")); err != nil {
			return config.NodeConfig{}, err
		}
		cfg, err := config.Load(v, flags.configPath)
		if err != nil {
			return config.NodeConfig{}, err
		}
		if flags.dataDir != "" {
			cfg.DataDir = flags.dataDir
		}
		if flags.dev {
			cfg.Dev = true
		}
		return cfg, nil
	}

	root.AddCommand(newNodeCmd(loadConfig))
	root.AddCommand(newDBCmd(loadConfig))
	root.AddCommand(newInitCmd())
	root.AddCommand(newCompletionCmd())
	return root
}

// Execute runs the CLI and returns the process exit code (spec §6, "Exit
// codes: 0 on clean shutdown, 1 on fatal error, 2 on usage error").
func Execute() int {
	root := newRootCmd()
	err := root.Execute()
	if err == nil {
		return 0
	}
	var usage *usageError
	if errors.As(err, &usage) {
		fmt.Fprintln(os.Stderr, "usage error:", usage.Error())
		return 2
	}
	fmt.Fprintln(os.Stderr, "fatal:", err)
	return 1
}

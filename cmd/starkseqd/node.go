// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/starkcore/sequencer/config"
	"github.com/starkcore/sequencer/executor"
	"github.com/starkcore/sequencer/executor/noop"
	"github.com/starkcore/sequencer/kv/pebblekv"
	"github.com/starkcore/sequencer/logctx"
	"github.com/starkcore/sequencer/produce"
	"github.com/starkcore/sequencer/provider"
	"github.com/starkcore/sequencer/query"
	"github.com/starkcore/sequencer/txpool"
)

// configLoader is how node/db subcommands obtain a fully-resolved
// config.NodeConfig from the root command's persistent flags, viper state
// and (optionally) a config file.
type configLoader func() (config.NodeConfig, error)

func newNodeCmd(load configLoader) *cobra.Command {
	var flavor string
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Launch a sequencer node",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch flavor {
			case "sequencer":
			case "forked", "optimistic":
				return newUsageError("node flavor %q is not implemented by this binary: only 'sequencer' runs a real block producer, the forking and gateway-proxy operating modes are extensibility hooks only", flavor)
			default:
				return newUsageError("unknown node flavor %q: must be one of sequencer, forked, optimistic", flavor)
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			return runSequencerNode(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&flavor, "flavor", "sequencer", "node flavor: sequencer, forked, or optimistic")
	return cmd
}

// runSequencerNode wires the storage engine, the transaction pool and the
// block producer together and runs until the process receives an
// interrupt or the producer reports a catastrophic error (spec §4.6,
// "Concurrency"). It deliberately starts no RPC transport: that surface's
// contract is query.Facade, and this module only specifies the contract,
// not the wire server that would expose it.
func runSequencerNode(ctx context.Context, cfg config.NodeConfig) error {
	log, err := logctx.New(cfg.Dev)
	if err != nil {
		return fmt.Errorf("node: build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfgEnv, err := cfg.Chain.ExecutorCfgEnv()
	if err != nil {
		return fmt.Errorf("node: %w", err)
	}
	producerCfg, err := cfg.Mining.ProducerConfig()
	if err != nil {
		return fmt.Errorf("node: %w", err)
	}

	db, err := pebblekv.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("node: open database at %s: %w", cfg.DataDir, err)
	}
	defer func() { _ = db.Close() }()

	p := provider.New(db)
	pool := txpool.New(txpool.NoopValidator{}, txpool.FIFOOrdering{})
	// noop is the only ExecutorFactory this module carries: no Cairo VM is
	// wired in here (spec §1, "the core depends on an opaque
	// ExecutorFactory"); a real deployment supplies its own factory
	// implementation at this same seam.
	factory := noop.New(cfgEnv, executor.ExecutionFlags{})

	bp := produce.New(p, pool, factory, producerCfg, logctx.Component(log, "produce"))
	facade := query.New(p, pool, bp, factory)

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errs := make(chan error, 1)
	go func() { errs <- bp.Run(runCtx) }()
	go logChainProgress(runCtx, facade, logctx.Component(log, "node"))

	select {
	case <-runCtx.Done():
		logctx.Component(log, "node").Info("shutting down")
		return nil
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("node: block producer stopped: %w", err)
		}
		return nil
	}
}

// logChainProgress periodically reports the chain tip and pool size
// through the same query.Facade a transport layer would be handed,
// standing in for that transport's own status endpoint until one exists.
func logChainProgress(ctx context.Context, f *query.Facade, log *zap.SugaredLogger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := f.BlockNumber(ctx)
			if err != nil {
				continue
			}
			log.Infow("chain progress", "block_number", n, "pool_size", f.Status().Size)
		}
	}
}

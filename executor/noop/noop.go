// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

// Package noop is a reference ExecutorFactory that runs no VM at all: every
// transaction is accepted and produces an empty state diff. It exists to
// exercise the block producer and provider wiring end to end without a real
// Cairo VM available, exactly as
// original_source/crates/executor/src/implementation/noop.rs stands in for
// blockifier in katana's own test harness.
package noop

import (
	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/executor"
	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/provider"
)

// Factory is a no-op ExecutorFactory. The zero value is ready to use.
type Factory struct {
	cfg   executor.CfgEnv
	flags executor.ExecutionFlags
}

// New returns a no-op factory carrying cfg and flags, forwarded unchanged
// to every executor it constructs.
func New(cfg executor.CfgEnv, flags executor.ExecutionFlags) *Factory {
	return &Factory{cfg: cfg, flags: flags}
}

func (f *Factory) WithState(state provider.StateReader) executor.BlockExecutor {
	return f.WithStateAndBlockEnv(state, executor.BlockEnv{})
}

func (f *Factory) WithStateAndBlockEnv(state provider.StateReader, blockEnv executor.BlockEnv) executor.BlockExecutor {
	return &blockExecutor{state: state, blockEnv: blockEnv, output: executor.NewExecutionOutput()}
}

func (f *Factory) Cfg() executor.CfgEnv                    { return f.cfg }
func (f *Factory) ExecutionFlags() executor.ExecutionFlags { return f.flags }

// blockExecutor executes nothing: every transaction it is handed is counted
// as processed and recorded with an empty, non-reverted ExecutionResult, and
// contributes no change to the state diff.
type blockExecutor struct {
	state    provider.StateReader
	blockEnv executor.BlockEnv
	output   executor.ExecutionOutput
}

func (e *blockExecutor) ExecuteBlock(block executor.ExecutableBlock) error {
	e.blockEnv = block.BlockEnv
	_, err := e.ExecuteTransactions(block.Transactions)
	if err != nil {
		return err
	}
	return nil
}

func (e *blockExecutor) ExecuteTransactions(txs []chain.Tx) (int, *executor.ExecutorError) {
	for _, tx := range txs {
		e.output.Transactions = append(e.output.Transactions, executor.TxWithResult{
			Tx:     tx,
			Result: chain.ExecutionResult{},
		})
	}
	return len(txs), nil
}

func (e *blockExecutor) TakeExecutionOutput() (executor.ExecutionOutput, error) {
	out := e.output
	e.output = executor.NewExecutionOutput()
	return out, nil
}

func (e *blockExecutor) State() provider.StateReader { return e.state }

func (e *blockExecutor) Transactions() []executor.TxWithResult { return e.output.Transactions }

func (e *blockExecutor) BlockEnv() executor.BlockEnv { return e.blockEnv }

func (e *blockExecutor) SetStorageAt(addr felt.ContractAddress, key felt.StorageKey, value felt.StorageValue) error {
	return nil
}

// Call always returns an empty result: there is no VM behind this executor
// to run the entry point against.
func (e *blockExecutor) Call(executor.EntryPointCall) ([]felt.Felt, error) {
	return nil, nil
}

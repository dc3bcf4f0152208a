// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package noop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/executor"
	"github.com/starkcore/sequencer/felt"
)

type zeroStateReader struct{}

func (zeroStateReader) Nonce(felt.ContractAddress) (felt.Nonce, error) { return felt.Nonce{}, nil }
func (zeroStateReader) StorageAt(felt.ContractAddress, felt.StorageKey) (felt.StorageValue, error) {
	return felt.StorageValue{}, nil
}
func (zeroStateReader) ClassHashAt(felt.ContractAddress) (felt.ClassHash, error) {
	return felt.ClassHash{}, nil
}
func (zeroStateReader) CompiledClassHash(felt.ClassHash) (felt.CompiledClassHash, error) {
	return felt.CompiledClassHash{}, nil
}
func (zeroStateReader) Close() {}

func TestFactoryForwardsCfgAndFlags(t *testing.T) {
	cfg := executor.CfgEnv{InvokeTxMaxNSteps: 1_000_000}
	flags := executor.ExecutionFlags{SkipFeeCharge: true}
	f := New(cfg, flags)

	assert.Equal(t, cfg, f.Cfg())
	assert.Equal(t, flags, f.ExecutionFlags())
}

func TestExecuteTransactionsCountsEveryTxAsProcessed(t *testing.T) {
	f := New(executor.CfgEnv{}, executor.ExecutionFlags{})
	exec := f.WithStateAndBlockEnv(zeroStateReader{}, executor.BlockEnv{Number: 1})

	txs := []chain.Tx{
		{Kind: chain.TxKindInvoke, Hash: felt.NewTxHash(felt.FromUint64(1))},
		{Kind: chain.TxKindInvoke, Hash: felt.NewTxHash(felt.FromUint64(2))},
	}
	processed, execErr := exec.ExecuteTransactions(txs)
	require.Nil(t, execErr)
	assert.Equal(t, 2, processed)
	assert.Len(t, exec.Transactions(), 2)
	for _, tr := range exec.Transactions() {
		assert.False(t, tr.Result.Reverted)
	}
}

func TestTakeExecutionOutputDrainsAndResets(t *testing.T) {
	f := New(executor.CfgEnv{}, executor.ExecutionFlags{})
	exec := f.WithState(zeroStateReader{})

	_, execErr := exec.ExecuteTransactions([]chain.Tx{{Kind: chain.TxKindInvoke, Hash: felt.NewTxHash(felt.FromUint64(9))}})
	require.Nil(t, execErr)

	out, err := exec.TakeExecutionOutput()
	require.NoError(t, err)
	assert.Len(t, out.Transactions, 1)
	assert.NotNil(t, out.StateUpdates)

	out2, err := exec.TakeExecutionOutput()
	require.NoError(t, err)
	assert.Empty(t, out2.Transactions)
	assert.Empty(t, exec.Transactions())
}

func TestExecuteBlockSetsBlockEnv(t *testing.T) {
	f := New(executor.CfgEnv{}, executor.ExecutionFlags{})
	exec := f.WithState(zeroStateReader{})

	block := executor.ExecutableBlock{
		BlockEnv:     executor.BlockEnv{Number: 42, Timestamp: 100},
		Transactions: []chain.Tx{{Kind: chain.TxKindInvoke, Hash: felt.NewTxHash(felt.FromUint64(3))}},
	}
	require.NoError(t, exec.ExecuteBlock(block))
	assert.Equal(t, uint64(42), exec.BlockEnv().Number)
}

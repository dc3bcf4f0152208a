// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/executor"
	"github.com/starkcore/sequencer/executor/noop"
	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/kv/pebblekv"
	"github.com/starkcore/sequencer/produce"
	"github.com/starkcore/sequencer/provider"
	"github.com/starkcore/sequencer/txpool"
)

func newTestFacade(t *testing.T) (*Facade, *provider.DbProvider, *txpool.Pool, *produce.BlockProducer) {
	t.Helper()
	db, err := pebblekv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p := provider.New(db)
	pool := txpool.New(txpool.NoopValidator{}, txpool.FIFOOrdering{})
	factory := noop.New(executor.CfgEnv{}, executor.ExecutionFlags{})
	bp := produce.Instant(p, pool, factory, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = bp.Run(ctx) }()

	f := New(p, pool, bp, factory)
	return f, p, pool, bp
}

func invokeTx(sender felt.ContractAddress, nonce, hashSeed uint64) chain.Tx {
	return chain.Tx{
		Kind: chain.TxKindInvoke,
		Hash: felt.NewTxHash(felt.FromUint64(hashSeed)),
		Invoke: &chain.InvokeTx{
			Version:       3,
			SenderAddress: sender,
			Nonce:         felt.NewNonce(felt.FromUint64(nonce)),
		},
	}
}

func awaitBlock(t *testing.T, bp *produce.BlockProducer) produce.MinedBlockOutcome {
	t.Helper()
	select {
	case o := <-bp.Outcomes():
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no block sealed")
		return produce.MinedBlockOutcome{}
	}
}

func TestBlockNumberAndBlockByNumber(t *testing.T) {
	f, _, pool, bp := newTestFacade(t)
	ctx := context.Background()

	sender := felt.NewContractAddress(felt.FromUint64(1))
	hash := felt.NewTxHash(felt.FromUint64(100))
	_, err := pool.AddTransaction(ctx, invokeTx(sender, 0, 100))
	require.NoError(t, err)
	awaitBlock(t, bp)

	n, err := f.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	view, err := f.Block(ctx, AtNumber(0))
	require.NoError(t, err)
	assert.False(t, view.Pending)
	require.Len(t, view.Body, 1)
	assert.Equal(t, hash, view.Body[0].Hash)

	_, err = f.Block(ctx, AtNumber(5))
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestTransactionByHashAcrossLifecycle(t *testing.T) {
	f, _, pool, bp := newTestFacade(t)
	ctx := context.Background()

	_, status, _, err := f.TransactionByHash(ctx, felt.NewTxHash(felt.FromUint64(999)))
	require.ErrorIs(t, err, ErrTransactionNotFound)
	assert.Equal(t, TxStatusNotFound, status)

	sender := felt.NewContractAddress(felt.FromUint64(2))
	hash := felt.NewTxHash(felt.FromUint64(200))
	_, err = pool.AddTransaction(ctx, invokeTx(sender, 0, 200))
	require.NoError(t, err)
	awaitBlock(t, bp)

	tx, status, blockNum, err := f.TransactionByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, TxStatusAcceptedOnL2, status)
	assert.Equal(t, uint64(0), blockNum)
	assert.Equal(t, hash, tx.Hash)

	receipt, status, blockNum, err := f.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, TxStatusAcceptedOnL2, status)
	assert.Equal(t, uint64(0), blockNum)
	assert.Equal(t, hash, receipt.TransactionHash)
}

func TestPendingBlockIDResolvesToPendingExecutor(t *testing.T) {
	f, _, _, bp := newTestFacade(t)
	// No blocks sealed yet, so falling back to Latest would fail with
	// ErrBlockNotFound; once the instant producer has opened its pending
	// executor, Pending resolves to it instead.
	ctx := context.Background()
	require.Eventually(t, func() bool {
		_, ok := bp.PendingExecutor()
		return ok
	}, 2*time.Second, time.Millisecond)
	_, pending, err := f.resolveNumber(ctx, Pending())
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestEventsPagination(t *testing.T) {
	f, p, pool, bp := newTestFacade(t)
	ctx := context.Background()

	sender := felt.NewContractAddress(felt.FromUint64(3))
	_, err := pool.AddTransaction(ctx, invokeTx(sender, 0, 300))
	require.NoError(t, err)
	awaitBlock(t, bp)

	_ = p
	page, err := f.Events(ctx, EventFilter{}, "", 10)
	require.NoError(t, err)
	// The noop executor records no events, so the filtered set is empty and
	// no continuation token is issued.
	assert.Empty(t, page.Events)
	assert.Empty(t, page.ContinuationToken)
}

func TestPoolInspection(t *testing.T) {
	f, _, pool, _ := newTestFacade(t)
	ctx := context.Background()

	sender := felt.NewContractAddress(felt.FromUint64(4))
	_, err := pool.AddTransaction(ctx, invokeTx(sender, 0, 400))
	require.NoError(t, err)

	// The instant producer's pump goroutine may or may not have drained the
	// notification into the pending executor by now; either outcome (still
	// queued, or already executed) is a valid snapshot, so assert only on
	// what must hold regardless of timing.
	status := f.Status()
	assert.GreaterOrEqual(t, status.Size, 0)
}

func TestStorageProofRejectsNonTipBlocks(t *testing.T) {
	f, _, pool, bp := newTestFacade(t)
	ctx := context.Background()

	sender := felt.NewContractAddress(felt.FromUint64(5))
	_, err := pool.AddTransaction(ctx, invokeTx(sender, 0, 500))
	require.NoError(t, err)
	awaitBlock(t, bp)

	_, err = pool.AddTransaction(ctx, invokeTx(sender, 1, 501))
	require.NoError(t, err)
	awaitBlock(t, bp)

	_, err = f.StorageProof(ctx, AtNumber(0), StorageProofRequest{})
	assert.ErrorIs(t, err, ErrHistoricalProofUnsupported)

	proof, err := f.StorageProof(ctx, Latest(), StorageProofRequest{
		Contracts: []felt.ContractAddress{sender},
	})
	require.NoError(t, err)
	senderKey := sender.Felt().Bytes()
	assert.Contains(t, proof.ContractProof.Paths, string(senderKey[:]))
}

func TestCallDispatchesThroughFactory(t *testing.T) {
	f, _, pool, bp := newTestFacade(t)
	ctx := context.Background()

	sender := felt.NewContractAddress(felt.FromUint64(6))
	_, err := pool.AddTransaction(ctx, invokeTx(sender, 0, 600))
	require.NoError(t, err)
	awaitBlock(t, bp)

	out, err := f.Call(ctx, Latest(), executor.EntryPointCall{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package txpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/felt"
)

func invokeTx(sender felt.ContractAddress, nonce uint64, hashSeed uint64, tip uint64) chain.Tx {
	return chain.Tx{
		Kind: chain.TxKindInvoke,
		Hash: felt.NewTxHash(felt.FromUint64(hashSeed)),
		Invoke: &chain.InvokeTx{
			Version:       3,
			SenderAddress: sender,
			Nonce:         felt.NewNonce(felt.FromUint64(nonce)),
			V3:            chain.CommonV3Fields{Tip: tip},
		},
	}
}

func TestAddTransactionRejectsDuplicateHash(t *testing.T) {
	p := New(NoopValidator{}, FIFOOrdering{})
	sender := felt.NewContractAddress(felt.FromUint64(1))
	tx := invokeTx(sender, 0, 100, 0)

	_, err := p.AddTransaction(context.Background(), tx)
	require.NoError(t, err)

	_, err = p.AddTransaction(context.Background(), tx)
	require.Error(t, err)
	var ite *InvalidTransactionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, InvalidDuplicateHash, ite.Kind)
}

func TestAddTransactionRejectsNonceGap(t *testing.T) {
	p := New(NoopValidator{}, FIFOOrdering{})
	sender := felt.NewContractAddress(felt.FromUint64(2))

	_, err := p.AddTransaction(context.Background(), invokeTx(sender, 0, 1, 0))
	require.NoError(t, err)

	_, err = p.AddTransaction(context.Background(), invokeTx(sender, 2, 2, 0))
	require.Error(t, err)
	var ite *InvalidTransactionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, InvalidNonceGap, ite.Kind)

	_, err = p.AddTransaction(context.Background(), invokeTx(sender, 1, 3, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Size())
}

func TestGetNonceReflectsHighestPendingPlusOne(t *testing.T) {
	p := New(NoopValidator{}, FIFOOrdering{})
	sender := felt.NewContractAddress(felt.FromUint64(3))

	_, ok := p.GetNonce(sender)
	assert.False(t, ok)

	_, err := p.AddTransaction(context.Background(), invokeTx(sender, 0, 1, 0))
	require.NoError(t, err)
	_, err = p.AddTransaction(context.Background(), invokeTx(sender, 1, 2, 0))
	require.NoError(t, err)

	n, ok := p.GetNonce(sender)
	require.True(t, ok)
	assert.Equal(t, "0x2", n.Felt().String())
}

func TestSoftCapBackpressure(t *testing.T) {
	p := New(NoopValidator{}, FIFOOrdering{}).WithSoftCap(2)
	sender := felt.NewContractAddress(felt.FromUint64(4))

	for i := uint64(0); i < 2; i++ {
		_, err := p.AddTransaction(context.Background(), invokeTx(sender, i, i+1, 0))
		require.NoError(t, err)
	}
	_, err := p.AddTransaction(context.Background(), invokeTx(sender, 2, 99, 0))
	require.Error(t, err)
}

func TestTipOrderingDrainsHighestTipFirst(t *testing.T) {
	p := New(NoopValidator{}, TipOrdering{})
	a := felt.NewContractAddress(felt.FromUint64(10))
	b := felt.NewContractAddress(felt.FromUint64(11))

	_, err := p.AddTransaction(context.Background(), invokeTx(a, 0, 1, 5))
	require.NoError(t, err)
	_, err = p.AddTransaction(context.Background(), invokeTx(b, 0, 2, 50))
	require.NoError(t, err)

	snap := p.TakeTransactionsSnapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, uint64(50), snap[0].Tx.Tip())
	assert.Equal(t, uint64(5), snap[1].Tx.Tip())
}

func TestRemoveTransactionsClearsSenderBucket(t *testing.T) {
	p := New(NoopValidator{}, FIFOOrdering{})
	sender := felt.NewContractAddress(felt.FromUint64(20))
	tx := invokeTx(sender, 0, 1, 0)

	hash, err := p.AddTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, p.Contains(hash))

	p.RemoveTransactions([]felt.TxHash{hash})
	assert.False(t, p.Contains(hash))
	_, ok := p.GetNonce(sender)
	assert.False(t, ok)

	// No gap now that the bucket is empty.
	_, err = p.AddTransaction(context.Background(), invokeTx(sender, 5, 2, 0))
	assert.NoError(t, err)
}

func TestPendingTransactionsDrainsFIFOAndWakesOnInsert(t *testing.T) {
	p := New(NoopValidator{}, FIFOOrdering{})
	sender := felt.NewContractAddress(felt.FromUint64(30))

	_, err := p.AddTransaction(context.Background(), invokeTx(sender, 0, 1, 0))
	require.NoError(t, err)
	_, err = p.AddTransaction(context.Background(), invokeTx(sender, 1, 2, 0))
	require.NoError(t, err)

	stream := p.PendingTransactions()
	e1, ok := stream.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, "0x1", e1.Tx.Hash.Felt().String())

	e2, ok := stream.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, "0x2", e2.Tx.Hash.Felt().String())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, ok := stream.Next(ctx)
		assert.False(t, ok)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Next did not return after context cancellation")
	}
}

func TestAddListenerReceivesInsertedHashes(t *testing.T) {
	p := New(NoopValidator{}, FIFOOrdering{})
	ch, cancel := p.AddListener()
	defer cancel()

	sender := felt.NewContractAddress(felt.FromUint64(40))
	hash, err := p.AddTransaction(context.Background(), invokeTx(sender, 0, 7, 0))
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, hash, got)
	case <-time.After(time.Second):
		t.Fatal("listener did not receive inserted hash")
	}
}

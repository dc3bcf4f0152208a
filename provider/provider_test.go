// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/kv/pebblekv"
)

func newTestProvider(t *testing.T) *DbProvider {
	t.Helper()
	db, err := pebblekv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func simpleBlock(number uint64, sender felt.ContractAddress) (chain.Block, []chain.Receipt) {
	tx := chain.Tx{
		Kind: chain.TxKindInvoke,
		Hash: felt.NewTxHash(felt.FromUint64(1000 + number)),
		Invoke: &chain.InvokeTx{
			Version:       3,
			SenderAddress: sender,
			Nonce:         felt.NewNonce(felt.FromUint64(number)),
		},
	}
	blk := chain.Block{
		Header: chain.Header{Number: number, Timestamp: 1700000000 + number},
		Body:   chain.Body{tx},
	}
	receipts := []chain.Receipt{{TransactionHash: tx.Hash}}
	return blk, receipts
}

func TestInsertAndReadBlock(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	sender := felt.NewContractAddress(felt.FromUint64(42))

	blk, receipts := simpleBlock(0, sender)
	updates := chain.NewStateUpdates()
	updates.NonceUpdates[sender] = felt.NewNonce(felt.FromUint64(1))

	require.NoError(t, p.InsertBlock(ctx, 0, blk, receipts, 0, updates))

	got, err := p.BlockByNumber(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got.Body, 1)
	assert.True(t, got.Body[0].Hash.Felt().Equal(blk.Body[0].Hash.Felt()))

	r, err := p.ReceiptByTxHash(ctx, blk.Body[0].Hash)
	require.NoError(t, err)
	assert.True(t, r.TransactionHash.Felt().Equal(blk.Body[0].Hash.Felt()))

	sr, err := p.Latest(ctx)
	require.NoError(t, err)
	defer sr.Close()
	n, err := sr.Nonce(sender)
	require.NoError(t, err)
	assert.Equal(t, felt.FromUint64(1).String(), n.Felt().String())
}

func TestHistoricalStateReconstruction(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	addr := felt.NewContractAddress(felt.FromUint64(7))

	blk0, r0 := simpleBlock(0, addr)
	u0 := chain.NewStateUpdates()
	u0.NonceUpdates[addr] = felt.NewNonce(felt.FromUint64(1))
	require.NoError(t, p.InsertBlock(ctx, 0, blk0, r0, 0, u0))

	blk1, r1 := simpleBlock(1, addr)
	u1 := chain.NewStateUpdates()
	u1.NonceUpdates[addr] = felt.NewNonce(felt.FromUint64(2))
	require.NoError(t, p.InsertBlock(ctx, 1, blk1, r1, 1, u1))

	latest, err := p.Latest(ctx)
	require.NoError(t, err)
	n, err := latest.Nonce(addr)
	require.NoError(t, err)
	assert.Equal(t, "0x2", n.Felt().String())
	latest.Close()

	hist, err := p.Historical(ctx, 1)
	require.NoError(t, err)
	n, err = hist.Nonce(addr)
	require.NoError(t, err)
	assert.Equal(t, "0x1", n.Felt().String())
	hist.Close()

	hist0, err := p.Historical(ctx, 0)
	require.NoError(t, err)
	n, err = hist0.Nonce(addr)
	require.NoError(t, err)
	assert.True(t, n.IsZero())
	hist0.Close()
}

func TestPendingStateProviderOverlay(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	addr := felt.NewContractAddress(felt.FromUint64(3))

	base, err := p.Latest(ctx)
	require.NoError(t, err)
	defer base.Close()

	pending := chain.NewStateUpdates()
	pending.NonceUpdates[addr] = felt.NewNonce(felt.FromUint64(9))

	overlay := NewPendingStateProvider(base, pending)
	n, err := overlay.Nonce(addr)
	require.NoError(t, err)
	assert.Equal(t, "0x9", n.Felt().String())
}

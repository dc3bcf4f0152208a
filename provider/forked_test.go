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
	"github.com/starkcore/sequencer/trie"
)

// fakeUpstream records in called whether a state read reached it, so tests
// that expect a purely local answer can assert it was not queried instead
// of silently passing on a wrong upstream value.
type fakeUpstream struct {
	nonce        felt.Nonce
	storage      felt.StorageValue
	class        felt.ClassHash
	proof        trie.MultiProof
	proofRoot    felt.Felt
	called       bool
	proofQueried bool
}

func (u *fakeUpstream) Nonce(context.Context, uint64, felt.ContractAddress) (felt.Nonce, error) {
	u.called = true
	return u.nonce, nil
}

func (u *fakeUpstream) StorageAt(context.Context, uint64, felt.ContractAddress, felt.StorageKey) (felt.StorageValue, error) {
	u.called = true
	return u.storage, nil
}

func (u *fakeUpstream) ClassHashAt(context.Context, uint64, felt.ContractAddress) (felt.ClassHash, error) {
	u.called = true
	return u.class, nil
}

func (u *fakeUpstream) ContractsMultiproof(context.Context, uint64, []felt.ContractAddress) (trie.MultiProof, felt.Felt, error) {
	u.proofQueried = true
	return u.proof, u.proofRoot, nil
}

func TestForkedStateReaderDoesNotFallThroughOnLocalZero(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	sender := felt.NewContractAddress(felt.FromUint64(7))
	storageKey := felt.NewStorageKey(felt.FromUint64(1))

	blk, receipts := simpleBlock(0, sender)
	updates := chain.NewStateUpdates()
	// A freshly-deployed contract: nonce 0, explicitly written, not absent.
	updates.DeployedContracts[sender] = felt.NewClassHash(felt.FromUint64(99))
	updates.NonceUpdates[sender] = felt.Nonce{}
	// A post-fork write that sets a storage slot back to zero.
	updates.StorageUpdates[sender] = map[felt.StorageKey]felt.StorageValue{
		storageKey: {},
	}
	require.NoError(t, p.InsertBlock(ctx, 0, blk, receipts, 0, updates))

	upstream := &fakeUpstream{
		nonce:   felt.NewNonce(felt.FromUint64(42)),
		storage: felt.NewStorageValue(felt.FromUint64(42)),
	}
	fp := NewForkedProvider(p, upstream, 0)
	r, err := fp.LatestForked(ctx)
	require.NoError(t, err)
	defer r.Close()

	n, err := r.Nonce(sender)
	require.NoError(t, err)
	assert.True(t, n.IsZero())
	assert.False(t, upstream.called, "nonce written locally as zero must not fall through to upstream")

	v, err := r.StorageAt(sender, storageKey)
	require.NoError(t, err)
	assert.True(t, v.Felt().IsZero())
	assert.False(t, upstream.called, "storage slot written locally as zero must not fall through to upstream")
}

func TestForkedStateReaderFallsThroughWhenAbsentLocally(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	preForkSender := felt.NewContractAddress(felt.FromUint64(8))
	storageKey := felt.NewStorageKey(felt.FromUint64(1))

	upstream := &fakeUpstream{
		nonce:   felt.NewNonce(felt.FromUint64(42)),
		storage: felt.NewStorageValue(felt.FromUint64(42)),
		class:   felt.NewClassHash(felt.FromUint64(123)),
	}
	fp := NewForkedProvider(p, upstream, 0)
	r, err := fp.LatestForked(ctx)
	require.NoError(t, err)
	defer r.Close()

	n, err := r.Nonce(preForkSender)
	require.NoError(t, err)
	assert.True(t, n.Felt().Equal(upstream.nonce.Felt()))
	assert.True(t, upstream.called)

	upstream.called = false
	v, err := r.StorageAt(preForkSender, storageKey)
	require.NoError(t, err)
	assert.True(t, v.Felt().Equal(upstream.storage.Felt()))
	assert.True(t, upstream.called)

	upstream.called = false
	c, err := r.ClassHashAt(preForkSender)
	require.NoError(t, err)
	assert.True(t, c.Felt().Equal(upstream.class.Felt()))
	assert.True(t, upstream.called)
}

func TestImportContractsSubsetSeedsPartialTrie(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	addr := felt.NewContractAddress(felt.FromUint64(9))
	want := felt.FromUint64(777)

	// Stand in for "upstream" by building a real contracts trie against the
	// same local db and taking its root/proof, exercising the same
	// trie.Trie machinery an actual upstream node would use to answer a
	// proof RPC.
	wtx, err := p.BeginWrite(ctx)
	require.NoError(t, err)
	full := trie.New(p.ContractsTrieStore(wtx), felt.Pedersen)
	full.Insert(addr.Felt(), want)
	root, err := full.Commit(1)
	require.NoError(t, err)
	proof, err := full.Multiproof([]felt.Felt{addr.Felt()})
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	upstream := &fakeUpstream{proof: proof, proofRoot: root}
	fp := NewForkedProvider(p, upstream, 0)

	pt, err := fp.ImportContractsSubset(ctx, []felt.ContractAddress{addr})
	require.NoError(t, err)
	assert.True(t, upstream.proofQueried)
	assert.True(t, pt.Root().Equal(root))

	got, err := pt.Multiproof([]felt.Felt{addr.Felt()})
	require.NoError(t, err)
	require.Len(t, got.Paths, 1)
	for _, steps := range got.Paths {
		assert.True(t, trie.Verify(felt.Pedersen, root, want, steps))
	}
}

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkcore/sequencer/felt"
)

func TestHeaderBlockHashDeterministic(t *testing.T) {
	h := Header{
		Number:        1,
		Timestamp:     1700000000,
		SequencerAddr: felt.NewContractAddress(felt.FromUint64(42)),
	}
	h1 := h.BlockHash()
	h2 := h.BlockHash()
	assert.Equal(t, h1.String(), h2.String())

	h.Number = 2
	h3 := h.BlockHash()
	assert.NotEqual(t, h1.String(), h3.String())
}

func TestGenesisToStateUpdates(t *testing.T) {
	addr := felt.NewContractAddress(felt.FromUint64(1))
	classHash := felt.NewClassHash(felt.FromUint64(2))
	key := felt.NewStorageKey(felt.FromUint64(3))
	val := felt.NewStorageValue(felt.FromUint64(4))

	g := Genesis{
		Classes: []ContractClass{{Kind: ClassKindSierra, Hash: classHash}},
		Allocations: []GenesisAllocation{
			{
				Address: addr,
				Class:   classHash,
				Storage: map[felt.StorageKey]felt.StorageValue{key: val},
			},
		},
	}

	u := g.ToStateUpdates()
	require.Contains(t, u.DeployedContracts, addr)
	assert.Equal(t, classHash, u.DeployedContracts[addr])
	require.Contains(t, u.DeclaredClasses, classHash)
	require.Contains(t, u.StorageUpdates, addr)
	assert.Equal(t, val, u.StorageUpdates[addr][key])
}

func TestVersionedHeaderRoundTrip(t *testing.T) {
	h := Header{Number: 7, SequencerAddr: felt.NewContractAddress(felt.FromUint64(9))}
	v := FromHeader(h)

	b, err := v.MarshalBinary()
	require.NoError(t, err)

	var got VersionedHeader
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, h.Number, got.Header.Number)
	assert.True(t, h.SequencerAddr.Felt().Equal(got.Header.SequencerAddr.Felt()))
}

func TestVersionedTxRoundTrip(t *testing.T) {
	tx := Tx{
		Kind: TxKindInvoke,
		Hash: felt.NewTxHash(felt.FromUint64(123)),
		Invoke: &InvokeTx{
			Version:       3,
			SenderAddress: felt.NewContractAddress(felt.FromUint64(5)),
			Nonce:         felt.NewNonce(felt.FromUint64(1)),
			Calldata:      []felt.Felt{felt.FromUint64(1), felt.FromUint64(2)},
		},
	}
	v := FromTx(tx)

	b, err := v.MarshalBinary()
	require.NoError(t, err)

	var got VersionedTx
	require.NoError(t, got.UnmarshalBinary(b))
	require.NotNil(t, got.Tx.Invoke)
	assert.Equal(t, TxKindInvoke, got.Tx.Kind)
	assert.True(t, tx.Hash.Felt().Equal(got.Tx.Hash.Felt()))
	assert.Len(t, got.Tx.Invoke.Calldata, 2)
}

func TestVersionedContractClassRoundTrip(t *testing.T) {
	c := ContractClass{Kind: ClassKindLegacy, Hash: felt.NewClassHash(felt.FromUint64(77)), Raw: []byte{1, 2, 3}}
	v := FromContractClass(c)

	b, err := v.MarshalBinary()
	require.NoError(t, err)

	var got VersionedContractClass
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, ClassKindLegacy, got.Class.Kind)
	assert.Equal(t, []byte{1, 2, 3}, got.Class.Raw)
}

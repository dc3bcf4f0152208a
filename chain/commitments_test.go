// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starkcore/sequencer/felt"
)

func TestTxCommitmentOrderSensitive(t *testing.T) {
	a := Tx{Hash: felt.NewTxHash(felt.FromUint64(1))}
	b := Tx{Hash: felt.NewTxHash(felt.FromUint64(2))}

	c1 := TxCommitment(Body{a, b})
	c2 := TxCommitment(Body{b, a})
	assert.False(t, c1.Equal(c2))

	c3 := TxCommitment(Body{a, b})
	assert.True(t, c1.Equal(c3))
}

func TestEventCommitmentCountsAcrossReceipts(t *testing.T) {
	receipts := []Receipt{
		{Events: []Event{{FromAddress: felt.NewContractAddress(felt.FromUint64(1))}}},
		{Events: []Event{{FromAddress: felt.NewContractAddress(felt.FromUint64(2))}, {FromAddress: felt.NewContractAddress(felt.FromUint64(3))}}},
	}
	_, count := EventCommitment(receipts)
	assert.Equal(t, uint32(3), count)
}

func TestStateDiffCommitmentIsInsensitiveToMapIterationOrder(t *testing.T) {
	addr1 := felt.NewContractAddress(felt.FromUint64(10))
	addr2 := felt.NewContractAddress(felt.FromUint64(20))

	u1 := NewStateUpdates()
	u1.NonceUpdates[addr1] = felt.NewNonce(felt.FromUint64(1))
	u1.NonceUpdates[addr2] = felt.NewNonce(felt.FromUint64(2))

	u2 := NewStateUpdates()
	u2.NonceUpdates[addr2] = felt.NewNonce(felt.FromUint64(2))
	u2.NonceUpdates[addr1] = felt.NewNonce(felt.FromUint64(1))

	c1, l1 := StateDiffCommitment(u1)
	c2, l2 := StateDiffCommitment(u2)
	assert.True(t, c1.Equal(c2))
	assert.Equal(t, l1, l2)
	assert.Equal(t, uint32(2), l1)
}

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package txpool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/provider"
)

type fakeStateReader struct {
	nonce felt.Nonce
}

func (f *fakeStateReader) Nonce(felt.ContractAddress) (felt.Nonce, error) { return f.nonce, nil }
func (f *fakeStateReader) StorageAt(felt.ContractAddress, felt.StorageKey) (felt.StorageValue, error) {
	return felt.StorageValue{}, nil
}
func (f *fakeStateReader) ClassHashAt(felt.ContractAddress) (felt.ClassHash, error) {
	return felt.ClassHash{}, nil
}
func (f *fakeStateReader) CompiledClassHash(felt.ClassHash) (felt.CompiledClassHash, error) {
	return felt.CompiledClassHash{}, nil
}
func (f *fakeStateReader) Close() {}

func TestStatefulValidatorRejectsStaleNonce(t *testing.T) {
	reader := &fakeStateReader{nonce: felt.NewNonce(felt.FromUint64(5))}
	v := &StatefulValidator{State: func(context.Context) (provider.StateReader, error) { return reader, nil }}

	tx := invokeTx(felt.NewContractAddress(felt.FromUint64(1)), 3, 1, 0)
	err := v.Validate(context.Background(), tx)
	require.Error(t, err)
	var ite *InvalidTransactionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, InvalidNonceGap, ite.Kind)
}

func TestStatefulValidatorAcceptsExpectedNonce(t *testing.T) {
	reader := &fakeStateReader{nonce: felt.NewNonce(felt.FromUint64(5))}
	v := &StatefulValidator{State: func(context.Context) (provider.StateReader, error) { return reader, nil }}

	tx := invokeTx(felt.NewContractAddress(felt.FromUint64(1)), 5, 1, 0)
	assert.NoError(t, v.Validate(context.Background(), tx))
}

// TestStatefulValidatorRejectsNonceGapAhead covers spec scenario S3: sender
// committed at nonce 0, nothing pending, submit nonce=2. Nothing downstream
// of the validator catches this (Pool.checkNonceGapLocked explicitly defers
// the no-pending-entries case to the validator), so the validator alone must
// reject it.
func TestStatefulValidatorRejectsNonceGapAhead(t *testing.T) {
	reader := &fakeStateReader{nonce: felt.NewNonce(felt.FromUint64(0))}
	v := &StatefulValidator{State: func(context.Context) (provider.StateReader, error) { return reader, nil }}

	tx := invokeTx(felt.NewContractAddress(felt.FromUint64(1)), 2, 1, 0)
	err := v.Validate(context.Background(), tx)
	require.Error(t, err)
	var ite *InvalidTransactionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, InvalidNonceGap, ite.Kind)
}

// TestStatefulValidatorUsesPendingNonceChain covers the legitimate case
// PendingNonce exists for: a sender already has one pending transaction in
// the pool, chaining up from committed nonce 0 to pool-next nonce 1. A
// second submission at nonce 1 is not a gap even though it's ahead of the
// committed state nonce, since PendingNonce reports the pool already
// chains up to it.
func TestStatefulValidatorUsesPendingNonceChain(t *testing.T) {
	reader := &fakeStateReader{nonce: felt.NewNonce(felt.FromUint64(0))}
	v := &StatefulValidator{
		State: func(context.Context) (provider.StateReader, error) { return reader, nil },
		PendingNonce: func(felt.ContractAddress) (felt.Nonce, bool) {
			return felt.NewNonce(felt.FromUint64(1)), true
		},
	}

	tx := invokeTx(felt.NewContractAddress(felt.FromUint64(1)), 1, 1, 0)
	assert.NoError(t, v.Validate(context.Background(), tx))

	gapTx := invokeTx(felt.NewContractAddress(felt.FromUint64(1)), 3, 2, 0)
	err := v.Validate(context.Background(), gapTx)
	require.Error(t, err)
	var ite *InvalidTransactionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, InvalidNonceGap, ite.Kind)
}

func TestStatefulValidatorAcceptsZeroNonceDeployAccount(t *testing.T) {
	v := &StatefulValidator{State: func(context.Context) (provider.StateReader, error) { return nil, errors.New("should not be called") }}
	tx := chain.Tx{
		Kind:          chain.TxKindDeployAccount,
		Hash:          felt.NewTxHash(felt.FromUint64(1)),
		DeployAccount: &chain.DeployAccountTx{Version: 3, Nonce: felt.Nonce{}},
	}
	assert.NoError(t, v.Validate(context.Background(), tx))
}

type fakeGateway struct {
	err error
}

func (g *fakeGateway) SubmitTransaction(context.Context, chain.Tx) error { return g.err }

func TestGatewayProxyValidatorAdoptsUpstreamVerdict(t *testing.T) {
	ok := &GatewayProxyValidator{Upstream: &fakeGateway{}}
	assert.NoError(t, ok.Validate(context.Background(), invokeTx(felt.NewContractAddress(felt.FromUint64(1)), 0, 1, 0)))

	rejected := &GatewayProxyValidator{Upstream: &fakeGateway{err: errors.New("bad signature upstream")}}
	err := rejected.Validate(context.Background(), invokeTx(felt.NewContractAddress(felt.FromUint64(1)), 0, 2, 0))
	require.Error(t, err)
}

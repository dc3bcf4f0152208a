// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package felt

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeltRoundTrip(t *testing.T) {
	f := FromUint64(0x1234)
	b := f.Bytes()
	got, err := FromBytesBE(b[:])
	require.NoError(t, err)
	assert.True(t, f.Equal(got))
}

func TestContractAddressReduction(t *testing.T) {
	// I5: every ContractAddress must satisfy addr < 2**251 - 256, even when
	// constructed from a raw Felt that overflows that bound.
	huge := new(big.Int).Lsh(big.NewInt(1), 252)
	addr := NewContractAddress(FromBigInt(huge))
	assert.True(t, addr.Felt().BigInt().Cmp(addrReductionModulus) < 0)
}

func TestFeltOrderingTotal(t *testing.T) {
	a := FromUint64(1)
	b := FromUint64(2)
	assert.Equal(t, -1, a.Cmp(b))
	assert.Equal(t, 1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(a))
}

func TestHashesAreDeterministicAndDistinct(t *testing.T) {
	a, b := FromUint64(7), FromUint64(11)
	p1 := Pedersen(a, b)
	p2 := Pedersen(a, b)
	assert.True(t, p1.Equal(p2), "pedersen must be deterministic")

	h1 := Poseidon(a, b)
	assert.False(t, h1.Equal(p1), "poseidon and pedersen must not collide trivially")
}

func TestPedersenArrayMatchesManualFold(t *testing.T) {
	elems := []Felt{FromUint64(1), FromUint64(2), FromUint64(3)}
	got := PedersenArray(elems...)

	acc := Zero()
	for _, e := range elems {
		acc = Pedersen(acc, e)
	}
	want := Pedersen(acc, FromUint64(uint64(len(elems))))
	assert.True(t, got.Equal(want))
}

func TestMustFromHex(t *testing.T) {
	f := MustFromHex("0x1a")
	assert.Equal(t, FromUint64(26).String(), f.String())
}

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package trie

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkcore/sequencer/felt"
)

func TestPartialTrieInsertAndCommit(t *testing.T) {
	store := newMemStore()
	full := New(store, felt.Pedersen)
	full.Insert(felt.FromUint64(1), felt.FromUint64(100))
	root, err := full.Commit(1)
	require.NoError(t, err)

	proof, err := full.Multiproof([]felt.Felt{felt.FromUint64(1)})
	require.NoError(t, err)

	pt := NewPartial(felt.Pedersen, root, proof, map[string]felt.Felt{
		keyOf(felt.FromUint64(1)): felt.FromUint64(100),
	})

	require.NoError(t, pt.Insert(felt.FromUint64(1), felt.FromUint64(200)))
	newRoot, err := pt.Commit(2)
	require.NoError(t, err)
	assert.False(t, newRoot.Equal(root))

	_, err = pt.Commit(1)
	assert.Error(t, err, "commit ids must be strictly increasing")
}

func TestPartialTrieMultiproofRejectsUnknownKey(t *testing.T) {
	pt := NewPartial(felt.Pedersen, felt.Felt{}, MultiProof{Paths: map[string][]ProofStep{}}, map[string]felt.Felt{})
	_, err := pt.Multiproof([]felt.Felt{felt.FromUint64(1)})
	assert.Error(t, err)
}

func TestPartialTrieImportMultiproofGrowsKnownKeys(t *testing.T) {
	store := newMemStore()
	full := New(store, felt.Poseidon)
	full.Insert(felt.FromUint64(1), felt.FromUint64(111))
	full.Insert(felt.FromUint64(2), felt.FromUint64(222))
	root, err := full.Commit(1)
	require.NoError(t, err)

	proof1, err := full.Multiproof([]felt.Felt{felt.FromUint64(1)})
	require.NoError(t, err)
	pt := NewPartial(felt.Poseidon, root, proof1, map[string]felt.Felt{
		keyOf(felt.FromUint64(1)): felt.FromUint64(111),
	})

	// key 2 isn't known yet.
	_, err = pt.Multiproof([]felt.Felt{felt.FromUint64(2)})
	require.Error(t, err)

	proof2, err := full.Multiproof([]felt.Felt{felt.FromUint64(2)})
	require.NoError(t, err)
	got, err := pt.ImportMultiproof([]felt.Felt{felt.FromUint64(2)}, proof2, root)
	require.NoError(t, err)

	steps := got.Paths[keyOf(felt.FromUint64(2))]
	assert.True(t, Verify(felt.Poseidon, root, felt.FromUint64(222), steps))
	assert.True(t, pt.Root().Equal(root))

	// key 1 is still known after the import.
	_, err = pt.Multiproof([]felt.Felt{felt.FromUint64(1)})
	require.NoError(t, err)
}

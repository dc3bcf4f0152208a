// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package trie

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkcore/sequencer/felt"
)

// memStore is a trivial in-memory NodeStore used only by this package's
// tests, so the trie algorithm can be exercised without pulling in the
// pebble-backed kv store.
type memStore struct {
	latest map[string]Node
	byGen  map[string][]genEntry
}

type genEntry struct {
	commit CommitID
	node   Node
}

func newMemStore() *memStore {
	return &memStore{latest: map[string]Node{}, byGen: map[string][]genEntry{}}
}

func memKey(p Path) string {
	b := make([]byte, len(p.Bits))
	for i, bit := range p.Bits {
		if bit {
			b[i] = 1
		}
	}
	return string(b)
}

func (m *memStore) GetNode(p Path) (Node, bool, error) {
	n, ok := m.latest[memKey(p)]
	return n, ok, nil
}

func (m *memStore) GetNodeAsOf(p Path, commitID CommitID) (Node, bool, error) {
	entries := m.byGen[memKey(p)]
	var best *genEntry
	for i := range entries {
		if entries[i].commit <= commitID {
			best = &entries[i]
		}
	}
	if best == nil {
		return Node{}, false, nil
	}
	return best.node, true, nil
}

func (m *memStore) PutNode(p Path, n Node, commitID CommitID) error {
	k := memKey(p)
	m.latest[k] = n
	m.byGen[k] = append(m.byGen[k], genEntry{commit: commitID, node: n})
	return nil
}

func (m *memStore) DeleteNode(p Path) error {
	delete(m.latest, memKey(p))
	return nil
}

func TestTrieInsertAndCommitChangesRoot(t *testing.T) {
	store := newMemStore()
	tr := New(store, felt.Pedersen)

	r0, err := tr.Commit(1)
	require.NoError(t, err)
	assert.True(t, r0.IsZero())

	tr.Insert(felt.FromUint64(1), felt.FromUint64(100))
	r1, err := tr.Commit(2)
	require.NoError(t, err)
	assert.False(t, r1.IsZero())

	tr.Insert(felt.FromUint64(2), felt.FromUint64(200))
	r2, err := tr.Commit(3)
	require.NoError(t, err)
	assert.NotEqual(t, r1.String(), r2.String())
}

func TestTrieCommitIsOrderIndependent(t *testing.T) {
	s1, s2 := newMemStore(), newMemStore()
	t1 := New(s1, felt.Poseidon)
	t2 := New(s2, felt.Poseidon)

	t1.Insert(felt.FromUint64(1), felt.FromUint64(10))
	t1.Insert(felt.FromUint64(2), felt.FromUint64(20))
	r1, err := t1.Commit(1)
	require.NoError(t, err)

	t2.Insert(felt.FromUint64(2), felt.FromUint64(20))
	t2.Insert(felt.FromUint64(1), felt.FromUint64(10))
	r2, err := t2.Commit(1)
	require.NoError(t, err)

	assert.Equal(t, r1.String(), r2.String())
}

func TestMultiproofVerifies(t *testing.T) {
	store := newMemStore()
	tr := New(store, felt.Pedersen)
	tr.Insert(felt.FromUint64(1), felt.FromUint64(111))
	tr.Insert(felt.FromUint64(2), felt.FromUint64(222))
	root, err := tr.Commit(1)
	require.NoError(t, err)

	mp, err := tr.Multiproof([]felt.Felt{felt.FromUint64(1)})
	require.NoError(t, err)

	steps := mp.Paths[keyOf(felt.FromUint64(1))]
	assert.True(t, Verify(felt.Pedersen, root, felt.FromUint64(111), steps))
	assert.False(t, Verify(felt.Pedersen, root, felt.FromUint64(999), steps))
}

func TestHistoricalReadViaGetNodeAsOf(t *testing.T) {
	store := newMemStore()
	tr := New(store, felt.Pedersen)

	tr.Insert(felt.FromUint64(5), felt.FromUint64(50))
	rootAt1, err := tr.Commit(1)
	require.NoError(t, err)

	tr.Insert(felt.FromUint64(5), felt.FromUint64(999))
	_, err = tr.Commit(2)
	require.NoError(t, err)

	root, found, err := store.GetNodeAsOf(Path{}, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rootAt1.String(), root.Value.String())
}

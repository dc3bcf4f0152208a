// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package trie

import (
	"fmt"

	"github.com/starkcore/sequencer/felt"
)

// ProofStep is one sibling hash encountered walking from a leaf to the
// root, MSB-first (the order Verify expects to replay them).
type ProofStep struct {
	SiblingIsRight bool
	Sibling        felt.Felt
}

// MultiProof is an authentication path for a set of keys, the Go analogue
// of bonsai-trie's MultiProof (original_source/crates/trie/src/lib.rs):
// one path per requested key, each provable independently against the same
// root. Paths for keys sharing a prefix are not deduplicated; callers that
// need compact wire proofs should dedupe by (depth, path-prefix) before
// serialising, which this core does not currently do (spec's multiproof
// Non-goals do not require wire-level minimality, only correctness).
type MultiProof struct {
	Paths map[string][]ProofStep
}

// Multiproof builds a MultiProof for the given keys against the trie's
// current committed root.
func (t *Trie) Multiproof(keys []felt.Felt) (MultiProof, error) {
	mp := MultiProof{Paths: make(map[string][]ProofStep, len(keys))}
	for _, k := range keys {
		steps, err := t.proveOne(k)
		if err != nil {
			return MultiProof{}, fmt.Errorf("trie: proving key %s: %w", k, err)
		}
		mp.Paths[keyOf(k)] = steps
	}
	return mp, nil
}

func (t *Trie) proveOne(key felt.Felt) ([]ProofStep, error) {
	path := pathOf(key)
	steps := make([]ProofStep, 0, len(path.Bits))
	cur := Path{}
	for _, bit := range path.Bits {
		node, found, err := t.store.GetNode(cur)
		if err != nil {
			return nil, err
		}
		if !found || node.Kind != NodeKindBinary {
			break
		}
		if bit {
			steps = append(steps, ProofStep{SiblingIsRight: false, Sibling: node.Left})
		} else {
			steps = append(steps, ProofStep{SiblingIsRight: true, Sibling: node.Right})
		}
		cur = appendBit(cur, bit)
	}
	return steps, nil
}

// Verify recomputes a root from a leaf value and its proof steps (root-most
// step first, the order Multiproof produces by walking root to leaf and
// appending — so replay walks the slice in reverse, deepest step first) and
// reports whether it matches root.
func Verify(hash HashFn, root felt.Felt, leafValue felt.Felt, steps []ProofStep) bool {
	acc := leafValue
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if s.SiblingIsRight {
			acc = hash(acc, s.Sibling)
		} else {
			acc = hash(s.Sibling, acc)
		}
	}
	return acc.Equal(root)
}

// PartialTrie is a trie instantiated from a multiproof rather than a full
// node store: it can insert a new leaf and recompute the root along the
// proven path without holding the rest of the tree, the mode katana uses
// for sync (PartialMerkleTrees, original_source/crates/trie/src/lib.rs).
// It cannot answer queries outside the keys it was given proofs for, and it
// can grow its known key-set by importing a further multiproof (spec §4.2,
// "Partial mode", partial_multiproof) rather than re-syncing from scratch.
type PartialTrie struct {
	hash HashFn
	root felt.Felt
	// leaves holds every leaf value this partial trie was seeded with or
	// has since inserted, keyed by the Felt key's canonical byte encoding.
	leaves  map[string]felt.Felt
	proofs  map[string][]ProofStep
	commits []partialCommit
}

// partialCommit records the root a partial trie held as of block.
type partialCommit struct {
	block uint64
	root  felt.Felt
}

// NewPartial seeds a partial trie from a multiproof rooted at originalRoot.
func NewPartial(hash HashFn, originalRoot felt.Felt, proof MultiProof, leafValues map[string]felt.Felt) *PartialTrie {
	return &PartialTrie{hash: hash, root: originalRoot, leaves: leafValues, proofs: proof.Paths}
}

// Insert updates a proven leaf's value and recomputes the trie's root using
// only that leaf's authentication path, without touching any other subtree
// (the defining property of a partial/Merkle-proof-backed trie).
func (p *PartialTrie) Insert(key, value felt.Felt) error {
	k := keyOf(key)
	steps, ok := p.proofs[k]
	if !ok {
		return fmt.Errorf("trie: key %s has no multiproof in this partial trie", key)
	}
	p.leaves[k] = value
	acc := value
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if s.SiblingIsRight {
			acc = p.hash(acc, s.Sibling)
		} else {
			acc = p.hash(s.Sibling, acc)
		}
	}
	p.root = acc
	return nil
}

// Root returns the partial trie's current root.
func (p *PartialTrie) Root() felt.Felt { return p.root }

// Commit associates the partial trie's current root with blockNumber as a
// commit id (spec §4.2, "commit(block_number)"). Unlike Trie.Commit, there
// is no full node set to flush to a backing table — a partial trie by
// definition only knows the subtrees along its proven paths — so all this
// persists is the (block_number -> root) association itself; commit ids
// must still be strictly increasing, matching the full-mode contract.
func (p *PartialTrie) Commit(blockNumber uint64) (felt.Felt, error) {
	if n := len(p.commits); n > 0 && blockNumber <= p.commits[n-1].block {
		return felt.Felt{}, fmt.Errorf("trie: partial commit id %d is not strictly increasing after %d", blockNumber, p.commits[n-1].block)
	}
	p.commits = append(p.commits, partialCommit{block: blockNumber, root: p.root})
	return p.root, nil
}

// Multiproof builds a MultiProof for keys against the partial trie's current
// view. Unlike Trie.Multiproof, it cannot walk an arbitrary key down from a
// full node store: it can only return proofs for keys it already holds an
// authentication path for (spec §4.2, "It cannot answer queries outside the
// keys it was given proofs for").
func (p *PartialTrie) Multiproof(keys []felt.Felt) (MultiProof, error) {
	mp := MultiProof{Paths: make(map[string][]ProofStep, len(keys))}
	for _, k := range keys {
		key := keyOf(k)
		steps, ok := p.proofs[key]
		if !ok {
			return MultiProof{}, fmt.Errorf("trie: partial trie has no proof for key %s", k)
		}
		mp.Paths[key] = steps
	}
	return mp, nil
}

// ImportMultiproof is partial_multiproof (spec §4.2, partial-mode only): it
// merges importedProof's authentication paths into this partial trie's
// known view, adopts importedRoot as the trie's current root, and then
// returns a fresh multiproof for keys against that new view. This is how a
// forked sequencer (provider.ForkedProvider) pulls in proofs for
// previously-unknown pre-fork keys from an upstream node on demand, without
// ever downloading the rest of the tree.
func (p *PartialTrie) ImportMultiproof(keys []felt.Felt, importedProof MultiProof, importedRoot felt.Felt) (MultiProof, error) {
	for k, steps := range importedProof.Paths {
		p.proofs[k] = steps
	}
	p.root = importedRoot
	return p.Multiproof(keys)
}

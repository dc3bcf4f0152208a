// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package provider

import (
	"context"
	"fmt"

	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/kv"
	"github.com/starkcore/sequencer/trie"
)

// UpstreamClient is the minimal surface a forked sequencer needs from an
// upstream Starknet JSON-RPC node, grounded on the forking sequencer's
// client usage (original_source/crates/node/src/sequencer/forked.rs calls
// get_block_with_tx_hashes / get_nonce / get_storage_at / get_class_hash_at
// against the fork point). The core never speaks RPC itself: a concrete
// client implementation is provided at the node-assembly layer outside this
// module's scope.
type UpstreamClient interface {
	Nonce(ctx context.Context, blockNum uint64, addr felt.ContractAddress) (felt.Nonce, error)
	StorageAt(ctx context.Context, blockNum uint64, addr felt.ContractAddress, key felt.StorageKey) (felt.StorageValue, error)
	ClassHashAt(ctx context.Context, blockNum uint64, addr felt.ContractAddress) (felt.ClassHash, error)

	// ContractsMultiproof fetches a multiproof for addrs against the
	// contracts trie root at blockNum, the RPC analogue of the Starknet
	// node's own pathfinder-style proof endpoint. Used by
	// ImportContractsSubset to populate a trie.PartialTrie without
	// downloading the whole contracts trie (spec §4.2, "Partial mode").
	ContractsMultiproof(ctx context.Context, blockNum uint64, addrs []felt.ContractAddress) (trie.MultiProof, felt.Felt, error)
}

// ForkedProvider answers state reads from the local db for anything
// written locally (post-fork blocks), and falls through to an upstream RPC
// client for anything at or before the fork point — the local db starts
// empty there, so every miss is by definition pre-fork (spec §4.3,
// "forked mode").
type ForkedProvider struct {
	*DbProvider
	upstream  UpstreamClient
	forkBlock uint64
	ctx       context.Context
}

// NewForkedProvider wraps local with an upstream fallback rooted at forkBlock.
func NewForkedProvider(local *DbProvider, upstream UpstreamClient, forkBlock uint64) *ForkedProvider {
	return &ForkedProvider{DbProvider: local, upstream: upstream, forkBlock: forkBlock}
}

// ImportContractsSubset pulls a multiproof for addrs from the upstream RPC
// at the fork point and returns a trie.PartialTrie seeded from it: the
// partial-mode sync path spec §4.2 describes, importing proof-backed state
// for a handful of pre-fork contracts without downloading the rest of the
// contracts trie. Callers that need per-key proofs against pre-fork state
// (e.g. answering a storage-proof RPC for an address this local db has no
// post-fork history for) use this instead of paying for a full trie sync.
func (p *ForkedProvider) ImportContractsSubset(ctx context.Context, addrs []felt.ContractAddress) (*trie.PartialTrie, error) {
	keys := make([]felt.Felt, len(addrs))
	for i, a := range addrs {
		keys[i] = a.Felt()
	}
	proof, root, err := p.upstream.ContractsMultiproof(ctx, p.forkBlock, addrs)
	if err != nil {
		return nil, fmt.Errorf("provider: import contracts subset: %w", err)
	}
	pt := trie.NewPartial(felt.Pedersen, felt.Felt{}, trie.MultiProof{}, map[string]felt.Felt{})
	if _, err := pt.ImportMultiproof(keys, proof, root); err != nil {
		return nil, fmt.Errorf("provider: import contracts subset: %w", err)
	}
	return pt, nil
}

// LatestForked is Latest() with upstream fallback wired in.
func (p *ForkedProvider) LatestForked(ctx context.Context) (StateReader, error) {
	tx, err := p.DbProvider.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	return &forkedStateReader{ctx: ctx, tx: tx, upstream: p.upstream, forkBlock: p.forkBlock}, nil
}

// forkedStateReader reads the raw local tables directly (rather than going
// through latestStateReader's already-zero-collapsed return values) so it
// can tell "this key was never written locally" from "this key was written
// locally and its value happens to be zero" — a post-fork transaction that
// writes a storage slot back to zero, or a freshly-deployed contract's
// nonce, must not fall through to the upstream RPC just because the stored
// value is the field's zero element.
type forkedStateReader struct {
	ctx       context.Context
	tx        kv.RoTx
	upstream  UpstreamClient
	forkBlock uint64
}

func (r *forkedStateReader) Nonce(addr felt.ContractAddress) (felt.Nonce, error) {
	raw, err := r.tx.Get(kv.ContractInfo, addr.Bytes())
	if err == kv.ErrKeyNotFound {
		return r.upstream.Nonce(r.ctx, r.forkBlock, addr)
	}
	if err != nil {
		return felt.Nonce{}, err
	}
	_, nonce, err := decodeContractInfo(raw)
	return nonce, err
}

func (r *forkedStateReader) ClassHashAt(addr felt.ContractAddress) (felt.ClassHash, error) {
	raw, err := r.tx.Get(kv.ContractInfo, addr.Bytes())
	if err == kv.ErrKeyNotFound {
		return r.upstream.ClassHashAt(r.ctx, r.forkBlock, addr)
	}
	if err != nil {
		return felt.ClassHash{}, err
	}
	class, _, err := decodeContractInfo(raw)
	return class, err
}

func (r *forkedStateReader) StorageAt(addr felt.ContractAddress, key felt.StorageKey) (felt.StorageValue, error) {
	raw, err := r.tx.Get(kv.Storage, storageKey(addr, key))
	if err == kv.ErrKeyNotFound {
		return r.upstream.StorageAt(r.ctx, r.forkBlock, addr, key)
	}
	if err != nil {
		return felt.StorageValue{}, err
	}
	f, err := felt.FromBytesBE(raw)
	return felt.NewStorageValue(f), err
}

func (r *forkedStateReader) CompiledClassHash(classHash felt.ClassHash) (felt.CompiledClassHash, error) {
	raw, err := r.tx.Get(kv.CompiledClassHashes, classHash.Bytes())
	if err == kv.ErrKeyNotFound {
		return felt.CompiledClassHash{}, fmt.Errorf("provider: compiled class hash lookup has no upstream fallback for %s", classHash)
	}
	if err != nil {
		return felt.CompiledClassHash{}, err
	}
	f, err := felt.FromBytesBE(raw)
	return felt.NewCompiledClassHash(f), err
}

func (r *forkedStateReader) Close() { r.tx.Rollback() }

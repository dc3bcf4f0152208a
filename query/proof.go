// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/kv"
	"github.com/starkcore/sequencer/trie"
)

// ErrHistoricalProofUnsupported is returned by StorageProof for a BlockID
// other than the chain tip. The node's node stores answer GetNode with the
// most recently committed value for a path regardless of which block last
// touched it (see trie.KVNodeStore.GetNode); reconstructing a multiproof
// against an older root would require walking every touched path through
// GetNodeAsOf instead, which Trie.Multiproof does not currently do. Rather
// than silently hand back a proof against the wrong root, this is rejected
// outright (spec P4 requires proofs to verify against the correct root).
var ErrHistoricalProofUnsupported = errors.New("query: storage proofs are only available for the chain tip")

// GlobalRoots is the pair of trie roots a StorageProof is anchored to (spec
// §4.8, "storage_proof ... → {global_roots, ...}").
type GlobalRoots struct {
	ContractsRoot felt.Felt
	ClassesRoot   felt.Felt
	BlockHash     felt.BlockHash
}

// StorageProof is the multiproof bundle storage_proof returns (spec §4.8).
type StorageProof struct {
	GlobalRoots   GlobalRoots
	ContractProof trie.MultiProof
	ClassProof    trie.MultiProof
	StorageProofs map[felt.ContractAddress]trie.MultiProof
}

// StorageProofRequest selects which keys to prove against each trie (spec
// §4.8, "storage_proof(block, contracts?, classes?, slots?)").
type StorageProofRequest struct {
	Contracts []felt.ContractAddress
	Classes   []felt.ClassHash
	// Slots maps a contract address to the storage keys to prove within its
	// own storage subtrie.
	Slots map[felt.ContractAddress][]felt.StorageKey
}

// StorageProof builds multiproofs against the contracts trie, the classes
// trie, and any requested per-contract storage subtries, all as committed
// at the chain tip (see ErrHistoricalProofUnsupported for older blocks).
func (f *Facade) StorageProof(ctx context.Context, id BlockID, req StorageProofRequest) (StorageProof, error) {
	number, pending, err := f.resolveNumber(ctx, id)
	if err != nil {
		return StorageProof{}, err
	}
	if pending {
		return StorageProof{}, ErrHistoricalProofUnsupported
	}
	tip, exists, err := f.provider.TipBlockNumber(ctx)
	if err != nil {
		return StorageProof{}, err
	}
	if !exists || number != tip {
		return StorageProof{}, ErrHistoricalProofUnsupported
	}

	tx, err := f.provider.BeginRead(ctx)
	if err != nil {
		return StorageProof{}, err
	}
	defer tx.Rollback()

	header, err := f.provider.HeaderByNumber(ctx, number)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return StorageProof{}, ErrBlockNotFound
	}
	if err != nil {
		return StorageProof{}, err
	}

	contractsTrie := trie.New(f.provider.ContractsTrieStoreRO(tx), felt.Pedersen)
	classesTrie := trie.New(f.provider.ClassesTrieStoreRO(tx), felt.Poseidon)

	contractKeys := make([]felt.Felt, len(req.Contracts))
	for i, a := range req.Contracts {
		contractKeys[i] = a.Felt()
	}
	contractProof, err := contractsTrie.Multiproof(contractKeys)
	if err != nil {
		return StorageProof{}, fmt.Errorf("query: contracts trie proof: %w", err)
	}

	classKeys := make([]felt.Felt, len(req.Classes))
	for i, c := range req.Classes {
		classKeys[i] = c.Felt()
	}
	classProof, err := classesTrie.Multiproof(classKeys)
	if err != nil {
		return StorageProof{}, fmt.Errorf("query: classes trie proof: %w", err)
	}

	storageProofs := make(map[felt.ContractAddress]trie.MultiProof, len(req.Slots))
	for addr, keys := range req.Slots {
		st := trie.New(f.provider.StorageTrieStoreRO(tx, addr), felt.Pedersen)
		felts := make([]felt.Felt, len(keys))
		for i, k := range keys {
			felts[i] = k.Felt()
		}
		mp, err := st.Multiproof(felts)
		if err != nil {
			return StorageProof{}, fmt.Errorf("query: storage proof for %s: %w", addr, err)
		}
		storageProofs[addr] = mp
	}

	contractsRoot, err := contractsTrie.Root()
	if err != nil {
		return StorageProof{}, err
	}
	classesRoot, err := classesTrie.Root()
	if err != nil {
		return StorageProof{}, err
	}

	return StorageProof{
		GlobalRoots: GlobalRoots{
			ContractsRoot: contractsRoot,
			ClassesRoot:   classesRoot,
			BlockHash:     header.BlockHash(),
		},
		ContractProof: contractProof,
		ClassProof:    classProof,
		StorageProofs: storageProofs,
	}, nil
}

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

// Package stateroot computes the committed state commitment for one block:
// two 251-bit Bonsai tries (contracts, classes) rooted under a final
// Poseidon fold, rebuilt incrementally from a block's StateUpdates (spec
// §4.7). Grounded on the contracts/classes trie shape described in
// original_source/crates/trie/src and the CommitID-indexed staging-commit
// pattern in trie/trie.go, which this package drives directly rather than
// duplicating.
package stateroot

import (
	"sort"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/kv"
	"github.com/starkcore/sequencer/provider"
	"github.com/starkcore/sequencer/trie"
)

// stateCommitmentDomain tags the final Poseidon fold so the state root can
// never collide with any other use of Poseidon over two felts (spec §4.7
// step 6).
const stateCommitmentDomain = "STARKNET_STATE_V0"

// tries bundles the two persistent tries plus the per-contract storage
// subtries a Compute call touches, so repeated calls across blocks reuse the
// same NodeStore-backed state rather than re-deriving it.
type tries struct {
	provider *provider.DbProvider
	tx       kv.RwTx
}

// Compute applies updates on top of the state committed through block
// blockNumber-1 and returns the new state root for blockNumber, writing both
// tries' node histories into tx under commitID blockNumber. tx must be the
// same write transaction the caller uses to persist the block itself (spec
// §4.6 step 3: "writes trie updates and returns the root", ahead of the
// block-and-receipts write in step 5), and prevState must read the tables as
// they stood before this call — provider.NewStateReaderFromTx(tx) satisfies
// that as long as Compute runs before applyStateUpdates touches tx.
func Compute(p *provider.DbProvider, tx kv.RwTx, blockNumber uint64, updates *chain.StateUpdates, prevState provider.StateReader) (felt.Felt, error) {
	commitID := trie.CommitID(blockNumber)

	storageRoots, err := commitStorageSubtries(p, tx, commitID, updates)
	if err != nil {
		return felt.Felt{}, err
	}

	contractsRoot, err := commitContractsTrie(p, tx, commitID, updates, prevState, storageRoots)
	if err != nil {
		return felt.Felt{}, err
	}

	classesRoot, err := commitClassesTrie(p, tx, commitID, updates)
	if err != nil {
		return felt.Felt{}, err
	}

	return felt.PoseidonString(stateCommitmentDomain, contractsRoot, classesRoot), nil
}

// commitStorageSubtries inserts every changed (key, value) pair into each
// touched contract's storage subtrie and commits it, returning the resulting
// root per address (spec §4.7 step 1).
func commitStorageSubtries(p *provider.DbProvider, tx kv.RwTx, commitID trie.CommitID, updates *chain.StateUpdates) (map[felt.ContractAddress]felt.Felt, error) {
	roots := make(map[felt.ContractAddress]felt.Felt, len(updates.StorageUpdates))
	for addr, kvs := range updates.StorageUpdates {
		t := trie.New(p.StorageTrieStore(tx, addr), felt.Pedersen)
		for key, val := range kvs {
			t.Insert(key.Felt(), val.Felt())
		}
		root, err := t.Commit(commitID)
		if err != nil {
			return nil, err
		}
		roots[addr] = root
	}
	return roots, nil
}

// contractLeaf is the scratch accumulation of one contract's three leaf
// fields before they fold into a single contract_state_hash (spec §4.7 step
// 2-3).
type contractLeaf struct {
	classHash   felt.ClassHash
	storageRoot felt.Felt
	nonce       felt.Nonce
}

// commitContractsTrie resolves one leaf per touched address, folds each into
// a Pedersen(class_hash, storage_root, nonce) hash, inserts it into the
// contracts trie and commits (spec §4.7 steps 2-4).
func commitContractsTrie(p *provider.DbProvider, tx kv.RwTx, commitID trie.CommitID, updates *chain.StateUpdates, prevState provider.StateReader, storageRoots map[felt.ContractAddress]felt.Felt) (felt.Felt, error) {
	touched := map[felt.ContractAddress]struct{}{}
	for addr := range updates.StorageUpdates {
		touched[addr] = struct{}{}
	}
	for addr := range updates.NonceUpdates {
		touched[addr] = struct{}{}
	}
	for addr := range updates.DeployedContracts {
		touched[addr] = struct{}{}
	}
	for addr := range updates.ReplacedClasses {
		touched[addr] = struct{}{}
	}

	addrs := make([]felt.ContractAddress, 0, len(touched))
	for addr := range touched {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Cmp(addrs[j]) < 0 })

	t := trie.New(p.ContractsTrieStore(tx), felt.Pedersen)
	for _, addr := range addrs {
		leaf, err := resolveContractLeaf(p, tx, addr, updates, prevState, storageRoots)
		if err != nil {
			return felt.Felt{}, err
		}
		hash := felt.HashArray(leaf.classHash.Felt(), leaf.storageRoot, leaf.nonce.Felt())
		t.Insert(addr.Felt(), hash)
	}
	return t.Commit(commitID)
}

// resolveContractLeaf fills in whichever of class_hash/storage_root/nonce
// this block's updates left untouched by reading the state as it stood
// immediately before this block applied (spec §4.7 step 3).
func resolveContractLeaf(p *provider.DbProvider, tx kv.RwTx, addr felt.ContractAddress, updates *chain.StateUpdates, prevState provider.StateReader, storageRoots map[felt.ContractAddress]felt.Felt) (contractLeaf, error) {
	var leaf contractLeaf

	if class, ok := updates.DeployedContracts[addr]; ok {
		leaf.classHash = class
	} else if class, ok := updates.ReplacedClasses[addr]; ok {
		leaf.classHash = class
	} else {
		prev, err := prevState.ClassHashAt(addr)
		if err != nil {
			return contractLeaf{}, err
		}
		leaf.classHash = prev
	}

	if nonce, ok := updates.NonceUpdates[addr]; ok {
		leaf.nonce = nonce
	} else {
		prev, err := prevState.Nonce(addr)
		if err != nil {
			return contractLeaf{}, err
		}
		leaf.nonce = prev
	}

	if root, ok := storageRoots[addr]; ok {
		leaf.storageRoot = root
	} else {
		// No storage touched this block: the subtrie's last committed root
		// already reflects every prior block, so reading it back (with no
		// pending inserts) reproduces "the previous block's state" exactly.
		root, err := trie.New(p.StorageTrieStore(tx, addr), felt.Pedersen).Root()
		if err != nil {
			return contractLeaf{}, err
		}
		leaf.storageRoot = root
	}

	return leaf, nil
}

// commitClassesTrie inserts every newly declared (class_hash ->
// compiled_class_hash) pair into the classes trie and commits (spec §4.7
// step 5).
func commitClassesTrie(p *provider.DbProvider, tx kv.RwTx, commitID trie.CommitID, updates *chain.StateUpdates) (felt.Felt, error) {
	hashes := make([]felt.ClassHash, 0, len(updates.DeclaredClasses))
	for classHash := range updates.DeclaredClasses {
		hashes = append(hashes, classHash)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].Cmp(hashes[j]) < 0 })

	t := trie.New(p.ClassesTrieStore(tx), felt.Poseidon)
	for _, classHash := range hashes {
		leaf := felt.PoseidonString("CONTRACT_CLASS_LEAF_V0", updates.DeclaredClasses[classHash].Felt())
		t.Insert(classHash.Felt(), leaf)
	}
	return t.Commit(commitID)
}

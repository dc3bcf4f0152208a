// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package chain

import (
	"sort"

	"github.com/starkcore/sequencer/felt"
)

// TxCommitment folds a block's transaction hashes, in body order, into a
// single felt the way Header.BlockHash folds the header's own fields (spec
// §4.6 step 2).
func TxCommitment(body Body) felt.Felt {
	hashes := make([]felt.Felt, len(body))
	for i, t := range body {
		hashes[i] = t.Hash.Felt()
	}
	return felt.PoseidonString("STARKNET_TX_COMMITMENT_V1", hashes...)
}

// ReceiptCommitment folds one felt per receipt — its transaction hash,
// actual fee, and a reverted flag — in body order (spec §4.6 step 2).
func ReceiptCommitment(receipts []Receipt) felt.Felt {
	leaves := make([]felt.Felt, len(receipts))
	for i, r := range receipts {
		reverted := felt.FromUint64(0)
		if r.Result.Reverted {
			reverted = felt.FromUint64(1)
		}
		leaves[i] = felt.PoseidonString("STARKNET_RECEIPT_V1", r.TransactionHash.Felt(), r.ActualFee, reverted)
	}
	return felt.PoseidonString("STARKNET_RECEIPT_COMMITMENT_V1", leaves...)
}

// EventCommitment folds every event emitted across receipts, in receipt then
// emission order, and reports the total event count alongside the
// commitment (spec §4.6 step 2, the header's EventCount).
func EventCommitment(receipts []Receipt) (felt.Felt, uint32) {
	var leaves []felt.Felt
	for _, r := range receipts {
		for _, e := range r.Events {
			keys := append([]felt.Felt{e.FromAddress.Felt()}, e.Keys...)
			keysHash := felt.PoseidonString("STARKNET_EVENT_KEYS_V1", keys...)
			dataHash := felt.PoseidonString("STARKNET_EVENT_DATA_V1", e.Data...)
			leaves = append(leaves, felt.Poseidon(keysHash, dataHash))
		}
	}
	return felt.PoseidonString("STARKNET_EVENT_COMMITMENT_V1", leaves...), uint32(len(leaves))
}

// StateDiffCommitment folds a deterministic encoding of a state diff's
// entries into a single felt and reports how many entries it carries (the
// header's StateDiffLength). Iteration runs in ascending felt order over
// each map's keys so that two StateUpdates values with identical contents
// but different map iteration order commit identically (spec §4.7,
// "Determinism").
func StateDiffCommitment(updates *StateUpdates) (felt.Felt, uint32) {
	var leaves []felt.Felt
	var length uint32

	addrs := sortedAddresses(updates.StorageUpdates)
	for _, addr := range addrs {
		keys := make([]felt.StorageKey, 0, len(updates.StorageUpdates[addr]))
		for k := range updates.StorageUpdates[addr] {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].Cmp(keys[j]) < 0 })
		for _, k := range keys {
			leaves = append(leaves, felt.PoseidonString("STARKNET_STORAGE_DIFF_V1", addr.Felt(), k.Felt(), updates.StorageUpdates[addr][k].Felt()))
			length++
		}
	}

	for _, addr := range sortedAddressNonces(updates.NonceUpdates) {
		leaves = append(leaves, felt.PoseidonString("STARKNET_NONCE_DIFF_V1", addr.Felt(), updates.NonceUpdates[addr].Felt()))
		length++
	}
	for _, addr := range sortedAddressClasses(updates.DeployedContracts) {
		leaves = append(leaves, felt.PoseidonString("STARKNET_DEPLOYED_V1", addr.Felt(), updates.DeployedContracts[addr].Felt()))
		length++
	}
	for _, addr := range sortedAddressClasses(updates.ReplacedClasses) {
		leaves = append(leaves, felt.PoseidonString("STARKNET_REPLACED_V1", addr.Felt(), updates.ReplacedClasses[addr].Felt()))
		length++
	}
	classHashes := make([]felt.ClassHash, 0, len(updates.DeclaredClasses))
	for c := range updates.DeclaredClasses {
		classHashes = append(classHashes, c)
	}
	sort.Slice(classHashes, func(i, j int) bool { return classHashes[i].Cmp(classHashes[j]) < 0 })
	for _, c := range classHashes {
		leaves = append(leaves, felt.PoseidonString("STARKNET_DECLARED_V1", c.Felt(), updates.DeclaredClasses[c].Felt()))
		length++
	}

	return felt.PoseidonString("STARKNET_STATE_DIFF_COMMIT_V1", leaves...), length
}

func sortedAddresses(m map[felt.ContractAddress]map[felt.StorageKey]felt.StorageValue) []felt.ContractAddress {
	out := make([]felt.ContractAddress, 0, len(m))
	for addr := range m {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func sortedAddressNonces(m map[felt.ContractAddress]felt.Nonce) []felt.ContractAddress {
	out := make([]felt.ContractAddress, 0, len(m))
	for addr := range m {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func sortedAddressClasses(m map[felt.ContractAddress]felt.ClassHash) []felt.ContractAddress {
	out := make([]felt.ContractAddress, 0, len(m))
	for addr := range m {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

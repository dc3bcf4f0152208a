// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package chain

import "github.com/starkcore/sequencer/felt"

// GenesisAllocation seeds one contract at chain startup: its class, its
// constructor storage and its initial balance. This is the supplemented
// counterpart of katana's GenesisAccountAlloc/GenesisContractAlloc (see
// original_source/crates/core/src/genesis), dropped from the distilled spec
// but needed for anything beyond an empty-state chain.
type GenesisAllocation struct {
	Address felt.ContractAddress
	Class   felt.ClassHash
	Nonce   felt.Nonce
	Storage map[felt.StorageKey]felt.StorageValue
	Balance uint64
}

// Genesis is the block-zero recipe: the classes to declare before any
// allocation can reference them, and the contracts to deploy with their
// initial storage.
type Genesis struct {
	Timestamp       uint64
	SequencerAddr   felt.ContractAddress
	Classes         []ContractClass
	Allocations     []GenesisAllocation
	L1GasPrice      GasPrice
	L2GasPrice      GasPrice
	L1DataGasPrice  GasPrice
	ProtocolVersion string
}

// ToStateUpdates flattens a Genesis recipe into the same StateUpdates shape
// the block producer emits for every later block, so the storage/provider
// layers have exactly one ingestion path for state diffs (spec §4.7 treats
// the genesis block as block 0 with no parent).
func (g Genesis) ToStateUpdates() *StateUpdates {
	u := NewStateUpdates()
	for _, c := range g.Classes {
		u.DeclaredClasses[c.Hash] = felt.NewCompiledClassHash(c.Hash.Felt())
		if c.Kind == ClassKindLegacy {
			u.DeprecatedDeclared[c.Hash] = struct{}{}
		}
	}
	for _, a := range g.Allocations {
		u.DeployedContracts[a.Address] = a.Class
		if !a.Nonce.IsZero() {
			u.NonceUpdates[a.Address] = a.Nonce
		}
		for k, v := range a.Storage {
			u.SetStorage(a.Address, k, v)
		}
	}
	return u
}

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.
//
// Sequencer is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package chain holds the core data model: blocks, transactions, receipts,
// state diffs and contract classes (spec §3).
package chain

import "github.com/starkcore/sequencer/felt"

// GasPrice is a non-zero u128 fee, denominated separately in the chain's two
// fee tokens (spec §3, "three pairs of gas prices").
type GasPrice struct {
	InWei uint64
	InFri uint64
}

// DAMode selects how a block (or a v3 transaction's resource) publishes its
// state diff to L1.
type DAMode uint8

const (
	DAModeCalldata DAMode = iota
	DAModeBlob
)

// Header is the block header (spec §3).
type Header struct {
	ParentHash      felt.BlockHash
	Number          uint64
	StateRoot       felt.Felt
	TxCommitment    felt.Felt
	ReceiptCommit   felt.Felt
	EventCommitment felt.Felt
	StateDiffCommit felt.Felt
	TxCount         uint32
	EventCount      uint32
	StateDiffLength uint32
	Timestamp       uint64
	SequencerAddr   felt.ContractAddress
	L1GasPrice      GasPrice
	L2GasPrice      GasPrice
	L1DataGasPrice  GasPrice
	L1DAMode        DAMode
	ProtocolVersion string

	// ExcessDataGas is the running excess-usage counter the gasprice
	// package derives each block's L1DataGasPrice from, the same role
	// excess blob gas plays in EIP-4844's fee market. It is not part of
	// BlockHash(): a block's hash commits to what happened, not to the
	// pricing accumulator carried into the next one.
	ExcessDataGas uint64
}

// BlockHash computes the block hash by hashing the header's fields with
// Poseidon, the way the sealing step of the block producer does at the end
// of its sealing procedure (spec §4.6, step 4).
func (h Header) BlockHash() felt.BlockHash {
	acc := felt.PoseidonString("BLOCK_HASH_V1",
		h.ParentHash.Felt(),
		felt.FromUint64(h.Number),
		h.StateRoot,
		h.TxCommitment,
		h.ReceiptCommit,
		h.EventCommitment,
		h.StateDiffCommit,
		felt.FromUint64(uint64(h.TxCount)),
		felt.FromUint64(uint64(h.EventCount)),
		felt.FromUint64(uint64(h.StateDiffLength)),
		felt.FromUint64(h.Timestamp),
		h.SequencerAddr.Felt(),
	)
	return felt.NewBlockHash(acc)
}

// Body is an ordered sequence of transactions (spec §3).
type Body []Tx

// Block pairs a header with its body (spec §3).
type Block struct {
	Header Header
	Body   Body
}

// FeeUnit names the token an actual fee was charged in (spec §3).
type FeeUnit uint8

const (
	FeeUnitWei FeeUnit = iota
	FeeUnitFri
)

// FinalityStatus is the lifecycle stage of a block (spec §3).
type FinalityStatus uint8

const (
	FinalityPreConfirmed FinalityStatus = iota
	FinalityAcceptedOnL2
	FinalityAcceptedOnL1
	FinalityRejected
)

// ExecutionResourceUsage is the gas/builtin breakdown attached to a receipt.
type ExecutionResourceUsage struct {
	L1Gas         uint64
	L2Gas         uint64
	L1DataGas     uint64
	CairoSteps    uint64
	CairoBuiltins map[string]uint64
}

// L2ToL1Message is a message emitted to L1 during execution.
type L2ToL1Message struct {
	FromAddress felt.ContractAddress
	ToAddress   felt.Felt
	Payload     []felt.Felt
}

// Event is a single emitted Starknet event.
type Event struct {
	FromAddress felt.ContractAddress
	Keys        []felt.Felt
	Data        []felt.Felt
}

// ExecutionResult is either a success or a structured revert (spec §3).
type ExecutionResult struct {
	Reverted     bool
	RevertReason string
}

// Receipt is the execution result of one transaction (spec §3).
type Receipt struct {
	TransactionHash      felt.TxHash
	Result               ExecutionResult
	ActualFee            felt.Felt
	FeeUnit              FeeUnit
	MessagesToL1         []L2ToL1Message
	Events               []Event
	Resources            ExecutionResourceUsage
	DeployedContractAddr *felt.ContractAddress // Deploy/DeployAccount only
	MessageHash          *felt.Felt            // L1Handler only
}

// StateUpdates is the diff produced by executing a block (spec §3).
type StateUpdates struct {
	NonceUpdates       map[felt.ContractAddress]felt.Nonce
	StorageUpdates     map[felt.ContractAddress]map[felt.StorageKey]felt.StorageValue
	DeployedContracts  map[felt.ContractAddress]felt.ClassHash
	ReplacedClasses    map[felt.ContractAddress]felt.ClassHash
	DeclaredClasses    map[felt.ClassHash]felt.CompiledClassHash
	DeprecatedDeclared map[felt.ClassHash]struct{}
}

// NewStateUpdates returns an empty, ready-to-populate diff.
func NewStateUpdates() *StateUpdates {
	return &StateUpdates{
		NonceUpdates:       map[felt.ContractAddress]felt.Nonce{},
		StorageUpdates:     map[felt.ContractAddress]map[felt.StorageKey]felt.StorageValue{},
		DeployedContracts:  map[felt.ContractAddress]felt.ClassHash{},
		ReplacedClasses:    map[felt.ContractAddress]felt.ClassHash{},
		DeclaredClasses:    map[felt.ClassHash]felt.CompiledClassHash{},
		DeprecatedDeclared: map[felt.ClassHash]struct{}{},
	}
}

// SetStorage records a storage write, allocating the per-address map lazily.
func (u *StateUpdates) SetStorage(addr felt.ContractAddress, key felt.StorageKey, val felt.StorageValue) {
	m, ok := u.StorageUpdates[addr]
	if !ok {
		m = map[felt.StorageKey]felt.StorageValue{}
		u.StorageUpdates[addr] = m
	}
	m[key] = val
}

// ClassKind distinguishes the two class encodings (spec §3).
type ClassKind uint8

const (
	ClassKindLegacy ClassKind = iota
	ClassKindSierra
)

// ContractClass is the tagged union over Cairo-0 (legacy) and Sierra
// classes (spec §3). The raw program bytes are kept opaque: this core never
// interprets them, only stores and serves them by hash (the Cairo VM that
// does interpret them is an external collaborator, spec §1).
type ContractClass struct {
	Kind ClassKind
	Hash felt.ClassHash
	Raw  []byte
}

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package chain

import "github.com/starkcore/sequencer/felt"

// TxKind discriminates the Tx tagged union (spec §3).
type TxKind uint8

const (
	TxKindInvoke TxKind = iota
	TxKindDeclare
	TxKindDeployAccount
	TxKindDeploy // legacy, pre-account-abstraction
	TxKindL1Handler
)

// ResourceBounds is a single (max_amount, max_price_per_unit) pair, carried
// once per fee-bearing resource (L1 gas, L2 gas, L1 data gas) on v3
// transactions.
type ResourceBounds struct {
	MaxAmount       uint64
	MaxPricePerUnit uint64
}

// V3ResourceBounds bundles the resource bounds a v3 transaction pays across.
type V3ResourceBounds struct {
	L1Gas     ResourceBounds
	L2Gas     ResourceBounds
	L1DataGas ResourceBounds
}

// CommonV3Fields is shared by every v3 transaction variant.
type CommonV3Fields struct {
	Tip                   uint64
	ResourceBounds        V3ResourceBounds
	PaymasterData         []felt.Felt
	NonceDAMode           DAMode
	FeeDAMode             DAMode
	AccountDeploymentData []felt.Felt // Invoke/Declare v3 only; empty otherwise
}

// InvokeTx calls into an already-deployed account contract.
type InvokeTx struct {
	Version       uint8 // 0, 1 or 3
	SenderAddress felt.ContractAddress
	Calldata      []felt.Felt
	Signature     []felt.Felt
	Nonce         felt.Nonce
	MaxFee        felt.Felt // v0/v1 only
	V3            CommonV3Fields
}

// DeclareTx registers a new contract class without deploying it.
type DeclareTx struct {
	Version           uint8 // 0, 1, 2 or 3
	SenderAddress     felt.ContractAddress
	ClassHash         felt.ClassHash
	CompiledClassHash felt.CompiledClassHash // v2/v3 only
	Signature         []felt.Felt
	Nonce             felt.Nonce
	MaxFee            felt.Felt // v0/v1/v2 only
	V3                CommonV3Fields
}

// DeployAccountTx deploys a new account contract and immediately validates
// it, in one transaction (the counterfactual-deployment pattern).
type DeployAccountTx struct {
	Version             uint8 // 1 or 3
	ClassHash           felt.ClassHash
	ContractAddressSalt felt.Felt
	ConstructorCalldata []felt.Felt
	Signature           []felt.Felt
	Nonce               felt.Nonce
	MaxFee              felt.Felt // v1 only
	V3                  CommonV3Fields
}

// DeployTx is the legacy, pre-account-abstraction deploy transaction; still
// part of the historical record. StatefulValidator rejects it for new blocks.
type DeployTx struct {
	ClassHash           felt.ClassHash
	ContractAddressSalt felt.Felt
	ConstructorCalldata []felt.Felt
	Version             uint8
}

// L1HandlerTx is the L2-side representation of a message sent from L1.
type L1HandlerTx struct {
	Version            uint8
	ContractAddress    felt.ContractAddress
	EntryPointSelector felt.Felt
	Calldata           []felt.Felt
	Nonce              felt.Nonce
	PaidFeeOnL1        uint64
}

// Tx is the tagged union over every accepted transaction shape (spec §3).
// Exactly one of the typed fields is populated, matching Kind.
type Tx struct {
	Hash felt.TxHash
	Kind TxKind

	Invoke        *InvokeTx
	Declare       *DeclareTx
	DeployAccount *DeployAccountTx
	Deploy        *DeployTx
	L1Handler     *L1HandlerTx
}

// SenderAddress returns the contract address responsible for the
// transaction's nonce and fee: the sender for Invoke/Declare, the target
// ContractAddress for L1Handler, and the zero address for Deploy and
// DeployAccount.
func (t Tx) SenderAddress() felt.ContractAddress {
	switch t.Kind {
	case TxKindInvoke:
		return t.Invoke.SenderAddress
	case TxKindDeclare:
		return t.Declare.SenderAddress
	case TxKindL1Handler:
		return t.L1Handler.ContractAddress
	default:
		return felt.ContractAddress{}
	}
}

// Nonce returns the transaction's nonce, or the zero nonce for Deploy,
// which does not carry one. DeployAccount returns its own Nonce field.
func (t Tx) Nonce() felt.Nonce {
	switch t.Kind {
	case TxKindInvoke:
		return t.Invoke.Nonce
	case TxKindDeclare:
		return t.Declare.Nonce
	case TxKindDeployAccount:
		return t.DeployAccount.Nonce
	case TxKindL1Handler:
		return t.L1Handler.Nonce
	default:
		return felt.Nonce{}
	}
}

// Tip returns the v3 tip, or zero for v0/v1/v2/legacy transactions — used by
// the pool's Tip ordering strategy (spec §5, "ordering strategies").
func (t Tx) Tip() uint64 {
	switch t.Kind {
	case TxKindInvoke:
		return t.Invoke.V3.Tip
	case TxKindDeclare:
		return t.Declare.V3.Tip
	case TxKindDeployAccount:
		return t.DeployAccount.V3.Tip
	default:
		return 0
	}
}

// PoolEntry is the unit the pool stores and orders: a transaction plus the
// bookkeeping the pool needs for eviction and streaming (spec §5).
type PoolEntry struct {
	Tx           Tx
	ArrivalOrder uint64 // monotonic counter, backs FIFO ordering
}

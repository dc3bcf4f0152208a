// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

// Package executor defines the C4 abstraction the block producer drives to
// run a batch of transactions against a StateProvider: an opaque Cairo VM
// sits behind ExecutorFactory/BlockExecutor, the core only ever sees their
// interfaces (spec §1, "the core depends on an opaque ExecutorFactory";
// §4.4). Grounded on
// original_source/crates/executor/src/abstraction/executor.rs.
package executor

import (
	"errors"
	"fmt"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/provider"
)

// ErrBatchAborted is returned by BlockExecutor.ExecuteTransactions for
// catastrophic conditions only — infrastructure failures, resource
// exhaustion — never for an individual transaction revert, which is
// recorded as ExecutionResult.Reverted inside the output instead (spec
// §4.4, "Failure semantics").
var ErrBatchAborted = errors.New("executor: batch execution aborted")

// ExecutorError wraps ErrBatchAborted (or another catastrophic cause) with
// the index of the transaction being executed when it fired.
type ExecutorError struct {
	TxIndex int
	Err     error
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("executor: tx %d: %v", e.TxIndex, e.Err)
}

func (e *ExecutorError) Unwrap() error { return e.Err }

// GasPrices is the fee-token pair a block environment carries per resource,
// mirroring chain.GasPrice but scoped to env construction so CfgEnv/BlockEnv
// don't reach back into chain for a type built in terms of it.
type GasPrices = chain.GasPrice

// FeeTokenAddresses names the two fee tokens a chain accepts (spec §4.4,
// "fee-token addresses").
type FeeTokenAddresses struct {
	STRK felt.ContractAddress
	ETH  felt.ContractAddress
}

// CfgEnv is the chain-wide configuration an ExecutorFactory is constructed
// with: chain id, fee-token addresses, step and recursion limits (spec
// §4.4). Grounded on
// original_source/crates/primitives/src/env.rs's CfgEnv.
type CfgEnv struct {
	ChainID           felt.Felt
	FeeTokenAddresses FeeTokenAddresses
	InvokeTxMaxNSteps uint32
	ValidateMaxNSteps uint32
	MaxRecursionDepth uint32
}

// BlockEnv is the per-block environment a BlockExecutor runs transactions
// against (spec §4.4; original_source/crates/primitives/src/env.rs's
// BlockEnv).
type BlockEnv struct {
	Number           uint64
	Timestamp        uint64
	L1GasPrices      GasPrices
	L2GasPrices      GasPrices
	L1DataGasPrices  GasPrices
	SequencerAddress felt.ContractAddress
	ProtocolVersion  string
}

// ExecutionFlags are boolean toggles the executor honours unchanged,
// forwarded straight through to the underlying VM (spec §4.4, "the core
// honours them by forwarding unchanged").
type ExecutionFlags struct {
	// SkipValidate disables account-contract __validate__ invocation,
	// used by simulate/estimate-fee style call paths.
	SkipValidate bool
	// SkipFeeCharge disables fee charging and balance checks, used by
	// devnet-style chains and simulate/estimate-fee call paths.
	SkipFeeCharge bool
}

// ExecutableBlock is a block header environment paired with the
// transactions to run against it, the unit ExecuteBlock consumes in one
// call (spec §4.4).
type ExecutableBlock struct {
	BlockEnv     BlockEnv
	Transactions []chain.Tx
}

// ExecutionStats is the batch-level bookkeeping ExecutionOutput carries
// alongside the state diff. The block producer does not read it: the
// header's StateDiffLength comes from chain.StateDiffCommitment.
type ExecutionStats struct {
	L1GasUsed     uint64
	L2GasUsed     uint64
	L1DataGasUsed uint64
}

// ExecutionOutput is what take_execution_output hands back to the block
// producer: the accumulated state diff, any classes declared during the
// batch, the executed transactions with their receipts, and aggregate
// stats (spec §4.4).
type ExecutionOutput struct {
	StateUpdates *chain.StateUpdates
	Classes      map[felt.ClassHash]chain.ContractClass
	Transactions []TxWithResult
	Stats        ExecutionStats
}

// NewExecutionOutput returns an empty, ready-to-populate output.
func NewExecutionOutput() ExecutionOutput {
	return ExecutionOutput{
		StateUpdates: chain.NewStateUpdates(),
		Classes:      map[felt.ClassHash]chain.ContractClass{},
	}
}

// TxWithResult pairs an executed transaction with its receipt-shaped result
// and the resources it consumed, the element type of
// BlockExecutor.Transactions() (spec §4.4).
type TxWithResult struct {
	Tx        chain.Tx
	Result    chain.ExecutionResult
	Resources chain.ExecutionResourceUsage
}

// ExecutorFactory constructs BlockExecutor instances over a given state, the
// way a connection pool constructs connections: cheap to clone, carries the
// chain-wide CfgEnv and default ExecutionFlags every executor it builds
// inherits (spec §4.4).
type ExecutorFactory interface {
	// WithState constructs a BlockExecutor over state using the factory's
	// own default BlockEnv (zero-valued; callers that need a specific
	// block environment should use WithStateAndBlockEnv instead).
	WithState(state provider.StateReader) BlockExecutor
	// WithStateAndBlockEnv constructs a BlockExecutor over state scoped to
	// blockEnv, the call the block producer makes when opening a pending
	// executor for the block it is about to seal (spec §4.6 step 2).
	WithStateAndBlockEnv(state provider.StateReader, blockEnv BlockEnv) BlockExecutor
	// Cfg returns the factory's chain configuration.
	Cfg() CfgEnv
	// ExecutionFlags returns the factory's default execution flags.
	ExecutionFlags() ExecutionFlags
}

// BlockExecutor runs transactions against the state it was constructed
// with, accumulating a state diff until TakeExecutionOutput is called
// (spec §4.4).
type BlockExecutor interface {
	// ExecuteBlock runs every transaction in block.Transactions in order,
	// discarding per-transaction granularity; used for replay/sync paths
	// rather than the live block producer, which prefers
	// ExecuteTransactions for its streaming batch semantics.
	ExecuteBlock(block ExecutableBlock) error
	// ExecuteTransactions runs txs in order against the executor's
	// accumulated state, stopping at the first catastrophic error and
	// reporting how many transactions it got through before that (spec
	// §4.4). A transaction that merely reverts is not catastrophic: it is
	// counted as processed and recorded as ExecutionResult{Reverted:
	// true} in the output.
	ExecuteTransactions(txs []chain.Tx) (processed int, err *ExecutorError)
	// TakeExecutionOutput drains and resets the executor's accumulated
	// output, the call the block producer makes at the start of its
	// sealing procedure (spec §4.6 step 1).
	TakeExecutionOutput() (ExecutionOutput, error)
	// State returns a StateReader reflecting every write applied so far,
	// the view PendingStateProvider wraps while a block is open (spec
	// §4.3, §4.6).
	State() provider.StateReader
	// Transactions returns every transaction executed so far in this
	// executor's lifetime, alongside its result.
	Transactions() []TxWithResult
	// BlockEnv returns the block environment this executor is scoped to.
	BlockEnv() BlockEnv
	// SetStorageAt overrides a single storage slot directly, bypassing
	// normal execution; a development-only escape hatch for the
	// dev_setStorageAt endpoint (spec §4.4, "development overrides").
	SetStorageAt(addr felt.ContractAddress, key felt.StorageKey, value felt.StorageValue) error
}

// EntryPointCall is a read-only entry point invocation: no nonce, no
// signature, no state mutation (spec §4.8, "call(EntryPointCall, block_id)
// dispatches to C4's read-only call path").
type EntryPointCall struct {
	ContractAddress    felt.ContractAddress
	EntryPointSelector felt.Felt
	Calldata           []felt.Felt
}

// CallExecutor is the read-only dispatch path query.Facade.Call uses; kept
// separate from BlockExecutor because a call needs no ExecutableBlock, no
// receipt, and never contributes to a state diff. An ExecutorFactory that
// backs a real Cairo VM implements both interfaces on the same
// BlockExecutor value.
type CallExecutor interface {
	Call(call EntryPointCall) ([]felt.Felt, error)
}

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package txpool

import (
	"context"
	"fmt"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/provider"
)

// InvalidKind discriminates the ways a validator can reject a transaction
// (spec §7, "bad signature, nonce gap, insufficient fee, duplicate hash").
type InvalidKind uint8

const (
	InvalidBadSignature InvalidKind = iota
	InvalidNonceGap
	InvalidInsufficientFee
	InvalidDuplicateHash
)

func (k InvalidKind) String() string {
	switch k {
	case InvalidBadSignature:
		return "bad_signature"
	case InvalidNonceGap:
		return "nonce_gap"
	case InvalidInsufficientFee:
		return "insufficient_fee"
	case InvalidDuplicateHash:
		return "duplicate_hash"
	default:
		return "unknown"
	}
}

// InvalidTransactionError is the structured rejection a Validator returns,
// mapped by the RPC layer to a fixed error code (spec §7, "Propagation").
type InvalidTransactionError struct {
	Hash felt.TxHash
	Kind InvalidKind
	Err  error
}

func (e *InvalidTransactionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("txpool: %s rejected tx %s: %v", e.Kind, e.Hash, e.Err)
	}
	return fmt.Sprintf("txpool: %s rejected tx %s", e.Kind, e.Hash)
}

func (e *InvalidTransactionError) Unwrap() error { return e.Err }

// Validator is consulted by add_transaction before a candidate is admitted
// (spec §4.5, "Validator contract"). A transient/infrastructure failure
// (the `Error(transient)` verdict) is returned as a plain error, never
// wrapped in InvalidTransactionError, so callers can distinguish "reject
// this transaction" from "try again".
type Validator interface {
	Validate(ctx context.Context, tx chain.Tx) error
}

// NoopValidator admits everything; used in tests and by the noop executor
// wiring, mirroring
// original_source/crates/pool/pool/src/validation (NoopValidator).
type NoopValidator struct{}

func (NoopValidator) Validate(context.Context, chain.Tx) error { return nil }

// StatefulValidator checks a candidate against the latest committed state:
// next-expected-nonce (I4) and a minimal fee-funding sanity check. Full
// signature verification requires invoking the sender account contract's
// `__validate__` entrypoint, which lives behind the opaque Cairo VM (spec
// §1) and is therefore out of this validator's reach; a stateful validator
// wired to a real executor would call through C4 first and only fall back
// to this check's pool-local fields.
type StatefulValidator struct {
	State       func(ctx context.Context) (provider.StateReader, error)
	SoftCapHint int // not read by Validate; enforcement lives in Pool

	// PendingNonce, if set, reports the next nonce a sender's own pending
	// pool entries already chain up to (the second return value is false
	// if the sender has nothing pending). Wired to (*Pool).GetNonce so
	// this validator can tell "nonce N is the Nth transaction stacked
	// behind an already-admitted chain" (fine) from "nonce N skips ahead
	// of both the committed state and anything pending" (a gap, I4).
	// Left nil, every candidate is checked against the committed state
	// nonce alone.
	PendingNonce func(sender felt.ContractAddress) (felt.Nonce, bool)
}

func (v *StatefulValidator) Validate(ctx context.Context, tx chain.Tx) error {
	if tx.Kind == chain.TxKindDeploy {
		// Legacy deploy transactions never go through the live pool (spec §3).
		return &InvalidTransactionError{Hash: tx.Hash, Kind: InvalidBadSignature, Err: fmt.Errorf("legacy deploy transactions are not accepted by the pool")}
	}

	sender := tx.SenderAddress()
	if tx.Kind == chain.TxKindDeployAccount {
		// A DeployAccount transaction's sender is counterfactual: it does
		// not exist in state yet, so the state nonce lookup is skipped and
		// the nonce must instead be exactly zero.
		if !tx.Nonce().IsZero() {
			return &InvalidTransactionError{Hash: tx.Hash, Kind: InvalidNonceGap, Err: fmt.Errorf("deploy_account nonce must be zero")}
		}
		return nil
	}

	st, err := v.State(ctx)
	if err != nil {
		return fmt.Errorf("txpool: fetch state for validation: %w", err)
	}
	defer st.Close()

	expected, err := st.Nonce(sender)
	if err != nil {
		return fmt.Errorf("txpool: read nonce: %w", err)
	}
	// The next nonce this candidate must match: the committed account
	// nonce, unless the sender already has a contiguous run of pending
	// transactions in the pool, in which case it's whatever nonce that
	// run chains up to (Pool.checkNonceGapLocked enforces the run stays
	// contiguous; this validator only needs its endpoint).
	want := expected
	if v.PendingNonce != nil {
		if pending, ok := v.PendingNonce(sender); ok {
			want = pending
		}
	}
	switch tx.Nonce().Felt().Cmp(want.Felt()) {
	case -1:
		return &InvalidTransactionError{Hash: tx.Hash, Kind: InvalidNonceGap, Err: fmt.Errorf("nonce %s below expected %s", tx.Nonce().Felt(), want.Felt())}
	case 1:
		return &InvalidTransactionError{Hash: tx.Hash, Kind: InvalidNonceGap, Err: fmt.Errorf("nonce %s leaves a gap ahead of expected %s", tx.Nonce().Felt(), want.Felt())}
	default:
		return nil
	}
}

// GatewaySubmitter is the minimal surface a gateway-proxy validator needs
// from an upstream sequencer: forward the transaction and adopt its
// verdict (spec §4.5, "(c) a gateway-proxy validator"). Mirrors
// provider.UpstreamClient's pattern of keeping the real RPC client outside
// this module's scope.
type GatewaySubmitter interface {
	SubmitTransaction(ctx context.Context, tx chain.Tx) error
}

// GatewayProxyValidator forwards every candidate to an upstream sequencer
// and adopts its verdict unchanged.
type GatewayProxyValidator struct {
	Upstream GatewaySubmitter
}

func (v *GatewayProxyValidator) Validate(ctx context.Context, tx chain.Tx) error {
	if err := v.Upstream.SubmitTransaction(ctx, tx); err != nil {
		return &InvalidTransactionError{Hash: tx.Hash, Kind: InvalidBadSignature, Err: err}
	}
	return nil
}

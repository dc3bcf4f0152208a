// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

// Package query implements the C8 read-only query surface consumed by
// transport layers (spec §4.8): block and transaction lookups, historical
// and pending state reads, event pagination, storage proofs, the read-only
// call path, and pool inspection. It holds no transport-specific (JSON-RPC)
// shapes of its own; those are expected to sit in front of this package the
// way katana's rpc crate sits in front of its provider
// (original_source/crates/rpc).
package query

import "github.com/starkcore/sequencer/felt"

// blockIDKind discriminates BlockID's four admitted forms (spec §6, "Block
// identifiers admit latest, pre_confirmed, l1_accepted, block number, or
// block hash" — l1_accepted is not modelled, spec §1 Non-goals excluding
// L1-settlement state).
type blockIDKind int

const (
	blockIDNumber blockIDKind = iota
	blockIDHash
	blockIDLatest
	blockIDPending
)

// BlockID names a block by number, by hash, as the chain tip, or as the
// producer's in-progress pending block (spec glossary, "Pending block").
type BlockID struct {
	kind   blockIDKind
	number uint64
	hash   felt.BlockHash
}

// AtNumber addresses a block by its number.
func AtNumber(number uint64) BlockID { return BlockID{kind: blockIDNumber, number: number} }

// AtHash addresses a block by its hash.
func AtHash(hash felt.BlockHash) BlockID { return BlockID{kind: blockIDHash, hash: hash} }

// Latest addresses the most recently sealed block.
func Latest() BlockID { return BlockID{kind: blockIDLatest} }

// Pending addresses the producer's in-progress block, falling back to
// Latest when no pending executor exists (spec §7, "the Pending block id
// always resolves when a pending executor exists; otherwise the request
// falls back to the latest block").
func Pending() BlockID { return BlockID{kind: blockIDPending} }

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package txpool

import "github.com/starkcore/sequencer/chain"

// Ordering decides, between two entries that are both eligible to be
// drained, which one comes first (spec §4.5, "an ordering strategy ∈
// {FIFO, Tip}"). Grounded on
// original_source/crates/pool/pool-api/src/lib.rs's PoolOrd, generalized
// here to a plain comparator since Go has no trait-associated-type
// equivalent worth reproducing for two concrete strategies.
type Ordering interface {
	// Less reports whether a should be drained before b.
	Less(a, b chain.PoolEntry) bool
}

// FIFOOrdering drains strictly in arrival order.
type FIFOOrdering struct{}

func (FIFOOrdering) Less(a, b chain.PoolEntry) bool { return a.ArrivalOrder < b.ArrivalOrder }

// TipOrdering drains by descending declared tip, ties broken by arrival
// order (spec §4.5).
type TipOrdering struct{}

func (TipOrdering) Less(a, b chain.PoolEntry) bool {
	at, bt := a.Tx.Tip(), b.Tx.Tip()
	if at != bt {
		return at > bt
	}
	return a.ArrivalOrder < b.ArrivalOrder
}

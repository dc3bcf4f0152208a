// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package query

import (
	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/felt"
)

// PoolStatus summarizes the pool's current occupancy (spec §4.8, "status").
type PoolStatus struct {
	Size int
}

// Status reports the pool's current size (spec §6, "txpool_status").
func (f *Facade) Status() PoolStatus {
	return PoolStatus{Size: f.pool.Size()}
}

// Content returns every pending transaction grouped by sender, each
// sender's transactions ordered by ascending nonce (spec §4.8, "content
// maps the pool snapshot by sender → nonce").
func (f *Facade) Content() map[felt.ContractAddress][]chain.PoolEntry {
	return f.groupBySender(f.pool.TakeTransactionsSnapshot())
}

// ContentFrom returns only sender's pending transactions, ordered by
// ascending nonce (spec §6, "txpool_contentFrom").
func (f *Facade) ContentFrom(sender felt.ContractAddress) []chain.PoolEntry {
	return f.groupBySender(f.pool.TakeTransactionsSnapshot())[sender]
}

// Inspect is a lighter-weight view than Content: sender address mapped to
// the nonces it currently occupies, without the full transaction bodies
// (spec §6, "txpool_inspect").
func (f *Facade) Inspect() map[felt.ContractAddress][]felt.Nonce {
	bySender := f.groupBySender(f.pool.TakeTransactionsSnapshot())
	out := make(map[felt.ContractAddress][]felt.Nonce, len(bySender))
	for sender, entries := range bySender {
		nonces := make([]felt.Nonce, len(entries))
		for i, e := range entries {
			nonces[i] = e.Tx.Nonce()
		}
		out[sender] = nonces
	}
	return out
}

func (f *Facade) groupBySender(entries []chain.PoolEntry) map[felt.ContractAddress][]chain.PoolEntry {
	out := map[felt.ContractAddress][]chain.PoolEntry{}
	for _, e := range entries {
		sender := e.Tx.SenderAddress()
		out[sender] = append(out[sender], e)
	}
	for sender, bucket := range out {
		insertionSortByNonce(bucket)
		out[sender] = bucket
	}
	return out
}

// insertionSortByNonce sorts a small per-sender bucket by ascending nonce;
// pool sender buckets are bounded by DefaultSoftCapPerSender, far too small
// to justify pulling in sort.Slice for this.
func insertionSortByNonce(entries []chain.PoolEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Tx.Nonce().Felt().Cmp(entries[j-1].Tx.Nonce().Felt()) < 0; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package txpool

import (
	"context"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/felt"
)

// PendingTransactions is a cold, wake-on-insert stream over a Pool: each
// call to Next yields the best-ordered entry this cursor has not yielded
// yet, blocking until one is available or ctx is cancelled (spec §4.5,
// "pending_transactions() -> Stream ... lazy sequence ... restartable;
// infinite"). Multiple independent cursors may be created over the same
// pool; each tracks its own "already yielded" set.
type PendingTransactions struct {
	pool *Pool
	seen map[felt.TxHash]struct{}
}

// PendingTransactions returns a new cursor over the pool's current and
// future entries, ordered by the pool's configured Ordering.
func (p *Pool) PendingTransactions() *PendingTransactions {
	return &PendingTransactions{pool: p, seen: map[felt.TxHash]struct{}{}}
}

// Next blocks until an unyielded entry is available, ctx is cancelled, or
// the pool is closed. Wake-ups coalesce: an insert that happens while Next
// is not waiting is still observed on the next call, since readiness is
// recomputed from pool state rather than from a missed-wakeup counter
// (spec §4.5, "need not wake once per insert").
func (s *PendingTransactions) Next(ctx context.Context) (chain.PoolEntry, bool) {
	for {
		s.pool.mu.RLock()
		closed := s.pool.closed
		entry, ok := s.pool.nextUnseenLocked(s.seen)
		waitCh := s.pool.currentNotifyCh()
		s.pool.mu.RUnlock()

		if ok {
			s.seen[entry.Tx.Hash] = struct{}{}
			return entry, true
		}
		if closed {
			return chain.PoolEntry{}, false
		}

		select {
		case <-waitCh:
		case <-ctx.Done():
			return chain.PoolEntry{}, false
		}
	}
}

// nextUnseenLocked returns the best-ordered entry not in seen. Must be
// called with at least a read lock held.
func (p *Pool) nextUnseenLocked(seen map[felt.TxHash]struct{}) (chain.PoolEntry, bool) {
	var best chain.PoolEntry
	found := false
	for hash, entry := range p.entries {
		if _, skip := seen[hash]; skip {
			continue
		}
		if !found || p.ordering.Less(entry, best) {
			best = entry
			found = true
		}
	}
	return best, found
}

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

// Package txpool implements the C5 transaction pool: a bounded,
// validator-gated collection of executable transactions with a pluggable
// ordering strategy and a wake-on-insert pending stream (spec §4.5).
// Grounded on
// original_source/crates/pool/pool-api/src/lib.rs (TransactionPool trait)
// and crates/pool/pool/src/lib.rs (the default Pool/FiFo wiring), adapted
// from katana's async/Stream idiom to goroutines, channels and
// sync.RWMutex the way erigon's own interior-mutable components are built.
package txpool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/felt"
)

// DefaultSoftCapPerSender bounds how many pending transactions one sender
// may occupy before further admissions are rejected as a nonce gap (spec
// §4.5, "Backpressure").
const DefaultSoftCapPerSender = 64

// ErrPoolClosed is returned by AddTransaction after Close.
var ErrPoolClosed = errors.New("txpool: pool closed")

// Pool is the default TransactionPool implementation (spec §4.5).
type Pool struct {
	validator Validator
	ordering  Ordering
	softCap   int

	mu         sync.RWMutex
	entries    map[felt.TxHash]chain.PoolEntry
	bySender   map[felt.ContractAddress][]felt.TxHash // kept sorted by nonce ascending
	arrivalSeq uint64

	listenersMu sync.Mutex
	listeners   map[uuid.UUID]chan felt.TxHash

	notifyMu sync.Mutex
	notifyCh chan struct{}

	closed bool
}

// New constructs an empty pool using validator for admission and ordering
// to decide drain order.
func New(validator Validator, ordering Ordering) *Pool {
	return &Pool{
		validator: validator,
		ordering:  ordering,
		softCap:   DefaultSoftCapPerSender,
		entries:   map[felt.TxHash]chain.PoolEntry{},
		bySender:  map[felt.ContractAddress][]felt.TxHash{},
		listeners: map[uuid.UUID]chan felt.TxHash{},
		notifyCh:  make(chan struct{}),
	}
}

// WithSoftCap overrides DefaultSoftCapPerSender; used by configuration
// loading and tests that want to exercise backpressure with a small cap.
func (p *Pool) WithSoftCap(n int) *Pool {
	p.softCap = n
	return p
}

// AddTransaction validates and inserts tx, notifying every pending stream
// and listener on success (spec §4.5, "add_transaction").
func (p *Pool) AddTransaction(ctx context.Context, tx chain.Tx) (felt.TxHash, error) {
	if err := p.validator.Validate(ctx, tx); err != nil {
		return felt.TxHash{}, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return felt.TxHash{}, ErrPoolClosed
	}
	if _, exists := p.entries[tx.Hash]; exists {
		p.mu.Unlock()
		return felt.TxHash{}, &InvalidTransactionError{Hash: tx.Hash, Kind: InvalidDuplicateHash}
	}

	sender := tx.SenderAddress()
	if err := p.checkNonceGapLocked(sender, tx); err != nil {
		p.mu.Unlock()
		return felt.TxHash{}, err
	}
	if len(p.bySender[sender]) >= p.softCap {
		p.mu.Unlock()
		return felt.TxHash{}, &InvalidTransactionError{Hash: tx.Hash, Kind: InvalidNonceGap, Err: fmt.Errorf("sender %s at soft cap (%d)", sender, p.softCap)}
	}

	p.arrivalSeq++
	entry := chain.PoolEntry{Tx: tx, ArrivalOrder: p.arrivalSeq}
	p.entries[tx.Hash] = entry
	p.insertSenderBucketLocked(sender, tx)
	p.mu.Unlock()

	p.broadcastInsert(tx.Hash)
	return tx.Hash, nil
}

// checkNonceGapLocked enforces I4: a sender's pending nonces must be a
// contiguous run with no gap. Must be called with mu held.
func (p *Pool) checkNonceGapLocked(sender felt.ContractAddress, tx chain.Tx) error {
	bucket := p.bySender[sender]
	if len(bucket) == 0 {
		// Nothing pending for this sender yet: whether tx's nonce matches
		// the committed account nonce (and doesn't skip ahead of it) is
		// the validator's job (it alone holds a StateReader); the pool
		// only guards contiguity among its own pending entries.
		return nil
	}
	last := p.entries[bucket[len(bucket)-1]].Tx.Nonce()
	want := last.Next()
	if tx.Nonce().Felt().Equal(want.Felt()) {
		return nil
	}
	return &InvalidTransactionError{Hash: tx.Hash, Kind: InvalidNonceGap, Err: fmt.Errorf("nonce %s leaves a gap after pending nonce %s", tx.Nonce().Felt(), last.Felt())}
}

func (p *Pool) insertSenderBucketLocked(sender felt.ContractAddress, tx chain.Tx) {
	p.bySender[sender] = append(p.bySender[sender], tx.Hash)
}

func (p *Pool) broadcastInsert(hash felt.TxHash) {
	p.notifyMu.Lock()
	close(p.notifyCh)
	p.notifyCh = make(chan struct{})
	p.notifyMu.Unlock()

	p.listenersMu.Lock()
	for _, ch := range p.listeners {
		select {
		case ch <- hash:
		default:
		}
	}
	p.listenersMu.Unlock()
}

func (p *Pool) currentNotifyCh() chan struct{} {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	return p.notifyCh
}

// Contains reports whether hash is currently in the pool.
func (p *Pool) Contains(hash felt.TxHash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[hash]
	return ok
}

// Get returns the pool entry for hash, if present.
func (p *Pool) Get(hash felt.TxHash) (chain.PoolEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[hash]
	return e, ok
}

// Size returns the total number of transactions currently pooled.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// GetNonce returns the highest pending nonce for sender, plus one, or false
// if sender has no pending transactions (spec §4.5, "get_nonce").
func (p *Pool) GetNonce(sender felt.ContractAddress) (felt.Nonce, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	bucket := p.bySender[sender]
	if len(bucket) == 0 {
		return felt.Nonce{}, false
	}
	last := p.entries[bucket[len(bucket)-1]].Tx.Nonce()
	return last.Next(), true
}

// RemoveTransactions drops every hash from the pool, used after a block is
// sealed (spec §4.6 step 6) or when an offending transaction is dropped
// mid-seal (spec §4.6, "Executor error during streaming execution").
func (p *Pool) RemoveTransactions(hashes []felt.TxHash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range hashes {
		entry, ok := p.entries[h]
		if !ok {
			continue
		}
		delete(p.entries, h)
		sender := entry.Tx.SenderAddress()
		bucket := p.bySender[sender]
		for i, bh := range bucket {
			if bh == h {
				bucket = append(bucket[:i], bucket[i+1:]...)
				break
			}
		}
		if len(bucket) == 0 {
			delete(p.bySender, sender)
		} else {
			p.bySender[sender] = bucket
		}
	}
}

// TakeTransactionsSnapshot returns a point-in-time copy of every pending
// entry, for inspection APIs (spec §4.5, `txpool_status|content`).
func (p *Pool) TakeTransactionsSnapshot() []chain.PoolEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]chain.PoolEntry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return p.ordering.Less(out[i], out[j]) })
	return out
}

// Validator returns the pool's configured validator.
func (p *Pool) Validator() Validator { return p.validator }

// AddListener registers a channel that receives every newly-admitted
// transaction hash; the caller must drain it to avoid missed
// notifications under load, matching add_listener's best-effort delivery
// (spec §4.5). Returns a cancel function that removes the listener.
func (p *Pool) AddListener() (<-chan felt.TxHash, func()) {
	ch := make(chan felt.TxHash, 256)
	id := uuid.New()
	p.listenersMu.Lock()
	p.listeners[id] = ch
	p.listenersMu.Unlock()
	return ch, func() {
		p.listenersMu.Lock()
		delete(p.listeners, id)
		p.listenersMu.Unlock()
	}
}

// Close marks the pool closed; subsequent AddTransaction calls fail.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

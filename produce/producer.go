// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

// Package produce implements the C6 block producer: a small state machine
// (Idle -> Pending -> Sealing -> Idle) driven by one of three mining modes,
// translating katana's Future/poll_next design
// (original_source/crates/core/src/service/mod.rs) into a goroutine that
// selects over the pool's pending-transactions stream, a mode timer and a
// force-mine channel, and emits a MinedBlockOutcome per sealed block.
package produce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/executor"
	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/gasprice"
	"github.com/starkcore/sequencer/provider"
	"github.com/starkcore/sequencer/stateroot"
	"github.com/starkcore/sequencer/txpool"
)

// Mode selects when the producer transitions Pending -> Sealing (spec §4.6).
type Mode int

const (
	// ModeInstant seals immediately on every pool notification.
	ModeInstant Mode = iota
	// ModeInterval seals on a fixed timer, accumulating transactions
	// between ticks.
	ModeInterval
	// ModeOnDemand only seals on ForceMine.
	ModeOnDemand
)

// MinedBlockOutcome reports one sealed block (spec §4.6 step 6).
type MinedBlockOutcome struct {
	BlockNumber uint64
	GasUsed     uint64
	StepsUsed   uint64
}

// Config configures a BlockProducer.
type Config struct {
	Mode     Mode
	Interval time.Duration // ModeInterval only
}

// BlockProducer owns the single exclusive handle into the executor and
// provider that seals blocks (spec §4.6, "Concurrency").
type BlockProducer struct {
	provider *provider.DbProvider
	pool     *txpool.Pool
	factory  executor.ExecutorFactory
	cfg      Config
	log      *zap.SugaredLogger

	mu      sync.RWMutex
	pending executor.BlockExecutor

	forceMine chan struct{}
	outcomes  chan MinedBlockOutcome
	errs      chan error
}

// New constructs a producer. The executor factory decides how transactions
// actually get executed; the producer itself never calls the Cairo VM.
func New(p *provider.DbProvider, pool *txpool.Pool, factory executor.ExecutorFactory, cfg Config, log *zap.SugaredLogger) *BlockProducer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &BlockProducer{
		provider:  p,
		pool:      pool,
		factory:   factory,
		cfg:       cfg,
		log:       log,
		forceMine: make(chan struct{}, 1),
		outcomes:  make(chan MinedBlockOutcome, 16),
		errs:      make(chan error, 1),
	}
}

// Instant constructs a producer in ModeInstant.
func Instant(p *provider.DbProvider, pool *txpool.Pool, factory executor.ExecutorFactory, log *zap.SugaredLogger) *BlockProducer {
	return New(p, pool, factory, Config{Mode: ModeInstant}, log)
}

// Interval constructs a producer in ModeInterval, sealing every d.
func Interval(p *provider.DbProvider, pool *txpool.Pool, factory executor.ExecutorFactory, d time.Duration, log *zap.SugaredLogger) *BlockProducer {
	return New(p, pool, factory, Config{Mode: ModeInterval, Interval: d}, log)
}

// OnDemand constructs a producer in ModeOnDemand.
func OnDemand(p *provider.DbProvider, pool *txpool.Pool, factory executor.ExecutorFactory, log *zap.SugaredLogger) *BlockProducer {
	return New(p, pool, factory, Config{Mode: ModeOnDemand}, log)
}

// Outcomes is the channel of successfully sealed blocks.
func (bp *BlockProducer) Outcomes() <-chan MinedBlockOutcome { return bp.outcomes }

// Errors carries at most one catastrophic error, matching poll_next's
// "terminal error" semantics (spec §4.6, "Concurrency", "Trie commit
// error: catastrophic").
func (bp *BlockProducer) Errors() <-chan error { return bp.errs }

// ForceMine requests an immediate seal; a no-op outside ModeOnDemand and
// coalesced if a request is already pending.
func (bp *BlockProducer) ForceMine() {
	select {
	case bp.forceMine <- struct{}{}:
	default:
	}
}

// PendingExecutor returns the current Pending executor's state for
// `pending`-tagged reads, and whether one exists (spec §4.6, "Pending read
// access"). The caller must not mutate the returned reader.
func (bp *BlockProducer) PendingExecutor() (provider.StateReader, bool) {
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	if bp.pending == nil {
		return nil, false
	}
	return bp.pending.State(), true
}

// PendingBlockEnv returns the block environment the current pending
// executor is running against, and whether one exists, for read callers
// (query's Call path) that need to build a BlockExecutor scoped to the same
// environment the pending block will actually seal with.
func (bp *BlockProducer) PendingBlockEnv() (executor.BlockEnv, bool) {
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	if bp.pending == nil {
		return executor.BlockEnv{}, false
	}
	return bp.pending.BlockEnv(), true
}

// PendingTransactions returns every transaction executed into the current
// pending block so far, and whether a pending executor exists at all (spec
// §5, "Pending visibility": observable via the Pending block id between
// execution and the next seal).
func (bp *BlockProducer) PendingTransactions() ([]executor.TxWithResult, bool) {
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	if bp.pending == nil {
		return nil, false
	}
	return bp.pending.Transactions(), true
}

// Run drives the producer until ctx is cancelled or a catastrophic error
// occurs; intended to run in its own goroutine. Sealed blocks and the
// terminal error (if any) are reported on Outcomes/Errors.
func (bp *BlockProducer) Run(ctx context.Context) error {
	stream := bp.pool.PendingTransactions()
	txCh := make(chan chain.PoolEntry)
	go func() {
		defer close(txCh)
		for {
			e, ok := stream.Next(ctx)
			if !ok {
				return
			}
			select {
			case txCh <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := bp.ensurePending(ctx); err != nil {
		return bp.fail(err)
	}

	var tick <-chan time.Time
	if bp.cfg.Mode == ModeInterval {
		ticker := time.NewTicker(bp.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case e, ok := <-txCh:
			if !ok {
				txCh = nil
				continue
			}
			bp.executeOne(ctx, e)
			if bp.cfg.Mode == ModeInstant {
				if err := bp.seal(ctx); err != nil {
					return bp.fail(err)
				}
			}

		case <-tick:
			if err := bp.seal(ctx); err != nil {
				return bp.fail(err)
			}

		case <-bp.forceMine:
			if bp.cfg.Mode == ModeOnDemand {
				if err := bp.seal(ctx); err != nil {
					return bp.fail(err)
				}
			}
		}
	}
}

func (bp *BlockProducer) fail(err error) error {
	select {
	case bp.errs <- err:
	default:
	}
	return err
}

func (bp *BlockProducer) ensurePending(ctx context.Context) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.pending != nil {
		return nil
	}
	state, env, err := bp.nextBlockEnvLocked(ctx)
	if err != nil {
		return err
	}
	bp.pending = bp.factory.WithStateAndBlockEnv(state, env)
	return nil
}

// nextBlockEnvLocked builds the BlockEnv for the block that would be sealed
// next. Must be called with mu held.
func (bp *BlockProducer) nextBlockEnvLocked(ctx context.Context) (provider.StateReader, executor.BlockEnv, error) {
	state, err := bp.provider.Latest(ctx)
	if err != nil {
		return nil, executor.BlockEnv{}, err
	}
	number, exists, err := bp.provider.TipBlockNumber(ctx)
	if err != nil {
		state.Close()
		return nil, executor.BlockEnv{}, err
	}
	next := uint64(0)
	l1GasPrice := gasprice.FloorPrice
	l2GasPrice := gasprice.FloorPrice
	excessDataGas := uint64(0)
	if exists {
		next = number + 1
		prevHeader, err := bp.provider.HeaderByNumber(ctx, number)
		if err != nil {
			state.Close()
			return nil, executor.BlockEnv{}, fmt.Errorf("produce: read parent header for gas pricing: %w", err)
		}
		l1GasPrice, l2GasPrice = prevHeader.L1GasPrice, prevHeader.L2GasPrice
		excessDataGas = gasprice.NextExcessDataGas(prevHeader.ExcessDataGas, gasprice.DataGasUsed(prevHeader.StateDiffLength))
	}
	cfg := bp.factory.Cfg()
	env := executor.BlockEnv{
		Number:           next,
		Timestamp:        uint64(nowUnix()),
		L1GasPrices:      l1GasPrice,
		L2GasPrices:      l2GasPrice,
		L1DataGasPrices:  gasprice.L1DataGasPrice(excessDataGas),
		SequencerAddress: cfg.FeeTokenAddresses.STRK,
		ProtocolVersion:  "0.14.0",
	}
	return state, env, nil
}

// nowUnix is a seam so tests don't depend on the real wall clock.
var nowUnix = func() int64 { return time.Now().Unix() }

// executeOne feeds one pooled transaction to the pending executor. An
// executor error during streaming is not catastrophic: the offending
// transaction is dropped from the pool and the producer keeps whatever the
// executor already accumulated (spec §4.6, "Failure semantics").
func (bp *BlockProducer) executeOne(ctx context.Context, e chain.PoolEntry) {
	bp.mu.RLock()
	pending := bp.pending
	bp.mu.RUnlock()
	if pending == nil {
		if err := bp.ensurePending(ctx); err != nil {
			bp.log.Errorw("could not open pending executor", "err", err)
			return
		}
		bp.mu.RLock()
		pending = bp.pending
		bp.mu.RUnlock()
	}

	if _, err := pending.ExecuteTransactions([]chain.Tx{e.Tx}); err != nil {
		bp.log.Warnw("executor error during streaming execution, dropping transaction", "tx", e.Tx.Hash.Felt().String(), "err", err)
		bp.pool.RemoveTransactions([]felt.TxHash{e.Tx.Hash})
	}
}

// seal runs the six-step sealing procedure (spec §4.6).
func (bp *BlockProducer) seal(ctx context.Context) error {
	bp.mu.Lock()
	pending := bp.pending
	bp.mu.Unlock()
	if pending == nil {
		return nil
	}

	output, err := pending.TakeExecutionOutput()
	if err != nil {
		return fmt.Errorf("produce: take execution output: %w", err)
	}
	if len(output.Transactions) == 0 {
		return nil
	}

	number, exists, err := bp.provider.TipBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("produce: catastrophic: read tip: %w", err)
	}
	next := uint64(0)
	var parentHash felt.BlockHash
	l1GasPrice := gasprice.FloorPrice
	l2GasPrice := gasprice.FloorPrice
	excessDataGas := uint64(0)
	if exists {
		next = number + 1
		prevHeader, err := bp.provider.HeaderByNumber(ctx, number)
		if err != nil {
			return fmt.Errorf("produce: catastrophic: read parent header: %w", err)
		}
		parentHash = prevHeader.BlockHash()
		l1GasPrice, l2GasPrice = prevHeader.L1GasPrice, prevHeader.L2GasPrice
		excessDataGas = gasprice.NextExcessDataGas(prevHeader.ExcessDataGas, gasprice.DataGasUsed(prevHeader.StateDiffLength))
	}

	receipts := make([]chain.Receipt, len(output.Transactions))
	body := make(chain.Body, len(output.Transactions))
	hashes := make([]felt.TxHash, len(output.Transactions))
	for i, twr := range output.Transactions {
		body[i] = twr.Tx
		receipts[i] = chain.Receipt{
			TransactionHash: twr.Tx.Hash,
			Result:          twr.Result,
			Resources:       twr.Resources,
		}
		hashes[i] = twr.Tx.Hash
	}

	baseTxNum, err := bp.provider.NextTxNum(ctx)
	if err != nil {
		return fmt.Errorf("produce: catastrophic: read next tx num: %w", err)
	}

	txCommit := chain.TxCommitment(body)
	receiptCommit := chain.ReceiptCommitment(receipts)
	eventCommit, eventCount := chain.EventCommitment(receipts)
	stateDiffCommit, stateDiffLen := chain.StateDiffCommitment(output.StateUpdates)

	header := chain.Header{
		ParentHash:      parentHash,
		Number:          next,
		TxCommitment:    txCommit,
		ReceiptCommit:   receiptCommit,
		EventCommitment: eventCommit,
		StateDiffCommit: stateDiffCommit,
		TxCount:         uint32(len(body)),
		EventCount:      eventCount,
		StateDiffLength: stateDiffLen,
		Timestamp:       uint64(nowUnix()),
		L1GasPrice:      l1GasPrice,
		L2GasPrice:      l2GasPrice,
		L1DataGasPrice:  gasprice.L1DataGasPrice(excessDataGas),
		ExcessDataGas:   excessDataGas,
	}

	tx, err := bp.provider.BeginWrite(ctx)
	if err != nil {
		return fmt.Errorf("produce: catastrophic: begin write: %w", err)
	}
	prevState := provider.NewStateReaderFromTx(tx)

	root, err := stateroot.Compute(bp.provider, tx, next, output.StateUpdates, prevState)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("produce: catastrophic: trie commit: %w", err)
	}
	header.StateRoot = root                          // step 3
	block := chain.Block{Header: header, Body: body} // step 4: BlockHash() is derived lazily by readers

	if err := bp.provider.WriteSealedBlock(tx, next, block, receipts, baseTxNum, output.StateUpdates); err != nil {
		tx.Rollback()
		bp.log.Errorw("block write failed, retrying next seal from current pending state", "block_number", next, "err", err)
		return nil
	}
	if err := tx.Commit(); err != nil {
		bp.log.Errorw("block write commit failed, retrying next seal from current pending state", "block_number", next, "err", err)
		return nil
	}

	bp.pool.RemoveTransactions(hashes)

	var gasUsed, stepsUsed uint64
	for _, r := range receipts {
		gasUsed += r.Resources.L1Gas + r.Resources.L2Gas
		stepsUsed += r.Resources.CairoSteps
	}

	bp.mu.Lock()
	bp.pending = nil
	bp.mu.Unlock()
	pending.State().Close()
	if err := bp.ensurePending(ctx); err != nil {
		return fmt.Errorf("produce: catastrophic: start next pending executor: %w", err)
	}

	select {
	case bp.outcomes <- MinedBlockOutcome{BlockNumber: next, GasUsed: gasUsed, StepsUsed: stepsUsed}:
	case <-ctx.Done():
	}
	return nil
}

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/executor"
	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/kv"
	"github.com/starkcore/sequencer/produce"
	"github.com/starkcore/sequencer/provider"
	"github.com/starkcore/sequencer/txpool"
)

// ErrBlockNotFound is returned for a BlockID that does not resolve to any
// stored block (spec §7, "Reads for not-yet-produced blocks return a
// block-not-found error rather than blocking").
var ErrBlockNotFound = errors.New("query: block not found")

// ErrTransactionNotFound is returned when a transaction hash is not found
// in any sealed block, the pending executor, or the pool.
var ErrTransactionNotFound = errors.New("query: transaction not found")

// ErrReceiptUnavailable is returned by TransactionReceipt for a transaction
// that the pool has accepted but that has not yet been executed into a
// pending or sealed block.
var ErrReceiptUnavailable = errors.New("query: transaction not yet executed")

// ErrClassNotFound is returned when a class hash has not been declared.
var ErrClassNotFound = errors.New("query: class not found")

// ErrCallUnavailable is returned by Call when the facade was constructed
// without an ExecutorFactory, i.e. no Cairo VM is wired in.
var ErrCallUnavailable = errors.New("query: no executor factory configured")

// Facade is the C8 read surface: a thin, stateless wrapper around C3's
// provider, C5's pool, and (optionally) C6's block producer and C4's
// executor factory. All of its methods are safe for concurrent use,
// matching "Storage reader: obtained per-request by any component; never
// blocks writers and vice versa" (spec §5).
type Facade struct {
	provider *provider.DbProvider
	pool     *txpool.Pool
	producer *produce.BlockProducer   // nil: no mining, Pending always falls back to Latest
	factory  executor.ExecutorFactory // nil: Call is unavailable
}

// New constructs a Facade. producer and factory may be nil for a node that
// does not run a block producer (a pure follower) or does not have a VM
// wired in.
func New(p *provider.DbProvider, pool *txpool.Pool, producer *produce.BlockProducer, factory executor.ExecutorFactory) *Facade {
	return &Facade{provider: p, pool: pool, producer: producer, factory: factory}
}

// BlockNumber returns the chain tip's block number (spec §4.8,
// "block_number").
func (f *Facade) BlockNumber(ctx context.Context) (uint64, error) {
	n, exists, err := f.provider.TipBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrBlockNotFound
	}
	return n, nil
}

// resolveNumber turns id into a concrete block number, reporting whether it
// resolved to the pending block (which has no persisted number yet; the
// number returned is the one it would be sealed as).
func (f *Facade) resolveNumber(ctx context.Context, id BlockID) (number uint64, pending bool, err error) {
	switch id.kind {
	case blockIDNumber:
		return id.number, false, nil

	case blockIDHash:
		n, err := f.provider.BlockNumberByHash(ctx, id.hash)
		if errors.Is(err, kv.ErrKeyNotFound) {
			return 0, false, ErrBlockNotFound
		}
		return n, false, err

	case blockIDLatest:
		n, exists, err := f.provider.TipBlockNumber(ctx)
		if err != nil {
			return 0, false, err
		}
		if !exists {
			return 0, false, ErrBlockNotFound
		}
		return n, false, nil

	case blockIDPending:
		if f.producer != nil {
			if _, ok := f.producer.PendingExecutor(); ok {
				n, exists, err := f.provider.TipBlockNumber(ctx)
				if err != nil {
					return 0, false, err
				}
				next := uint64(0)
				if exists {
					next = n + 1
				}
				return next, true, nil
			}
		}
		return f.resolveNumber(ctx, Latest())

	default:
		return 0, false, fmt.Errorf("query: unknown block id kind %d", id.kind)
	}
}

// resolveState returns a StateReader for id. owned reports whether the
// caller must Close it: Historical/Latest readers open a fresh snapshot and
// must be closed, while the pending executor's reader is shared with the
// producer and must never be closed by a reader.
func (f *Facade) resolveState(ctx context.Context, id BlockID) (state provider.StateReader, owned bool, err error) {
	switch id.kind {
	case blockIDLatest:
		s, err := f.provider.Latest(ctx)
		return s, true, err

	case blockIDPending:
		if f.producer != nil {
			if s, ok := f.producer.PendingExecutor(); ok {
				return s, false, nil
			}
		}
		return f.resolveState(ctx, Latest())

	case blockIDNumber:
		s, err := f.provider.Historical(ctx, id.number+1)
		return s, true, err

	case blockIDHash:
		n, err := f.provider.BlockNumberByHash(ctx, id.hash)
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, false, ErrBlockNotFound
		}
		if err != nil {
			return nil, false, err
		}
		s, err := f.provider.Historical(ctx, n+1)
		return s, true, err

	default:
		return nil, false, fmt.Errorf("query: unknown block id kind %d", id.kind)
	}
}

// withState resolves id to a StateReader, runs fn, and closes the reader
// only if this call owns it.
func (f *Facade) withState(ctx context.Context, id BlockID, fn func(provider.StateReader) error) error {
	state, owned, err := f.resolveState(ctx, id)
	if err != nil {
		return err
	}
	if owned {
		defer state.Close()
	}
	return fn(state)
}

// GetStorageAt reads one storage slot as of id (spec §4.8, "get_storage_at").
func (f *Facade) GetStorageAt(ctx context.Context, id BlockID, addr felt.ContractAddress, key felt.StorageKey) (felt.StorageValue, error) {
	var out felt.StorageValue
	err := f.withState(ctx, id, func(s provider.StateReader) error {
		v, err := s.StorageAt(addr, key)
		out = v
		return err
	})
	return out, err
}

// GetNonce reads a contract's nonce as of id (spec §4.8, "get_nonce").
func (f *Facade) GetNonce(ctx context.Context, id BlockID, addr felt.ContractAddress) (felt.Nonce, error) {
	var out felt.Nonce
	err := f.withState(ctx, id, func(s provider.StateReader) error {
		v, err := s.Nonce(addr)
		out = v
		return err
	})
	return out, err
}

// GetClassHashAt reads the class hash a contract address is assigned to as
// of id (spec §4.8, "get_class_hash_at").
func (f *Facade) GetClassHashAt(ctx context.Context, id BlockID, addr felt.ContractAddress) (felt.ClassHash, error) {
	var out felt.ClassHash
	err := f.withState(ctx, id, func(s provider.StateReader) error {
		v, err := s.ClassHashAt(addr)
		out = v
		return err
	})
	return out, err
}

// GetClass fetches a declared class by hash (spec §4.8, "get_class(hash)").
// Block scoping beyond "has this hash ever been declared" is not modelled:
// classes are immutable once declared (scenario S5, "historical(prev_block)
// .class(H) returns None" is a presence check the caller can make itself
// via GetCompiledClassHash against the same BlockID before calling GetClass).
func (f *Facade) GetClass(ctx context.Context, hash felt.ClassHash) (chain.ContractClass, error) {
	c, err := f.provider.ClassByHash(ctx, hash)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return chain.ContractClass{}, ErrClassNotFound
	}
	return c, err
}

// GetCompiledClassHash reads the compiled class hash a declared class
// resolves to as of id.
func (f *Facade) GetCompiledClassHash(ctx context.Context, id BlockID, classHash felt.ClassHash) (felt.CompiledClassHash, error) {
	var out felt.CompiledClassHash
	err := f.withState(ctx, id, func(s provider.StateReader) error {
		v, err := s.CompiledClassHash(classHash)
		out = v
		return err
	})
	return out, err
}

// Call dispatches a read-only entry point invocation against state as of id
// (spec §4.8, "call(EntryPointCall, block_id) dispatches to C4's read-only
// call path"). A BlockExecutor is built fresh per call, scoped to id's state
// and block environment, and discarded once the call returns: unlike the
// producer's pending executor, a call contributes nothing to any state diff.
func (f *Facade) Call(ctx context.Context, id BlockID, call executor.EntryPointCall) ([]felt.Felt, error) {
	if f.factory == nil {
		return nil, ErrCallUnavailable
	}

	env, err := f.blockEnvFor(ctx, id)
	if err != nil {
		return nil, err
	}

	state, owned, err := f.resolveState(ctx, id)
	if err != nil {
		return nil, err
	}
	if owned {
		defer state.Close()
	}

	be := f.factory.WithStateAndBlockEnv(state, env)
	ce, ok := be.(executor.CallExecutor)
	if !ok {
		return nil, fmt.Errorf("query: executor factory's BlockExecutor does not implement CallExecutor")
	}
	return ce.Call(call)
}

// blockEnvFor builds the BlockEnv a call against id should run with: the
// pending executor's own environment when id resolves to Pending, or one
// reconstructed from the sealed header otherwise.
func (f *Facade) blockEnvFor(ctx context.Context, id BlockID) (executor.BlockEnv, error) {
	number, pending, err := f.resolveNumber(ctx, id)
	if err != nil {
		return executor.BlockEnv{}, err
	}
	if pending && f.producer != nil {
		if env, ok := f.producer.PendingBlockEnv(); ok {
			return env, nil
		}
	}
	header, err := f.provider.HeaderByNumber(ctx, number)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return executor.BlockEnv{}, ErrBlockNotFound
	}
	if err != nil {
		return executor.BlockEnv{}, err
	}
	return executor.BlockEnv{
		Number:           header.Number,
		Timestamp:        header.Timestamp,
		L1GasPrices:      header.L1GasPrice,
		L2GasPrices:      header.L2GasPrice,
		L1DataGasPrices:  header.L1DataGasPrice,
		SequencerAddress: header.SequencerAddr,
		ProtocolVersion:  header.ProtocolVersion,
	}, nil
}

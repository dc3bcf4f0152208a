// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/kv"
)

// BlockView is the facade's uniform block shape: transport layers project
// it down to BlockWithTxHashes/BlockWithTxs/BlockWithReceipts as needed
// (spec §4.8). Pending is set when id resolved to the producer's
// in-progress block, in which case Header carries only the fields known
// before sealing (Number, TxCount); the remaining commitment fields are
// zero until the block is actually sealed.
type BlockView struct {
	Header   chain.Header
	Body     chain.Body
	Receipts []chain.Receipt
	Pending  bool
}

// TxHashes projects the view down to the ordered list of transaction
// hashes, for `block(id) → BlockWithTxHashes`.
func (v BlockView) TxHashes() []felt.TxHash {
	out := make([]felt.TxHash, len(v.Body))
	for i, tx := range v.Body {
		out[i] = tx.Hash
	}
	return out
}

// Block resolves id to a full BlockView (spec §4.8, "block(id)").
func (f *Facade) Block(ctx context.Context, id BlockID) (BlockView, error) {
	number, pending, err := f.resolveNumber(ctx, id)
	if err != nil {
		return BlockView{}, err
	}
	if pending {
		return f.pendingBlockView(number), nil
	}

	block, err := f.provider.BlockByNumber(ctx, number)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return BlockView{}, ErrBlockNotFound
	}
	if err != nil {
		return BlockView{}, err
	}

	receipts := make([]chain.Receipt, len(block.Body))
	for i, tx := range block.Body {
		r, err := f.provider.ReceiptByTxHash(ctx, tx.Hash)
		if err != nil {
			return BlockView{}, fmt.Errorf("query: receipt for tx %s: %w", tx.Hash.Felt(), err)
		}
		receipts[i] = r
	}
	return BlockView{Header: block.Header, Body: block.Body, Receipts: receipts}, nil
}

func (f *Facade) pendingBlockView(next uint64) BlockView {
	if f.producer == nil {
		return BlockView{Header: chain.Header{Number: next}, Pending: true}
	}
	twrs, ok := f.producer.PendingTransactions()
	if !ok {
		return BlockView{Header: chain.Header{Number: next}, Pending: true}
	}
	body := make(chain.Body, len(twrs))
	receipts := make([]chain.Receipt, len(twrs))
	for i, twr := range twrs {
		body[i] = twr.Tx
		receipts[i] = chain.Receipt{
			TransactionHash: twr.Tx.Hash,
			Result:          twr.Result,
			Resources:       twr.Resources,
		}
	}
	header := chain.Header{Number: next, TxCount: uint32(len(body))}
	return BlockView{Header: header, Body: body, Receipts: receipts, Pending: true}
}

// TxStatus classifies where a transaction currently sits (spec §5,
// "Pending visibility").
type TxStatus int

const (
	// TxStatusNotFound means the hash is unknown anywhere: not in the pool,
	// not in the pending executor, not in any sealed block.
	TxStatusNotFound TxStatus = iota
	// TxStatusReceived means the pool holds the transaction but it has not
	// yet been executed into a pending block.
	TxStatusReceived
	// TxStatusPending means the transaction executed into the current
	// pending block but that block has not yet sealed; its inclusion in a
	// confirmed block is not guaranteed (spec §5).
	TxStatusPending
	// TxStatusAcceptedOnL2 means the transaction is in a sealed block.
	TxStatusAcceptedOnL2
)

// TransactionByHash locates a transaction wherever it currently lives (spec
// §4.8, "transaction_by_hash"). blockNumber is only meaningful when status
// is TxStatusAcceptedOnL2.
func (f *Facade) TransactionByHash(ctx context.Context, hash felt.TxHash) (tx chain.Tx, status TxStatus, blockNumber uint64, err error) {
	t, n, err := f.provider.TransactionByHash(ctx, hash)
	if err == nil {
		return t, TxStatusAcceptedOnL2, n, nil
	}
	if !errors.Is(err, kv.ErrKeyNotFound) {
		return chain.Tx{}, TxStatusNotFound, 0, err
	}

	if f.producer != nil {
		if twrs, ok := f.producer.PendingTransactions(); ok {
			for _, twr := range twrs {
				if twr.Tx.Hash == hash {
					return twr.Tx, TxStatusPending, 0, nil
				}
			}
		}
	}

	if entry, ok := f.pool.Get(hash); ok {
		return entry.Tx, TxStatusReceived, 0, nil
	}

	return chain.Tx{}, TxStatusNotFound, 0, ErrTransactionNotFound
}

// TransactionReceipt returns the receipt for hash (spec §4.8,
// "transaction_receipt"). A transaction the pool has accepted but not yet
// executed has no receipt: ErrReceiptUnavailable distinguishes that case
// from ErrTransactionNotFound.
func (f *Facade) TransactionReceipt(ctx context.Context, hash felt.TxHash) (receipt chain.Receipt, status TxStatus, blockNumber uint64, err error) {
	r, err := f.provider.ReceiptByTxHash(ctx, hash)
	if err == nil {
		n, err := f.provider.BlockNumberByTxHash(ctx, hash)
		return r, TxStatusAcceptedOnL2, n, err
	}
	if !errors.Is(err, kv.ErrKeyNotFound) {
		return chain.Receipt{}, TxStatusNotFound, 0, err
	}

	if f.producer != nil {
		if twrs, ok := f.producer.PendingTransactions(); ok {
			for _, twr := range twrs {
				if twr.Tx.Hash == hash {
					receipt := chain.Receipt{
						TransactionHash: hash,
						Result:          twr.Result,
						Resources:       twr.Resources,
					}
					return receipt, TxStatusPending, 0, nil
				}
			}
		}
	}

	if f.pool.Contains(hash) {
		return chain.Receipt{}, TxStatusReceived, 0, ErrReceiptUnavailable
	}

	return chain.Receipt{}, TxStatusNotFound, 0, ErrTransactionNotFound
}

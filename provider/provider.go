// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

// Package provider is the C3 layer (spec §4.3): it turns the raw kv tables
// into a block reader, a historical state factory and the trie facets the
// block producer and state-root algorithm need, the way katana's
// provider/db crate sits between storage and everything else
// (original_source/crates/storage/provider).
package provider

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/kv"
)

// DbProvider is the default, kv-backed provider.
type DbProvider struct {
	db kv.Db
}

// New wraps a kv.Db as a DbProvider.
func New(db kv.Db) *DbProvider { return &DbProvider{db: db} }

// HeaderByNumber returns the block header stored at number.
func (p *DbProvider) HeaderByNumber(ctx context.Context, number uint64) (chain.Header, error) {
	var h chain.Header
	err := p.db.View(ctx, func(tx kv.RoTx) error {
		raw, err := tx.Get(kv.BlockHeaders, kv.EncodeBlockNum(number))
		if err != nil {
			return err
		}
		var v chain.VersionedHeader
		if err := v.UnmarshalBinary(raw); err != nil {
			return fmt.Errorf("provider: decode header %d: %w", number, err)
		}
		h = v.Header
		return nil
	})
	return h, err
}

// BlockNumberByHash resolves a block hash to its canonical number.
func (p *DbProvider) BlockNumberByHash(ctx context.Context, hash felt.BlockHash) (uint64, error) {
	var n uint64
	err := p.db.View(ctx, func(tx kv.RoTx) error {
		raw, err := tx.Get(kv.BlockHashes, hash.Bytes())
		if err != nil {
			return err
		}
		n = kv.DecodeBlockNum(raw)
		return nil
	})
	return n, err
}

// HeaderByHash resolves a block hash to its header.
func (p *DbProvider) HeaderByHash(ctx context.Context, hash felt.BlockHash) (chain.Header, error) {
	n, err := p.BlockNumberByHash(ctx, hash)
	if err != nil {
		return chain.Header{}, err
	}
	return p.HeaderByNumber(ctx, n)
}

// bodyIndex is the fixed-width value stored in BlockBodyIndices.
type bodyIndex struct {
	BaseTxNum uint64
	TxCount   uint32
}

func encodeBodyIndex(b bodyIndex) []byte {
	out := make([]byte, 12)
	putUint64(out[0:8], b.BaseTxNum)
	putUint32(out[8:12], b.TxCount)
	return out
}

func decodeBodyIndex(b []byte) bodyIndex {
	return bodyIndex{BaseTxNum: getUint64(b[0:8]), TxCount: getUint32(b[8:12])}
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
}
func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
func putUint32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[3-i] = byte(v >> (8 * i))
	}
}
func getUint32(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v = v<<8 | uint32(b[i])
	}
	return v
}

// BlockByNumber reassembles a full block (header + ordered transactions)
// from the normalized tables.
func (p *DbProvider) BlockByNumber(ctx context.Context, number uint64) (chain.Block, error) {
	var blk chain.Block
	err := p.db.View(ctx, func(tx kv.RoTx) error {
		hraw, err := tx.Get(kv.BlockHeaders, kv.EncodeBlockNum(number))
		if err != nil {
			return err
		}
		var vh chain.VersionedHeader
		if err := vh.UnmarshalBinary(hraw); err != nil {
			return err
		}
		blk.Header = vh.Header

		biRaw, err := tx.Get(kv.BlockBodyIndices, kv.EncodeBlockNum(number))
		if err != nil {
			return err
		}
		bi := decodeBodyIndex(biRaw)

		blk.Body = make(chain.Body, bi.TxCount)
		for i := uint32(0); i < bi.TxCount; i++ {
			txNum := bi.BaseTxNum + uint64(i)
			traw, err := tx.Get(kv.Transactions, kv.EncodeBlockNum(txNum))
			if err != nil {
				return err
			}
			var vt chain.VersionedTx
			if err := vt.UnmarshalBinary(traw); err != nil {
				return err
			}
			blk.Body[i] = vt.Tx
		}
		return nil
	})
	return blk, err
}

// ReceiptByTxHash looks up a transaction's receipt.
func (p *DbProvider) ReceiptByTxHash(ctx context.Context, hash felt.TxHash) (chain.Receipt, error) {
	var r chain.Receipt
	err := p.db.View(ctx, func(tx kv.RoTx) error {
		txNumRaw, err := tx.Get(kv.TxHashes, hash.Bytes())
		if err != nil {
			return err
		}
		raw, err := tx.Get(kv.Receipts, txNumRaw)
		if err != nil {
			return err
		}
		return cbor.Unmarshal(raw, &r)
	})
	return r, err
}

// TransactionByHash looks up a transaction by hash, alongside the number of
// the block it was included in.
func (p *DbProvider) TransactionByHash(ctx context.Context, hash felt.TxHash) (chain.Tx, uint64, error) {
	var t chain.Tx
	var blockNum uint64
	err := p.db.View(ctx, func(tx kv.RoTx) error {
		txNumRaw, err := tx.Get(kv.TxHashes, hash.Bytes())
		if err != nil {
			return err
		}
		traw, err := tx.Get(kv.Transactions, txNumRaw)
		if err != nil {
			return err
		}
		var vt chain.VersionedTx
		if err := vt.UnmarshalBinary(traw); err != nil {
			return err
		}
		t = vt.Tx

		blockNumRaw, err := tx.Get(kv.TxBlock, txNumRaw)
		if err != nil {
			return err
		}
		blockNum = kv.DecodeBlockNum(blockNumRaw)
		return nil
	})
	return t, blockNum, err
}

// BlockNumberByTxHash resolves a transaction hash to the number of the
// block it was included in, the lookup transaction_receipt needs to attach
// block identity to a receipt (spec §4.8).
func (p *DbProvider) BlockNumberByTxHash(ctx context.Context, hash felt.TxHash) (uint64, error) {
	var blockNum uint64
	err := p.db.View(ctx, func(tx kv.RoTx) error {
		txNumRaw, err := tx.Get(kv.TxHashes, hash.Bytes())
		if err != nil {
			return err
		}
		blockNumRaw, err := tx.Get(kv.TxBlock, txNumRaw)
		if err != nil {
			return err
		}
		blockNum = kv.DecodeBlockNum(blockNumRaw)
		return nil
	})
	return blockNum, err
}

// ClassByHash fetches a declared class by its hash.
func (p *DbProvider) ClassByHash(ctx context.Context, hash felt.ClassHash) (chain.ContractClass, error) {
	var c chain.ContractClass
	err := p.db.View(ctx, func(tx kv.RoTx) error {
		raw, err := tx.Get(kv.Classes, hash.Bytes())
		if err != nil {
			return err
		}
		var v chain.VersionedContractClass
		if err := v.UnmarshalBinary(raw); err != nil {
			return err
		}
		c = v.Class
		return nil
	})
	return c, err
}

// Latest returns a StateReader over the tip of the chain.
func (p *DbProvider) Latest(ctx context.Context) (StateReader, error) {
	tx, err := p.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	return &latestStateReader{tx: tx}, nil
}

// Historical returns a StateReader reconstructing state as of the start of
// blockNum (i.e. after applying blocks [0, blockNum) only), per spec §6
// "Historical state reconstruction".
func (p *DbProvider) Historical(ctx context.Context, blockNum uint64) (StateReader, error) {
	tx, err := p.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	tip, err := p.tipBlockNumber(tx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	return &historicalStateReader{tx: tx, asOf: blockNum, tip: tip}, nil
}

// TipBlockNumber returns the number of the most recently inserted block and
// whether any block has been inserted at all (false before genesis loads),
// for callers — chiefly the block producer — that need to know the next
// block number to seal (spec §4.6 step 2).
func (p *DbProvider) TipBlockNumber(ctx context.Context) (number uint64, exists bool, err error) {
	tx, err := p.db.BeginRo(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()
	c, err := tx.Cursor(kv.BlockHeaders)
	if err != nil {
		return 0, false, err
	}
	defer c.Close()
	k, _, err := c.Last()
	if err != nil {
		return 0, false, err
	}
	if k == nil {
		return 0, false, nil
	}
	return kv.DecodeBlockNum(k), true, nil
}

// NextTxNum returns the transaction number the next sealed block's body
// should start at: the tip block's BaseTxNum plus its TxCount, or 0 before
// genesis. The block producer uses this instead of always starting at 0, so
// every block's transactions land in a distinct, non-overlapping slice of
// the Transactions/Receipts tables (spec §4.6 step 5).
func (p *DbProvider) NextTxNum(ctx context.Context) (uint64, error) {
	var next uint64
	err := p.db.View(ctx, func(tx kv.RoTx) error {
		c, err := tx.Cursor(kv.BlockBodyIndices)
		if err != nil {
			return err
		}
		defer c.Close()
		_, v, err := c.Last()
		if err != nil {
			return err
		}
		if v == nil {
			next = 0
			return nil
		}
		bi := decodeBodyIndex(v)
		next = bi.BaseTxNum + uint64(bi.TxCount)
		return nil
	})
	return next, err
}

func (p *DbProvider) tipBlockNumber(tx kv.RoTx) (uint64, error) {
	c, err := tx.Cursor(kv.BlockHeaders)
	if err != nil {
		return 0, err
	}
	defer c.Close()
	k, _, err := c.Last()
	if err != nil {
		return 0, err
	}
	if k == nil {
		return 0, nil
	}
	return kv.DecodeBlockNum(k), nil
}

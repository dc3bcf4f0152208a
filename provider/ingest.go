// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package provider

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/kv"
	"github.com/starkcore/sequencer/trie"
)

// InsertBlock appends one block to the canonical chain: header, body,
// receipts, and the state diff's effect on the latest-value tables plus
// their change sets (spec §4.3, "ingesting a sealed block"). number must be
// exactly one past the current tip (or 0 for genesis); callers are
// responsible for sequencing. The block producer does not call InsertBlock:
// it calls WriteSealedBlock inside its own write transaction.
func (p *DbProvider) InsertBlock(ctx context.Context, number uint64, block chain.Block, receipts []chain.Receipt, baseTxNum uint64, updates *chain.StateUpdates) error {
	return p.db.Update(ctx, func(tx kv.RwTx) error {
		return p.WriteSealedBlock(tx, number, block, receipts, baseTxNum, updates)
	})
}

// WriteSealedBlock writes one block's header, body, receipts and state diff
// onto an already-open write transaction without committing it, so the
// block producer can share one transaction between stateroot.Compute's trie
// writes (which must see state as of just before this call) and the block
// write itself (spec §4.6 step 5, "a single writer transaction").
func (p *DbProvider) WriteSealedBlock(tx kv.RwTx, number uint64, block chain.Block, receipts []chain.Receipt, baseTxNum uint64, updates *chain.StateUpdates) error {
	if len(receipts) != len(block.Body) {
		return fmt.Errorf("provider: %d receipts for %d transactions", len(receipts), len(block.Body))
	}
	if err := p.writeHeaderAndBody(tx, number, block, baseTxNum); err != nil {
		return err
	}
	if err := p.writeReceipts(tx, baseTxNum, receipts); err != nil {
		return err
	}
	return p.applyStateUpdates(tx, number, updates)
}

func (p *DbProvider) writeHeaderAndBody(tx kv.RwTx, number uint64, block chain.Block, baseTxNum uint64) error {
	v := chain.FromHeader(block.Header)
	hraw, err := v.MarshalBinary()
	if err != nil {
		return err
	}
	numKey := kv.EncodeBlockNum(number)
	if err := tx.Put(kv.BlockHeaders, numKey, hraw); err != nil {
		return err
	}
	hash := block.Header.BlockHash()
	if err := tx.Put(kv.BlockHashes, hash.Bytes(), numKey); err != nil {
		return err
	}
	if err := tx.Put(kv.BlockBodyIndices, numKey, encodeBodyIndex(bodyIndex{BaseTxNum: baseTxNum, TxCount: uint32(len(block.Body))})); err != nil {
		return err
	}
	if err := tx.Put(kv.BlockStatuses, numKey, []byte{byte(chain.FinalityAcceptedOnL2)}); err != nil {
		return err
	}
	for i, t := range block.Body {
		txNum := baseTxNum + uint64(i)
		txNumKey := kv.EncodeBlockNum(txNum)
		vt := chain.FromTx(t)
		traw, err := vt.MarshalBinary()
		if err != nil {
			return err
		}
		if err := tx.Put(kv.Transactions, txNumKey, traw); err != nil {
			return err
		}
		if err := tx.Put(kv.TxHashes, t.Hash.Bytes(), txNumKey); err != nil {
			return err
		}
		if err := tx.Put(kv.TxBlock, txNumKey, numKey); err != nil {
			return err
		}
	}
	return nil
}

func (p *DbProvider) writeReceipts(tx kv.RwTx, baseTxNum uint64, receipts []chain.Receipt) error {
	for i, r := range receipts {
		raw, err := cbor.Marshal(r)
		if err != nil {
			return err
		}
		if err := tx.Put(kv.Receipts, kv.EncodeBlockNum(baseTxNum+uint64(i)), raw); err != nil {
			return err
		}
	}
	return nil
}

// applyStateUpdates writes the new latest values for every touched key and
// records each prior value in the corresponding change-set table, so
// Historical() can later undo exactly this block (spec §6).
func (p *DbProvider) applyStateUpdates(tx kv.RwTx, number uint64, updates *chain.StateUpdates) error {
	blockKey := kv.EncodeBlockNum(number)

	touchedContracts := map[felt.ContractAddress]struct{}{}
	for addr := range updates.DeployedContracts {
		touchedContracts[addr] = struct{}{}
	}
	for addr := range updates.ReplacedClasses {
		touchedContracts[addr] = struct{}{}
	}
	for addr := range updates.NonceUpdates {
		touchedContracts[addr] = struct{}{}
	}

	for addr := range touchedContracts {
		priorRaw, err := tx.Get(kv.ContractInfo, addr.Bytes())
		var prior []byte
		if err == nil {
			prior = priorRaw
		} else if err != kv.ErrKeyNotFound {
			return err
		}
		if err := tx.PutDup(kv.ContractChangeSet, blockKey, kv.EncodeChangeSetValue(addr.Bytes(), prior)); err != nil {
			return err
		}

		class, nonce, _ := decodeContractInfoOrZero(prior)
		if c, ok := updates.DeployedContracts[addr]; ok {
			class = c
		}
		if c, ok := updates.ReplacedClasses[addr]; ok {
			class = c
		}
		if n, ok := updates.NonceUpdates[addr]; ok {
			nonce = n
		}
		if err := tx.Put(kv.ContractInfo, addr.Bytes(), encodeContractInfo(class, nonce)); err != nil {
			return err
		}
	}

	for addr, kvs := range updates.StorageUpdates {
		for key, val := range kvs {
			sk := storageKey(addr, key)
			priorRaw, err := tx.Get(kv.Storage, sk)
			var prior []byte
			if err == nil {
				prior = priorRaw
			} else if err != kv.ErrKeyNotFound {
				return err
			}
			if err := tx.PutDup(kv.StorageChangeSet, blockKey, kv.EncodeChangeSetValue(sk, prior)); err != nil {
				return err
			}
			vb := val.Felt().Bytes()
			if err := tx.Put(kv.Storage, sk, vb[:]); err != nil {
				return err
			}
		}
	}

	for classHash, compiled := range updates.DeclaredClasses {
		cb := compiled.Felt().Bytes()
		if err := tx.Put(kv.CompiledClassHashes, classHash.Bytes(), cb[:]); err != nil {
			return err
		}
		if err := tx.PutDup(kv.ClassDeclarations, blockKey, classHash.Bytes()); err != nil {
			return err
		}
	}

	return nil
}

func decodeContractInfoOrZero(b []byte) (felt.ClassHash, felt.Nonce, error) {
	if len(b) == 0 {
		return felt.ClassHash{}, felt.Nonce{}, nil
	}
	return decodeContractInfo(b)
}

// ContractsTrieStore returns the node store backing the contracts trie,
// scoped to tx so the producer's sealing step and this insert share one
// write transaction (spec §4.6 step 5 / §4.7).
func (p *DbProvider) ContractsTrieStore(tx kv.RwTx) trie.NodeStore {
	return trie.NewKVNodeStore(tx, kv.ContractsTrieNodes, nil)
}

// ClassesTrieStore returns the node store backing the classes trie.
func (p *DbProvider) ClassesTrieStore(tx kv.RwTx) trie.NodeStore {
	return trie.NewKVNodeStore(tx, kv.ClassesTrieNodes, nil)
}

// StorageTrieStore returns the node store for one contract's storage
// subtrie, scoped by its address within the shared StorageTriesNodes table.
func (p *DbProvider) StorageTrieStore(tx kv.RwTx, addr felt.ContractAddress) trie.NodeStore {
	b := addr.Bytes()
	return trie.NewKVNodeStore(tx, kv.StorageTriesNodes, b[:])
}

// ContractsTrieStoreRO returns a read-only node store backing the contracts
// trie, scoped to tx. Used by query's storage_proof path, which only ever
// reads a trie that some prior sealed block already committed.
func (p *DbProvider) ContractsTrieStoreRO(tx kv.RoTx) trie.NodeStore {
	return trie.NewKVNodeStore(tx, kv.ContractsTrieNodes, nil)
}

// ClassesTrieStoreRO returns a read-only node store backing the classes
// trie.
func (p *DbProvider) ClassesTrieStoreRO(tx kv.RoTx) trie.NodeStore {
	return trie.NewKVNodeStore(tx, kv.ClassesTrieNodes, nil)
}

// StorageTrieStoreRO returns a read-only node store for one contract's
// storage subtrie.
func (p *DbProvider) StorageTrieStoreRO(tx kv.RoTx, addr felt.ContractAddress) trie.NodeStore {
	b := addr.Bytes()
	return trie.NewKVNodeStore(tx, kv.StorageTriesNodes, b[:])
}

// BeginWrite exposes the raw write transaction for callers (produce,
// stateroot) that need to interleave InsertBlock with direct trie writes
// inside the same commit.
func (p *DbProvider) BeginWrite(ctx context.Context) (kv.RwTx, error) {
	return p.db.BeginRw(ctx)
}

// BeginRead exposes a raw read transaction for callers (query's
// storage_proof) that need to read several trie node stores against one
// consistent snapshot.
func (p *DbProvider) BeginRead(ctx context.Context) (kv.RoTx, error) {
	return p.db.BeginRo(ctx)
}

// DeclareClass stores a contract class keyed by its hash. Nothing in this
// module calls it.
func (p *DbProvider) DeclareClass(tx kv.RwTx, class chain.ContractClass) error {
	v := chain.FromContractClass(class)
	raw, err := v.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.Put(kv.Classes, class.Hash.Bytes(), raw)
}

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package provider

import (
	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/kv"
)

// StateReader is the read side of C3's state factory: a snapshot of
// contract state, either at the chain tip or reconstructed as of an
// earlier block (spec §4.3).
type StateReader interface {
	Nonce(addr felt.ContractAddress) (felt.Nonce, error)
	StorageAt(addr felt.ContractAddress, key felt.StorageKey) (felt.StorageValue, error)
	ClassHashAt(addr felt.ContractAddress) (felt.ClassHash, error)
	CompiledClassHash(classHash felt.ClassHash) (felt.CompiledClassHash, error)
	Close()
}

// contractInfo is the fixed value stored per address in kv.ContractInfo:
// the currently-assigned class hash followed by the current nonce.
func encodeContractInfo(class felt.ClassHash, nonce felt.Nonce) []byte {
	cb := class.Felt().Bytes()
	nb := nonce.Felt().Bytes()
	out := make([]byte, 64)
	copy(out[:32], cb[:])
	copy(out[32:], nb[:])
	return out
}

func decodeContractInfo(b []byte) (felt.ClassHash, felt.Nonce, error) {
	if len(b) != 64 {
		return felt.ClassHash{}, felt.Nonce{}, kv.ErrCorruption
	}
	cf, err := felt.FromBytesBE(b[:32])
	if err != nil {
		return felt.ClassHash{}, felt.Nonce{}, err
	}
	nf, err := felt.FromBytesBE(b[32:])
	if err != nil {
		return felt.ClassHash{}, felt.Nonce{}, err
	}
	return felt.NewClassHash(cf), felt.NewNonce(nf), nil
}

func storageKey(addr felt.ContractAddress, key felt.StorageKey) []byte {
	ab := addr.Bytes()
	kb := key.Felt().Bytes()
	out := make([]byte, 64)
	copy(out[:32], ab[:])
	copy(out[32:], kb[:])
	return out
}

// latestStateReader reads directly from the tip-of-chain tables.
type latestStateReader struct {
	tx kv.RoTx
}

func (r *latestStateReader) Nonce(addr felt.ContractAddress) (felt.Nonce, error) {
	raw, err := r.tx.Get(kv.ContractInfo, addr.Bytes())
	if err == kv.ErrKeyNotFound {
		return felt.Nonce{}, nil
	}
	if err != nil {
		return felt.Nonce{}, err
	}
	_, nonce, err := decodeContractInfo(raw)
	return nonce, err
}

func (r *latestStateReader) ClassHashAt(addr felt.ContractAddress) (felt.ClassHash, error) {
	raw, err := r.tx.Get(kv.ContractInfo, addr.Bytes())
	if err == kv.ErrKeyNotFound {
		return felt.ClassHash{}, nil
	}
	if err != nil {
		return felt.ClassHash{}, err
	}
	class, _, err := decodeContractInfo(raw)
	return class, err
}

func (r *latestStateReader) StorageAt(addr felt.ContractAddress, key felt.StorageKey) (felt.StorageValue, error) {
	raw, err := r.tx.Get(kv.Storage, storageKey(addr, key))
	if err == kv.ErrKeyNotFound {
		return felt.StorageValue{}, nil
	}
	if err != nil {
		return felt.StorageValue{}, err
	}
	f, err := felt.FromBytesBE(raw)
	return felt.NewStorageValue(f), err
}

func (r *latestStateReader) CompiledClassHash(classHash felt.ClassHash) (felt.CompiledClassHash, error) {
	raw, err := r.tx.Get(kv.CompiledClassHashes, classHash.Bytes())
	if err == kv.ErrKeyNotFound {
		return felt.CompiledClassHash{}, nil
	}
	if err != nil {
		return felt.CompiledClassHash{}, err
	}
	f, err := felt.FromBytesBE(raw)
	return felt.NewCompiledClassHash(f), err
}

func (r *latestStateReader) Close() { r.tx.Rollback() }

// NewStateReaderFromTx wraps an already-open transaction (typically the
// sealing step's write transaction) as a StateReader reading the tables'
// current values through that same transaction, rather than opening a
// fresh read snapshot (spec §4.7 step 3, "resolve missing leaf fields by
// reading the previous block's state" — this must see state as of just
// before the in-progress write applies this block's updates). Close is a
// no-op: the caller owns tx's lifecycle.
func NewStateReaderFromTx(tx kv.RoTx) StateReader {
	return &txScopedStateReader{latestStateReader{tx: tx}}
}

type txScopedStateReader struct{ latestStateReader }

func (r *txScopedStateReader) Close() {}

// historicalStateReader reconstructs state as of the start of block asOf by
// walking the change-set tables backwards from the tip (spec §6).
type historicalStateReader struct {
	tx   kv.RoTx
	asOf uint64
	tip  uint64
}

func (r *historicalStateReader) latestContractInfo(addr felt.ContractAddress) []byte {
	raw, err := r.tx.Get(kv.ContractInfo, addr.Bytes())
	if err != nil {
		return nil
	}
	return raw
}

func (r *historicalStateReader) contractInfoAsOf(addr felt.ContractAddress) ([]byte, bool, error) {
	latest := r.latestContractInfo(addr)
	return kv.GetAsOf(r.tx, kv.ContractChangeSet, addr.Bytes(), latest, r.tip, r.asOf)
}

func (r *historicalStateReader) Nonce(addr felt.ContractAddress) (felt.Nonce, error) {
	raw, existed, err := r.contractInfoAsOf(addr)
	if err != nil || !existed {
		return felt.Nonce{}, err
	}
	_, nonce, err := decodeContractInfo(raw)
	return nonce, err
}

func (r *historicalStateReader) ClassHashAt(addr felt.ContractAddress) (felt.ClassHash, error) {
	raw, existed, err := r.contractInfoAsOf(addr)
	if err != nil || !existed {
		return felt.ClassHash{}, err
	}
	class, _, err := decodeContractInfo(raw)
	return class, err
}

func (r *historicalStateReader) StorageAt(addr felt.ContractAddress, key felt.StorageKey) (felt.StorageValue, error) {
	sk := storageKey(addr, key)
	latest, _ := r.tx.Get(kv.Storage, sk)
	raw, existed, err := kv.GetAsOf(r.tx, kv.StorageChangeSet, sk, latest, r.tip, r.asOf)
	if err != nil || !existed {
		return felt.StorageValue{}, err
	}
	f, err := felt.FromBytesBE(raw)
	return felt.NewStorageValue(f), err
}

func (r *historicalStateReader) CompiledClassHash(classHash felt.ClassHash) (felt.CompiledClassHash, error) {
	raw, err := r.tx.Get(kv.CompiledClassHashes, classHash.Bytes())
	if err == kv.ErrKeyNotFound {
		return felt.CompiledClassHash{}, nil
	}
	if err != nil {
		return felt.CompiledClassHash{}, err
	}
	f, err := felt.FromBytesBE(raw)
	return felt.NewCompiledClassHash(f), err
}

func (r *historicalStateReader) Close() { r.tx.Rollback() }

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

// Package pebblekv implements kv.Db on top of cockroachdb/pebble. Pebble
// exposes one flat byte-ordered keyspace, so this package emulates erigon's
// named-table/DupSort model the teacher's mdbx backend gets natively: every
// logical table gets a one-byte prefix (tablePrefix), and DupSort tables
// additionally append their "duplicate" sub-key onto the physical key so
// that a prefix+key range scan reproduces mdbx's per-key value ordering
// (see dupcursor.go).
package pebblekv

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/starkcore/sequencer/kv"
)

// tablePrefixes assigns each configured table a stable one-byte id. Order
// matters only for readability; ids must never be reused for a different
// table once a database has been written with them, so entries are only
// ever appended to schemaOrder.
var schemaOrder = []string{
	kv.DatabaseInfo,
	kv.BlockHeaders,
	kv.BlockHashes,
	kv.BlockBodyIndices,
	kv.BlockStatuses,
	kv.Transactions,
	kv.TxHashes,
	kv.TxBlock,
	kv.Receipts,
	kv.ContractInfo,
	kv.Storage,
	kv.ContractChangeSet,
	kv.StorageChangeSet,
	kv.Classes,
	kv.CompiledClassHashes,
	kv.ClassDeclarations,
	kv.ContractsTrieNodes,
	kv.ClassesTrieNodes,
	kv.StorageTriesNodes,
	kv.StageCheckpoints,
}

func buildPrefixes() map[string]byte {
	m := make(map[string]byte, len(schemaOrder))
	for i, name := range schemaOrder {
		m[name] = byte(i)
	}
	return m
}

var tablePrefixes = buildPrefixes()

func prefixFor(table string) (byte, error) {
	p, ok := tablePrefixes[table]
	if !ok {
		return 0, fmt.Errorf("pebblekv: unknown table %q", table)
	}
	return p, nil
}

func physicalKey(table string, key []byte) ([]byte, error) {
	p, err := prefixFor(table)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+len(key))
	out[0] = p
	copy(out[1:], key)
	return out, nil
}

// dupPhysicalKey builds the physical key for one (key, value) pair of a
// DupSort table: prefix + len(key)-delimited key + value. The key length
// prefix (one byte, keys here are all <= 255 bytes) lets the dup cursor
// split a physical key back into (logical key, value) without ambiguity
// even though value bytes may themselves collide with key bytes.
func dupPhysicalKey(table string, key, value []byte) ([]byte, error) {
	p, err := prefixFor(table)
	if err != nil {
		return nil, err
	}
	if len(key) > 255 {
		return nil, fmt.Errorf("pebblekv: dupsort key too long: %d bytes", len(key))
	}
	out := make([]byte, 0, 2+len(key)+len(value))
	out = append(out, p, byte(len(key)))
	out = append(out, key...)
	out = append(out, value...)
	return out, nil
}

// Db is a pebble-backed kv.Db. Writes are serialised with a mutex the same
// way mdbx serialises its single writer transaction; reads go through
// pebble snapshots and need no lock.
type Db struct {
	pdb    *pebble.DB
	wmu    sync.Mutex
	closed bool
}

// Open opens (creating if absent) a pebble database at dir and checks its
// schema version stamp against kv.SchemaVersion. A database that holds keys
// but no stamp is rejected with kv.ErrCorruption.
func Open(dir string) (*Db, error) {
	pdb, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebblekv: open %s: %w", dir, err)
	}
	db := &Db{pdb: pdb}
	if err := db.ensureSchemaVersion(); err != nil {
		_ = pdb.Close()
		return nil, err
	}
	return db, nil
}

func (db *Db) ensureSchemaVersion() error {
	k, err := physicalKey(kv.DatabaseInfo, []byte("schema_version"))
	if err != nil {
		return err
	}
	v, closer, err := db.pdb.Get(k)
	if err == pebble.ErrNotFound {
		it, ierr := db.pdb.NewIter(nil)
		if ierr != nil {
			return fmt.Errorf("pebblekv: checking for existing tables: %w", ierr)
		}
		populated := it.First()
		if cerr := it.Close(); cerr != nil {
			return fmt.Errorf("pebblekv: checking for existing tables: %w", cerr)
		}
		if populated {
			return kv.ErrCorruption
		}
		stamp := encodeVersion(kv.SchemaVersion)
		return db.pdb.Set(k, stamp, pebble.Sync)
	}
	if err != nil {
		return fmt.Errorf("pebblekv: reading schema version: %w", err)
	}
	defer closer.Close()
	stored := decodeVersion(v)
	if stored.Major > kv.SchemaVersion.Major {
		return kv.ErrIncompatibleVersion
	}
	return nil
}

func encodeVersion(v kv.Version) []byte {
	return []byte(fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch))
}

func decodeVersion(b []byte) kv.Version {
	var v kv.Version
	fmt.Sscanf(string(b), "%d.%d.%d", &v.Major, &v.Minor, &v.Patch)
	return v
}

func (db *Db) Close() error {
	db.wmu.Lock()
	defer db.wmu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	return db.pdb.Close()
}

func (db *Db) View(ctx context.Context, fn func(tx kv.RoTx) error) error {
	tx, err := db.BeginRo(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(tx)
}

func (db *Db) Update(ctx context.Context, fn func(tx kv.RwTx) error) error {
	tx, err := db.BeginRw(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (db *Db) BeginRo(ctx context.Context) (kv.RoTx, error) {
	snap := db.pdb.NewSnapshot()
	return &roTx{snap: snap}, nil
}

func (db *Db) BeginRw(ctx context.Context) (kv.RwTx, error) {
	db.wmu.Lock()
	batch := db.pdb.NewIndexedBatch()
	return &rwTx{roTx: roTx{snap: nil, batch: batch}, db: db, batch: batch}, nil
}

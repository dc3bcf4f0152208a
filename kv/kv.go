// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package kv

import (
	"context"
	"errors"
)

// ErrIncompatibleVersion is returned by Db.Open when an existing database's
// schema version stamp is newer than SchemaVersion, i.e. this binary is too
// old to read it safely.
var ErrIncompatibleVersion = errors.New("kv: database schema version incompatible with this binary")

// ErrCorruption is returned when a stored value fails its own sanity checks
// (bad envelope tag, truncated fixed-width key, ...).
var ErrCorruption = errors.New("kv: corrupted value")

// ErrKeyNotFound is returned by Get for keys that are not present.
var ErrKeyNotFound = errors.New("kv: key not found")

// Db is a table-structured key-value store with MVCC semantics: one writer
// transaction at a time, any number of concurrent, snapshot-consistent
// reader transactions (spec §6, "single writer, many non-blocking
// readers"). Implementations: kv/pebblekv.
type Db interface {
	// View opens a read-only transaction and closes it when fn returns.
	View(ctx context.Context, fn func(tx RoTx) error) error
	// Update opens the single read-write transaction, commits on a nil
	// return from fn and rolls back otherwise.
	Update(ctx context.Context, fn func(tx RwTx) error) error
	// BeginRo/BeginRw give callers that need to hold a transaction across
	// several calls (e.g. the provider's historical-state cursor) manual
	// lifecycle control. The caller must call Rollback or Commit exactly
	// once.
	BeginRo(ctx context.Context) (RoTx, error)
	BeginRw(ctx context.Context) (RwTx, error)
	Close() error
}

// RoTx is a read-only, snapshot-consistent view of the database.
type RoTx interface {
	// Get returns ErrKeyNotFound if table does not contain key.
	Get(table string, key []byte) ([]byte, error)
	Has(table string, key []byte) (bool, error)
	Cursor(table string) (Cursor, error)
	// DupCursor returns a cursor over a DupSort table, iterating all values
	// for a given key before advancing.
	DupCursor(table string) (DupCursor, error)
	Rollback()
}

// RwTx extends RoTx with mutation. A RwTx is also a valid RoTx: reads made
// through it observe its own uncommitted writes.
type RwTx interface {
	RoTx
	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error
	// PutDup appends one more value under key in a DupSort table, leaving
	// any existing values for the same key in place. Calling Put on a
	// DupSort table key instead would not accumulate values the way
	// mdbx's native dupsort does, so changeset and declaration writers
	// must use PutDup.
	PutDup(table string, key, value []byte) error
	// DeleteDup removes one specific (key, value) pair from a DupSort
	// table, leaving other values for the same key untouched.
	DeleteDup(table string, key, value []byte) error
	// ClearTable removes every key in table.
	ClearTable(table string) error
	Commit() error
}

// Cursor iterates a non-DupSort table in key order.
type Cursor interface {
	First() (key, value []byte, err error)
	Next() (key, value []byte, err error)
	Seek(key []byte) (k, v []byte, err error)
	Last() (key, value []byte, err error)
	Close()
}

// DupCursor iterates a DupSort table: First/Next move across keys the way
// Cursor does, while NextDup/SeekBothExact/FirstDup/LastDup move within the
// value set of the current key. Mirrors erigon's mdbx.RwCursorDupSort.
type DupCursor interface {
	Cursor
	FirstDup() (value []byte, err error)
	NextDup() (key, value []byte, err error)
	LastDup() (value []byte, err error)
	// SeekBothExact looks up an exact (key, value) pair, used by
	// DeleteDup's callers to check presence before deleting.
	SeekBothExact(key, value []byte) (k, v []byte, err error)
	// SeekBothRange finds the first value >= value for the given key,
	// used by changeset readers whose key is the block number and whose
	// dup-sorted value is subkey || prior value.
	SeekBothRange(key, value []byte) (v []byte, err error)
}

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package pebblekv

import (
	"io"

	"github.com/cockroachdb/pebble"

	"github.com/starkcore/sequencer/kv"
)

// reader is the subset of pebble.Snapshot / pebble.Batch this package needs;
// both satisfy pebble.Reader.
type reader interface {
	Get(key []byte) (value []byte, closer io.Closer, err error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

type roTx struct {
	snap  *pebble.Snapshot
	batch *pebble.Batch // set instead of snap when this roTx backs a rwTx
}

func (t *roTx) reader() reader {
	if t.batch != nil {
		return t.batch
	}
	return t.snap
}

func (t *roTx) Get(table string, key []byte) ([]byte, error) {
	pk, err := physicalKey(table, key)
	if err != nil {
		return nil, err
	}
	v, closer, err := t.reader().Get(pk)
	if err == pebble.ErrNotFound {
		return nil, kv.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (t *roTx) Has(table string, key []byte) (bool, error) {
	_, err := t.Get(table, key)
	if err == kv.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *roTx) Cursor(table string) (kv.Cursor, error) {
	p, err := prefixFor(table)
	if err != nil {
		return nil, err
	}
	return newCursor(t.reader(), p)
}

func (t *roTx) DupCursor(table string) (kv.DupCursor, error) {
	p, err := prefixFor(table)
	if err != nil {
		return nil, err
	}
	return newDupCursor(t.reader(), p)
}

func (t *roTx) Rollback() {
	if t.snap != nil {
		_ = t.snap.Close()
	}
	// rwTx.Rollback handles releasing the batch and writer lock itself.
}

type rwTx struct {
	roTx
	db    *Db
	batch *pebble.Batch
}

func (t *rwTx) Put(table string, key, value []byte) error {
	pk, err := physicalKey(table, key)
	if err != nil {
		return err
	}
	return t.batch.Set(pk, value, nil)
}

func (t *rwTx) Delete(table string, key []byte) error {
	pk, err := physicalKey(table, key)
	if err != nil {
		return err
	}
	return t.batch.Delete(pk, nil)
}

// PutDup stores value under key in a DupSort table. Because pebble has no
// native notion of duplicate keys, the value is folded into the physical
// key (prefix + key + value) so distinct values under the same logical key
// occupy distinct physical keys and sort adjacently; the dup cursor strips
// the key/value split back out on read (dupcursor.go).
func (t *rwTx) PutDup(table string, key, value []byte) error {
	pk, err := dupPhysicalKey(table, key, value)
	if err != nil {
		return err
	}
	return t.batch.Set(pk, value, nil)
}

func (t *rwTx) DeleteDup(table string, key, value []byte) error {
	pk, err := dupPhysicalKey(table, key, value)
	if err != nil {
		return err
	}
	return t.batch.Delete(pk, nil)
}

func (t *rwTx) ClearTable(table string) error {
	p, err := prefixFor(table)
	if err != nil {
		return err
	}
	lo := []byte{p}
	hi := []byte{p + 1}
	return t.batch.DeleteRange(lo, hi, nil)
}

func (t *rwTx) Commit() error {
	defer t.db.wmu.Unlock()
	return t.batch.Commit(pebble.Sync)
}

func (t *rwTx) Rollback() {
	defer t.db.wmu.Unlock()
	_ = t.batch.Close()
}

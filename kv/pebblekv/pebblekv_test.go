// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package pebblekv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starkcore/sequencer/kv"
)

func openTestDb(t *testing.T) *Db {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPutGetRoundTrip(t *testing.T) {
	db := openTestDb(t)
	ctx := context.Background()

	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put(kv.BlockHeaders, kv.EncodeBlockNum(1), []byte("header-1"))
	}))

	require.NoError(t, db.View(ctx, func(tx kv.RoTx) error {
		v, err := tx.Get(kv.BlockHeaders, kv.EncodeBlockNum(1))
		require.NoError(t, err)
		require.Equal(t, "header-1", string(v))
		return nil
	}))
}

func TestGetMissingKey(t *testing.T) {
	db := openTestDb(t)
	err := db.View(context.Background(), func(tx kv.RoTx) error {
		_, err := tx.Get(kv.BlockHeaders, kv.EncodeBlockNum(99))
		require.ErrorIs(t, err, kv.ErrKeyNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestCursorIteratesInKeyOrder(t *testing.T) {
	db := openTestDb(t)
	ctx := context.Background()
	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		for i := uint64(3); i >= 1; i-- {
			if err := tx.Put(kv.BlockHeaders, kv.EncodeBlockNum(i), []byte{byte(i)}); err != nil {
				return err
			}
		}
		return nil
	}))

	var order []uint64
	require.NoError(t, db.View(ctx, func(tx kv.RoTx) error {
		c, err := tx.Cursor(kv.BlockHeaders)
		require.NoError(t, err)
		defer c.Close()
		for k, _, err := c.First(); k != nil; k, _, err = c.Next() {
			require.NoError(t, err)
			order = append(order, kv.DecodeBlockNum(k))
		}
		return nil
	}))
	require.Equal(t, []uint64{1, 2, 3}, order)
}

func TestDupSortPutAndIterate(t *testing.T) {
	db := openTestDb(t)
	ctx := context.Background()
	blockKey := kv.EncodeBlockNum(5)

	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		require.NoError(t, tx.PutDup(kv.ContractChangeSet, blockKey, []byte("aaa-prior")))
		require.NoError(t, tx.PutDup(kv.ContractChangeSet, blockKey, []byte("bbb-prior")))
		return nil
	}))

	require.NoError(t, db.View(ctx, func(tx kv.RoTx) error {
		dc, err := tx.DupCursor(kv.ContractChangeSet)
		require.NoError(t, err)
		defer dc.Close()

		k, v, err := dc.First()
		require.NoError(t, err)
		require.Equal(t, blockKey, k)
		require.Equal(t, "aaa-prior", string(v))

		_, v2, err := dc.NextDup()
		require.NoError(t, err)
		require.Equal(t, "bbb-prior", string(v2))

		_, _, err = dc.NextDup()
		require.NoError(t, err)
		return nil
	}))
}

func TestGetAsOfWalksChangeSets(t *testing.T) {
	db := openTestDb(t)
	ctx := context.Background()
	subkey := []byte("contract-A-nonce")

	// Block 1: value was "v0" before, becomes "v1".
	// Block 3: value was "v1" before, becomes "v3".
	require.NoError(t, db.Update(ctx, func(tx kv.RwTx) error {
		require.NoError(t, tx.PutDup(kv.ContractChangeSet, kv.EncodeBlockNum(1), kv.EncodeChangeSetValue(subkey, []byte("v0"))))
		require.NoError(t, tx.PutDup(kv.ContractChangeSet, kv.EncodeBlockNum(3), kv.EncodeChangeSetValue(subkey, []byte("v1"))))
		return nil
	}))

	require.NoError(t, db.View(ctx, func(tx kv.RoTx) error {
		latest := []byte("v3")
		v, existed, err := kv.GetAsOf(tx, kv.ContractChangeSet, subkey, latest, 4, 3)
		require.NoError(t, err)
		require.True(t, existed)
		require.Equal(t, "v1", string(v))

		v, existed, err = kv.GetAsOf(tx, kv.ContractChangeSet, subkey, latest, 4, 0)
		require.NoError(t, err)
		require.True(t, existed)
		require.Equal(t, "v0", string(v))

		v, existed, err = kv.GetAsOf(tx, kv.ContractChangeSet, subkey, latest, 4, 4)
		require.NoError(t, err)
		require.True(t, existed)
		require.Equal(t, "v3", string(v))
		return nil
	}))
}

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package pebblekv

import (
	"bytes"

	"github.com/cockroachdb/pebble"
)

// dupCursor iterates a DupSort table whose physical keys are laid out
// prefix||len(key)||key||value (see dupPhysicalKey). Unlike cursor, it must
// parse every physical key to recover the (logical key, value) split
// because the value is embedded in the key itself.
type dupCursor struct {
	it     *pebble.Iterator
	prefix byte
}

func newDupCursor(r reader, prefix byte) (*dupCursor, error) {
	it, err := r.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefix},
		UpperBound: []byte{prefix + 1},
	})
	if err != nil {
		return nil, err
	}
	return &dupCursor{it: it, prefix: prefix}, nil
}

// split decodes a physical key of this table into (logical key, value).
func split(physKey []byte) (key, value []byte) {
	// physKey[0] is the table prefix, physKey[1] the key length.
	klen := int(physKey[1])
	key = physKey[2 : 2+klen]
	value = physKey[2+klen:]
	return key, value
}

func (c *dupCursor) current() (key, value []byte, err error) {
	if !c.it.Valid() {
		return nil, nil, nil
	}
	if err := c.it.Error(); err != nil {
		return nil, nil, err
	}
	k, v := split(c.it.Key())
	outK := make([]byte, len(k))
	copy(outK, k)
	outV := make([]byte, len(v))
	copy(outV, v)
	return outK, outV, nil
}

func (c *dupCursor) First() (key, value []byte, err error) {
	c.it.First()
	return c.current()
}

func (c *dupCursor) Next() (key, value []byte, err error) {
	c.it.Next()
	return c.current()
}

func (c *dupCursor) Last() (key, value []byte, err error) {
	c.it.Last()
	return c.current()
}

func (c *dupCursor) seekKeyPrefix(key []byte) []byte {
	target := make([]byte, 0, 2+len(key))
	target = append(target, c.prefix, byte(len(key)))
	target = append(target, key...)
	return target
}

func (c *dupCursor) Seek(key []byte) (k, v []byte, err error) {
	c.it.SeekGE(c.seekKeyPrefix(key))
	return c.current()
}

// FirstDup seeks to the first value of the key the cursor currently sits
// on; callers must have already positioned the cursor via Seek/First.
func (c *dupCursor) FirstDup() (value []byte, err error) {
	if !c.it.Valid() {
		return nil, nil
	}
	curKey, _ := split(c.it.Key())
	c.it.SeekGE(c.seekKeyPrefix(curKey))
	_, v, err := c.current()
	return v, err
}

func (c *dupCursor) NextDup() (key, value []byte, err error) {
	if !c.it.Valid() {
		return nil, nil, nil
	}
	curKey, _ := split(c.it.Key())
	c.it.Next()
	if !c.it.Valid() {
		return nil, nil, nil
	}
	nk, nv := split(c.it.Key())
	if !bytes.Equal(nk, curKey) {
		return nil, nil, nil
	}
	outK := make([]byte, len(nk))
	copy(outK, nk)
	outV := make([]byte, len(nv))
	copy(outV, nv)
	return outK, outV, nil
}

func (c *dupCursor) LastDup() (value []byte, err error) {
	if !c.it.Valid() {
		return nil, nil
	}
	curKey, _ := split(c.it.Key())
	// Seek to the start of the next logical key, then step back one.
	nextKeyBound := make([]byte, 0, 2+len(curKey))
	nextKeyBound = append(nextKeyBound, c.prefix, byte(len(curKey)))
	nextKeyBound = append(nextKeyBound, incremented(curKey)...)
	c.it.SeekLT(nextKeyBound)
	if !c.it.Valid() {
		return nil, nil
	}
	_, v, err := c.current()
	return v, err
}

// incremented returns the lexicographically next byte string after b of the
// same length class, used only to build an exclusive upper bound for
// LastDup's SeekLT.
func incremented(b []byte) []byte {
	out := append([]byte{}, b...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return append(out, 0x00)
}

func (c *dupCursor) SeekBothExact(key, value []byte) (k, v []byte, err error) {
	target := dupPhysicalKeyNoErr(c.prefix, key, value)
	c.it.SeekGE(target)
	if !c.it.Valid() {
		return nil, nil, nil
	}
	gotKey, gotVal := split(c.it.Key())
	if !bytes.Equal(gotKey, key) || !bytes.Equal(gotVal, value) {
		return nil, nil, nil
	}
	return c.current()
}

func (c *dupCursor) SeekBothRange(key, value []byte) (v []byte, err error) {
	target := dupPhysicalKeyNoErr(c.prefix, key, value)
	c.it.SeekGE(target)
	if !c.it.Valid() {
		return nil, nil
	}
	gotKey, gotVal := split(c.it.Key())
	if !bytes.Equal(gotKey, key) {
		return nil, nil
	}
	out := make([]byte, len(gotVal))
	copy(out, gotVal)
	return out, nil
}

func (c *dupCursor) Close() { _ = c.it.Close() }

func dupPhysicalKeyNoErr(prefix byte, key, value []byte) []byte {
	out := make([]byte, 0, 2+len(key)+len(value))
	out = append(out, prefix, byte(len(key)))
	out = append(out, key...)
	out = append(out, value...)
	return out
}

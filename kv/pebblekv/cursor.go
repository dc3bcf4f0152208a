// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package pebblekv

import (
	"github.com/cockroachdb/pebble"
)

// cursor iterates a non-DupSort table: physical keys are prefix||key, so
// stripping the one-byte prefix recovers the logical key directly.
type cursor struct {
	it     *pebble.Iterator
	prefix byte
}

func newCursor(r reader, prefix byte) (*cursor, error) {
	it, err := r.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefix},
		UpperBound: []byte{prefix + 1},
	})
	if err != nil {
		return nil, err
	}
	return &cursor{it: it, prefix: prefix}, nil
}

func (c *cursor) current() (key, value []byte, err error) {
	if !c.it.Valid() {
		return nil, nil, nil
	}
	k := c.it.Key()
	v := c.it.Value()
	if err := c.it.Error(); err != nil {
		return nil, nil, err
	}
	outK := make([]byte, len(k)-1)
	copy(outK, k[1:])
	outV := make([]byte, len(v))
	copy(outV, v)
	return outK, outV, nil
}

func (c *cursor) First() (key, value []byte, err error) {
	c.it.First()
	return c.current()
}

func (c *cursor) Next() (key, value []byte, err error) {
	c.it.Next()
	return c.current()
}

func (c *cursor) Last() (key, value []byte, err error) {
	c.it.Last()
	return c.current()
}

func (c *cursor) Seek(key []byte) (k, v []byte, err error) {
	target := make([]byte, 1+len(key))
	target[0] = c.prefix
	copy(target[1:], key)
	c.it.SeekGE(target)
	return c.current()
}

func (c *cursor) Close() {
	_ = c.it.Close()
}

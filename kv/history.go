// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package kv

import (
	"encoding/binary"
)

// EncodeBlockNum is the canonical big-endian uint64 key encoding used by
// every IntegerKey table.
func EncodeBlockNum(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

// DecodeBlockNum is the inverse of EncodeBlockNum.
func DecodeBlockNum(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

// GetAsOf reconstructs the value a key held at the start of block asOfBlock
// by walking a change-set table backwards from the latest value, the same
// technique erigon's HistoryReaderV3/DomainGetAsOf uses (spec §6,
// "Historical state reconstruction"): changesets record, per block, the
// value a key had *before* that block's changes were applied, so undoing
// blocks from the tip one at a time recovers any earlier snapshot without
// keeping a full copy of state per block.
//
// changesTable must be a DupSort table keyed by block number, whose values
// are subkey followed directly by the prior encoded value (no length
// prefix); an entry applies when its value starts with subkey.
//
// latest is the current (tip) value for key, or nil if the key was never
// written. GetAsOf returns (nil, false) when the key did not exist as of
// that block, and otherwise the value with existed=true; when no
// change-set entry applies, that value is latest.
func GetAsOf(tx RoTx, changesTable string, subkey []byte, latest []byte, tipBlock, asOfBlock uint64) (value []byte, existed bool, err error) {
	if asOfBlock > tipBlock {
		return latest, latest != nil, nil
	}

	dc, err := tx.DupCursor(changesTable)
	if err != nil {
		return nil, false, err
	}
	defer dc.Close()

	value = latest
	existed = latest != nil

	// Walk every changeset entry for subkey from the tip down through
	// asOfBlock inclusive, in descending block order, replacing value with
	// each entry's prior value; undoing asOfBlock's own changeset recovers
	// the value the key held immediately before asOfBlock ran, i.e. at the
	// start of asOfBlock.
	block := tipBlock
	for {
		k := EncodeBlockNum(block)
		dv, err := dc.SeekBothRange(k, subkey)
		if err != nil {
			return nil, false, err
		}
		if dv != nil && len(dv) >= len(subkey) && string(dv[:len(subkey)]) == string(subkey) {
			prior := dv[len(subkey):]
			if len(prior) == 0 {
				value, existed = nil, false
			} else {
				value, existed = prior, true
			}
		}
		if block == asOfBlock {
			break
		}
		block--
	}
	return value, existed, nil
}

// EncodeChangeSetValue packs a changeset dup-value as subkey||priorValue,
// the layout GetAsOf expects. priorValue may be nil to record "the key did
// not exist before this block".
func EncodeChangeSetValue(subkey, priorValue []byte) []byte {
	out := make([]byte, 0, len(subkey)+len(priorValue))
	out = append(out, subkey...)
	out = append(out, priorValue...)
	return out
}

// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

// Package cliutil holds small parsing helpers shared by starkseqd's
// subcommands.
package cliutil

import "strconv"

// ParseUint64 parses s as a block number in decimal or "0x"-prefixed
// hexadecimal, adapted from erigon's ParseUint64
// (erigon-lib/common/math/integer.go) since operators naming a block
// number on the command line are just as likely to paste a hex value off
// an explorer as type a decimal one.
func ParseUint64(s string) (uint64, bool) {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		return v, err == nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}

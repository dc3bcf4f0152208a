// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

// Package gasprice derives the L1 data gas price a newly sealed block
// carries in its header. A Starknet sequencer publishes each block's state
// diff to L1, either as calldata or, under chain.DAModeBlob, as an EIP-4844
// blob, so the same excess-usage fee market Ethereum uses to price blob
// space applies here: this package adapts the teacher's
// consensus/misc/eip4844.go (CalcExcessBlobGas, FakeExponential) from wei
// priced per blob to FRI priced per state-diff field element.
package gasprice

import (
	"github.com/holiman/uint256"

	"github.com/starkcore/sequencer/chain"
)

const (
	// targetDataGasPerBlock is the state-diff length, in field elements,
	// a block can publish before its excess counter starts growing. One
	// blob holds 4096 field elements at 31 usable bytes each; this plays
	// the role of EIP-4844's target-blobs-per-block constant.
	targetDataGasPerBlock = 4096

	// dataGasUpdateFraction controls how fast the price reacts to excess
	// usage, the same role EIP-4844's blobGasUpdateFraction plays: larger
	// values damp the response.
	dataGasUpdateFraction = 3338477

	// minDataGasPriceFri is the price floor in FRI, STRK's smallest unit.
	minDataGasPriceFri = 1
)

// FloorPrice is the gas price a chain with no sealed blocks yet starts
// from: there is no parent header to carry a price forward from, so the
// genesis block (and any block sealed before a genesis ingestion path
// exists) prices gas at the same floor L1DataGasPrice falls back to.
var FloorPrice = chain.GasPrice{InWei: minDataGasPriceFri, InFri: minDataGasPriceFri}

// NextExcessDataGas folds one sealed block's published state-diff length
// into the running excess counter carried in chain.Header.ExcessDataGas,
// mirroring eip4844.CalcExcessBlobGas: usage above target grows the excess,
// usage at or below target shrinks it, floored at zero.
func NextExcessDataGas(parentExcess uint64, parentDataGasUsed uint64) uint64 {
	total := parentExcess + parentDataGasUsed
	if total < targetDataGasPerBlock {
		return 0
	}
	return total - targetDataGasPerBlock
}

// DataGasUsed is the data-gas cost of publishing a state diff of the given
// length: one unit per field element (spec §3's "state-diff length").
func DataGasUsed(stateDiffLength uint32) uint64 {
	return uint64(stateDiffLength)
}

// FakeExponential approximates factor * e**(excess/denominator) with the
// Taylor-series accumulation from EIP-4844, ported from uint256-wei
// arithmetic to uint256-FRI arithmetic; the shape of the loop is unchanged
// from consensus/misc/eip4844.go's FakeExponential.
func FakeExponential(factor, denominator, excess uint64) uint64 {
	num := uint256.NewInt(excess)
	den := uint256.NewInt(denominator)
	output := uint256.NewInt(0)
	numAccum := new(uint256.Int).Mul(uint256.NewInt(factor), den)

	divisor := new(uint256.Int)
	for i := uint64(1); numAccum.Sign() > 0; i++ {
		output.Add(output, numAccum)
		divisor.Mul(den, uint256.NewInt(i))
		numAccum.MulDivOverflow(numAccum, num, divisor)
	}
	result := output.Div(output, den)
	if !result.IsUint64() {
		return ^uint64(0)
	}
	return result.Uint64()
}

// L1DataGasPrice derives the L1 data gas price a block with the given
// excess data gas should charge, floored at minDataGasPriceFri. L1 data gas
// is priced only in FRI: unlike L1/L2 gas, which also carry a wei price an
// L1 gas oracle would supply, a sequencer with no L1 connection has no wei
// price feed for data availability, so InWei carries the same floor rather
// than a derived value.
func L1DataGasPrice(excessDataGas uint64) chain.GasPrice {
	fri := FakeExponential(minDataGasPriceFri, dataGasUpdateFraction, excessDataGas)
	if fri < minDataGasPriceFri {
		fri = minDataGasPriceFri
	}
	return chain.GasPrice{InWei: minDataGasPriceFri, InFri: fri}
}

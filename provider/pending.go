// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package provider

import (
	"github.com/starkcore/sequencer/chain"
	"github.com/starkcore/sequencer/felt"
)

// PendingStateProvider overlays an in-progress block's uncommitted
// StateUpdates on top of a base StateReader, the read-through view the
// executor sees while the block producer is still building a block (spec
// §4.6, "the pending block is readable before it is sealed").
type PendingStateProvider struct {
	base    StateReader
	pending *chain.StateUpdates
}

// NewPendingStateProvider layers pending over base. base is typically
// DbProvider.Latest(); pending is mutated in place by the executor as it
// runs transactions, so reads always see the most recent overlay state.
func NewPendingStateProvider(base StateReader, pending *chain.StateUpdates) *PendingStateProvider {
	return &PendingStateProvider{base: base, pending: pending}
}

func (p *PendingStateProvider) Nonce(addr felt.ContractAddress) (felt.Nonce, error) {
	if n, ok := p.pending.NonceUpdates[addr]; ok {
		return n, nil
	}
	return p.base.Nonce(addr)
}

func (p *PendingStateProvider) ClassHashAt(addr felt.ContractAddress) (felt.ClassHash, error) {
	if c, ok := p.pending.ReplacedClasses[addr]; ok {
		return c, nil
	}
	if c, ok := p.pending.DeployedContracts[addr]; ok {
		return c, nil
	}
	return p.base.ClassHashAt(addr)
}

func (p *PendingStateProvider) StorageAt(addr felt.ContractAddress, key felt.StorageKey) (felt.StorageValue, error) {
	if byKey, ok := p.pending.StorageUpdates[addr]; ok {
		if v, ok := byKey[key]; ok {
			return v, nil
		}
	}
	return p.base.StorageAt(addr, key)
}

func (p *PendingStateProvider) CompiledClassHash(classHash felt.ClassHash) (felt.CompiledClassHash, error) {
	if c, ok := p.pending.DeclaredClasses[classHash]; ok {
		return c, nil
	}
	return p.base.CompiledClassHash(classHash)
}

func (p *PendingStateProvider) Close() { p.base.Close() }

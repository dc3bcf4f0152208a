// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package chain

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Versioned wrappers are the on-disk envelope around Header, Tx and
// ContractClass (spec §9). Every value the storage engine writes for these
// three types is wrapped in one of these before being CBOR-encoded, so a
// later schema revision can add a new tagged variant without breaking
// readers built against an older binary: an unrecognised tag falls through
// to the untagged legacy encoding instead of erroring (§9,
// "forward-compatible deserialization").
//
// encMode/decMode pin a single canonical CBOR configuration for the whole
// package so the codec is reproducible across processes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("chain: building cbor encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("chain: building cbor decoder: %v", err))
	}
}

// schemaTag is the discriminant written ahead of every versioned payload.
type schemaTag uint8

const (
	tagHeaderV1 schemaTag = iota + 1
	tagTxV1
	tagContractClassV1
)

// envelope is the wire shape: a tag followed by the raw CBOR of the
// corresponding payload, kept separate so an unknown tag can still be
// skipped without decoding its body.
type envelope struct {
	Tag     schemaTag
	Payload cbor.RawMessage
}

// VersionedHeader is the storage envelope for Header (spec §9).
type VersionedHeader struct {
	Header Header
}

// FromHeader wraps a Header for storage. There is deliberately no inverse
// "From" constructor on Header: conversion is one-way, current-to-envelope,
// matching §9's rule that only the newest in-memory shape knows how to wrap
// itself, while the envelope alone knows how to unwrap any past shape.
func FromHeader(h Header) VersionedHeader { return VersionedHeader{Header: h} }

// MarshalBinary implements the codec the kv layer stores header values with.
func (v VersionedHeader) MarshalBinary() ([]byte, error) {
	body, err := encMode.Marshal(v.Header)
	if err != nil {
		return nil, fmt.Errorf("chain: marshal header payload: %w", err)
	}
	return encMode.Marshal(envelope{Tag: tagHeaderV1, Payload: body})
}

// UnmarshalBinary decodes a versioned header. Bytes without a recognised
// tag are decoded directly as an untagged Header; an envelope carrying an
// unknown future tag has no matching Header fields and so leaves the Header
// field zero rather than failing — callers that need strict decoding should
// check v.Header against the zero value.
func (v *VersionedHeader) UnmarshalBinary(b []byte) error {
	var env envelope
	if err := decMode.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("chain: unmarshal header envelope: %w", err)
	}
	switch env.Tag {
	case tagHeaderV1:
		return decMode.Unmarshal(env.Payload, &v.Header)
	default:
		return decMode.Unmarshal(b, &v.Header)
	}
}

// VersionedTx is the storage envelope for Tx (spec §9).
type VersionedTx struct {
	Tx Tx
}

func FromTx(t Tx) VersionedTx { return VersionedTx{Tx: t} }

func (v VersionedTx) MarshalBinary() ([]byte, error) {
	body, err := encMode.Marshal(v.Tx)
	if err != nil {
		return nil, fmt.Errorf("chain: marshal tx payload: %w", err)
	}
	return encMode.Marshal(envelope{Tag: tagTxV1, Payload: body})
}

func (v *VersionedTx) UnmarshalBinary(b []byte) error {
	var env envelope
	if err := decMode.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("chain: unmarshal tx envelope: %w", err)
	}
	switch env.Tag {
	case tagTxV1:
		return decMode.Unmarshal(env.Payload, &v.Tx)
	default:
		return decMode.Unmarshal(b, &v.Tx)
	}
}

// VersionedContractClass is the storage envelope for ContractClass (spec §9).
type VersionedContractClass struct {
	Class ContractClass
}

func FromContractClass(c ContractClass) VersionedContractClass {
	return VersionedContractClass{Class: c}
}

func (v VersionedContractClass) MarshalBinary() ([]byte, error) {
	body, err := encMode.Marshal(v.Class)
	if err != nil {
		return nil, fmt.Errorf("chain: marshal class payload: %w", err)
	}
	return encMode.Marshal(envelope{Tag: tagContractClassV1, Payload: body})
}

func (v *VersionedContractClass) UnmarshalBinary(b []byte) error {
	var env envelope
	if err := decMode.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("chain: unmarshal class envelope: %w", err)
	}
	switch env.Tag {
	case tagContractClassV1:
		return decMode.Unmarshal(env.Payload, &v.Class)
	default:
		return decMode.Unmarshal(b, &v.Class)
	}
}

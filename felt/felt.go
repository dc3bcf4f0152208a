// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.
//
// Sequencer is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Sequencer is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Sequencer. If not, see <http://www.gnu.org/licenses/>.

// Package felt implements the Stark field element and the domain aliases
// derived from it (ContractAddress, ClassHash, ...).
package felt

import (
	"encoding/hex"
	"fmt"
	"math/big"

	starkfp "github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// Felt is a 251-bit element of the Stark field, serialised big-endian over
// 32 bytes. Arithmetic is delegated to gnark-crypto's stark-curve fp.Element,
// which already carries the field modulus and a Montgomery-form fast path.
type Felt struct {
	e starkfp.Element
}

// addrReductionModulus is 2**251 - 256, the modulus contract addresses are
// reduced under (spec §3, invariant I5).
var addrReductionModulus = func() *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), 251)
	return m.Sub(m, big.NewInt(256))
}()

// Zero is the additive identity.
func Zero() Felt { return Felt{} }

// FromBigInt reduces b modulo the Stark field and returns the resulting Felt.
func FromBigInt(b *big.Int) Felt {
	var f Felt
	f.e.SetBigInt(b)
	return f
}

// FromUint64 lifts a u64 into the field.
func FromUint64(v uint64) Felt {
	var f Felt
	f.e.SetUint64(v)
	return f
}

// FromBytesBE decodes a big-endian, at-most-32-byte encoding of a field
// element. It does not validate canonical range; callers that need I5 must
// call ReduceAddress explicitly.
func FromBytesBE(b []byte) (Felt, error) {
	if len(b) > 32 {
		return Felt{}, fmt.Errorf("felt: encoding too long: %d bytes", len(b))
	}
	var buf [32]byte
	copy(buf[32-len(b):], b)
	var f Felt
	f.e.SetBytes(buf[:])
	return f, nil
}

// ParseHex parses a "0x..." hex string into a Felt, returning an error for
// malformed input instead of panicking; the variant config loading uses.
func ParseHex(s string) (Felt, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Felt{}, fmt.Errorf("felt: invalid hex literal: %w", err)
	}
	return FromBytesBE(b)
}

// MustFromHex parses a "0x..." hex string into a Felt, panicking on error.
// Intended for constants and tests.
func MustFromHex(s string) Felt {
	f, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Bytes returns the canonical big-endian 32-byte encoding.
func (f Felt) Bytes() [32]byte {
	return f.e.Bytes()
}

// BigInt returns the non-Montgomery big.Int value.
func (f Felt) BigInt() *big.Int {
	var out big.Int
	f.e.BigInt(&out)
	return &out
}

// String implements fmt.Stringer as a 0x-prefixed hex string.
func (f Felt) String() string {
	b := f.Bytes()
	return "0x" + hex.EncodeToString(trimLeadingZeros(b[:]))
}

func trimLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b)-1 && b[i] == 0 {
		i++
	}
	return b[i:]
}

// IsZero reports whether f is the additive identity.
func (f Felt) IsZero() bool { return f.e.IsZero() }

// Equal reports field equality.
func (f Felt) Equal(o Felt) bool { return f.e.Equal(&o.e) }

// Cmp gives a total order over field elements by their canonical integer
// value, used for the deterministic iteration orders required by I-state-root
// coherence (spec §4.7, "Determinism").
func (f Felt) Cmp(o Felt) int {
	fb, ob := f.Bytes(), o.Bytes()
	for i := range fb {
		if fb[i] != ob[i] {
			if fb[i] < ob[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Add, Sub, Mul perform field arithmetic; used by the curve and Poseidon
// arithmetic in hash.go and by Nonce.Next.
func (f Felt) Add(o Felt) Felt {
	var r Felt
	r.e.Add(&f.e, &o.e)
	return r
}

func (f Felt) Sub(o Felt) Felt {
	var r Felt
	r.e.Sub(&f.e, &o.e)
	return r
}

func (f Felt) Mul(o Felt) Felt {
	var r Felt
	r.e.Mul(&f.e, &o.e)
	return r
}

// Neg returns the additive inverse, used by the curve arithmetic behind
// Pedersen (felt/hash.go).
func (f Felt) Neg() Felt {
	var r Felt
	r.e.Neg(&f.e)
	return r
}

// Inverse returns the multiplicative inverse, or the zero Felt if f is zero
// (matching gnark-crypto's convention of returning zero rather than
// panicking). Used by elliptic-curve point addition/doubling.
func (f Felt) Inverse() Felt {
	var r Felt
	r.e.Inverse(&f.e)
	return r
}

// Sqrt returns a square root of f and true if f is a quadratic residue, or
// the zero Felt and false otherwise. Used by hashToCurvePoint (felt/hash.go)
// to find valid curve points deterministically.
func (f Felt) Sqrt() (Felt, bool) {
	var r Felt
	if r.e.Sqrt(&f.e) == nil {
		return Felt{}, false
	}
	return r, true
}

// MarshalBinary implements encoding.BinaryMarshaler so codecs that respect it
// (notably fxamacker/cbor, used by the chain package's versioned envelopes)
// serialise a Felt as its canonical 32-byte encoding instead of reflecting
// over the unexported gnark-crypto field.
func (f Felt) MarshalBinary() ([]byte, error) {
	b := f.Bytes()
	return b[:], nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (f *Felt) UnmarshalBinary(b []byte) error {
	v, err := FromBytesBE(b)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// ContractAddress is a Felt reduced modulo 2**251 - 256 (spec §3, I5). The
// zero value is valid and denotes "no contract" / undeployed.
type ContractAddress struct{ f Felt }

// NewContractAddress enforces I5 on construction: every ContractAddress in
// the system is built through this constructor so the reduction can never be
// skipped.
func NewContractAddress(raw Felt) ContractAddress {
	b := raw.BigInt()
	b.Mod(b, addrReductionModulus)
	return ContractAddress{f: FromBigInt(b)}
}

func (a ContractAddress) Felt() Felt                { return a.f }
func (a ContractAddress) Bytes() [32]byte           { return a.f.Bytes() }
func (a ContractAddress) String() string            { return a.f.String() }
func (a ContractAddress) IsZero() bool              { return a.f.IsZero() }
func (a ContractAddress) Cmp(o ContractAddress) int { return a.f.Cmp(o.f) }

func (a ContractAddress) MarshalBinary() ([]byte, error) { return a.f.MarshalBinary() }
func (a *ContractAddress) UnmarshalBinary(b []byte) error {
	// Route through NewContractAddress so a value decoded from an older,
	// unreduced encoding still comes out satisfying I5.
	var f Felt
	if err := f.UnmarshalBinary(b); err != nil {
		return err
	}
	*a = NewContractAddress(f)
	return nil
}

// Derived aliases: distinct Go types over Felt so the compiler catches
// cross-domain mixups (a ClassHash can never be passed where a Nonce is
// expected) while sharing Felt's codec and ordering.
type (
	ClassHash         struct{ f Felt }
	CompiledClassHash struct{ f Felt }
	StorageKey        struct{ f Felt }
	StorageValue      struct{ f Felt }
	Nonce             struct{ f Felt }
	BlockHash         struct{ f Felt }
	TxHash            struct{ f Felt }
)

func NewClassHash(f Felt) ClassHash                 { return ClassHash{f} }
func NewCompiledClassHash(f Felt) CompiledClassHash { return CompiledClassHash{f} }
func NewStorageKey(f Felt) StorageKey               { return StorageKey{f} }
func NewStorageValue(f Felt) StorageValue           { return StorageValue{f} }
func NewNonce(f Felt) Nonce                         { return Nonce{f} }
func NewBlockHash(f Felt) BlockHash                 { return BlockHash{f} }
func NewTxHash(f Felt) TxHash                       { return TxHash{f} }

func (c ClassHash) Felt() Felt         { return c.f }
func (c CompiledClassHash) Felt() Felt { return c.f }
func (s StorageKey) Felt() Felt        { return s.f }
func (s StorageValue) Felt() Felt      { return s.f }
func (n Nonce) Felt() Felt             { return n.f }
func (b BlockHash) Felt() Felt         { return b.f }
func (t TxHash) Felt() Felt            { return t.f }

func (c ClassHash) String() string        { return c.f.String() }
func (c ClassHash) IsZero() bool          { return c.f.IsZero() }
func (c ClassHash) Cmp(o ClassHash) int   { return c.f.Cmp(o.f) }
func (n Nonce) IsZero() bool              { return n.f.IsZero() }
func (n Nonce) Next() Nonce               { return Nonce{n.f.Add(FromUint64(1))} }
func (b BlockHash) String() string        { return b.f.String() }
func (t TxHash) String() string           { return t.f.String() }
func (s StorageKey) Cmp(o StorageKey) int { return s.f.Cmp(o.f) }

// Binary codecs for the derived alias types, each delegating to the
// wrapped Felt so fxamacker/cbor (and any other encoding.BinaryMarshaler
// aware codec) can serialise them without reflecting over an unexported
// field.
func (c ClassHash) MarshalBinary() ([]byte, error)  { return c.f.MarshalBinary() }
func (c *ClassHash) UnmarshalBinary(b []byte) error { return (&c.f).UnmarshalBinary(b) }

func (c CompiledClassHash) MarshalBinary() ([]byte, error)  { return c.f.MarshalBinary() }
func (c *CompiledClassHash) UnmarshalBinary(b []byte) error { return (&c.f).UnmarshalBinary(b) }

func (s StorageKey) MarshalBinary() ([]byte, error)  { return s.f.MarshalBinary() }
func (s *StorageKey) UnmarshalBinary(b []byte) error { return (&s.f).UnmarshalBinary(b) }

func (s StorageValue) MarshalBinary() ([]byte, error)  { return s.f.MarshalBinary() }
func (s *StorageValue) UnmarshalBinary(b []byte) error { return (&s.f).UnmarshalBinary(b) }

func (n Nonce) MarshalBinary() ([]byte, error)  { return n.f.MarshalBinary() }
func (n *Nonce) UnmarshalBinary(b []byte) error { return (&n.f).UnmarshalBinary(b) }

func (b BlockHash) MarshalBinary() ([]byte, error)    { return b.f.MarshalBinary() }
func (b *BlockHash) UnmarshalBinary(raw []byte) error { return (&b.f).UnmarshalBinary(raw) }

func (t TxHash) MarshalBinary() ([]byte, error)  { return t.f.MarshalBinary() }
func (t *TxHash) UnmarshalBinary(b []byte) error { return (&t.f).UnmarshalBinary(b) }

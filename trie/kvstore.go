// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package trie

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/kv"
)

// wireNode is Node's CBOR shape; Node itself is kept free of struct tags so
// the core algorithm file stays readable.
type wireNode struct {
	Kind        NodeKind
	Value       felt.Felt
	Left, Right felt.Felt
}

func encodeNode(n Node) ([]byte, error) {
	return cbor.Marshal(wireNode{Kind: n.Kind, Value: n.Value, Left: n.Left, Right: n.Right})
}

func decodeNode(b []byte) (Node, error) {
	var w wireNode
	if err := cbor.Unmarshal(b, &w); err != nil {
		return Node{}, err
	}
	return Node{Kind: w.Kind, Value: w.Value, Left: w.Left, Right: w.Right}, nil
}

// encodePathKey packs a Path into a byte key: pathPrefix, a two-byte bit
// count, and the packed bits. The commit id is not part of the key; PutNode
// writes it as the first eight bytes of each DupSort value stored under the
// key. pathPrefix allows the per-contract
// storage trie (one logical trie per contract address) to share a single
// physical table (kv.StorageTriesNodes) by prefixing every key with the
// contract's address bytes.
func encodePathKey(pathPrefix []byte, p Path) []byte {
	packed := packBits(p.Bits)
	out := make([]byte, 0, len(pathPrefix)+2+len(packed))
	out = append(out, pathPrefix...)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(p.Bits)))
	out = append(out, lenBuf[:]...)
	out = append(out, packed...)
	return out
}

func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return out
}

// KVNodeStore implements NodeStore over a kv.RoTx, storing one DupSort
// history entry per (path, commitID) so GetNodeAsOf can recover an earlier
// trie generation. table is one of kv.ContractsTrieNodes, kv.ClassesTrieNodes
// or kv.StorageTriesNodes; pathPrefix additionally scopes StorageTriesNodes
// to a single contract's subtrie.
//
// tx only needs to be a kv.RoTx: PutNode/DeleteNode type-assert it to
// kv.RwTx and fail if the store was opened read-only, so the same type
// backs both the producer's write-scoped tries and query's read-only
// multiproof path (a kv.RwTx satisfies kv.RoTx, so existing callers that
// pass a RwTx are unaffected).
type KVNodeStore struct {
	tx         kv.RoTx
	table      string
	pathPrefix []byte
}

// NewKVNodeStore builds a node store over tx, scoped to table and an
// optional pathPrefix (non-empty only for per-contract storage subtries).
func NewKVNodeStore(tx kv.RoTx, table string, pathPrefix []byte) *KVNodeStore {
	return &KVNodeStore{tx: tx, table: table, pathPrefix: pathPrefix}
}

func (s *KVNodeStore) key(path Path) []byte { return encodePathKey(s.pathPrefix, path) }

func (s *KVNodeStore) GetNode(path Path) (Node, bool, error) {
	dc, err := s.tx.DupCursor(s.table)
	if err != nil {
		return Node{}, false, err
	}
	defer dc.Close()

	k := s.key(path)
	gotKey, _, err := dc.Seek(k)
	if err != nil {
		return Node{}, false, err
	}
	if string(gotKey) != string(k) {
		return Node{}, false, nil
	}
	v, err := dc.LastDup()
	if err != nil {
		return Node{}, false, err
	}
	if v == nil || len(v) < 8 {
		return Node{}, false, nil
	}
	n, err := decodeNode(v[8:])
	if err != nil {
		return Node{}, false, fmt.Errorf("trie: decode node: %w", err)
	}
	return n, true, nil
}

// GetNodeAsOf scans every dup value stored under path (one per commit it
// was last written at) and keeps the one with the largest CommitID not
// exceeding the requested commitID. The per-path history is one entry per
// block that actually touched it, so this scan is bounded by how often a
// given trie path changes, not by chain height.
func (s *KVNodeStore) GetNodeAsOf(path Path, commitID CommitID) (Node, bool, error) {
	dc, err := s.tx.DupCursor(s.table)
	if err != nil {
		return Node{}, false, err
	}
	defer dc.Close()

	k := s.key(path)
	gotKey, _, err := dc.Seek(k)
	if err != nil {
		return Node{}, false, err
	}
	if string(gotKey) != string(k) {
		return Node{}, false, nil
	}

	var best []byte
	v, err := dc.FirstDup()
	if err != nil {
		return Node{}, false, err
	}
	for v != nil {
		if len(v) >= 8 {
			c := binary.BigEndian.Uint64(v[:8])
			if c <= uint64(commitID) {
				best = v
			} else {
				break
			}
		}
		_, v, err = dc.NextDup()
		if err != nil {
			return Node{}, false, err
		}
	}
	if best == nil {
		return Node{}, false, nil
	}
	n, err := decodeNode(best[8:])
	return n, err == nil, err
}

func (s *KVNodeStore) rwTx() (kv.RwTx, error) {
	rw, ok := s.tx.(kv.RwTx)
	if !ok {
		return nil, fmt.Errorf("trie: node store over %s is read-only", s.table)
	}
	return rw, nil
}

func (s *KVNodeStore) PutNode(path Path, n Node, commitID CommitID) error {
	rw, err := s.rwTx()
	if err != nil {
		return err
	}
	body, err := encodeNode(n)
	if err != nil {
		return err
	}
	var commitBuf [8]byte
	binary.BigEndian.PutUint64(commitBuf[:], uint64(commitID))
	value := append(commitBuf[:], body...)
	return rw.PutDup(s.table, s.key(path), value)
}

func (s *KVNodeStore) DeleteNode(path Path) error {
	rw, err := s.rwTx()
	if err != nil {
		return err
	}
	return rw.Delete(s.table, s.key(path))
}

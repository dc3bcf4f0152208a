// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

// Package trie implements the authenticated Merkle trie used for both the
// contracts trie and the classes trie (spec §4.2, "C2 Trie engine"). The
// design follows the bonsai-trie crate katana builds on (see
// original_source/crates/trie/src/{contracts,classes}.rs): a 251-bit-path
// binary trie over Felt keys, nodes persisted in a kv table keyed by a
// path-derived node key plus a commit id so historical roots stay
// reconstructable, with full and partial variants sharing one core.
package trie

import (
	"fmt"

	"github.com/starkcore/sequencer/felt"
)

// HashFn is the pluggable two-input hash a Trie combines sibling nodes
// with. The contracts trie uses felt.Pedersen, the classes trie
// felt.Poseidon (spec §4.2).
type HashFn func(a, b felt.Felt) felt.Felt

// keyBits is the path length: Starknet tries branch on the 251 significant
// bits of a Felt key, most significant bit first.
const keyBits = 251

// NodeStore is the persistence boundary a Trie is built over. KVNodeStore
// (kvstore.go) implements it over kv tables (ContractsTrieNodes /
// ClassesTrieNodes / StorageTriesNodes); the provider package constructs
// those stores. Every write is tagged with the
// CommitID (block number) it was written at so a historical root can be
// recomputed by asking for the node generation as-of an earlier block
// instead of only ever seeing the latest write (spec §4.7,
// "historical state reconstruction").
type NodeStore interface {
	// GetNode returns the most recently committed value for path.
	GetNode(path Path) (Node, bool, error)
	// GetNodeAsOf returns the value path held at commitID, i.e. the latest
	// write to path with a CommitID <= commitID.
	GetNodeAsOf(path Path, commitID CommitID) (Node, bool, error)
	PutNode(path Path, n Node, commitID CommitID) error
	DeleteNode(path Path) error
}

// Path is a prefix of the 251-bit key space: the bits themselves plus how
// many of them are significant, letting internal nodes address subtrees
// shallower than a full leaf.
type Path struct {
	Bits []bool
}

// NodeKind discriminates the three physical node shapes a binary Merkle
// trie needs.
type NodeKind uint8

const (
	NodeKindEmpty  NodeKind = iota
	NodeKindLeaf            // a stored value at a full-length (251-bit) path
	NodeKindBinary          // a fork: Left and Right are both present
)

// Node is one physical trie node: either a leaf holding a value, or a
// binary fork holding the hashes of its two children.
type Node struct {
	Kind  NodeKind
	Value felt.Felt // for Binary: hash(Left, Right). For Leaf: the stored value.

	// Binary-only
	Left, Right felt.Felt
}

// CommitID indexes one committed trie generation, the Go analogue of
// katana's id::CommitId (original_source/crates/trie/src/id.rs): a plain
// monotonic block number, since the sequencer commits exactly one trie
// generation per block.
type CommitID uint64

// Trie is a full (non-partial) Merkle trie: it holds every node needed to
// recompute its root from scratch, the mode the provider's state factory
// uses for the happy-path contracts/classes trie.
type Trie struct {
	store NodeStore
	hash  HashFn

	// pending holds leaf writes accumulated since the last Commit, applied
	// in Cmp-sorted key order so Commit's root computation is deterministic
	// regardless of insertion order (spec §4.7, "Determinism").
	pending map[string]pendingLeaf
}

type pendingLeaf struct {
	key   felt.Felt
	value felt.Felt
}

// New builds a full trie over an existing (possibly empty) node store.
func New(store NodeStore, hash HashFn) *Trie {
	return &Trie{store: store, hash: hash, pending: map[string]pendingLeaf{}}
}

// Insert stages a leaf write. It is not visible in Root() or proofs until
// Commit is called, matching bonsai-trie's insert/commit split (the
// producer calls Insert for every touched key during sealing, then Commit
// once at the end, spec §4.6 step 5 / §4.7 step 3).
func (t *Trie) Insert(key, value felt.Felt) {
	t.pending[keyOf(key)] = pendingLeaf{key: key, value: value}
}

func keyOf(f felt.Felt) string {
	b := f.Bytes()
	return string(b[:])
}

// Commit flushes every pending leaf into the node store, recomputing the
// path from each changed leaf to the root, and returns the new root. Nodes
// are tagged with commitID so a later historical read can select the node
// generation as-of that block instead of only ever seeing the latest one.
//
// Writes go through a staging overlay first: a single block can touch the
// same ancestor node many times (every leaf under it rewrites it once), and
// since NodeStore history keys on (path, commitID), writing through on
// every intermediate rewrite would leave several competing entries tagged
// with the same commitID. The overlay collapses that down to one write per
// touched path, holding the final value only.
func (t *Trie) Commit(commitID CommitID) (felt.Felt, error) {
	staged := &stagingStore{under: t.store, dirty: map[string]Node{}, paths: map[string]Path{}, order: nil}
	working := &Trie{store: staged, hash: t.hash, pending: t.pending}

	for _, leaf := range sortedPending(working.pending) {
		if err := working.insertPath(pathOf(leaf.key), leaf.value, commitID); err != nil {
			return felt.Felt{}, fmt.Errorf("trie: commit key %s: %w", leaf.key, err)
		}
	}
	t.pending = map[string]pendingLeaf{}

	if err := staged.flush(commitID); err != nil {
		return felt.Felt{}, err
	}

	root, found, err := t.store.GetNode(Path{})
	if err != nil {
		return felt.Felt{}, err
	}
	if !found || root.Kind == NodeKindEmpty {
		return felt.Zero(), nil
	}
	return root.Value, nil
}

// stagingStore buffers writes for one Commit call, keeping only the last
// value written per path, and reading through to the underlying store for
// any path not yet staged.
type stagingStore struct {
	under NodeStore
	dirty map[string]Node
	paths map[string]Path
	order []string
}

func (s *stagingStore) pathKey(p Path) string {
	b := make([]byte, len(p.Bits))
	for i, bit := range p.Bits {
		if bit {
			b[i] = 1
		}
	}
	return string(b)
}

func (s *stagingStore) GetNode(p Path) (Node, bool, error) {
	if n, ok := s.dirty[s.pathKey(p)]; ok {
		return n, true, nil
	}
	return s.under.GetNode(p)
}

func (s *stagingStore) GetNodeAsOf(p Path, commitID CommitID) (Node, bool, error) {
	return s.under.GetNodeAsOf(p, commitID)
}

func (s *stagingStore) PutNode(p Path, n Node, _ CommitID) error {
	k := s.pathKey(p)
	if _, ok := s.dirty[k]; !ok {
		s.order = append(s.order, k)
		s.paths[k] = p
	}
	s.dirty[k] = n
	return nil
}

func (s *stagingStore) DeleteNode(p Path) error {
	delete(s.dirty, s.pathKey(p))
	return s.under.DeleteNode(p)
}

func (s *stagingStore) flush(commitID CommitID) error {
	for _, k := range s.order {
		if err := s.under.PutNode(s.paths[k], s.dirty[k], commitID); err != nil {
			return err
		}
	}
	return nil
}

func sortedPending(m map[string]pendingLeaf) []pendingLeaf {
	out := make([]pendingLeaf, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	// Insertion sort by Cmp; the working set per commit (one block's
	// touched keys) is small enough that O(n^2) is not worth a generic
	// sort import here.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].key.Cmp(out[j-1].key) < 0; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// pathOf converts a Felt key into its 251-bit MSB-first path.
func pathOf(key felt.Felt) Path {
	b := key.BigInt()
	bits := make([]bool, keyBits)
	for i := 0; i < keyBits; i++ {
		bitIndex := keyBits - 1 - i
		bits[i] = b.Bit(bitIndex) == 1
	}
	return Path{Bits: bits}
}

// insertPath walks (and lazily creates) the path to key, writing value at
// the leaf and rehashing every ancestor node along the way up to the root.
// Paths are stored uncompressed (one binary node per bit) rather than with
// bonsai-trie's edge-compression optimisation: simpler to get right, at the
// cost of 251 stored nodes per distinct key instead of one edge node per
// shared-prefix run.
func (t *Trie) insertPath(p Path, value felt.Felt, commitID CommitID) error {
	return t.setRecursive(Path{}, p, value, commitID)
}

func (t *Trie) setRecursive(at Path, target Path, value felt.Felt, commitID CommitID) error {
	if len(at.Bits) == len(target.Bits) {
		return t.store.PutNode(at, Node{Kind: NodeKindLeaf, Value: value}, commitID)
	}

	node, found, err := t.store.GetNode(at)
	if err != nil {
		return err
	}
	bit := target.Bits[len(at.Bits)]
	childPath := appendBit(at, bit)

	if err := t.setRecursive(childPath, target, value, commitID); err != nil {
		return err
	}

	childNode, _, err := t.store.GetNode(childPath)
	if err != nil {
		return err
	}

	var left, right felt.Felt
	if found && node.Kind == NodeKindBinary {
		left, right = node.Left, node.Right
	}
	if bit {
		right = childNode.Value
	} else {
		left = childNode.Value
	}
	merged := t.hash(left, right)
	return t.store.PutNode(at, Node{Kind: NodeKindBinary, Value: merged, Left: left, Right: right}, commitID)
}

func appendBit(p Path, bit bool) Path {
	out := make([]bool, len(p.Bits)+1)
	copy(out, p.Bits)
	out[len(p.Bits)] = bit
	return Path{Bits: out}
}

// Root returns the current committed root without staging any pending
// writes; pending inserts not yet Commit()-ed are not reflected.
func (t *Trie) Root() (felt.Felt, error) {
	root, found, err := t.store.GetNode(Path{})
	if err != nil {
		return felt.Felt{}, err
	}
	if !found || root.Kind == NodeKindEmpty {
		return felt.Zero(), nil
	}
	return root.Value, nil
}

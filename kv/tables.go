// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

// Package kv defines the storage engine's table schema and transaction
// interfaces (spec §6 / "C1 Storage engine"). It is transport-agnostic: the
// pebble-backed implementation lives in kv/pebblekv.
package kv

import "fmt"

// SchemaVersion is bumped whenever a table's key or value layout changes in
// a way old binaries cannot read. Mirrors erigon's DBSchemaVersion
// (erigon-lib/kv/tables.go).
//
// 1.0 - initial schema: headers, bodies, transactions, receipts, state and
//
//	trie node tables.
var SchemaVersion = Version{Major: 1, Minor: 0, Patch: 0}

// Version is a three-part schema version stamp written once into the
// DatabaseInfo table at db creation and checked on every open.
type Version struct {
	Major, Minor, Patch uint32
}

func (v Version) String() string { return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch) }

// Table names. Naming follows the teacher's convention: singular nouns,
// grouped by subsystem, with the key/value layout documented above each
// group (erigon-lib/kv/tables.go).
const (
	// DatabaseInfo holds db-wide metadata: the schema version stamp.
	DatabaseInfo = "DbInfo"

	// BlockHeaders: block_num_u64 -> VersionedHeader (CBOR)
	BlockHeaders = "BlockHeaders"
	// BlockHashes: block_hash -> block_num_u64, the canonical-chain index.
	BlockHashes = "BlockHashes"
	// BlockBodyIndices: block_num_u64 -> (base_tx_num_u64, tx_count_u32)
	BlockBodyIndices = "BlockBodyIndices"
	// BlockStatuses: block_num_u64 -> FinalityStatus byte
	BlockStatuses = "BlockStatuses"

	// Transactions: tx_num_u64 -> VersionedTx (CBOR)
	Transactions = "Transactions"
	// TxHashes: tx_hash -> tx_num_u64
	TxHashes = "TxHashes"
	// TxBlock: tx_num_u64 -> block_num_u64, for hash->block lookups.
	TxBlock = "TxBlock"

	// Receipts: tx_num_u64 -> Receipt (CBOR)
	Receipts = "Receipts"

	// ContractInfo: contract_address -> (class_hash, nonce) latest values.
	ContractInfo = "ContractInfo"
	// Storage: contract_address + storage_key -> storage_value, latest values.
	Storage = "Storage"

	// ContractChangeSet is a DupSort-emulated table: block_num_u64 as the
	// primary key, one value per changed contract per block, each value the
	// concatenation of contract_address + prior (class_hash, nonce) so
	// historical state can be rewound (spec §6, "Historical state
	// reconstruction"; erigon's ChangeSets / HistoryReaderV3 pattern).
	ContractChangeSet = "ContractChangeSet"
	// StorageChangeSet: same shape as ContractChangeSet, one value per
	// changed (address, key) per block holding the prior storage value.
	StorageChangeSet = "StorageChangeSet"

	// Classes: class_hash -> VersionedContractClass (CBOR)
	Classes = "Classes"
	// CompiledClassHashes: class_hash -> compiled_class_hash
	CompiledClassHashes = "CompiledClassHashes"
	// ClassDeclarations: block_num_u64 -> one value per class declared in
	// that block (DupSort-emulated), for historical class-set reconstruction.
	ClassDeclarations = "ClassDeclarations"

	// ContractsTrieNodes / ClassesTrieNodes: node_key -> encoded trie node,
	// keyed the way trie.Trie expects (see trie package).
	ContractsTrieNodes = "ContractsTrieNodes"
	ClassesTrieNodes   = "ClassesTrieNodes"
	// StorageTriesNodes: contract_address + node_key -> encoded trie node,
	// one subtrie per contract.
	StorageTriesNodes = "StorageTriesNodes"

	// StageCheckpoints: stage_name -> block_num_u64, borrowed from erigon's
	// staged-sync progress table even though this sequencer has no staged
	// sync; read and written by the `db stage` CLI command.
	StageCheckpoints = "StageCheckpoints"
)

// TableFlags describe a table's key/value layout constraints, mirroring
// erigon-lib/kv/tables.go's TableFlags bitset.
type TableFlags uint

const (
	Default TableFlags = 0x00
	// DupSort marks a table as holding multiple values per key, each value
	// itself ordered, emulated over pebble's flat keyspace by the
	// pebblekv package (see pebblekv/dupcursor.go).
	DupSort TableFlags = 0x04
	// IntegerKey marks a table whose primary key is a big-endian uint64.
	// pebblekv does not read it: every table is ordered by plain byte
	// comparison.
	IntegerKey TableFlags = 0x08
)

// TableCfgItem is the per-table configuration. pebblekv does not consult
// it; its table prefixes come from its own schemaOrder list.
type TableCfgItem struct {
	Flags TableFlags
}

// TableCfg is the whole schema: table name -> configuration.
type TableCfg map[string]TableCfgItem

// Tables is the sequencer's full schema, the direct analogue of erigon's
// ChaindataTablesCfg.
var Tables = TableCfg{
	DatabaseInfo: {},

	BlockHeaders:     {Flags: IntegerKey},
	BlockHashes:      {},
	BlockBodyIndices: {Flags: IntegerKey},
	BlockStatuses:    {Flags: IntegerKey},

	Transactions: {Flags: IntegerKey},
	TxHashes:     {},
	TxBlock:      {Flags: IntegerKey},

	Receipts: {Flags: IntegerKey},

	ContractInfo: {},
	Storage:      {},

	ContractChangeSet: {Flags: DupSort | IntegerKey},
	StorageChangeSet:  {Flags: DupSort | IntegerKey},

	Classes:             {},
	CompiledClassHashes: {},
	ClassDeclarations:   {Flags: DupSort | IntegerKey},

	ContractsTrieNodes: {},
	ClassesTrieNodes:   {},
	StorageTriesNodes:  {},

	StageCheckpoints: {},
}

// TableNames returns every configured table name, in map iteration order.
// pebblekv does not call it and does not validate on-disk tables against
// the schema.
func TableNames() []string {
	names := make([]string, 0, len(Tables))
	for name := range Tables {
		names = append(names, name)
	}
	return names
}

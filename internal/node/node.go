// Package node is the indexer's external collaborator boundary (§6): a
// Bitcoin full node reached over RPC. Everything above this package deals
// only in the Block/RawTx shapes defined here, never in btcjson/wire types
// directly — mirroring how the teacher's internal/scanner package hides
// each provider's wire format behind its own BalanceResult/Provider
// abstractions.
package node

import "context"

// OutPoint identifies one transaction output being spent by an input.
type OutPoint struct {
	TxID string
	Vout uint32
}

// Vin is one transaction input: the outpoint it spends and its witness
// stack, where inscription envelopes live (§2, §4.1).
type Vin struct {
	PrevOut  OutPoint
	Witness  [][]byte
}

// Vout is one transaction output: value in satoshis and its scriptPubKey,
// from which the controlling address is resolved (internal/address).
type Vout struct {
	Value    int64
	PkScript []byte
}

// RawTx is a full transaction as needed by the extractor and validator:
// every input's witness (component A's input) and every output's script
// (for resolving transfer-send recipients, §4.4).
type RawTx struct {
	TxID string
	Vin  []Vin
	Vout []Vout
}

// Block is one confirmed block: its height, hash, the hash of its parent,
// and full transactions in canonical order (§4.5 processes them in this
// order). PrevHash lets the processor detect a reorg by comparing it
// against the hash it stored for height-1 (§4.6) before applying the
// block.
type Block struct {
	Hash     string
	PrevHash string
	Height   int64
	Txs      []RawTx
}

// Node is the indexer's view of a Bitcoin full node (§6). Implementations
// must be safe for concurrent use by the read-ahead prefetcher
// (internal/processor).
type Node interface {
	// BestHeight returns the node's current chain tip height.
	BestHeight(ctx context.Context) (int64, error)

	// BlockHash returns the block hash at height.
	BlockHash(ctx context.Context, height int64) (string, error)

	// Block returns the full block (with verbose transactions, including
	// witness data) identified by hash.
	Block(ctx context.Context, hash string) (*Block, error)
}

// Package models holds the domain types shared across the indexer's
// packages: tickers, balances, transfers, and the raw inscription envelope.
package models

import "fmt"

// Inscription is a parsed BRC-20 JSON envelope (§4.1). Only fields the
// protocol recognises are kept; everything else in the witness JSON is
// ignored.
type Inscription struct {
	Protocol string `json:"p"`
	Op       string `json:"op"`
	Tick     string `json:"tick"`
	Max      string `json:"max,omitempty"`
	Limit    string `json:"lim,omitempty"`
	Decimals string `json:"dec,omitempty"`
	Amount   string `json:"amt,omitempty"`
}

// Operation kinds recognised in the "op" field.
const (
	OpDeploy   = "deploy"
	OpMint     = "mint"
	OpTransfer = "transfer"
)

// BRC20Protocol is the only accepted value of an inscription's "p" field.
const BRC20Protocol = "brc-20"

// OutPoint identifies one specific transaction output (GLOSSARY).
type OutPoint struct {
	TxID string
	Vout uint32
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Vout)
}

// Ticker is the deploy-time state of one BRC-20 token (§3).
type Ticker struct {
	Tick             string // lower-cased, exactly 4 bytes
	MaxSupply        string // decimal string (e.g. "21000000"), at most Decimals fractional digits
	MintLimitPerOp   string
	Decimals         uint8
	TotalMinted      string
	DeployBlockHeight int64
	DeployTxID       string
}

// UserBalance is the current state for one (address, tick) pair (§3).
type UserBalance struct {
	Address      string
	Tick         string
	Available    string
	Transferable string
	Overall      string
	BlockHeight  int64
}

// EntryKind classifies a UserBalanceEntry (§3).
type EntryKind string

const (
	EntryInscription EntryKind = "inscription"
	EntrySend        EntryKind = "send"
	EntryReceive     EntryKind = "receive"
)

// UserBalanceEntry is one append-only history record (§3). Amount is signed:
// negative for debits (Inscription-lock, Send), positive for credits
// (Inscription-mint/credit, Receive).
type UserBalanceEntry struct {
	ID          int64
	Address     string
	Tick        string
	BlockHeight int64
	TxPosition  int
	InputPosition int
	Amount      string
	Kind        EntryKind
}

// ActiveTransfer describes a transfer-inscribe whose send has not yet
// happened (§3, GLOSSARY). Lifetime: created on accepted transfer-inscribe,
// destroyed on send or reorg rollback.
type ActiveTransfer struct {
	OutPoint            OutPoint
	Tick                string
	InscriberAddress    string
	Amount              string
	InscribeBlockHeight int64
	InscribeTxPosition  int
}

// InvalidTx records a rejected operation for audit (§3). Never read by the
// validator.
type InvalidTx struct {
	ID            int64
	TxID          string
	RawInscription string
	Reason        string
	BlockHeight   int64
}

// MintSnapshot is a per-block total_minted checkpoint for one ticker (§3,
// §4.5), used to recompute TotalMinted during reorg rollback (§4.6).
type MintSnapshot struct {
	Tick        string
	BlockHeight int64
	TotalMinted string
}

// Outcome describes an accept/reject/clamp decision for one operation (§4.3, §4.4). Reason is
// empty when Accepted is true.
type Outcome struct {
	Accepted bool
	Reason   string
	// Clamped is true for a mint partially filled by the remaining supply
	// (§4.4 point 4 — the protocol's cap-closing behaviour).
	Clamped bool
	// CreditedAmount is the amount actually applied (may be less than the
	// requested amount when Clamped).
	CreditedAmount string
}

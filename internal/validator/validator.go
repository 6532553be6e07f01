// Package validator implements the protocol state machine (§4.3, §4.4,
// component F): deploy, mint, transfer-inscribe, and transfer-send. Every
// function here is pure over the in-memory state passed to it (§5
// "Validation itself is pure over in-memory state and never blocks") —
// the block processor is responsible for resolving addresses, looking
// up/seeding caches from the store, and persisting the results.
package validator

import (
	"github.com/brc20network/indexer/internal/config"
	"github.com/brc20network/indexer/internal/decimal"
	"github.com/brc20network/indexer/internal/ledger"
	"github.com/brc20network/indexer/internal/models"
	"github.com/brc20network/indexer/internal/ticker"
)

// Outcome carries the accept/reject verdict embedded in the deploy, mint
// and transfer-inscribe decisions; a transfer-send has no reject outcome.
type Outcome struct {
	Accepted bool
	Reason   config.Reason
}

// DeployDecision is the result of validating a deploy (§4.3).
type DeployDecision struct {
	Outcome
	Ticker models.Ticker
}

// Deploy validates a deploy inscription. tick must already be normalized
// (internal/ticker.NormalizeTick); exists reports whether a ticker with
// that key is already deployed (first-deploy-wins, §4.3).
func Deploy(tick string, insc models.Inscription, exists bool, height int64, txID string) DeployDecision {
	if exists {
		return DeployDecision{Outcome: Outcome{Reason: config.ReasonTickerAlreadyDeployed}}
	}

	t, err := ticker.ValidateDeploy(tick, insc.Max, insc.Limit, insc.Decimals, height, txID)
	if err != nil {
		return DeployDecision{Outcome: Outcome{Reason: config.ReasonMalformedInscription}}
	}

	return DeployDecision{Outcome: Outcome{Accepted: true}, Ticker: t}
}

// MintDecision is the result of validating a mint (§4.4).
type MintDecision struct {
	Outcome
	Ticker         models.Ticker // with TotalMinted advanced
	Balance        ledger.Balance
	Entry          models.UserBalanceEntry
	Clamped        bool
	RequestedAmount string
	CreditedAmount string
}

// Mint validates and applies a mint in-memory. ticker is the current
// ticker state; minterBalance is the minter's current balance (zero value
// if this is their first touch of this tick). Mint takes no address: the
// returned Entry has an empty Address for the caller to fill in, and an
// unresolvable minter is handled by the caller before Mint is called.
func Mint(insc models.Inscription, ticker models.Ticker, tickerKnown bool, minterBalance ledger.Balance, height int64, txPosition int) MintDecision {
	if !tickerKnown {
		return MintDecision{Outcome: Outcome{Reason: config.ReasonTickerNotFound}}
	}

	amt, err := decimal.Parse(insc.Amount, ticker.Decimals)
	if err != nil {
		return MintDecision{Outcome: Outcome{Reason: config.ReasonBadDecimalPrecision}}
	}

	limit, err := decimal.Parse(ticker.MintLimitPerOp, ticker.Decimals)
	if err != nil {
		return MintDecision{Outcome: Outcome{Reason: config.ReasonMalformedInscription}}
	}
	if amt.IsZero() {
		return MintDecision{Outcome: Outcome{Reason: config.ReasonZeroAmount}}
	}
	if amt.Cmp(limit) > 0 {
		return MintDecision{Outcome: Outcome{Reason: config.ReasonAmountExceedsLimit}}
	}

	maxSupply, err := decimal.Parse(ticker.MaxSupply, ticker.Decimals)
	if err != nil {
		return MintDecision{Outcome: Outcome{Reason: config.ReasonMalformedInscription}}
	}
	totalMinted, err := decimal.Parse(ticker.TotalMinted, ticker.Decimals)
	if err != nil {
		return MintDecision{Outcome: Outcome{Reason: config.ReasonMalformedInscription}}
	}

	remaining := maxSupply.Sub(totalMinted)
	if remaining.IsZero() {
		return MintDecision{Outcome: Outcome{Reason: config.ReasonTickerFullyMinted}}
	}

	clamped := false
	credited := amt
	if amt.Cmp(remaining) > 0 {
		credited = remaining
		clamped = true
	}

	newBalance := ledger.Credit(minterBalance, credited)
	newTicker := ticker
	newTicker.TotalMinted = totalMinted.Add(credited).String()

	return MintDecision{
		Outcome:         Outcome{Accepted: true},
		Ticker:          newTicker,
		Balance:         newBalance,
		Entry:           models.UserBalanceEntry{Tick: ticker.Tick, BlockHeight: height, TxPosition: txPosition, Amount: credited.String(), Kind: models.EntryInscription},
		Clamped:         clamped,
		RequestedAmount: amt.String(),
		CreditedAmount:  credited.String(),
	}
}

// TransferInscribeDecision is the result of validating a transfer-inscribe
// (§4.4).
type TransferInscribeDecision struct {
	Outcome
	Balance        ledger.Balance
	Entry          models.UserBalanceEntry
	ActiveTransfer models.ActiveTransfer
}

// TransferInscribe validates and applies the inscription phase of a
// transfer in-memory. balanceKnown reports whether inscriberBalance came
// from an existing row (§4.4 step 3 "absent" case).
func TransferInscribe(insc models.Inscription, ticker models.Ticker, tickerKnown bool, inscriberAddress string, inscriberBalance ledger.Balance, balanceKnown bool, outpoint models.OutPoint, height int64, txPosition int) TransferInscribeDecision {
	if !tickerKnown {
		return TransferInscribeDecision{Outcome: Outcome{Reason: config.ReasonTickerNotFound}}
	}

	amt, err := decimal.Parse(insc.Amount, ticker.Decimals)
	if err != nil || amt.IsZero() {
		reason := config.ReasonBadDecimalPrecision
		if err == nil {
			reason = config.ReasonMalformedInscription
		}
		return TransferInscribeDecision{Outcome: Outcome{Reason: reason}}
	}

	if !balanceKnown {
		return TransferInscribeDecision{Outcome: Outcome{Reason: config.ReasonUserBalanceNotFound}}
	}

	newBalance, err := ledger.LockForTransfer(inscriberBalance, amt)
	if err != nil {
		return TransferInscribeDecision{Outcome: Outcome{Reason: config.ReasonInsufficientAvailable}}
	}

	return TransferInscribeDecision{
		Outcome: Outcome{Accepted: true},
		Balance: newBalance,
		Entry: models.UserBalanceEntry{
			Address: inscriberAddress, Tick: ticker.Tick, BlockHeight: height,
			TxPosition: txPosition, Amount: amt.Neg().String(), Kind: models.EntryInscription,
		},
		ActiveTransfer: models.ActiveTransfer{
			OutPoint: outpoint, Tick: ticker.Tick, InscriberAddress: inscriberAddress,
			Amount: amt.String(), InscribeBlockHeight: height, InscribeTxPosition: txPosition,
		},
	}
}

// TransferSendDecision is the result of applying the spend of an
// ActiveTransfer outpoint (§4.4 Transfer-Send).
type TransferSendDecision struct {
	SelfRefund       bool
	InscriberBalance ledger.Balance
	ReceiverBalance  ledger.Balance
	InscriberEntry   models.UserBalanceEntry
	ReceiverEntry    models.UserBalanceEntry

	// SelfRefundDebitEntry is set only on the self-refund path: it records
	// the transferable -= amt half of the move (ReleaseTransferable) as its
	// own Send entry, paired with InscriberEntry's Receive +amt for the
	// available += amt half (Credit). A self-refund still moves amt from
	// transferable to available on the same address, and folding the
	// history log must reproduce both halves, not just the net credit.
	SelfRefundDebitEntry models.UserBalanceEntry
}

// TransferSend applies a transfer-send in-memory. receiverAddress is
// already resolved by the caller; an empty string means unresolvable,
// triggering the self-refund path (§4.4 step 2). receiverBalance is the
// receiver's current balance (zero value if this is their first touch,
// irrelevant on the self-refund path).
func TransferSend(at models.ActiveTransfer, decimals uint8, inscriberBalance ledger.Balance, receiverAddress string, receiverBalance ledger.Balance, height int64, txPosition, inputPosition int) (TransferSendDecision, error) {
	amt, err := decimal.Parse(at.Amount, decimals)
	if err != nil {
		return TransferSendDecision{}, err
	}

	if receiverAddress == "" {
		restored, err := ledger.ReleaseTransferable(inscriberBalance, amt)
		if err != nil {
			return TransferSendDecision{}, err
		}
		restored = ledger.Credit(restored, amt)
		return TransferSendDecision{
			SelfRefund:       true,
			InscriberBalance: restored,
			SelfRefundDebitEntry: models.UserBalanceEntry{
				Address: at.InscriberAddress, Tick: at.Tick, BlockHeight: height,
				TxPosition: txPosition, InputPosition: inputPosition,
				Amount: amt.Neg().String(), Kind: models.EntrySend,
			},
			InscriberEntry: models.UserBalanceEntry{
				Address: at.InscriberAddress, Tick: at.Tick, BlockHeight: height,
				TxPosition: txPosition, InputPosition: inputPosition,
				Amount: amt.String(), Kind: models.EntryReceive,
			},
		}, nil
	}

	inscriberAfter, err := ledger.ReleaseTransferable(inscriberBalance, amt)
	if err != nil {
		return TransferSendDecision{}, err
	}
	receiverAfter := ledger.Credit(receiverBalance, amt)

	return TransferSendDecision{
		InscriberBalance: inscriberAfter,
		ReceiverBalance:  receiverAfter,
		InscriberEntry: models.UserBalanceEntry{
			Address: at.InscriberAddress, Tick: at.Tick, BlockHeight: height,
			TxPosition: txPosition, InputPosition: inputPosition,
			Amount: amt.Neg().String(), Kind: models.EntrySend,
		},
		ReceiverEntry: models.UserBalanceEntry{
			Address: receiverAddress, Tick: at.Tick, BlockHeight: height,
			TxPosition: txPosition, InputPosition: inputPosition,
			Amount: amt.String(), Kind: models.EntryReceive,
		},
	}, nil
}

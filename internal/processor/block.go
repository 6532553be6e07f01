package processor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brc20network/indexer/internal/config"
	"github.com/brc20network/indexer/internal/decimal"
	dbpkg "github.com/brc20network/indexer/internal/db"
	"github.com/brc20network/indexer/internal/extractor"
	"github.com/brc20network/indexer/internal/invariant"
	"github.com/brc20network/indexer/internal/ledger"
	"github.com/brc20network/indexer/internal/models"
	"github.com/brc20network/indexer/internal/node"
	tickerpkg "github.com/brc20network/indexer/internal/ticker"
	"github.com/brc20network/indexer/internal/validator"

	addresspkg "github.com/brc20network/indexer/internal/address"
)

// fatalError marks an invariant.Violation that must halt the processor
// (§7), distinguishing it from a transient store error the caller should
// retry.
type fatalError struct{ err error }

func (f fatalError) Error() string { return f.err.Error() }
func (f fatalError) Unwrap() error { return f.err }

func isFatal(err error) bool {
	var fe fatalError
	return errors.As(err, &fe)
}

// sendRecord stages the result of a transfer-send application (§4.4) for
// the commit pass.
type sendRecord struct {
	outpoint   models.OutPoint
	receiver   string
	selfRefund bool
	txID       string
	height     int64
}

// invalidRecord stages a rejected operation for the commit pass (§3
// InvalidTx).
type invalidRecord struct {
	txID   string
	raw    string
	reason config.Reason
	height int64
}

// deployRecord stages an accepted deploy for the commit pass.
type deployRecord struct {
	txID       string
	tick       string
	height     int64
	txPosition int
}

// mintRecord stages an accepted (possibly clamped) mint for the commit
// pass.
type mintRecord struct {
	txID       string
	tick       string
	address    string
	requested  string
	credited   string
	clamped    bool
	height     int64
	txPosition int
}

// transferInscribeRecord stages an accepted transfer-inscribe for the
// commit pass.
type transferInscribeRecord struct {
	txID             string
	tick             string
	inscriberAddress string
	amount           string
	outpoint         models.OutPoint
	height           int64
	txPosition       int
}

// blockState accumulates in-memory changes for the block currently being
// processed. Ticker and active-transfer mutations are staged here and
// merged into the long-lived registries only after the block's
// transaction commits (§5 ordering guarantee 2) — a failed commit must
// leave no trace in the caches that survive across attempts.
type blockState struct {
	balances     *ledger.Balances
	balanceKnown map[string]bool

	tickerStaged map[string]models.Ticker // tick -> ticker state as of the end of this block

	transferReg  map[models.OutPoint]models.ActiveTransfer // registrations this block
	transferCons map[models.OutPoint]bool                  // consumptions this block

	entries   []models.UserBalanceEntry
	sends     []sendRecord
	invalids  []invalidRecord
	deploys   []deployRecord
	mints     []mintRecord
	transfers []transferInscribeRecord
}

func newBlockState() *blockState {
	return &blockState{
		balances:     ledger.New(),
		balanceKnown: make(map[string]bool),
		tickerStaged: make(map[string]models.Ticker),
		transferReg:  make(map[models.OutPoint]models.ActiveTransfer),
		transferCons: make(map[models.OutPoint]bool),
	}
}

func balanceKey(address, tick string) string { return address + "/" + tick }

func (st *blockState) setBalance(address, tick string, bal ledger.Balance) {
	st.balances.Put(address, tick, bal)
	st.balanceKnown[balanceKey(address, tick)] = true
}

func (st *blockState) appendEntry(e models.UserBalanceEntry) {
	st.entries = append(st.entries, e)
}

// stagedTicker resolves a tick against this block's staged changes first,
// then the long-lived registry — so a deploy or mint earlier in the same
// block is visible to a later operation in the same block (§4.5 "applied
// in order").
func (p *Processor) stagedTicker(st *blockState, tick string) (models.Ticker, bool) {
	if t, ok := st.tickerStaged[tick]; ok {
		return t, true
	}
	return p.tickers.Get(tick)
}

// balanceFor resolves an (address, tick) balance against this block's
// staged changes first, falling back to the store and seeding the cache
// on first touch (§5 — the processor owns the cache and seeds it from the
// store the first time a block touches an address/tick pair).
func (p *Processor) balanceFor(st *blockState, address, tick string, decimals uint8) (ledger.Balance, bool, error) {
	if bal, ok := st.balances.Get(address, tick); ok {
		return bal, st.balanceKnown[balanceKey(address, tick)], nil
	}

	row, err := p.store.GetUserBalance(address, tick)
	if errors.Is(err, sql.ErrNoRows) {
		zero := ledger.Balance{Available: decimal.Zero(decimals), Transferable: decimal.Zero(decimals)}
		st.balances.Seed(address, tick, zero)
		return zero, false, nil
	}
	if err != nil {
		return ledger.Balance{}, false, fmt.Errorf("load balance %s/%s: %w", address, tick, err)
	}

	bal, err := ledger.FromModel(row, decimals)
	if err != nil {
		return ledger.Balance{}, false, fmt.Errorf("parse balance %s/%s: %w", address, tick, err)
	}
	st.balances.Seed(address, tick, bal)
	st.balanceKnown[balanceKey(address, tick)] = true
	return bal, true, nil
}

func txIDOf(tx node.RawTx) string { return tx.TxID }

func rawOf(insc models.Inscription) string {
	b, err := json.Marshal(insc)
	if err != nil {
		return ""
	}
	return string(b)
}

// ProcessBlock applies every operation in block and commits the result
// atomically (§4.5). It returns a fatalError (see isFatal) on invariant
// violation, which the caller must not retry.
func (p *Processor) ProcessBlock(ctx context.Context, block *node.Block) error {
	st := newBlockState()

	for txPos, tx := range block.Txs {
		if err := p.applySends(st, block.Height, txPos, tx); err != nil {
			return err
		}
		if err := p.applyInscriptions(st, block.Height, txPos, tx); err != nil {
			return err
		}
	}

	return p.commit(ctx, block.Height, block.Hash, st)
}

// applySends scans tx's inputs for outpoints matching a pending transfer
// and applies the send (§4.4 Transfer-Send, §4.5 step 1.a). A single
// transaction may consume multiple active transfers, processed in input
// order.
func (p *Processor) applySends(st *blockState, height int64, txPos int, tx node.RawTx) error {
	for inputPos, vin := range tx.Vin {
		outpoint := models.OutPoint{TxID: vin.PrevOut.TxID, Vout: vin.PrevOut.Vout}

		at, ok := st.transferReg[outpoint]
		if !ok {
			at, ok = p.transfers.Lookup(outpoint)
		}
		if !ok || st.transferCons[outpoint] {
			continue
		}

		ti, known := p.stagedTicker(st, at.Tick)
		if err := invariant.CheckActiveTransferTicker(at, known); err != nil {
			return fatalError{err}
		}

		inscriberBal, _, err := p.balanceFor(st, at.InscriberAddress, at.Tick, ti.Decimals)
		if err != nil {
			return fatalError{err}
		}

		var receiverAddr string
		if len(tx.Vout) > 0 {
			if a, err := addresspkg.Resolve(tx.Vout[0].PkScript, p.net); err == nil {
				receiverAddr = a
			}
		}

		var receiverBal ledger.Balance
		if receiverAddr != "" {
			receiverBal, _, err = p.balanceFor(st, receiverAddr, at.Tick, ti.Decimals)
			if err != nil {
				return fatalError{err}
			}
		}

		decision, err := validator.TransferSend(at, ti.Decimals, inscriberBal, receiverAddr, receiverBal, height, txPos, inputPos)
		if err != nil {
			return fatalError{fmt.Errorf("transfer-send %s: %w", outpoint, err)}
		}

		st.transferCons[outpoint] = true
		delete(st.transferReg, outpoint)

		st.setBalance(at.InscriberAddress, at.Tick, decision.InscriberBalance)
		if decision.SelfRefund {
			st.appendEntry(decision.SelfRefundDebitEntry)
		}
		st.appendEntry(decision.InscriberEntry)

		if !decision.SelfRefund {
			st.setBalance(receiverAddr, at.Tick, decision.ReceiverBalance)
			st.appendEntry(decision.ReceiverEntry)
		}

		st.sends = append(st.sends, sendRecord{
			outpoint: outpoint, receiver: receiverAddr, selfRefund: decision.SelfRefund,
			txID: txIDOf(tx), height: height,
		})
	}
	return nil
}

// applyInscriptions extracts candidate inscriptions from tx and dispatches
// each to Deploy / Mint / Transfer-Inscribe in input order (§4.5 step 1.b).
func (p *Processor) applyInscriptions(st *blockState, height int64, txPos int, tx node.RawTx) error {
	inscriptions := extractor.Extract(tx)

	for _, insc := range inscriptions {
		switch insc.Op {
		case models.OpDeploy:
			p.applyDeploy(st, height, txPos, tx, insc)
		case models.OpMint:
			if err := p.applyMint(st, height, txPos, tx, insc); err != nil {
				return err
			}
		case models.OpTransfer:
			if err := p.applyTransferInscribe(st, height, txPos, tx, insc); err != nil {
				return err
			}
		default:
			st.invalids = append(st.invalids, invalidRecord{
				txID: txIDOf(tx), raw: rawOf(insc), reason: config.ReasonMalformedInscription, height: height,
			})
		}
	}
	return nil
}

// inscriberAddress resolves the controlling address of vout[0] of tx, the
// convention shared by mint and transfer-inscribe attribution (§4.4). An
// empty string means unresolvable.
func (p *Processor) inscriberAddress(tx node.RawTx) string {
	if len(tx.Vout) == 0 {
		return ""
	}
	addr, err := addresspkg.Resolve(tx.Vout[0].PkScript, p.net)
	if err != nil {
		return ""
	}
	return addr
}

// applyDeploy validates and stages a deploy inscription (§4.3).
func (p *Processor) applyDeploy(st *blockState, height int64, txPos int, tx node.RawTx, insc models.Inscription) {
	txID := txIDOf(tx)

	tick, err := tickerpkg.NormalizeTick(insc.Tick)
	if err != nil {
		st.invalids = append(st.invalids, invalidRecord{txID: txID, raw: rawOf(insc), reason: config.ReasonMalformedInscription, height: height})
		return
	}

	_, exists := p.stagedTicker(st, tick)
	decision := validator.Deploy(tick, insc, exists, height, txID)
	if !decision.Accepted {
		st.invalids = append(st.invalids, invalidRecord{txID: txID, raw: rawOf(insc), reason: decision.Reason, height: height})
		return
	}

	st.tickerStaged[tick] = decision.Ticker
	st.deploys = append(st.deploys, deployRecord{txID: txID, tick: tick, height: height, txPosition: txPos})
}

// applyMint validates and stages a mint inscription (§4.4), including the
// partial-mint clamp when the request exceeds the tick's remaining supply.
func (p *Processor) applyMint(st *blockState, height int64, txPos int, tx node.RawTx, insc models.Inscription) error {
	txID := txIDOf(tx)

	tick, err := tickerpkg.NormalizeTick(insc.Tick)
	if err != nil {
		st.invalids = append(st.invalids, invalidRecord{txID: txID, raw: rawOf(insc), reason: config.ReasonMalformedInscription, height: height})
		return nil
	}

	ti, known := p.stagedTicker(st, tick)

	minterAddr := p.inscriberAddress(tx)
	if minterAddr == "" {
		st.invalids = append(st.invalids, invalidRecord{txID: txID, raw: rawOf(insc), reason: config.ReasonUnresolvableAddress, height: height})
		return nil
	}

	var minterBal ledger.Balance
	if known {
		var err error
		minterBal, _, err = p.balanceFor(st, minterAddr, tick, ti.Decimals)
		if err != nil {
			return fatalError{err}
		}
	}

	decision := validator.Mint(insc, ti, known, minterBal, height, txPos)
	if !decision.Accepted {
		st.invalids = append(st.invalids, invalidRecord{txID: txID, raw: rawOf(insc), reason: decision.Reason, height: height})
		return nil
	}

	st.tickerStaged[tick] = decision.Ticker
	st.setBalance(minterAddr, tick, decision.Balance)
	decision.Entry.Address = minterAddr
	st.appendEntry(decision.Entry)
	st.mints = append(st.mints, mintRecord{
		txID: txID, tick: tick, address: minterAddr,
		requested: decision.RequestedAmount, credited: decision.CreditedAmount, clamped: decision.Clamped,
		height: height, txPosition: txPos,
	})
	return nil
}

// applyTransferInscribe validates and stages the inscription phase of a
// transfer (§4.4). The outpoint locked to is {inscribe_tx, 0} (§4.4 step 6).
func (p *Processor) applyTransferInscribe(st *blockState, height int64, txPos int, tx node.RawTx, insc models.Inscription) error {
	txID := txIDOf(tx)

	tick, err := tickerpkg.NormalizeTick(insc.Tick)
	if err != nil {
		st.invalids = append(st.invalids, invalidRecord{txID: txID, raw: rawOf(insc), reason: config.ReasonMalformedInscription, height: height})
		return nil
	}

	ti, known := p.stagedTicker(st, tick)

	inscriberAddr := p.inscriberAddress(tx)
	if inscriberAddr == "" {
		st.invalids = append(st.invalids, invalidRecord{txID: txID, raw: rawOf(insc), reason: config.ReasonUnresolvableAddress, height: height})
		return nil
	}

	var inscriberBal ledger.Balance
	var balKnown bool
	if known {
		inscriberBal, balKnown, err = p.balanceFor(st, inscriberAddr, tick, ti.Decimals)
		if err != nil {
			return fatalError{err}
		}
	}

	outpoint := models.OutPoint{TxID: txID, Vout: 0}
	decision := validator.TransferInscribe(insc, ti, known, inscriberAddr, inscriberBal, balKnown, outpoint, height, txPos)
	if !decision.Accepted {
		st.invalids = append(st.invalids, invalidRecord{txID: txID, raw: rawOf(insc), reason: decision.Reason, height: height})
		return nil
	}

	st.setBalance(inscriberAddr, tick, decision.Balance)
	st.appendEntry(decision.Entry)
	st.transferReg[outpoint] = decision.ActiveTransfer
	st.transfers = append(st.transfers, transferInscribeRecord{
		txID: txID, tick: tick, inscriberAddress: inscriberAddr, amount: decision.ActiveTransfer.Amount,
		outpoint: outpoint, height: height, txPosition: txPos,
	})
	return nil
}

// commit flushes a block's staged state atomically (§4.5 step 3, §5
// ordering guarantee 2: dependent rows first, high-water mark last), then
// — only on success — merges the staged ticker and active-transfer
// changes into the processor's long-lived registries. Caches are never
// updated before a successful commit, so a failed or retried block leaves
// no trace in them.
func (p *Processor) commit(ctx context.Context, height int64, hash string, st *blockState) error {
	tx, err := p.store.BeginBlockTx()
	if err != nil {
		return fmt.Errorf("begin commit for block %d: %w", height, err)
	}
	rollback := func(cause error) error {
		tx.Rollback()
		return cause
	}

	for _, d := range st.deploys {
		if err := dbpkg.InsertDeployTx(tx, d.txID, d.tick, d.height, d.txPosition); err != nil {
			return rollback(err)
		}
		if err := dbpkg.InsertTickerTx(tx, st.tickerStaged[d.tick]); err != nil {
			return rollback(err)
		}
	}

	mintedTicks := make(map[string]bool)
	for _, m := range st.mints {
		if err := dbpkg.InsertMintTx(tx, m.txID, m.tick, m.address, m.requested, m.credited, m.clamped, m.height, m.txPosition); err != nil {
			return rollback(err)
		}
		mintedTicks[m.tick] = true
	}
	for tick := range mintedTicks {
		t := st.tickerStaged[tick]
		if err := dbpkg.UpdateTotalMintedTx(tx, tick, t.TotalMinted); err != nil {
			return rollback(err)
		}
		if err := dbpkg.InsertMintSnapshotTx(tx, models.MintSnapshot{Tick: tick, BlockHeight: height, TotalMinted: t.TotalMinted}); err != nil {
			return rollback(err)
		}
	}

	for _, tr := range st.transfers {
		if err := dbpkg.InsertTransferTx(tx, tr.txID, tr.tick, tr.inscriberAddress, tr.amount, tr.outpoint.TxID, tr.outpoint.Vout, tr.height, tr.txPosition); err != nil {
			return rollback(err)
		}
		if err := dbpkg.InsertActiveTransferTx(tx, st.transferReg[tr.outpoint]); err != nil {
			return rollback(err)
		}
	}

	for outpoint := range st.transferCons {
		if err := dbpkg.ConsumeActiveTransferTx(tx, outpoint.TxID, outpoint.Vout); err != nil {
			return rollback(err)
		}
	}
	for _, s := range st.sends {
		if err := dbpkg.MarkTransferSentTx(tx, s.outpoint.TxID, s.outpoint.Vout, s.receiver, s.selfRefund, s.txID, s.height); err != nil {
			return rollback(err)
		}
	}

	for _, e := range st.entries {
		if err := dbpkg.InsertUserBalanceEntryTx(tx, e); err != nil {
			return rollback(err)
		}
	}

	for _, touched := range st.balances.Snapshot() {
		if !st.balanceKnown[balanceKey(touched.Address, touched.Tick)] {
			continue
		}
		row := ledger.ToModel(touched.Address, touched.Tick, touched.Balance, height)
		if err := dbpkg.UpsertUserBalanceTx(tx, row); err != nil {
			return rollback(err)
		}

		ti, known := p.stagedTicker(st, touched.Tick)
		if !known {
			return rollback(fatalError{fmt.Errorf("balance touched for unknown ticker %q", touched.Tick)})
		}
		overallAmt, err := decimal.Parse(row.Overall, ti.Decimals)
		if err != nil {
			return rollback(fmt.Errorf("parse overall for %s/%s: %w", touched.Address, touched.Tick, err))
		}
		if err := invariant.CheckBalance(touched.Address, touched.Tick, touched.Balance, overallAmt); err != nil {
			return rollback(fatalError{err})
		}
	}

	for _, inv := range st.invalids {
		if err := dbpkg.InsertInvalidTx(tx, inv.txID, inv.raw, string(inv.reason), inv.height); err != nil {
			return rollback(err)
		}
	}

	for tick, t := range st.tickerStaged {
		maxSupply, err := decimal.Parse(t.MaxSupply, t.Decimals)
		if err != nil {
			return rollback(fmt.Errorf("parse max supply for %q: %w", tick, err))
		}
		totalMinted, err := decimal.Parse(t.TotalMinted, t.Decimals)
		if err != nil {
			return rollback(fmt.Errorf("parse total minted for %q: %w", tick, err))
		}
		if err := invariant.CheckSupply(tick, totalMinted, maxSupply); err != nil {
			return rollback(fatalError{err})
		}
	}

	if err := dbpkg.SetLastCompletedHeightTx(tx, height, hash); err != nil {
		return rollback(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit block %d: %w", height, err)
	}

	for _, t := range st.tickerStaged {
		p.tickers.Put(t)
	}
	for outpoint, at := range st.transferReg {
		_ = outpoint
		p.transfers.Register(at)
	}
	for outpoint := range st.transferCons {
		p.transfers.Remove(outpoint)
	}

	return nil
}

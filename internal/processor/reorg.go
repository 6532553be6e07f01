package processor

import (
	"context"
	"fmt"

	"github.com/brc20network/indexer/internal/decimal"
	dbpkg "github.com/brc20network/indexer/internal/db"
	"github.com/brc20network/indexer/internal/models"
	"github.com/brc20network/indexer/internal/ticker"
	"github.com/brc20network/indexer/internal/transfer"
)

type balanceKeyPair struct{ address, tick string }

type balanceDelta struct {
	available    decimal.Amount
	transferable decimal.Amount
}

// Rollback reverts the store to its state as of targetHeight, undoing
// every block above it (§4.6). A chain reorg of depth d against tip H
// calls this with targetHeight = H-d. It inverts the history log,
// restores active transfers consumed in the rolled-back range, recomputes
// total_minted from per-block snapshots, and resets the high-water mark —
// then reloads the in-memory ticker and active-transfer registries from
// the resulting store state, since their staged contents no longer match
// what the block processor would have derived from a clean replay.
func (p *Processor) Rollback(ctx context.Context, targetHeight int64) error {
	targetHash, haveHash, err := p.store.BlockHashAt(targetHeight)
	if err != nil {
		return fmt.Errorf("rollback: read block hash at %d: %w", targetHeight, err)
	}

	entries, err := p.store.EntriesAboveHeight(targetHeight)
	if err != nil {
		return fmt.Errorf("rollback: read entries above %d: %w", targetHeight, err)
	}

	decimalsByTick, err := p.decimalsFor(entries)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}

	deltas := invertEntries(entries, decimalsByTick)

	rows, err := p.currentBalanceRows(deltas, decimalsByTick, targetHeight)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}

	consumed, err := p.store.ActiveTransfersConsumedAbove(targetHeight)
	if err != nil {
		return fmt.Errorf("rollback: list consumed transfers above %d: %w", targetHeight, err)
	}

	survivors, err := p.store.ListTickers()
	if err != nil {
		return fmt.Errorf("rollback: list tickers: %w", err)
	}
	recomputed := make(map[string]string)
	for _, t := range survivors {
		if t.DeployBlockHeight > targetHeight {
			continue
		}
		tm, err := p.store.LatestMintSnapshot(t.Tick, targetHeight)
		if err != nil {
			return fmt.Errorf("rollback: latest mint snapshot for %q: %w", t.Tick, err)
		}
		recomputed[t.Tick] = tm
	}

	tx, err := p.store.BeginBlockTx()
	if err != nil {
		return fmt.Errorf("rollback: begin: %w", err)
	}
	rollbackTx := func(cause error) error {
		tx.Rollback()
		return cause
	}

	for _, at := range consumed {
		if err := dbpkg.InsertActiveTransferTx(tx, at); err != nil {
			return rollbackTx(err)
		}
	}
	if err := dbpkg.UnmarkTransfersSentAboveTx(tx, targetHeight); err != nil {
		return rollbackTx(err)
	}
	if err := dbpkg.DeleteActiveTransfersCreatedAboveHeightTx(tx, targetHeight); err != nil {
		return rollbackTx(err)
	}
	if err := dbpkg.DeleteTransfersInscribedAboveHeightTx(tx, targetHeight); err != nil {
		return rollbackTx(err)
	}

	if err := dbpkg.DeleteEntriesAboveHeightTx(tx, targetHeight); err != nil {
		return rollbackTx(err)
	}
	if err := dbpkg.DeleteMintsAboveHeightTx(tx, targetHeight); err != nil {
		return rollbackTx(err)
	}
	if err := dbpkg.DeleteDeploysAboveHeightTx(tx, targetHeight); err != nil {
		return rollbackTx(err)
	}
	if err := dbpkg.DeleteInvalidsAboveHeightTx(tx, targetHeight); err != nil {
		return rollbackTx(err)
	}
	if err := dbpkg.DeleteMintSnapshotsAboveTx(tx, targetHeight); err != nil {
		return rollbackTx(err)
	}
	if err := dbpkg.DeleteTickersDeployedAboveHeightTx(tx, targetHeight); err != nil {
		return rollbackTx(err)
	}

	for _, row := range rows {
		if err := dbpkg.UpsertUserBalanceTx(tx, row); err != nil {
			return rollbackTx(err)
		}
	}

	for tick, totalMinted := range recomputed {
		if err := dbpkg.UpdateTotalMintedTx(tx, tick, totalMinted); err != nil {
			return rollbackTx(err)
		}
	}

	if err := dbpkg.DeleteBlocksCompletedAboveHeightTx(tx, targetHeight); err != nil {
		return rollbackTx(err)
	}
	if haveHash {
		if err := dbpkg.SetLastCompletedHeightTx(tx, targetHeight, targetHash); err != nil {
			return rollbackTx(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rollback: commit: %w", err)
	}

	newTickers, err := ticker.LoadAll(p.store)
	if err != nil {
		return fmt.Errorf("rollback: reload tickers: %w", err)
	}
	newTransfers, err := transfer.LoadAll(p.store)
	if err != nil {
		return fmt.Errorf("rollback: reload active transfers: %w", err)
	}
	p.tickers = newTickers
	p.transfers = newTransfers

	return nil
}

// decimalsFor resolves each distinct tick referenced by entries to its
// declared decimal precision, read before any row in this rollback is
// deleted.
func (p *Processor) decimalsFor(entries []models.UserBalanceEntry) (map[string]uint8, error) {
	out := make(map[string]uint8)
	for _, e := range entries {
		if _, ok := out[e.Tick]; ok {
			continue
		}
		t, err := p.store.GetTicker(e.Tick)
		if err != nil {
			return nil, fmt.Errorf("load ticker %q for rollback: %w", e.Tick, err)
		}
		out[e.Tick] = t.Decimals
	}
	return out, nil
}

// invertEntries computes, for every (address, tick) touched by entries
// above the rollback point, the net delta required to undo them (§4.6
// "inverts them"). The accumulation is a plain signed sum rather than the
// guarded ledger.LockForTransfer/ReleaseTransferable helpers, since those
// assume forward chronological application and would reject a delta
// applied out of the order it was originally recorded in.
func invertEntries(entries []models.UserBalanceEntry, decimals map[string]uint8) map[balanceKeyPair]balanceDelta {
	deltas := make(map[balanceKeyPair]balanceDelta)

	get := func(k balanceKeyPair, dec uint8) balanceDelta {
		d, ok := deltas[k]
		if !ok {
			d = balanceDelta{available: decimal.Zero(dec), transferable: decimal.Zero(dec)}
		}
		return d
	}

	for _, e := range entries {
		dec := decimals[e.Tick]
		k := balanceKeyPair{address: e.Address, tick: e.Tick}
		amt, err := decimal.Parse(trimSign(e.Amount), dec)
		if err != nil {
			continue
		}
		negative := len(e.Amount) > 0 && e.Amount[0] == '-'

		d := get(k, dec)
		switch {
		case e.Kind == models.EntryInscription && !negative:
			// Mint credit: available += amt. Invert: available -= amt.
			d.available = d.available.Sub(amt)
		case e.Kind == models.EntryInscription && negative:
			// Transfer-inscribe lock: available -= amt, transferable += amt.
			// Invert: available += amt, transferable -= amt.
			d.available = d.available.Add(amt)
			d.transferable = d.transferable.Sub(amt)
		case e.Kind == models.EntrySend:
			// Send debit: transferable -= amt. Invert: transferable += amt.
			d.transferable = d.transferable.Add(amt)
		case e.Kind == models.EntryReceive:
			// Receive credit (normal receive or self-refund): available += amt.
			// Invert: available -= amt.
			d.available = d.available.Sub(amt)
		}
		deltas[k] = d
	}

	return deltas
}

func trimSign(s string) string {
	if len(s) > 0 && s[0] == '-' {
		return s[1:]
	}
	return s
}

// currentBalanceRows reads each touched balance's current row and applies
// its computed delta, producing the rows to persist.
func (p *Processor) currentBalanceRows(deltas map[balanceKeyPair]balanceDelta, decimals map[string]uint8, height int64) ([]models.UserBalance, error) {
	out := make([]models.UserBalance, 0, len(deltas))
	for k, d := range deltas {
		dec := decimals[k.tick]
		row, err := p.store.GetUserBalance(k.address, k.tick)
		var available, transferable decimal.Amount
		if err == dbpkg.ErrNotFound {
			available, transferable = decimal.Zero(dec), decimal.Zero(dec)
		} else if err != nil {
			return nil, fmt.Errorf("load balance %s/%s: %w", k.address, k.tick, err)
		} else {
			available, err = decimal.Parse(row.Available, dec)
			if err != nil {
				return nil, fmt.Errorf("parse available %s/%s: %w", k.address, k.tick, err)
			}
			transferable, err = decimal.Parse(row.Transferable, dec)
			if err != nil {
				return nil, fmt.Errorf("parse transferable %s/%s: %w", k.address, k.tick, err)
			}
		}

		newAvailable := available.Add(d.available)
		newTransferable := transferable.Add(d.transferable)
		out = append(out, models.UserBalance{
			Address:      k.address,
			Tick:         k.tick,
			Available:    newAvailable.String(),
			Transferable: newTransferable.String(),
			Overall:      newAvailable.Add(newTransferable).String(),
			BlockHeight:  height,
		})
	}
	return out, nil
}

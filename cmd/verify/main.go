// Command verify is an operator diagnostic: it walks the store and checks
// the invariants of §8 (ticker total_minted <= max_supply, balance
// overall = available + transferable, active transfer registry
// consistency, and history-fold reconciliation for a sampled address),
// printing a pass/fail report. It is read-only and never mutates the
// store. Adapted from the teacher's cmd/verify, which printed derived
// wallet addresses for manual comparison against expected values — the
// same "compute independently, compare, report" shape, here applied to
// the indexer's own bookkeeping instead of key derivation.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/brc20network/indexer/internal/config"
	"github.com/brc20network/indexer/internal/db"
	"github.com/brc20network/indexer/internal/decimal"
	"github.com/brc20network/indexer/internal/invariant"
	"github.com/brc20network/indexer/internal/ledger"
	"github.com/brc20network/indexer/internal/models"
)

func main() {
	dbPath := flag.String("db", "", "database path (default: from BRC20_STORE_PATH or ./data/brc20indexer.sqlite)")
	sampleAddr := flag.String("address", "", "address to reconcile against its history log (optional)")
	sampleTick := flag.String("tick", "", "tick to reconcile -address against (required with -address)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.StorePath = *dbPath
	}

	store, err := db.New(cfg.StorePath)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	report := newReport()
	report.checkSupply(store)
	report.checkBalances(store)
	report.checkActiveTransfers(store)
	if *sampleAddr != "" {
		if *sampleTick == "" {
			slog.Error("-tick is required when -address is given")
			os.Exit(1)
		}
		report.checkHistoryFold(store, *sampleAddr, *sampleTick)
	}

	report.print()
	if report.failures > 0 {
		os.Exit(1)
	}
}

type report struct {
	checks   int
	failures int
}

func newReport() *report { return &report{} }

func (r *report) ok(name string) {
	r.checks++
	fmt.Printf("PASS  %s\n", name)
}

func (r *report) fail(name string, err error) {
	r.checks++
	r.failures++
	fmt.Printf("FAIL  %s: %v\n", name, err)
}

func (r *report) print() {
	fmt.Printf("\n%d checks, %d failures\n", r.checks, r.failures)
}

// checkSupply verifies every ticker's total_minted <= max_supply (§8, §7).
func (r *report) checkSupply(store *db.DB) {
	tickers, err := store.ListTickers()
	if err != nil {
		r.fail("list tickers", err)
		return
	}
	for _, t := range tickers {
		name := fmt.Sprintf("supply(%s)", t.Tick)
		maxSupply, err := decimal.Parse(t.MaxSupply, t.Decimals)
		if err != nil {
			r.fail(name, err)
			continue
		}
		totalMinted, err := decimal.Parse(t.TotalMinted, t.Decimals)
		if err != nil {
			r.fail(name, err)
			continue
		}
		if err := invariant.CheckSupply(t.Tick, totalMinted, maxSupply); err != nil {
			r.fail(name, err)
			continue
		}
		r.ok(name)
	}
}

// checkBalances verifies every balance row's overall == available +
// transferable (§8, §7), resolving each row's decimal precision from its
// ticker.
func (r *report) checkBalances(store *db.DB) {
	balances, err := store.ListUserBalances()
	if err != nil {
		r.fail("list balances", err)
		return
	}
	decimalsCache := make(map[string]uint8)
	for _, b := range balances {
		name := fmt.Sprintf("balance(%s/%s)", b.Address, b.Tick)
		dec, ok := decimalsCache[b.Tick]
		if !ok {
			t, err := store.GetTicker(b.Tick)
			if err != nil {
				r.fail(name, fmt.Errorf("load ticker: %w", err))
				continue
			}
			dec = t.Decimals
			decimalsCache[b.Tick] = dec
		}

		bal, err := ledger.FromModel(b, dec)
		if err != nil {
			r.fail(name, err)
			continue
		}
		overall, err := decimal.Parse(b.Overall, dec)
		if err != nil {
			r.fail(name, err)
			continue
		}
		if err := invariant.CheckBalance(b.Address, b.Tick, bal, overall); err != nil {
			r.fail(name, err)
			continue
		}
		r.ok(name)
	}
}

// checkActiveTransfers verifies every pending transfer refers to a known
// ticker (§8, §7).
func (r *report) checkActiveTransfers(store *db.DB) {
	transfers, err := store.ListActiveTransfers()
	if err != nil {
		r.fail("list active transfers", err)
		return
	}
	for _, at := range transfers {
		name := fmt.Sprintf("activeTransfer(%s)", at.OutPoint)
		_, known := tickerExists(store, at.Tick)
		if err := invariant.CheckActiveTransferTicker(at, known); err != nil {
			r.fail(name, err)
			continue
		}
		r.ok(name)
	}
}

func tickerExists(store *db.DB, tick string) (models.Ticker, bool) {
	t, err := store.GetTicker(tick)
	if err != nil {
		return models.Ticker{}, false
	}
	return t, true
}

// checkHistoryFold folds address/tick's history log and compares it
// against the stored current balance (§8 "history-fold reconciliation for
// a sampled address").
func (r *report) checkHistoryFold(store *db.DB, address, tick string) {
	name := fmt.Sprintf("historyFold(%s/%s)", address, tick)

	t, err := store.GetTicker(tick)
	if err != nil {
		r.fail(name, fmt.Errorf("load ticker: %w", err))
		return
	}

	entries, err := store.EntriesForAddress(address, tick)
	if err != nil {
		r.fail(name, err)
		return
	}

	folded, err := foldEntries(entries, t.Decimals)
	if err != nil {
		r.fail(name, err)
		return
	}

	current, err := store.GetUserBalance(address, tick)
	if err != nil {
		r.fail(name, fmt.Errorf("load current balance: %w", err))
		return
	}
	currentBal, err := ledger.FromModel(current, t.Decimals)
	if err != nil {
		r.fail(name, err)
		return
	}

	if folded.Available.Cmp(currentBal.Available) != 0 || folded.Transferable.Cmp(currentBal.Transferable) != 0 {
		r.fail(name, fmt.Errorf(
			"folded available=%s transferable=%s != stored available=%s transferable=%s",
			folded.Available, folded.Transferable, currentBal.Available, currentBal.Transferable,
		))
		return
	}
	r.ok(name)
}

// foldEntries replays a history log in recorded order to reconstruct a
// balance (§3 "the ledger's current state must be reconstructible by
// folding these in block order").
func foldEntries(entries []models.UserBalanceEntry, decimals uint8) (ledger.Balance, error) {
	bal := ledger.Balance{Available: decimal.Zero(decimals), Transferable: decimal.Zero(decimals)}
	for _, e := range entries {
		amt, err := decimal.Parse(trimSign(e.Amount), decimals)
		if err != nil {
			return ledger.Balance{}, fmt.Errorf("parse entry %d amount: %w", e.ID, err)
		}
		negative := len(e.Amount) > 0 && e.Amount[0] == '-'

		switch {
		case e.Kind == models.EntryInscription && !negative:
			bal.Available = bal.Available.Add(amt)
		case e.Kind == models.EntryInscription && negative:
			bal.Available = bal.Available.Sub(amt)
			bal.Transferable = bal.Transferable.Add(amt)
		case e.Kind == models.EntrySend:
			bal.Transferable = bal.Transferable.Sub(amt)
		case e.Kind == models.EntryReceive:
			bal.Available = bal.Available.Add(amt)
		}
	}
	return bal, nil
}

func trimSign(s string) string {
	if len(s) > 0 && s[0] == '-' {
		return s[1:]
	}
	return s
}

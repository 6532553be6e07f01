// Package invariant implements the §7 "fatal inconsistency" checks: runtime
// invariant violations that halt the processor rather than being recorded
// as a protocol-invalid outcome. Unlike a rejected operation, a violation
// here means the indexer's own bookkeeping has diverged from the
// protocol's rules, and resuming without operator intervention would only
// compound the error.
package invariant

import (
	"fmt"

	"github.com/brc20network/indexer/internal/decimal"
	"github.com/brc20network/indexer/internal/ledger"
	"github.com/brc20network/indexer/internal/models"
)

// Violation is a fatal inconsistency detected at runtime (§7).
type Violation struct {
	Description string
}

func (v Violation) Error() string { return v.Description }

// CheckBalance verifies overall == available + transferable (§3 derived
// invariant, §7 "overall ≠ available + transferable").
func CheckBalance(address, tick string, bal ledger.Balance, overall decimal.Amount) error {
	computed := bal.Overall()
	if computed.Cmp(overall) != 0 {
		return Violation{Description: fmt.Sprintf(
			"balance invariant violated for %s/%s: available(%s)+transferable(%s)=%s != overall %s",
			address, tick, bal.Available, bal.Transferable, computed, overall,
		)}
	}
	return nil
}

// CheckSupply verifies total_minted <= max_supply (§7 "total_minted >
// max_supply").
func CheckSupply(tick string, totalMinted, maxSupply decimal.Amount) error {
	if totalMinted.Cmp(maxSupply) > 0 {
		return Violation{Description: fmt.Sprintf(
			"supply invariant violated for %s: total_minted %s > max_supply %s",
			tick, totalMinted, maxSupply,
		)}
	}
	return nil
}

// CheckActiveTransferTicker verifies an active transfer refers to a known
// ticker (§7 "active transfer referring to unknown ticker").
func CheckActiveTransferTicker(at models.ActiveTransfer, tickerKnown bool) error {
	if !tickerKnown {
		return Violation{Description: fmt.Sprintf(
			"active transfer %s refers to unknown ticker %q", at.OutPoint, at.Tick,
		)}
	}
	return nil
}

// Package ledger implements the Balance Ledger (component C): the
// available/transferable/overall invariant and the append-only history
// that must fold back to the same state (§3 UserBalance, UserBalanceEntry).
// Like the Ticker Registry, the cache here is owned by the block processor
// only (§5 "Shared resources").
package ledger

import (
	"fmt"
	"sync"

	"github.com/brc20network/indexer/internal/decimal"
	"github.com/brc20network/indexer/internal/models"
)

type key struct {
	address string
	tick    string
}

// Balances mirrors `user_balances` for the tickers/addresses touched in
// the block currently being processed.
type Balances struct {
	mu sync.RWMutex
	m  map[key]Balance
}

// Balance is the in-memory working state of one (address, tick) pair.
type Balance struct {
	Available    decimal.Amount
	Transferable decimal.Amount
}

// Overall returns available+transferable, the derived invariant (§3).
func (b Balance) Overall() decimal.Amount {
	return b.Available.Add(b.Transferable)
}

// New creates an empty ledger cache.
func New() *Balances {
	return &Balances{m: make(map[key]Balance)}
}

// Get returns the cached balance for (address, tick), or the zero balance
// if none is cached — callers are responsible for seeding the cache from
// the store on first touch within a block (see Seed).
func (b *Balances) Get(address, tick string) (Balance, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.m[key{address, tick}]
	return v, ok
}

// Seed installs a balance read from the store, only on first touch.
func (b *Balances) Seed(address, tick string, bal Balance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[key{address, tick}] = bal
}

// Put stages the post-operation balance.
func (b *Balances) Put(address, tick string, bal Balance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[key{address, tick}] = bal
}

// Touched is one (address, tick) pair's cached balance, surfaced by
// Snapshot for the commit pass to flush.
type Touched struct {
	Address string
	Tick    string
	Balance Balance
}

// Snapshot returns every balance currently cached, for the block processor
// to persist at commit time.
func (b *Balances) Snapshot() []Touched {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Touched, 0, len(b.m))
	for k, v := range b.m {
		out = append(out, Touched{Address: k.address, Tick: k.tick, Balance: v})
	}
	return out
}

// Credit increases available by amt (mint credit, or receive on a
// transfer-send, §4.4).
func Credit(bal Balance, amt decimal.Amount) Balance {
	return Balance{Available: bal.Available.Add(amt), Transferable: bal.Transferable}
}

// LockForTransfer moves amt from available to transferable (transfer-
// inscribe step 4, §4.4). Returns an error if available < amt.
func LockForTransfer(bal Balance, amt decimal.Amount) (Balance, error) {
	if bal.Available.Cmp(amt) < 0 {
		return Balance{}, fmt.Errorf("insufficient available balance: have %s, need %s", bal.Available, amt)
	}
	return Balance{
		Available:    bal.Available.Sub(amt),
		Transferable: bal.Transferable.Add(amt),
	}, nil
}

// ReleaseTransferable debits transferable by amt on the inscriber (the
// debit leg of a transfer-send, §4.4 step 3). Callers must only call this
// after confirming an ActiveTransfer for exactly this amount existed —
// underflow here indicates a fatal inconsistency (§7), not a protocol-
// invalid outcome.
func ReleaseTransferable(bal Balance, amt decimal.Amount) (Balance, error) {
	if bal.Transferable.Cmp(amt) < 0 {
		return Balance{}, fmt.Errorf("transferable underflow: have %s, need %s", bal.Transferable, amt)
	}
	return Balance{
		Available:    bal.Available,
		Transferable: bal.Transferable.Sub(amt),
	}, nil
}

// RestoreToAvailable increases available by amt and leaves transferable
// unchanged (the same arithmetic as Credit).
func RestoreToAvailable(bal Balance, amt decimal.Amount) Balance {
	return Balance{Available: bal.Available.Add(amt), Transferable: bal.Transferable}
}

// RestoreToTransferable reverses a consumed transfer-send during reorg
// rollback: the amount goes back to transferable on the inscriber, the
// inverse of ReleaseTransferable.
func RestoreToTransferable(bal Balance, amt decimal.Amount) Balance {
	return Balance{Available: bal.Available, Transferable: bal.Transferable.Add(amt)}
}

// Debit decreases available by amt and leaves transferable unchanged.
// It does not check for underflow.
func Debit(bal Balance, amt decimal.Amount) Balance {
	return Balance{Available: bal.Available.Sub(amt), Transferable: bal.Transferable}
}

// ToModel converts a working Balance into the persisted row shape.
func ToModel(address, tick string, bal Balance, height int64) models.UserBalance {
	return models.UserBalance{
		Address:      address,
		Tick:         tick,
		Available:    bal.Available.String(),
		Transferable: bal.Transferable.String(),
		Overall:      bal.Overall().String(),
		BlockHeight:  height,
	}
}

// FromModel parses a persisted row back into a working Balance at the
// ticker's declared precision.
func FromModel(m models.UserBalance, decimals uint8) (Balance, error) {
	avail, err := decimal.Parse(m.Available, decimals)
	if err != nil {
		return Balance{}, fmt.Errorf("parse available: %w", err)
	}
	transf, err := decimal.Parse(m.Transferable, decimals)
	if err != nil {
		return Balance{}, fmt.Errorf("parse transferable: %w", err)
	}
	return Balance{Available: avail, Transferable: transf}, nil
}

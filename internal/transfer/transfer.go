// Package transfer implements the Active Transfer Registry (§4.4,
// component E): an outpoint-keyed cache of transfer-inscribes whose send
// has not yet happened. Like the Ticker Registry, it is owned exclusively
// by the block processor (§5 "Shared resources").
package transfer

import (
	"fmt"
	"sync"

	"github.com/brc20network/indexer/internal/models"
)

// lister is satisfied by *internal/db.DB; declared here to avoid an
// import of internal/db purely for this one startup helper.
type lister interface {
	ListActiveTransfers() ([]models.ActiveTransfer, error)
}

// LoadAll warms the registry from every pending transfer in the store, for
// use at startup before the processor resumes.
func LoadAll(store lister) (*Registry, error) {
	r := New()
	transfers, err := store.ListActiveTransfers()
	if err != nil {
		return nil, fmt.Errorf("load active transfers: %w", err)
	}
	for _, t := range transfers {
		r.Register(t)
	}
	return r, nil
}

// Registry mirrors the `active_transfers` collection: LoadAll fills it
// with every pending transfer, and the processor keeps it in step as
// blocks commit.
type Registry struct {
	mu sync.RWMutex
	m  map[models.OutPoint]models.ActiveTransfer
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{m: make(map[models.OutPoint]models.ActiveTransfer)}
}

// Lookup returns the pending transfer for outpoint, if any.
func (r *Registry) Lookup(outpoint models.OutPoint) (models.ActiveTransfer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.m[outpoint]
	return t, ok
}

// Register stages a newly-accepted transfer-inscribe (§4.4 step 6).
func (r *Registry) Register(t models.ActiveTransfer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[t.OutPoint] = t
}

// Consume removes a pending transfer on its matching send, enforcing
// exactly-once consumption (§4.4 "second-spend protection"). Returns
// false if the outpoint was not registered (callers must not reach here
// without a prior successful Lookup within the same block pass).
func (r *Registry) Consume(outpoint models.OutPoint) (models.ActiveTransfer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.m[outpoint]
	if ok {
		delete(r.m, outpoint)
	}
	return t, ok
}

// Restore re-inserts a transfer consumed by a send that is being rolled
// back (§4.6 "restores active transfers that were consumed in that
// range").
func (r *Registry) Restore(t models.ActiveTransfer) {
	r.Register(t)
}

// Remove drops outpoint from the registry. The block processor calls it
// for each transfer consumed by a send, after that block commits.
func (r *Registry) Remove(outpoint models.OutPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, outpoint)
}

// Count returns the number of pending transfers currently cached, for
// startup logging.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

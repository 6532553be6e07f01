// Package ticker implements the Ticker Registry (§4.3, component D): a
// write-through in-memory cache over the persistent ticker table, owned
// exclusively by the block processor (§5 "Shared resources" — any read
// path outside the processor must go through the store, not this cache).
package ticker

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/brc20network/indexer/internal/config"
	dbpkg "github.com/brc20network/indexer/internal/db"
	"github.com/brc20network/indexer/internal/decimal"
	"github.com/brc20network/indexer/internal/models"
)

// Registry mirrors the `tickers` collection in memory. Deploys are staged
// into the cache only after their enclosing block commits successfully;
// callers must call Load once at startup to warm the cache from the store.
type Registry struct {
	db *dbpkg.DB

	mu   sync.RWMutex
	byTick map[string]models.Ticker
}

// New creates an empty registry bound to db. Call Load before first use.
func New(db *dbpkg.DB) *Registry {
	return &Registry{db: db, byTick: make(map[string]models.Ticker)}
}

// Get returns the current state of tick (already lower-cased), and
// whether it has been deployed.
func (r *Registry) Get(tick string) (models.Ticker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byTick[tick]
	return t, ok
}

// Put stages a newly-deployed or newly-minted ticker state into the cache.
// Callers apply this only after the enclosing block's transaction commits
// (§5 ordering guarantee 2).
func (r *Registry) Put(t models.Ticker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTick[t.Tick] = t
}

// Count returns the number of deployed tickers currently cached, for
// startup logging.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTick)
}

// NormalizeTick validates and lower-cases a candidate tick per §4.3(a):
// exactly config.TickLength bytes in UTF-8 length.
func NormalizeTick(tick string) (string, error) {
	lower := strings.ToLower(tick)
	if len(lower) != config.TickLength {
		return "", fmt.Errorf("tick %q is %d bytes, want %d", tick, len(lower), config.TickLength)
	}
	return lower, nil
}

// ValidateDeploy checks §4.3(c)-(e) against already-normalized fields and
// returns the Ticker record to persist on success. It does not check (a)
// tick length (NormalizeTick's job) or (b) uniqueness (the caller's job,
// since it requires a registry lookup under the processor's block-scoped
// ordering).
func ValidateDeploy(tick, maxStr, limStr, decStr string, height int64, txID string) (models.Ticker, error) {
	decimals := uint8(config.DefaultDecimals)
	if decStr != "" {
		d, err := parseDecimals(decStr)
		if err != nil {
			return models.Ticker{}, err
		}
		decimals = d
	}

	maxAmt, err := decimal.Parse(maxStr, decimals)
	if err != nil {
		return models.Ticker{}, fmt.Errorf("parse max supply: %w", err)
	}
	if maxAmt.IsZero() {
		return models.Ticker{}, fmt.Errorf("max supply must be positive")
	}

	limAmt := maxAmt
	if limStr != "" {
		limAmt, err = decimal.Parse(limStr, decimals)
		if err != nil {
			return models.Ticker{}, fmt.Errorf("parse mint limit: %w", err)
		}
		if limAmt.IsZero() || limAmt.IsNegative() {
			return models.Ticker{}, fmt.Errorf("mint limit must be positive")
		}
		if limAmt.Cmp(maxAmt) > 0 {
			return models.Ticker{}, fmt.Errorf("mint limit exceeds max supply")
		}
	}

	return models.Ticker{
		Tick:              tick,
		MaxSupply:         maxAmt.String(),
		MintLimitPerOp:    limAmt.String(),
		Decimals:          decimals,
		TotalMinted:       decimal.Zero(decimals).String(),
		DeployBlockHeight: height,
		DeployTxID:        txID,
	}, nil
}

func parseDecimals(s string) (uint8, error) {
	d, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("malformed decimals %q: %w", s, err)
	}
	if d < 0 || d > config.MaxDecimals {
		return 0, fmt.Errorf("decimals %d out of range 0..=%d", d, config.MaxDecimals)
	}
	return uint8(d), nil
}

// LoadAll warms the cache from every ticker currently in the store, for
// use at startup before the processor resumes (not on the hot commit
// path).
func LoadAll(db *dbpkg.DB) (*Registry, error) {
	r := New(db)
	tickers, err := db.ListTickers()
	if err != nil {
		return nil, fmt.Errorf("load tickers: %w", err)
	}
	for _, t := range tickers {
		r.Put(t)
	}
	return r, nil
}

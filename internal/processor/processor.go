// Package processor implements the Block Processor (§4.5, component G):
// the single logical writer that walks blocks in order, applies every
// operation they contain, and commits each block's effects atomically.
// Grounded on the teacher's scanner.Scanner orchestration loop
// (internal/scanner/scanner.go) — resume-from-persisted-state,
// per-batch atomic commit, exponential backoff on consecutive failures —
// generalized here from an address-batch scan to a block-by-block replay.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/brc20network/indexer/internal/config"
	dbpkg "github.com/brc20network/indexer/internal/db"
	"github.com/brc20network/indexer/internal/node"
	"github.com/brc20network/indexer/internal/ticker"
	"github.com/brc20network/indexer/internal/transfer"
)

// Processor walks the chain from the last completed block, applying every
// BRC-20 operation it finds and committing each block atomically (§4.5,
// §5).
type Processor struct {
	node      node.Node
	store     *dbpkg.DB
	tickers   *ticker.Registry
	transfers *transfer.Registry
	net       *chaincfg.Params
	cfg       *config.Config
}

// New wires a processor from its already-constructed collaborators.
func New(n node.Node, store *dbpkg.DB, tickers *ticker.Registry, transfers *transfer.Registry, net *chaincfg.Params, cfg *config.Config) *Processor {
	return &Processor{node: n, store: store, tickers: tickers, transfers: transfers, net: net, cfg: cfg}
}

// Resume determines the next height to process: last_completed_height+1,
// or the protocol activation height on a fresh store (§4.5 "Startup").
// On a store with a completed block it first discards any partial blocks
// left by a crash mid-commit (§5 cancellation discipline); on a fresh
// store it discards nothing.
func (p *Processor) Resume(ctx context.Context) (int64, error) {
	last, ok, err := p.store.LastCompletedHeight()
	if err != nil {
		return 0, fmt.Errorf("read last completed height: %w", err)
	}
	if !ok {
		slog.Info("fresh store, starting from activation height", "height", p.cfg.ActivationHeight)
		return p.cfg.ActivationHeight, nil
	}

	if err := p.discardPartialBlocks(last); err != nil {
		return 0, fmt.Errorf("discard partial blocks: %w", err)
	}

	slog.Info("resuming from last completed height", "height", last)
	return last + 1, nil
}

func (p *Processor) discardPartialBlocks(lastCompleted int64) error {
	heights, err := p.store.PartialBlockHeights(lastCompleted)
	if err != nil {
		return err
	}
	if len(heights) == 0 {
		return nil
	}

	slog.Warn("discarding partial block rows found on resume", "heights", heights)
	tx, err := p.store.BeginBlockTx()
	if err != nil {
		return err
	}
	for _, h := range heights {
		if err := dbpkg.DiscardPartialBlockTx(tx, h); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Run processes blocks sequentially starting at the resume height until
// ctx is cancelled (when it reaches the node's tip it polls for new
// blocks rather than returning), with read-ahead
// prefetch and bounded retry on transient faults (§5). Before committing
// each block it compares the block's declared previous-hash against the
// hash stored for height-1; a mismatch means the chain forked somewhere
// at or below height, and the processor walks back to find the common
// ancestor and rolls back to it before resuming (§4.6). It returns nil on
// clean cancellation and a non-nil error only on fatal inconsistency
// (§7), an unrecoverable reorg, or retry exhaustion.
func (p *Processor) Run(ctx context.Context) error {
	height, err := p.Resume(ctx)
	if err != nil {
		return err
	}

	expectedPrevHash, err := p.hashAt(height - 1)
	if err != nil {
		return err
	}

	var prefetch *prefetcher
	defer func() { prefetch.Stop() }()
	prefetch = newPrefetcher(p.node, config.ReadAheadBlocks)
	prefetch.Start(ctx, height)

	consecutiveFails := 0

	for {
		select {
		case <-ctx.Done():
			slog.Info("processor stopping", "nextHeight", height)
			return nil
		default:
		}

		best, err := p.node.BestHeight(ctx)
		if err != nil {
			slog.Warn("failed to read node tip, retrying", "error", err)
		} else if height > best {
			select {
			case <-time.After(config.NodeRetryBaseDelay):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		block, err := prefetch.Get(ctx, height)
		if err != nil {
			consecutiveFails++
			slog.Error("failed to fetch block", "height", height, "error", err, "consecutiveFails", consecutiveFails)
			if consecutiveFails >= p.cfg.StoreRetries {
				return fmt.Errorf("%w: giving up fetching block %d after %d attempts", config.ErrNodeUnavailable, height, consecutiveFails)
			}
			if err := sleepBackoff(ctx, consecutiveFails); err != nil {
				return nil
			}
			continue
		}

		if expectedPrevHash != "" && block.PrevHash != "" && block.PrevHash != expectedPrevHash {
			slog.Warn("reorg detected", "height", height, "expectedPrevHash", expectedPrevHash, "gotPrevHash", block.PrevHash)

			ancestor, err := p.findCommonAncestor(ctx, height-1)
			if err != nil {
				return fmt.Errorf("reorg at height %d: %w", height, err)
			}
			if err := p.Rollback(ctx, ancestor); err != nil {
				return fmt.Errorf("reorg rollback to %d: %w", ancestor, err)
			}

			height = ancestor + 1
			expectedPrevHash, err = p.hashAt(ancestor)
			if err != nil {
				return err
			}
			slog.Warn("reorg rolled back, resyncing", "fromAncestor", ancestor, "resumeHeight", height)

			prefetch.Stop()
			prefetch = newPrefetcher(p.node, config.ReadAheadBlocks)
			prefetch.Start(ctx, height)
			consecutiveFails = 0
			continue
		}

		if err := p.processBlockWithRetry(ctx, block); err != nil {
			return err
		}

		expectedPrevHash = block.Hash
		consecutiveFails = 0
		height++
	}
}

// hashAt returns the hash the store recorded for height, or "" if height
// predates anything completed (a fresh store, or height below the
// protocol activation height) — callers treat "" as "nothing to compare
// against yet".
func (p *Processor) hashAt(height int64) (string, error) {
	hash, ok, err := p.store.BlockHashAt(height)
	if err != nil {
		return "", fmt.Errorf("read stored hash at %d: %w", height, err)
	}
	if !ok {
		return "", nil
	}
	return hash, nil
}

// findCommonAncestor walks backward from fromHeight, comparing the node's
// current hash at each height against what the store retained, until it
// finds one that still matches (§4.6 "walks back... to find the last
// common ancestor"). It gives up past config.MaxReorgDepth: a fork deeper
// than the retained window can't be distinguished from a fresh chain and
// is treated as a fatal inconsistency rather than silently rolled back.
func (p *Processor) findCommonAncestor(ctx context.Context, fromHeight int64) (int64, error) {
	floor := fromHeight - config.MaxReorgDepth
	for h := fromHeight; h > floor; h-- {
		storedHash, ok, err := p.store.BlockHashAt(h)
		if err != nil {
			return 0, fmt.Errorf("read stored hash at %d: %w", h, err)
		}
		if !ok {
			continue
		}
		nodeHash, err := p.node.BlockHash(ctx, h)
		if err != nil {
			return 0, fmt.Errorf("read node hash at %d: %w", h, err)
		}
		if nodeHash == storedHash {
			return h, nil
		}
	}
	return 0, fmt.Errorf("%w: no common ancestor within %d blocks of %d", config.ErrReorgTooDeep, config.MaxReorgDepth, fromHeight)
}

func sleepBackoff(ctx context.Context, attempt int) error {
	delay := config.NodeRetryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > config.NodeRetryMaxDelay {
		delay = config.NodeRetryMaxDelay
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) processBlockWithRetry(ctx context.Context, block *node.Block) error {
	var lastErr error
	for attempt := 0; attempt < p.cfg.StoreRetries; attempt++ {
		err := p.ProcessBlock(ctx, block)
		if err == nil {
			return nil
		}
		if isFatal(err) {
			return err
		}
		lastErr = err
		slog.Warn("block commit failed, retrying", "height", block.Height, "attempt", attempt, "error", err)
		if err := sleepBackoff(ctx, attempt); err != nil {
			return nil
		}
	}
	return fmt.Errorf("%w: block %d: %v", config.ErrStoreRetriesExceeded, block.Height, lastErr)
}

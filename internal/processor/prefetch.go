package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/brc20network/indexer/internal/node"
)

// prefetcher fetches up to `depth` blocks ahead of the height currently
// being validated while commits stay serialised by height (§5 "I/O to the
// node... may be concurrent within read-ahead... but commits are
// serialised by block height").
type prefetcher struct {
	n     node.Node
	depth int

	mu     sync.Mutex
	cache  map[int64]fetchResult
	cond   *sync.Cond
	cancel context.CancelFunc
}

type fetchResult struct {
	block *node.Block
	err   error
	ready bool
}

func newPrefetcher(n node.Node, depth int) *prefetcher {
	if depth < 1 {
		depth = 1
	}
	p := &prefetcher{n: n, depth: depth, cache: make(map[int64]fetchResult)}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches background fetches for [from, from+depth).
func (p *prefetcher) Start(ctx context.Context, from int64) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for h := from; h < from+int64(p.depth); h++ {
		p.fetchAsync(ctx, h)
	}
}

func (p *prefetcher) fetchAsync(ctx context.Context, height int64) {
	p.mu.Lock()
	if _, exists := p.cache[height]; exists {
		p.mu.Unlock()
		return
	}
	p.cache[height] = fetchResult{}
	p.mu.Unlock()

	go func() {
		hash, err := p.n.BlockHash(ctx, height)
		var block *node.Block
		if err == nil {
			block, err = p.n.Block(ctx, hash)
		}
		p.mu.Lock()
		p.cache[height] = fetchResult{block: block, err: err, ready: true}
		p.cond.Broadcast()
		p.mu.Unlock()
	}()
}

// Get blocks until height's fetch completes, then launches the fetch for
// the next not-yet-started height to keep the read-ahead window full.
func (p *prefetcher) Get(ctx context.Context, height int64) (*node.Block, error) {
	p.fetchAsync(ctx, height)

	p.mu.Lock()
	for {
		r, ok := p.cache[height]
		if ok && r.ready {
			delete(p.cache, height)
			p.mu.Unlock()

			p.fetchAsync(ctx, height+int64(p.depth))

			if r.err != nil {
				return nil, fmt.Errorf("prefetch block %d: %w", height, r.err)
			}
			return r.block, nil
		}
		if ctx.Err() != nil {
			p.mu.Unlock()
			return nil, ctx.Err()
		}
		p.cond.Wait()
	}
}

// Stop cancels any in-flight fetches.
func (p *prefetcher) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

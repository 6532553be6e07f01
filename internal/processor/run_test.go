package processor

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/brc20network/indexer/internal/config"
	"github.com/brc20network/indexer/internal/node"
	"github.com/brc20network/indexer/internal/ticker"
	"github.com/brc20network/indexer/internal/transfer"
)

func waitForHeight(t *testing.T, p *Processor, want int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h, ok, err := p.store.LastCompletedHeight(); err == nil && ok && h == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for last completed height %d", want)
}

// TestRun_DetectsReorgAndRollsBack exercises Run's chain-tip comparison
// end to end: the node's canonical chain changes out from under a running
// processor (a one-block reorg at the height just past what's already
// committed), and Run must notice the previous-hash mismatch, find the
// common ancestor, roll back to it, and resynchronize onto the new chain
// (§4.6) — instead of silently diverging from the node's view.
func TestRun_DetectsReorgAndRollsBack(t *testing.T) {
	store := setupTestDB(t)
	tickers, err := ticker.LoadAll(store)
	if err != nil {
		t.Fatalf("ticker.LoadAll() error = %v", err)
	}
	transfers, err := transfer.LoadAll(store)
	if err != nil {
		t.Fatalf("transfer.LoadAll() error = %v", err)
	}
	fn := node.NewFakeNode()
	cfg := &config.Config{StoreRetries: 5, ActivationHeight: 800000}
	p := New(fn, store, tickers, transfers, &chaincfg.MainNetParams, cfg)

	_, minter := scriptFor(t, 31)
	minterScript, _ := scriptFor(t, 31)

	deployA := &node.Block{Height: 800000, Hash: "hA0", Txs: []node.RawTx{{
		TxID: "deploytx",
		Vin:  []node.Vin{{Witness: envelope(`{"p":"brc-20","op":"deploy","tick":"rewn","max":"1000"}`)}},
		Vout: []node.Vout{{PkScript: minterScript}},
	}}}
	mintA1 := &node.Block{Height: 800001, Hash: "hA1", PrevHash: "hA0", Txs: []node.RawTx{{
		TxID: "minta1",
		Vin:  []node.Vin{{Witness: envelope(`{"p":"brc-20","op":"mint","tick":"rewn","amt":"100"}`)}},
		Vout: []node.Vout{{PkScript: minterScript}},
	}}}
	fn.AddBlock(deployA)
	fn.AddBlock(mintA1)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	waitForHeight(t, p, 800001)

	tk, err := store.GetTicker("rewn")
	if err != nil || tk.TotalMinted != "100" {
		t.Fatalf("pre-reorg TotalMinted = %q, err=%v, want 100", tk.TotalMinted, err)
	}

	// The node's canonical chain forks at 800001: a different block (fewer
	// coins minted) replaces mintA1, and a new block extends past it.
	mintB1 := &node.Block{Height: 800001, Hash: "hB1", PrevHash: "hA0", Txs: []node.RawTx{{
		TxID: "mintb1",
		Vin:  []node.Vin{{Witness: envelope(`{"p":"brc-20","op":"mint","tick":"rewn","amt":"40"}`)}},
		Vout: []node.Vout{{PkScript: minterScript}},
	}}}
	mintB2 := &node.Block{Height: 800002, Hash: "hB2", PrevHash: "hB1", Txs: []node.RawTx{{
		TxID: "mintb2",
		Vin:  []node.Vin{{Witness: envelope(`{"p":"brc-20","op":"mint","tick":"rewn","amt":"10"}`)}},
		Vout: []node.Vout{{PkScript: minterScript}},
	}}}
	fn.AddBlock(mintB1)
	fn.AddBlock(mintB2)

	waitForHeight(t, p, 800002)

	tk, err = store.GetTicker("rewn")
	if err != nil {
		t.Fatalf("GetTicker() after reorg error = %v", err)
	}
	if tk.TotalMinted != "50" {
		t.Fatalf("TotalMinted after reorg = %q, want 50 (chain B's 40+10)", tk.TotalMinted)
	}

	bal, err := store.GetUserBalance(minter, "rewn")
	if err != nil || bal.Available != "50" {
		t.Fatalf("balance after reorg = %+v, err=%v, want available=50", bal, err)
	}

	hash, ok, err := store.BlockHashAt(800002)
	if err != nil || !ok || hash != "hB2" {
		t.Fatalf("BlockHashAt(800002) = (%q, %v, %v), want (hB2, true, nil)", hash, ok, err)
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run() to stop after cancel")
	}
}

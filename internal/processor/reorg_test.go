package processor

import (
	"context"
	"testing"

	"github.com/brc20network/indexer/internal/models"
	"github.com/brc20network/indexer/internal/node"
)

func TestRollback_UndoesMintAndRestoresHighWaterMark(t *testing.T) {
	p, store := newTestProcessor(t)
	_, minter := scriptFor(t, 11)
	minterScript, _ := scriptFor(t, 11)

	deployBlock := &node.Block{Height: 800000, Hash: "h0", Txs: []node.RawTx{{
		TxID: "deploytx",
		Vin:  []node.Vin{{Witness: envelope(`{"p":"brc-20","op":"deploy","tick":"rbak","max":"1000"}`)}},
		Vout: []node.Vout{{PkScript: minterScript}},
	}}}
	if err := p.ProcessBlock(context.Background(), deployBlock); err != nil {
		t.Fatalf("ProcessBlock(deploy) error = %v", err)
	}

	mintBlock1 := &node.Block{Height: 800001, Hash: "h1", Txs: []node.RawTx{{
		TxID: "mint1",
		Vin:  []node.Vin{{Witness: envelope(`{"p":"brc-20","op":"mint","tick":"rbak","amt":"100"}`)}},
		Vout: []node.Vout{{PkScript: minterScript}},
	}}}
	if err := p.ProcessBlock(context.Background(), mintBlock1); err != nil {
		t.Fatalf("ProcessBlock(mint1) error = %v", err)
	}

	mintBlock2 := &node.Block{Height: 800002, Hash: "h2", Txs: []node.RawTx{{
		TxID: "mint2",
		Vin:  []node.Vin{{Witness: envelope(`{"p":"brc-20","op":"mint","tick":"rbak","amt":"50"}`)}},
		Vout: []node.Vout{{PkScript: minterScript}},
	}}}
	if err := p.ProcessBlock(context.Background(), mintBlock2); err != nil {
		t.Fatalf("ProcessBlock(mint2) error = %v", err)
	}

	bal, err := store.GetUserBalance(minter, "rbak")
	if err != nil {
		t.Fatalf("GetUserBalance() error = %v", err)
	}
	if bal.Available != "150" {
		t.Fatalf("Available before rollback = %q, want 150", bal.Available)
	}

	if err := p.Rollback(context.Background(), 800001); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	bal, err = store.GetUserBalance(minter, "rbak")
	if err != nil {
		t.Fatalf("GetUserBalance() after rollback error = %v", err)
	}
	if bal.Available != "100" {
		t.Fatalf("Available after rollback = %q, want 100", bal.Available)
	}

	tk, err := store.GetTicker("rbak")
	if err != nil {
		t.Fatalf("GetTicker() error = %v", err)
	}
	if tk.TotalMinted != "100" {
		t.Fatalf("TotalMinted after rollback = %q, want 100", tk.TotalMinted)
	}

	height, ok, err := store.LastCompletedHeight()
	if err != nil || !ok || height != 800001 {
		t.Fatalf("LastCompletedHeight() = (%d, %v, %v), want (800001, true, nil)", height, ok, err)
	}

	if _, ok := p.tickers.Get("rbak"); !ok {
		t.Error("expected ticker registry reloaded with surviving ticker after rollback")
	}
}

func TestRollback_RestoresActiveTransferConsumedAboveTarget(t *testing.T) {
	p, store := newTestProcessor(t)
	_, inscriber := scriptFor(t, 12)
	inscriberScript, _ := scriptFor(t, 12)
	_, receiver := scriptFor(t, 13)
	receiverScript, _ := scriptFor(t, 13)

	blocks := []*node.Block{
		{Height: 800000, Hash: "h0", Txs: []node.RawTx{{
			TxID: "deploytx",
			Vin:  []node.Vin{{Witness: envelope(`{"p":"brc-20","op":"deploy","tick":"rtrf","max":"1000"}`)}},
			Vout: []node.Vout{{PkScript: inscriberScript}},
		}}},
		{Height: 800001, Hash: "h1", Txs: []node.RawTx{{
			TxID: "minttx",
			Vin:  []node.Vin{{Witness: envelope(`{"p":"brc-20","op":"mint","tick":"rtrf","amt":"100"}`)}},
			Vout: []node.Vout{{PkScript: inscriberScript}},
		}}},
		{Height: 800002, Hash: "h2", Txs: []node.RawTx{{
			TxID: "inscribetx",
			Vin:  []node.Vin{{Witness: envelope(`{"p":"brc-20","op":"transfer","tick":"rtrf","amt":"40"}`)}},
			Vout: []node.Vout{{PkScript: inscriberScript}},
		}}},
		{Height: 800003, Hash: "h3", Txs: []node.RawTx{{
			TxID: "sendtx",
			Vin:  []node.Vin{{PrevOut: node.OutPoint{TxID: "inscribetx", Vout: 0}}},
			Vout: []node.Vout{{PkScript: receiverScript}},
		}}},
	}
	for _, b := range blocks {
		if err := p.ProcessBlock(context.Background(), b); err != nil {
			t.Fatalf("ProcessBlock() error = %v", err)
		}
	}

	recvBal, err := store.GetUserBalance(receiver, "rtrf")
	if err != nil || recvBal.Available != "40" {
		t.Fatalf("pre-rollback receiver balance = %+v, err=%v, want available=40", recvBal, err)
	}

	// Roll back past the send (800003) but keep the inscribe (800002): the
	// active transfer must reappear as pending.
	if err := p.Rollback(context.Background(), 800002); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if _, err := store.GetActiveTransfer("inscribetx", 0); err != nil {
		t.Fatalf("GetActiveTransfer() after rollback error = %v, want restored", err)
	}

	inscriberBal, err := store.GetUserBalance(inscriber, "rtrf")
	if err != nil {
		t.Fatalf("GetUserBalance(inscriber) error = %v", err)
	}
	if inscriberBal.Transferable != "40" {
		t.Fatalf("inscriber transferable after rollback = %q, want 40", inscriberBal.Transferable)
	}

	if _, ok := p.transfers.Lookup(models.OutPoint{TxID: "inscribetx", Vout: 0}); !ok {
		t.Error("expected active transfer registry reloaded with restored pending transfer")
	}
}

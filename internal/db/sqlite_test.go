package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/brc20network/indexer/internal/models"
)

// setupTestDB creates a temporary database with migrations applied.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.sqlite")

	d, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := d.RunMigrations(); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestRunMigrations_Idempotent(t *testing.T) {
	d := setupTestDB(t)
	if err := d.RunMigrations(); err != nil {
		t.Fatalf("second RunMigrations() error = %v", err)
	}
}

func TestTicker_InsertAndGet(t *testing.T) {
	d := setupTestDB(t)

	ticker := models.Ticker{
		Tick: "ordi", MaxSupply: "21000000", MintLimitPerOp: "1000",
		Decimals: 18, TotalMinted: "0", DeployBlockHeight: 800000, DeployTxID: "tx1",
	}

	tx, err := d.BeginBlockTx()
	if err != nil {
		t.Fatalf("BeginBlockTx() error = %v", err)
	}
	if err := InsertTickerTx(tx, ticker); err != nil {
		t.Fatalf("InsertTickerTx() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	got, err := d.GetTicker("ordi")
	if err != nil {
		t.Fatalf("GetTicker() error = %v", err)
	}
	if got.MaxSupply != "21000000" || got.Decimals != 18 {
		t.Errorf("unexpected ticker: %+v", got)
	}

	if _, err := d.GetTicker("none"); err != sql.ErrNoRows {
		t.Errorf("GetTicker(unknown) error = %v, want sql.ErrNoRows", err)
	}
}

func TestUserBalance_UpsertAndGet(t *testing.T) {
	d := setupTestDB(t)

	b := models.UserBalance{Address: "addr1", Tick: "ordi", Available: "100", Transferable: "0", Overall: "100", BlockHeight: 1}
	tx, _ := d.BeginBlockTx()
	if err := UpsertUserBalanceTx(tx, b); err != nil {
		t.Fatalf("UpsertUserBalanceTx() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	got, err := d.GetUserBalance("addr1", "ordi")
	if err != nil {
		t.Fatalf("GetUserBalance() error = %v", err)
	}
	if got.Available != "100" {
		t.Errorf("Available = %q, want 100", got.Available)
	}

	b.Available = "50"
	b.Transferable = "50"
	tx2, _ := d.BeginBlockTx()
	if err := UpsertUserBalanceTx(tx2, b); err != nil {
		t.Fatalf("UpsertUserBalanceTx() (update) error = %v", err)
	}
	tx2.Commit()

	got, _ = d.GetUserBalance("addr1", "ordi")
	if got.Available != "50" || got.Transferable != "50" {
		t.Errorf("unexpected balance after update: %+v", got)
	}
}

func TestActiveTransfer_RegisterConsumeExactlyOnce(t *testing.T) {
	d := setupTestDB(t)

	at := models.ActiveTransfer{
		OutPoint: models.OutPoint{TxID: "tx1", Vout: 0}, Tick: "ordi",
		InscriberAddress: "addr1", Amount: "10", InscribeBlockHeight: 1, InscribeTxPosition: 0,
	}
	tx, _ := d.BeginBlockTx()
	if err := InsertActiveTransferTx(tx, at); err != nil {
		t.Fatalf("InsertActiveTransferTx() error = %v", err)
	}
	tx.Commit()

	if _, err := d.GetActiveTransfer("tx1", 0); err != nil {
		t.Fatalf("GetActiveTransfer() error = %v", err)
	}

	tx2, _ := d.BeginBlockTx()
	if err := ConsumeActiveTransferTx(tx2, "tx1", 0); err != nil {
		t.Fatalf("ConsumeActiveTransferTx() error = %v", err)
	}
	tx2.Commit()

	if _, err := d.GetActiveTransfer("tx1", 0); err != sql.ErrNoRows {
		t.Errorf("GetActiveTransfer() after consume error = %v, want sql.ErrNoRows", err)
	}

	tx3, _ := d.BeginBlockTx()
	err := ConsumeActiveTransferTx(tx3, "tx1", 0)
	tx3.Rollback()
	if err == nil {
		t.Error("expected error consuming an already-consumed outpoint")
	}
}

func TestBlockHighWater_FreshAndAdvance(t *testing.T) {
	d := setupTestDB(t)

	if _, ok, err := d.LastCompletedHeight(); err != nil || ok {
		t.Fatalf("fresh store: ok=%v err=%v, want ok=false", ok, err)
	}

	tx, _ := d.BeginBlockTx()
	if err := SetLastCompletedHeightTx(tx, 800000, "hash800000"); err != nil {
		t.Fatalf("SetLastCompletedHeightTx() error = %v", err)
	}
	tx.Commit()

	height, ok, err := d.LastCompletedHeight()
	if err != nil || !ok || height != 800000 {
		t.Fatalf("LastCompletedHeight() = (%d, %v, %v), want (800000, true, nil)", height, ok, err)
	}

	tx2, _ := d.BeginBlockTx()
	SetLastCompletedHeightTx(tx2, 800001, "hash800001")
	tx2.Commit()

	height, _, _ = d.LastCompletedHeight()
	if height != 800001 {
		t.Errorf("height = %d, want 800001", height)
	}

	hash, ok, err := d.BlockHashAt(800001)
	if err != nil || !ok || hash != "hash800001" {
		t.Fatalf("BlockHashAt(800001) = (%q, %v, %v), want (hash800001, true, nil)", hash, ok, err)
	}
	if _, ok, _ := d.BlockHashAt(799999); ok {
		t.Error("BlockHashAt() of a never-completed height should report ok=false")
	}
}

func TestEntriesAboveHeight_OrderedAndDeletable(t *testing.T) {
	d := setupTestDB(t)

	tx, _ := d.BeginBlockTx()
	entries := []models.UserBalanceEntry{
		{Address: "a", Tick: "ordi", BlockHeight: 2, TxPosition: 1, InputPosition: 0, Amount: "5", Kind: models.EntryReceive},
		{Address: "a", Tick: "ordi", BlockHeight: 2, TxPosition: 0, InputPosition: 0, Amount: "10", Kind: models.EntryInscription},
		{Address: "a", Tick: "ordi", BlockHeight: 1, TxPosition: 0, InputPosition: 0, Amount: "3", Kind: models.EntryInscription},
	}
	for _, e := range entries {
		if err := InsertUserBalanceEntryTx(tx, e); err != nil {
			t.Fatalf("InsertUserBalanceEntryTx() error = %v", err)
		}
	}
	tx.Commit()

	got, err := d.EntriesAboveHeight(1)
	if err != nil {
		t.Fatalf("EntriesAboveHeight() error = %v", err)
	}
	if len(got) != 2 || got[0].TxPosition != 0 || got[1].TxPosition != 1 {
		t.Fatalf("unexpected order: %+v", got)
	}

	tx2, _ := d.BeginBlockTx()
	if err := DeleteEntriesAboveHeightTx(tx2, 1); err != nil {
		t.Fatalf("DeleteEntriesAboveHeightTx() error = %v", err)
	}
	tx2.Commit()

	got, _ = d.EntriesAboveHeight(1)
	if len(got) != 0 {
		t.Errorf("expected no entries after delete, got %d", len(got))
	}
}

package validator

import (
	"testing"

	"github.com/brc20network/indexer/internal/config"
	"github.com/brc20network/indexer/internal/decimal"
	"github.com/brc20network/indexer/internal/ledger"
	"github.com/brc20network/indexer/internal/models"
)

func zeroBal() ledger.Balance {
	return ledger.Balance{Available: decimal.Zero(18), Transferable: decimal.Zero(18)}
}

func amt(s string) ledger.Balance {
	bal, err := ledger.FromModel(models.UserBalance{Available: s, Transferable: "0"}, 18)
	if err != nil {
		panic(err)
	}
	return bal
}

func TestDeploy_Accepted(t *testing.T) {
	insc := models.Inscription{Tick: "ordi", Max: "21000000", Limit: "1000"}
	d := Deploy("ordi", insc, false, 800000, "tx1")
	if !d.Accepted {
		t.Fatalf("expected accepted, got reason %q", d.Reason)
	}
	if d.Ticker.MaxSupply != "21000000" {
		t.Errorf("unexpected ticker: %+v", d.Ticker)
	}
}

func TestDeploy_AlreadyDeployed(t *testing.T) {
	d := Deploy("ordi", models.Inscription{Max: "1000"}, true, 1, "tx1")
	if d.Accepted || d.Reason != config.ReasonTickerAlreadyDeployed {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestMint_TickerNotFound(t *testing.T) {
	d := Mint(models.Inscription{Amount: "10"}, models.Ticker{}, false, zeroBal(), 1, 0)
	if d.Accepted || d.Reason != config.ReasonTickerNotFound {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func mintTicker() models.Ticker {
	return models.Ticker{Tick: "ordi", MaxSupply: "1000", MintLimitPerOp: "100", Decimals: 18, TotalMinted: "950"}
}

func TestMint_ExceedsLimit(t *testing.T) {
	d := Mint(models.Inscription{Amount: "101"}, mintTicker(), true, zeroBal(), 1, 0)
	if d.Accepted || d.Reason != config.ReasonAmountExceedsLimit {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestMint_ZeroAmount(t *testing.T) {
	d := Mint(models.Inscription{Amount: "0"}, mintTicker(), true, zeroBal(), 1, 0)
	if d.Accepted || d.Reason != config.ReasonZeroAmount {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestMint_FullyMinted(t *testing.T) {
	ti := mintTicker()
	ti.TotalMinted = ti.MaxSupply
	d := Mint(models.Inscription{Amount: "10"}, ti, true, zeroBal(), 1, 0)
	if d.Accepted || d.Reason != config.ReasonTickerFullyMinted {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestMint_PartialClamp(t *testing.T) {
	// remaining = 1000 - 950 = 50, requested 100 (within per-op limit) -> clamp to 50.
	d := Mint(models.Inscription{Amount: "100"}, mintTicker(), true, zeroBal(), 1, 0)
	if !d.Accepted || !d.Clamped {
		t.Fatalf("expected accepted+clamped, got %+v", d)
	}
	if d.CreditedAmount != "50" {
		t.Errorf("CreditedAmount = %q, want 50", d.CreditedAmount)
	}
	if d.Ticker.TotalMinted != "1000" {
		t.Errorf("TotalMinted = %q, want 1000", d.Ticker.TotalMinted)
	}
	if d.Balance.Available.String() != "50" {
		t.Errorf("credited balance = %s, want 50", d.Balance.Available)
	}
}

func TestMint_FullAmountWithinRemaining(t *testing.T) {
	ti := mintTicker()
	ti.TotalMinted = "800"
	d := Mint(models.Inscription{Amount: "100"}, ti, true, zeroBal(), 1, 0)
	if !d.Accepted || d.Clamped {
		t.Fatalf("expected accepted without clamp, got %+v", d)
	}
	if d.CreditedAmount != "100" {
		t.Errorf("CreditedAmount = %q, want 100", d.CreditedAmount)
	}
}

func TestTransferInscribe_InsufficientAvailable(t *testing.T) {
	ti := models.Ticker{Tick: "ordi", Decimals: 18}
	d := TransferInscribe(models.Inscription{Amount: "100"}, ti, true, "addr1", amt("10"), true, models.OutPoint{}, 1, 0)
	if d.Accepted || d.Reason != config.ReasonInsufficientAvailable {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestTransferInscribe_Accepted(t *testing.T) {
	ti := models.Ticker{Tick: "ordi", Decimals: 18}
	d := TransferInscribe(models.Inscription{Amount: "40"}, ti, true, "addr1", amt("100"), true, models.OutPoint{TxID: "tx1"}, 1, 0)
	if !d.Accepted {
		t.Fatalf("expected accepted, got reason %q", d.Reason)
	}
	if d.Balance.Available.String() != "60" || d.Balance.Transferable.String() != "40" {
		t.Errorf("unexpected balance: %+v", d.Balance)
	}
	if d.ActiveTransfer.Amount != "40" {
		t.Errorf("ActiveTransfer.Amount = %q, want 40", d.ActiveTransfer.Amount)
	}
}

func TestTransferSend_NormalReceiver(t *testing.T) {
	at := models.ActiveTransfer{InscriberAddress: "addr1", Tick: "ordi", Amount: "40"}
	inscriberBal := ledger.Balance{Available: amt("0").Available, Transferable: amt("40").Available}
	d, err := TransferSend(at, 18, inscriberBal, "addr2", zeroBal(), 2, 0, 0)
	if err != nil {
		t.Fatalf("TransferSend() error = %v", err)
	}
	if d.SelfRefund {
		t.Fatal("expected normal send, not self-refund")
	}
	if !d.InscriberBalance.Transferable.IsZero() {
		t.Errorf("inscriber transferable = %s, want 0", d.InscriberBalance.Transferable)
	}
	if d.ReceiverBalance.Available.String() != "40" {
		t.Errorf("receiver available = %s, want 40", d.ReceiverBalance.Available)
	}
}

func TestTransferSend_SelfRefund(t *testing.T) {
	at := models.ActiveTransfer{InscriberAddress: "addr1", Tick: "ordi", Amount: "40"}
	inscriberBal := ledger.Balance{Available: amt("0").Available, Transferable: amt("40").Available}
	d, err := TransferSend(at, 18, inscriberBal, "", zeroBal(), 2, 0, 0)
	if err != nil {
		t.Fatalf("TransferSend() error = %v", err)
	}
	if !d.SelfRefund {
		t.Fatal("expected self-refund")
	}
	if d.InscriberBalance.Available.String() != "40" {
		t.Errorf("inscriber available after self-refund = %s, want 40", d.InscriberBalance.Available)
	}
	if !d.InscriberBalance.Transferable.IsZero() {
		t.Errorf("inscriber transferable after self-refund = %s, want 0", d.InscriberBalance.Transferable)
	}
	if d.SelfRefundDebitEntry.Kind != models.EntrySend || d.SelfRefundDebitEntry.Amount != "-40" {
		t.Errorf("SelfRefundDebitEntry = %+v, want Send -40", d.SelfRefundDebitEntry)
	}
	if d.InscriberEntry.Kind != models.EntryReceive || d.InscriberEntry.Amount != "40" {
		t.Errorf("InscriberEntry = %+v, want Receive 40", d.InscriberEntry)
	}
}

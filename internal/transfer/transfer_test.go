package transfer

import (
	"testing"

	"github.com/brc20network/indexer/internal/models"
)

func TestRegisterLookupConsume(t *testing.T) {
	r := New()
	op := models.OutPoint{TxID: "tx1", Vout: 0}

	if _, ok := r.Lookup(op); ok {
		t.Fatal("expected miss before registration")
	}

	r.Register(models.ActiveTransfer{OutPoint: op, Tick: "ordi", InscriberAddress: "addr1", Amount: "10"})

	got, ok := r.Lookup(op)
	if !ok || got.Amount != "10" {
		t.Fatalf("Lookup() = %+v, %v", got, ok)
	}

	consumed, ok := r.Consume(op)
	if !ok || consumed.InscriberAddress != "addr1" {
		t.Fatalf("Consume() = %+v, %v", consumed, ok)
	}

	if _, ok := r.Lookup(op); ok {
		t.Error("expected outpoint gone after consumption")
	}
}

func TestConsume_SecondSpendProtection(t *testing.T) {
	r := New()
	op := models.OutPoint{TxID: "tx1", Vout: 0}
	r.Register(models.ActiveTransfer{OutPoint: op})

	if _, ok := r.Consume(op); !ok {
		t.Fatal("expected first consume to succeed")
	}
	if _, ok := r.Consume(op); ok {
		t.Error("expected second consume of the same outpoint to fail")
	}
}

func TestRestoreAndRemove(t *testing.T) {
	r := New()
	op := models.OutPoint{TxID: "tx1", Vout: 0}
	at := models.ActiveTransfer{OutPoint: op, Amount: "10"}

	r.Restore(at)
	if _, ok := r.Lookup(op); !ok {
		t.Fatal("expected transfer present after restore")
	}

	r.Remove(op)
	if _, ok := r.Lookup(op); ok {
		t.Error("expected transfer gone after remove")
	}
}

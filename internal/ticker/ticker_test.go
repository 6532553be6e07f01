package ticker

import "testing"

func TestNormalizeTick(t *testing.T) {
	got, err := NormalizeTick("ORDI")
	if err != nil {
		t.Fatalf("NormalizeTick() error = %v", err)
	}
	if got != "ordi" {
		t.Errorf("NormalizeTick() = %q, want %q", got, "ordi")
	}

	if _, err := NormalizeTick("toolong"); err == nil {
		t.Error("expected error for wrong-length tick")
	}
}

func TestValidateDeploy_Defaults(t *testing.T) {
	ti, err := ValidateDeploy("ordi", "21000000", "", "", 800000, "tx1")
	if err != nil {
		t.Fatalf("ValidateDeploy() error = %v", err)
	}
	if ti.Decimals != 18 {
		t.Errorf("Decimals = %d, want 18", ti.Decimals)
	}
	if ti.MintLimitPerOp != ti.MaxSupply {
		t.Errorf("MintLimitPerOp = %q, want default to max %q", ti.MintLimitPerOp, ti.MaxSupply)
	}
	if ti.TotalMinted != "0" {
		t.Errorf("TotalMinted = %q, want 0", ti.TotalMinted)
	}
}

func TestValidateDeploy_LimitExceedsMax(t *testing.T) {
	if _, err := ValidateDeploy("ordi", "1000", "2000", "", 1, "tx1"); err == nil {
		t.Error("expected error when mint limit exceeds max supply")
	}
}

func TestValidateDeploy_ZeroMax(t *testing.T) {
	if _, err := ValidateDeploy("ordi", "0", "", "", 1, "tx1"); err == nil {
		t.Error("expected error for zero max supply")
	}
}

func TestValidateDeploy_DecimalsOutOfRange(t *testing.T) {
	if _, err := ValidateDeploy("ordi", "1000", "", "19", 1, "tx1"); err == nil {
		t.Error("expected error for decimals > 18")
	}
}

func TestValidateDeploy_DecimalsMalformed(t *testing.T) {
	for _, decimals := range []string{"1.5", "18x", "-1", " 18"} {
		if _, err := ValidateDeploy("ordi", "1000", "", decimals, 1, "tx1"); err == nil {
			t.Errorf("decimals %q: expected error, got none", decimals)
		}
	}
}

func TestRegistry_PutAndGet(t *testing.T) {
	r := New(nil)
	if _, ok := r.Get("ordi"); ok {
		t.Fatal("expected miss on empty registry")
	}

	ti, _ := ValidateDeploy("ordi", "1000", "", "", 1, "tx1")
	r.Put(ti)

	got, ok := r.Get("ordi")
	if !ok || got.MaxSupply != "1000" {
		t.Errorf("Get() = %+v, %v", got, ok)
	}
}

package models

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestAmountWiderThan64Bits(t *testing.T) {
	// 2^80, well beyond float64's exact integer range.
	v := new(big.Int).Lsh(big.NewInt(1), 80)
	amount, err := NewAmount(v)
	if err != nil {
		t.Fatalf("new amount: %v", err)
	}

	data, err := json.Marshal(amount)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"1208925819614629174706176"` {
		t.Fatalf("unexpected json %s", data)
	}

	var decoded Amount
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.BigInt().Cmp(v) != 0 {
		t.Fatalf("round trip mismatch: %s", decoded)
	}

	stored, err := amount.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var scanned Amount
	if err := scanned.Scan(stored); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scanned.BigInt().Cmp(v) != 0 {
		t.Fatalf("stored round trip mismatch: %s", scanned)
	}
}

func TestAmountRejectsNegative(t *testing.T) {
	if _, err := NewAmount(big.NewInt(-1)); err == nil {
		t.Fatal("expected error for negative amount")
	}
	if _, err := ParseAmount("-5"); err == nil {
		t.Fatal("expected error for negative string amount")
	}
}

func TestAmountAcceptsBareIntegerJSON(t *testing.T) {
	var amount Amount
	if err := json.Unmarshal([]byte(`1000000`), &amount); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if amount.String() != "1000000" {
		t.Fatalf("unexpected amount %s", amount)
	}
}

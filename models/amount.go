package models

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strings"
)

// Amount is a non-negative monetary value in the smallest ledger unit. It is
// persisted and serialized as a decimal string so values wider than 64 bits
// survive every hop without loss; arithmetic always goes through big.Int.
type Amount struct {
	value big.Int
}

// NewAmount copies v into an Amount. Negative values are rejected.
func NewAmount(v *big.Int) (Amount, error) {
	if v == nil {
		return Amount{}, nil
	}
	if v.Sign() < 0 {
		return Amount{}, fmt.Errorf("models: amount must be non-negative")
	}
	var a Amount
	a.value.Set(v)
	return a, nil
}

// ParseAmount parses a base-10 amount string.
func ParseAmount(s string) (Amount, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Amount{}, fmt.Errorf("models: amount is required")
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return Amount{}, fmt.Errorf("models: invalid amount %q", s)
	}
	return NewAmount(v)
}

// BigInt returns a copy of the underlying integer.
func (a Amount) BigInt() *big.Int {
	return new(big.Int).Set(&a.value)
}

// String renders the amount in base 10.
func (a Amount) String() string {
	return a.value.String()
}

// Sign mirrors big.Int.Sign.
func (a Amount) Sign() int {
	return a.value.Sign()
}

// Value stores the amount as its decimal text form.
func (a Amount) Value() (driver.Value, error) {
	return a.value.String(), nil
}

// Scan restores an amount from its stored text form.
func (a *Amount) Scan(src any) error {
	raw, err := rawBytes(src)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		a.value.SetInt64(0)
		return nil
	}
	if _, ok := a.value.SetString(string(raw), 10); !ok {
		return fmt.Errorf("models: invalid stored amount %q", string(raw))
	}
	return nil
}

// MarshalJSON renders the amount as a JSON string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.value.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a bare integer literal.
func (a *Amount) UnmarshalJSON(data []byte) error {
	text := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if text == "" || text == "null" {
		a.value.SetInt64(0)
		return nil
	}
	parsed, err := ParseAmount(text)
	if err != nil {
		return err
	}
	a.value.Set(&parsed.value)
	return nil
}

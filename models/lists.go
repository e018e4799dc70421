package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ApprovalStatus is the decision state of a single approver.
type ApprovalStatus string

// Approval decision states.
const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Valid reports whether the status is a recognised decision state.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	default:
		return false
	}
}

// Condition is an informational release condition an operator marks satisfied.
// Conditions are tracked for the compliance narrative; they do not gate release.
type Condition struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	Satisfied   bool   `json:"satisfied"`
}

// Approval records one required approver and their decision.
type Approval struct {
	ApproverID string         `json:"approverId"`
	Status     ApprovalStatus `json:"status"`
}

// Split assigns a flat basis-point share of the gross amount to a ledger account.
type Split struct {
	AccountID string `json:"accountId"`
	Bps       uint32 `json:"bps"`
}

// The list fields below persist as whole JSON documents. There are no partial
// patch semantics: every write replaces the full list.

// Conditions is the ordered condition list stored on an escrow.
type Conditions []Condition

// Approvals is the ordered approval list stored on an escrow.
type Approvals []Approval

// Splits is the ordered payout split table stored on an escrow.
type Splits []Split

// Metadata carries arbitrary structured audit event detail.
type Metadata map[string]any

func (c Conditions) Value() (driver.Value, error) { return listValue(c) }
func (a Approvals) Value() (driver.Value, error)  { return listValue(a) }
func (s Splits) Value() (driver.Value, error)     { return listValue(s) }

func (c *Conditions) Scan(src any) error { return listScan(src, c) }
func (a *Approvals) Scan(src any) error  { return listScan(src, a) }
func (s *Splits) Scan(src any) error     { return listScan(src, s) }

// Value marshals the metadata document for storage.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan restores the metadata document from storage.
func (m *Metadata) Scan(src any) error {
	raw, err := rawBytes(src)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*m = Metadata{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

func listValue(v any) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func listScan(src, dst any) error {
	raw, err := rawBytes(src)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func rawBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("models: unsupported column type %T", src)
	}
}

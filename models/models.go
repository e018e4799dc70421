package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Rail identifies the settlement mechanism for a case.
type Rail string

// Supported settlement rails.
const (
	RailBank       Rail = "BANK"
	RailStablecoin Rail = "STABLECOIN"
)

// Valid reports whether the rail is one of the supported variants.
func (r Rail) Valid() bool {
	switch r {
	case RailBank, RailStablecoin:
		return true
	default:
		return false
	}
}

// CaseStage represents a stage in the regulated conveyancing workflow.
type CaseStage string

// All workflow stages, in chain order. CLOSED is terminal.
const (
	StageIntake       CaseStage = "INTAKE"
	StageKYC          CaseStage = "KYC"
	StageEscrow       CaseStage = "ESCROW"
	StageCerts        CaseStage = "CERTS"
	StageLodgement    CaseStage = "LODGEMENT"
	StageRegistration CaseStage = "REGISTRATION"
	StageClosed       CaseStage = "CLOSED"
)

// EscrowStatus represents the escrow lifecycle.
type EscrowStatus string

// Escrow lifecycle states. RELEASED is terminal.
const (
	EscrowDraft    EscrowStatus = "DRAFT"
	EscrowFunded   EscrowStatus = "FUNDED"
	EscrowReleased EscrowStatus = "RELEASED"
)

// PartyRole tags a participant in a case.
type PartyRole string

// Recognised party roles.
const (
	PartyBuyer        PartyRole = "BUYER"
	PartySeller       PartyRole = "SELLER"
	PartyConveyancer  PartyRole = "CONVEYANCER"
	PartyAgent        PartyRole = "AGENT"
	PartyMunicipality PartyRole = "MUNICIPALITY"
	PartyBank         PartyRole = "BANK"
	PartyDeveloper    PartyRole = "DEVELOPER"
)

// Case is a tracked real-estate transaction moving through regulatory stages.
// A case owns its party snapshot and holds at most one escrow back-link.
type Case struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID     uuid.UUID  `gorm:"type:uuid;index" json:"tenantId"`
	Title        string     `gorm:"size:255" json:"title"`
	Municipality string     `gorm:"size:128;index" json:"municipality"`
	PriceCents   int64      `gorm:"not null" json:"priceCents"`
	Rail         Rail       `gorm:"size:16" json:"rail"`
	Stage        CaseStage  `gorm:"size:32;index" json:"stage"`
	AssignedToID *uuid.UUID `gorm:"type:uuid;index" json:"assignedToId,omitempty"`
	SLAAt        *time.Time `json:"slaAt,omitempty"`
	EscrowID     *uuid.UUID `gorm:"type:uuid" json:"escrowId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	Parties      []Party    `json:"parties,omitempty"`
}

// Party is a named participant owned by its case. The party list is written
// once at case creation and never amended afterwards.
type Party struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID    uuid.UUID `gorm:"type:uuid;index" json:"caseId"`
	Type      PartyRole `gorm:"size:32" json:"type"`
	Name      string    `gorm:"size:255" json:"name"`
	Email     string    `gorm:"size:255" json:"email,omitempty"`
	Phone     string    `gorm:"size:64" json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Escrow is a monetary holdback tied to exactly one case. The unique index on
// CaseID backs the "at most one escrow per case" invariant at the store level;
// the EscrowID back-link on Case is maintained in the same transaction.
type Escrow struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID     uuid.UUID    `gorm:"type:uuid;uniqueIndex" json:"caseId"`
	Rail       Rail         `gorm:"size:16" json:"rail"`
	Amount     Amount       `gorm:"type:text" json:"amount"`
	Status     EscrowStatus `gorm:"size:16;index" json:"status"`
	Conditions Conditions   `gorm:"type:text;column:conditions_json" json:"conditions"`
	Splits     Splits       `gorm:"type:text;column:splits_json" json:"splits"`
	Approvals  Approvals    `gorm:"type:text;column:approvals_json" json:"approvals"`
	LedgerRef  string       `gorm:"size:255" json:"ledgerRef"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// AuditEvent is an immutable compliance record. Rows are only ever inserted,
// in the same transaction as the state change they document.
type AuditEvent struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    uuid.UUID `gorm:"type:uuid;index" json:"tenantId"`
	Action      string    `gorm:"size:64;index" json:"action"`
	SubjectType string    `gorm:"size:32;index" json:"subjectType"`
	SubjectID   uuid.UUID `gorm:"type:uuid;index" json:"subjectId"`
	Meta        Metadata  `gorm:"type:text;column:meta_json" json:"meta"`
	ActorID     uuid.UUID `gorm:"type:uuid;index" json:"actorId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AutoMigrate performs all schema migrations for the gateway.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Case{},
		&Party{},
		&Escrow{},
		&AuditEvent{},
	)
}

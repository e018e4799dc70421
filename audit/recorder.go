// Package audit appends immutable compliance events. Append runs inside the
// caller's transaction so a rolled-back state change never leaves an orphan
// event and a committed one is never missing its event.
package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"deedgateway/models"
)

// Subject types recorded on audit events.
const (
	SubjectCase   = "CASE"
	SubjectEscrow = "ESCROW"
)

// Action tags.
const (
	ActionCaseCreated        = "CASE_CREATED"
	ActionCaseUpdated        = "CASE_UPDATED"
	ActionCaseStageChanged   = "CASE_STAGE_CHANGED"
	ActionEscrowCreated      = "ESCROW_CREATED"
	ActionEscrowFunded       = "ESCROW_FUNDED"
	ActionEscrowApproval     = "ESCROW_APPROVAL_RECORDED"
	ActionConditionSatisfied = "ESCROW_CONDITION_SATISFIED"
	ActionEscrowReleased     = "ESCROW_RELEASED"
)

// Append inserts one event inside tx. There is no update or delete surface.
func Append(tx *gorm.DB, tenantID uuid.UUID, action, subjectType string, subjectID uuid.UUID, meta models.Metadata, actorID uuid.UUID) error {
	event := models.AuditEvent{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Meta:        meta,
		ActorID:     actorID,
		CreatedAt:   time.Now().UTC(),
	}
	return tx.Create(&event).Error
}

// List returns the tenant's most recent events, newest first. Events never
// cross tenants.
func List(db *gorm.DB, tenantID uuid.UUID, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var events []models.AuditEvent
	err := db.Where("tenant_id = ?", tenantID).
		Order("created_at DESC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

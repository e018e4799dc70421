// Package cases manages the regulated stage progression of a conveyancing
// case. The stage flow is a strict linear chain with exactly one successor
// per stage, so compliance stages cannot be skipped.
package cases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"deedgateway/apierrors"
	"deedgateway/audit"
	"deedgateway/models"
)

var stageFlow = map[models.CaseStage]models.CaseStage{
	models.StageIntake:       models.StageKYC,
	models.StageKYC:          models.StageEscrow,
	models.StageEscrow:       models.StageCerts,
	models.StageCerts:        models.StageLodgement,
	models.StageLodgement:    models.StageRegistration,
	models.StageRegistration: models.StageClosed,
}

// ValidateStageTransition ensures the requested stage is the current stage
// (an idempotent no-op) or its unique successor in the chain.
func ValidateStageTransition(current, next models.CaseStage) error {
	if current == next {
		return nil
	}
	successor, ok := stageFlow[current]
	if !ok || successor != next {
		return apierrors.BadRequest(apierrors.CodeInvalidStageTransition,
			fmt.Sprintf("%s cannot transition to %s", current, next))
	}
	return nil
}

// Service coordinates case persistence and audit logging.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs a case service over the shared database handle.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// PartyInput describes one participant in the immutable case snapshot.
type PartyInput struct {
	Type  models.PartyRole `json:"type"`
	Name  string           `json:"name"`
	Email string           `json:"email,omitempty"`
	Phone string           `json:"phone,omitempty"`
}

// CreateInput collects the fields required to open a case.
type CreateInput struct {
	TenantID     uuid.UUID
	Title        string
	Municipality string
	PriceCents   int64
	Rail         models.Rail
	Parties      []PartyInput
	ActorID      uuid.UUID
}

// Create opens a case in INTAKE with its party snapshot and audit event.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Case, error) {
	if input.Title == "" {
		return nil, apierrors.BadRequest(apierrors.CodeValidation, "title is required")
	}
	if input.PriceCents < 0 {
		return nil, apierrors.BadRequest(apierrors.CodeValidation, "price must be non-negative")
	}
	if !input.Rail.Valid() {
		return nil, apierrors.BadRequest(apierrors.CodeValidation, fmt.Sprintf("unsupported rail %q", input.Rail))
	}

	now := s.now()
	record := models.Case{
		ID:           uuid.New(),
		TenantID:     input.TenantID,
		Title:        input.Title,
		Municipality: input.Municipality,
		PriceCents:   input.PriceCents,
		Rail:         input.Rail,
		Stage:        models.StageIntake,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, party := range input.Parties {
		record.Parties = append(record.Parties, models.Party{
			ID:        uuid.New(),
			CaseID:    record.ID,
			Type:      party.Type,
			Name:      party.Name,
			Email:     party.Email,
			Phone:     party.Phone,
			CreatedAt: now,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		return audit.Append(tx, input.TenantID, audit.ActionCaseCreated, audit.SubjectCase, record.ID, models.Metadata{
			"title":      record.Title,
			"priceCents": record.PriceCents,
			"rail":       record.Rail,
		}, input.ActorID)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Get fetches a tenant's case with its parties.
func (s *Service) Get(ctx context.Context, tenantID, caseID uuid.UUID) (*models.Case, error) {
	var record models.Case
	err := s.db.WithContext(ctx).Preload("Parties").
		First(&record, "id = ? AND tenant_id = ?", caseID, tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierrors.NotFound("case not found")
		}
		return nil, err
	}
	return &record, nil
}

// Filters narrows List results.
type Filters struct {
	Stage        models.CaseStage
	Municipality string
	AssignedToID *uuid.UUID
}

// List returns a tenant's cases, newest first.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filters Filters) ([]models.Case, error) {
	query := s.db.WithContext(ctx).Preload("Parties").Where("tenant_id = ?", tenantID)
	if filters.Stage != "" {
		query = query.Where("stage = ?", filters.Stage)
	}
	if filters.Municipality != "" {
		query = query.Where("municipality = ?", filters.Municipality)
	}
	if filters.AssignedToID != nil {
		query = query.Where("assigned_to_id = ?", *filters.AssignedToID)
	}
	var records []models.Case
	if err := query.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateInput captures a partial case update. Nil fields are left unchanged.
type UpdateInput struct {
	Title        *string
	Stage        *models.CaseStage
	AssignedToID *uuid.UUID
	SLAAt        *time.Time
	ActorID      uuid.UUID
}

// Update applies field changes and an optional stage transition in one
// transaction. Requesting the current stage is a no-op; anything other than
// the unique successor fails. One audit event records fromStage/toStage and
// the changed fields.
func (s *Service) Update(ctx context.Context, tenantID, caseID uuid.UUID, input UpdateInput) (*models.Case, error) {
	if input.Title != nil && *input.Title == "" {
		return nil, apierrors.BadRequest(apierrors.CodeValidation, "title is required")
	}
	var record models.Case
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&record, "id = ? AND tenant_id = ?", caseID, tenantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierrors.NotFound("case not found")
			}
			return err
		}

		fromStage := record.Stage
		stageChanged := false
		if input.Stage != nil {
			if err := ValidateStageTransition(record.Stage, *input.Stage); err != nil {
				return err
			}
			stageChanged = *input.Stage != record.Stage
			record.Stage = *input.Stage
		}

		var changed []string
		if input.Title != nil && *input.Title != record.Title {
			record.Title = *input.Title
			changed = append(changed, "title")
		}
		if input.AssignedToID != nil {
			record.AssignedToID = input.AssignedToID
			changed = append(changed, "assignedToId")
		}
		if input.SLAAt != nil {
			record.SLAAt = input.SLAAt
			changed = append(changed, "slaAt")
		}
		if stageChanged {
			changed = append(changed, "stage")
		}
		record.UpdatedAt = s.now()

		if err := tx.Save(&record).Error; err != nil {
			return err
		}

		action := audit.ActionCaseUpdated
		if stageChanged {
			action = audit.ActionCaseStageChanged
		}
		return audit.Append(tx, tenantID, action, audit.SubjectCase, record.ID, models.Metadata{
			"fromStage":     fromStage,
			"toStage":       record.Stage,
			"updatedFields": changed,
		}, input.ActorID)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

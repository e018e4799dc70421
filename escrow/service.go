// Package escrow manages the funding, approval gating, and exactly-once
// release of a case's monetary holdback. Every mutation runs in one
// relational transaction that locks the escrow row, validates the
// transition, writes the new state, and appends the audit event.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"deedgateway/apierrors"
	"deedgateway/audit"
	"deedgateway/ledger"
	"deedgateway/models"
)

const maxBps = 10_000

// Service coordinates escrow state against the relational store and the
// external consensus ledger.
type Service struct {
	db     *gorm.DB
	ledger ledger.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs an escrow service.
func NewService(db *gorm.DB, ledgerClient ledger.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:     db,
		ledger: ledgerClient,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput collects the fields required to draft an escrow.
type CreateInput struct {
	TenantID    uuid.UUID
	CaseID      uuid.UUID
	Rail        models.Rail
	Amount      models.Amount
	Conditions  models.Conditions
	Splits      models.Splits
	Approvals   models.Approvals
	ContractRef string
	ActorID     uuid.UUID
}

// Create drafts an escrow and back-links its case atomically. A case can
// hold at most one escrow; the case row is locked so concurrent creation
// attempts serialize on the store.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Escrow, error) {
	if !input.Rail.Valid() {
		return nil, apierrors.BadRequest(apierrors.CodeValidation, fmt.Sprintf("unsupported rail %q", input.Rail))
	}
	if input.Amount.Sign() < 0 {
		return nil, apierrors.BadRequest(apierrors.CodeValidation, "amount must be non-negative")
	}
	if strings.TrimSpace(input.ContractRef) == "" {
		return nil, apierrors.BadRequest(apierrors.CodeValidation, "contractRef is required")
	}
	for _, split := range input.Splits {
		if split.Bps > maxBps {
			return nil, apierrors.BadRequest(apierrors.CodeValidation,
				fmt.Sprintf("split for %s exceeds 10000 bps", split.AccountID))
		}
	}
	approvals := make(models.Approvals, 0, len(input.Approvals))
	for _, approval := range input.Approvals {
		status := approval.Status
		if status == "" {
			status = models.ApprovalPending
		}
		if !status.Valid() {
			return nil, apierrors.BadRequest(apierrors.CodeValidation,
				fmt.Sprintf("invalid approval status %q", approval.Status))
		}
		approvals = append(approvals, models.Approval{ApproverID: approval.ApproverID, Status: status})
	}

	now := s.now()
	record := models.Escrow{
		ID:         uuid.New(),
		CaseID:     input.CaseID,
		Rail:       input.Rail,
		Amount:     input.Amount,
		Status:     models.EscrowDraft,
		Conditions: input.Conditions,
		Splits:     input.Splits,
		Approvals:  approvals,
		LedgerRef:  strings.TrimSpace(input.ContractRef),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var caseRecord models.Case
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&caseRecord, "id = ? AND tenant_id = ?", input.CaseID, input.TenantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierrors.NotFound("case not found for escrow")
			}
			return err
		}
		if caseRecord.EscrowID != nil {
			return apierrors.BadRequest(apierrors.CodeEscrowExists, "escrow already linked to this case")
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		caseRecord.EscrowID = &record.ID
		caseRecord.UpdatedAt = now
		if err := tx.Save(&caseRecord).Error; err != nil {
			return err
		}
		return audit.Append(tx, input.TenantID, audit.ActionEscrowCreated, audit.SubjectEscrow, record.ID, models.Metadata{
			"caseId": record.CaseID,
			"rail":   record.Rail,
			"amount": record.Amount.String(),
		}, input.ActorID)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Get fetches a tenant's escrow.
func (s *Service) Get(ctx context.Context, tenantID, escrowID uuid.UUID) (*models.Escrow, error) {
	var record models.Escrow
	err := s.db.WithContext(ctx).
		Joins("JOIN cases ON cases.id = escrows.case_id").
		Where("escrows.id = ? AND cases.tenant_id = ?", escrowID, tenantID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierrors.NotFound("escrow not found")
		}
		return nil, err
	}
	return &record, nil
}

// List returns a tenant's escrows, newest first.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]models.Escrow, error) {
	var records []models.Escrow
	err := s.db.WithContext(ctx).
		Joins("JOIN cases ON cases.id = escrows.case_id").
		Where("cases.tenant_id = ?", tenantID).
		Order("escrows.created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// MarkFunded transitions DRAFT to FUNDED. A funded escrow is returned as-is
// with no second audit event, so duplicate confirmation callbacks from the
// settlement rail are harmless.
func (s *Service) MarkFunded(ctx context.Context, tenantID, escrowID uuid.UUID, reference string, actorID uuid.UUID) (*models.Escrow, error) {
	var record models.Escrow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockEscrow(tx, tenantID, escrowID, &record); err != nil {
			return err
		}
		switch record.Status {
		case models.EscrowFunded:
			return nil
		case models.EscrowDraft:
		default:
			return apierrors.BadRequest(apierrors.CodeInvalidEscrowState,
				fmt.Sprintf("escrow in status %s cannot be funded", record.Status))
		}
		record.Status = models.EscrowFunded
		record.UpdatedAt = s.now()
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		return audit.Append(tx, tenantID, audit.ActionEscrowFunded, audit.SubjectEscrow, record.ID, models.Metadata{
			"reference": reference,
		}, actorID)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// RecordApproval sets one approver's decision on the approvals list. The
// list is rewritten whole; there are no partial patch semantics.
func (s *Service) RecordApproval(ctx context.Context, tenantID, escrowID uuid.UUID, approverID string, status models.ApprovalStatus, actorID uuid.UUID) (*models.Escrow, error) {
	if status != models.ApprovalApproved && status != models.ApprovalRejected {
		return nil, apierrors.BadRequest(apierrors.CodeValidation, fmt.Sprintf("invalid approval decision %q", status))
	}
	var record models.Escrow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockEscrow(tx, tenantID, escrowID, &record); err != nil {
			return err
		}
		if record.Status == models.EscrowReleased {
			return apierrors.BadRequest(apierrors.CodeInvalidEscrowState, "escrow already released")
		}
		found := false
		for i := range record.Approvals {
			if record.Approvals[i].ApproverID == approverID {
				record.Approvals[i].Status = status
				found = true
				break
			}
		}
		if !found {
			return apierrors.NotFound("approver not listed on escrow")
		}
		record.UpdatedAt = s.now()
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		return audit.Append(tx, tenantID, audit.ActionEscrowApproval, audit.SubjectEscrow, record.ID, models.Metadata{
			"approverId": approverID,
			"status":     status,
		}, actorID)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// SatisfyCondition marks one condition satisfied. Conditions feed the
// compliance narrative only; they do not gate release.
func (s *Service) SatisfyCondition(ctx context.Context, tenantID, escrowID uuid.UUID, code string, actorID uuid.UUID) (*models.Escrow, error) {
	var record models.Escrow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockEscrow(tx, tenantID, escrowID, &record); err != nil {
			return err
		}
		found := false
		for i := range record.Conditions {
			if record.Conditions[i].Code == code {
				record.Conditions[i].Satisfied = true
				found = true
				break
			}
		}
		if !found {
			return apierrors.NotFound("condition not listed on escrow")
		}
		record.UpdatedAt = s.now()
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		return audit.Append(tx, tenantID, audit.ActionConditionSatisfied, audit.SubjectEscrow, record.ID, models.Metadata{
			"code": code,
		}, actorID)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Service) lockEscrow(tx *gorm.DB, tenantID, escrowID uuid.UUID, out *models.Escrow) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(out, "id = ?", escrowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apierrors.NotFound("escrow not found")
		}
		return err
	}
	var owned int64
	if err := tx.Model(&models.Case{}).
		Where("id = ? AND tenant_id = ?", out.CaseID, tenantID).
		Count(&owned).Error; err != nil {
		return err
	}
	if owned == 0 {
		return apierrors.NotFound("escrow not found")
	}
	return nil
}

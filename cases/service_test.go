package cases

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"deedgateway/apierrors"
	"deedgateway/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestValidateStageTransition(t *testing.T) {
	chain := []models.CaseStage{
		models.StageIntake, models.StageKYC, models.StageEscrow, models.StageCerts,
		models.StageLodgement, models.StageRegistration, models.StageClosed,
	}
	for i, current := range chain {
		if err := ValidateStageTransition(current, current); err != nil {
			t.Fatalf("same-stage transition from %s should be a no-op: %v", current, err)
		}
		for j, next := range chain {
			err := ValidateStageTransition(current, next)
			if j == i+1 || j == i {
				if err != nil {
					t.Fatalf("transition %s -> %s should be allowed: %v", current, next, err)
				}
				continue
			}
			if err == nil {
				t.Fatalf("transition %s -> %s should be rejected", current, next)
			}
			var apiErr *apierrors.Error
			if !errors.As(err, &apiErr) || apiErr.Code != apierrors.CodeInvalidStageTransition {
				t.Fatalf("expected INVALID_STAGE_TRANSITION, got %v", err)
			}
		}
	}
}

func TestCreateCase(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	tenantID := uuid.New()
	actorID := uuid.New()

	record, err := svc.Create(context.Background(), CreateInput{
		TenantID:     tenantID,
		Title:        "Erf 1234 transfer",
		Municipality: "Cape Town",
		PriceCents:   250_000_000,
		Rail:         models.RailBank,
		Parties: []PartyInput{
			{Type: models.PartyBuyer, Name: "A Buyer"},
			{Type: models.PartySeller, Name: "A Seller"},
		},
		ActorID: actorID,
	})
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	if record.Stage != models.StageIntake {
		t.Fatalf("expected INTAKE, got %s", record.Stage)
	}

	fetched, err := svc.Get(context.Background(), tenantID, record.ID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if len(fetched.Parties) != 2 {
		t.Fatalf("expected 2 parties, got %d", len(fetched.Parties))
	}

	var count int64
	if err := db.Model(&models.AuditEvent{}).
		Where("subject_id = ? AND action = ?", record.ID, "CASE_CREATED").
		Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 created event, got %d", count)
	}
}

func TestCreateCaseRejectsUnknownRail(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)

	_, err := svc.Create(context.Background(), CreateInput{
		TenantID: uuid.New(),
		Title:    "Bad rail",
		Rail:     models.Rail("CASH"),
		ActorID:  uuid.New(),
	})
	var apiErr *apierrors.Error
	if !errors.As(err, &apiErr) || apiErr.Code != apierrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateStage(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	tenantID := uuid.New()
	actorID := uuid.New()

	record, err := svc.Create(context.Background(), CreateInput{
		TenantID: tenantID,
		Title:    "Stage walk",
		Rail:     models.RailStablecoin,
		ActorID:  actorID,
	})
	if err != nil {
		t.Fatalf("create case: %v", err)
	}

	kyc := models.StageKYC
	updated, err := svc.Update(context.Background(), tenantID, record.ID, UpdateInput{
		Stage:   &kyc,
		ActorID: actorID,
	})
	if err != nil {
		t.Fatalf("update to KYC: %v", err)
	}
	if updated.Stage != models.StageKYC {
		t.Fatalf("expected KYC, got %s", updated.Stage)
	}

	// From KYC only ESCROW is accepted.
	certs := models.StageCerts
	_, err = svc.Update(context.Background(), tenantID, record.ID, UpdateInput{
		Stage:   &certs,
		ActorID: actorID,
	})
	var apiErr *apierrors.Error
	if !errors.As(err, &apiErr) || apiErr.Code != apierrors.CodeInvalidStageTransition {
		t.Fatalf("expected INVALID_STAGE_TRANSITION, got %v", err)
	}

	// Requesting the current stage is idempotent and audited as an update.
	if _, err := svc.Update(context.Background(), tenantID, record.ID, UpdateInput{
		Stage:   &kyc,
		ActorID: actorID,
	}); err != nil {
		t.Fatalf("same-stage update: %v", err)
	}

	var stageEvents int64
	if err := db.Model(&models.AuditEvent{}).
		Where("subject_id = ? AND action = ?", record.ID, "CASE_STAGE_CHANGED").
		Count(&stageEvents).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if stageEvents != 1 {
		t.Fatalf("expected exactly 1 stage-changed event, got %d", stageEvents)
	}
}

func TestUpdateRejectsEmptyTitle(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	tenantID := uuid.New()
	actorID := uuid.New()

	record, err := svc.Create(context.Background(), CreateInput{
		TenantID: tenantID,
		Title:    "Keep me",
		Rail:     models.RailBank,
		ActorID:  actorID,
	})
	if err != nil {
		t.Fatalf("create case: %v", err)
	}

	empty := ""
	_, err = svc.Update(context.Background(), tenantID, record.ID, UpdateInput{Title: &empty, ActorID: actorID})
	var apiErr *apierrors.Error
	if !errors.As(err, &apiErr) || apiErr.Code != apierrors.CodeValidation {
		t.Fatalf("expected validation error for empty title, got %v", err)
	}

	fetched, err := svc.Get(context.Background(), tenantID, record.ID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if fetched.Title != "Keep me" {
		t.Fatalf("title must be unchanged, got %q", fetched.Title)
	}
}

func TestUpdateCaseTenantIsolation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	tenantID := uuid.New()

	record, err := svc.Create(context.Background(), CreateInput{
		TenantID: tenantID,
		Title:    "Isolated",
		Rail:     models.RailBank,
		ActorID:  uuid.New(),
	})
	if err != nil {
		t.Fatalf("create case: %v", err)
	}

	kyc := models.StageKYC
	_, err = svc.Update(context.Background(), uuid.New(), record.ID, UpdateInput{Stage: &kyc, ActorID: uuid.New()})
	var apiErr *apierrors.Error
	if !errors.As(err, &apiErr) || apiErr.Status != 404 {
		t.Fatalf("expected not found for other tenant, got %v", err)
	}
}

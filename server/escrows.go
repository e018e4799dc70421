package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"deedgateway/apierrors"
	"deedgateway/audit"
	"deedgateway/auth"
	"deedgateway/escrow"
	"deedgateway/models"
)

// CreateEscrow drafts an escrow for a case and back-links it.
func (s *Server) CreateEscrow(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req struct {
		CaseID      uuid.UUID         `json:"caseId"`
		Rail        models.Rail       `json:"rail"`
		Amount      models.Amount     `json:"amount"`
		Conditions  models.Conditions `json:"conditions"`
		Splits      models.Splits     `json:"splits"`
		Approvals   models.Approvals  `json:"approvals"`
		ContractRef string            `json:"contractRef"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apierrors.BadRequest(apierrors.CodeValidation, "invalid payload"))
		return
	}

	record, err := s.escrows.Create(r.Context(), escrow.CreateInput{
		TenantID:    claims.TenantID,
		CaseID:      req.CaseID,
		Rail:        req.Rail,
		Amount:      req.Amount,
		Conditions:  req.Conditions,
		Splits:      req.Splits,
		Approvals:   req.Approvals,
		ContractRef: req.ContractRef,
		ActorID:     claims.UserID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, record)
}

// ListEscrows returns the tenant's escrows.
func (s *Server) ListEscrows(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	records, err := s.escrows.List(r.Context(), claims.TenantID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

// GetEscrow returns one escrow.
func (s *Server) GetEscrow(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	escrowID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, apierrors.BadRequest(apierrors.CodeValidation, "invalid escrow id"))
		return
	}
	record, err := s.escrows.Get(r.Context(), claims.TenantID, escrowID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// FundEscrow records a funding confirmation from the settlement rail.
// Duplicate callbacks return the funded escrow unchanged.
func (s *Server) FundEscrow(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	escrowID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, apierrors.BadRequest(apierrors.CodeValidation, "invalid escrow id"))
		return
	}

	var req struct {
		Reference string `json:"reference"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, apierrors.BadRequest(apierrors.CodeValidation, "invalid payload"))
			return
		}
	}

	record, err := s.escrows.MarkFunded(r.Context(), claims.TenantID, escrowID, req.Reference, claims.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// RecordApproval stores one approver's decision.
func (s *Server) RecordApproval(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	escrowID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, apierrors.BadRequest(apierrors.CodeValidation, "invalid escrow id"))
		return
	}

	var req struct {
		Status models.ApprovalStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apierrors.BadRequest(apierrors.CodeValidation, "invalid payload"))
		return
	}

	record, err := s.escrows.RecordApproval(r.Context(), claims.TenantID, escrowID,
		chi.URLParam(r, "approverId"), req.Status, claims.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// SatisfyCondition marks an informational release condition satisfied.
func (s *Server) SatisfyCondition(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	escrowID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, apierrors.BadRequest(apierrors.CodeValidation, "invalid escrow id"))
		return
	}

	record, err := s.escrows.SatisfyCondition(r.Context(), claims.TenantID, escrowID,
		chi.URLParam(r, "code"), claims.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// ReleaseEscrow submits the payout to the external ledger. A confirmed
// release answers 202; a replay of an already-released escrow answers 200
// with the recorded outcome.
func (s *Server) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	escrowID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, apierrors.BadRequest(apierrors.CodeValidation, "invalid escrow id"))
		return
	}

	result, err := s.escrows.Release(r.Context(), claims.TenantID, escrowID, claims.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusAccepted
	if result.Replayed {
		status = http.StatusOK
	}
	s.writeJSON(w, status, result)
}

// ListAudit returns the tenant's recent audit events for compliance replay.
func (s *Server) ListAudit(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	events, err := audit.List(s.db, claims.TenantID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

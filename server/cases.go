package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"deedgateway/apierrors"
	"deedgateway/auth"
	"deedgateway/cases"
	"deedgateway/models"
)

// CreateCase opens a case with its immutable party snapshot.
func (s *Server) CreateCase(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req struct {
		Title        string             `json:"title"`
		Municipality string             `json:"municipality"`
		PriceCents   int64              `json:"priceCents"`
		Rail         models.Rail        `json:"rail"`
		Parties      []cases.PartyInput `json:"parties"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apierrors.BadRequest(apierrors.CodeValidation, "invalid payload"))
		return
	}

	record, err := s.cases.Create(r.Context(), cases.CreateInput{
		TenantID:     claims.TenantID,
		Title:        req.Title,
		Municipality: req.Municipality,
		PriceCents:   req.PriceCents,
		Rail:         req.Rail,
		Parties:      req.Parties,
		ActorID:      claims.UserID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, record)
}

// ListCases returns the tenant's cases with optional filters.
func (s *Server) ListCases(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	filters := cases.Filters{
		Stage:        models.CaseStage(r.URL.Query().Get("stage")),
		Municipality: r.URL.Query().Get("municipality"),
	}
	if assignee := r.URL.Query().Get("assignee"); assignee != "" {
		id, err := uuid.Parse(assignee)
		if err != nil {
			s.writeError(w, r, apierrors.BadRequest(apierrors.CodeValidation, "invalid assignee id"))
			return
		}
		filters.AssignedToID = &id
	}

	records, err := s.cases.List(r.Context(), claims.TenantID, filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

// GetCase returns one case with parties and the escrow back-link.
func (s *Server) GetCase(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	caseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, apierrors.BadRequest(apierrors.CodeValidation, "invalid case id"))
		return
	}

	record, err := s.cases.Get(r.Context(), claims.TenantID, caseID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// UpdateCase applies field updates and an optional stage transition.
func (s *Server) UpdateCase(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	caseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, apierrors.BadRequest(apierrors.CodeValidation, "invalid case id"))
		return
	}

	var req struct {
		Title        *string           `json:"title"`
		Stage        *models.CaseStage `json:"stage"`
		AssignedToID *uuid.UUID        `json:"assignedToId"`
		SLAAt        *time.Time        `json:"slaAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apierrors.BadRequest(apierrors.CodeValidation, "invalid payload"))
		return
	}

	record, err := s.cases.Update(r.Context(), claims.TenantID, caseID, cases.UpdateInput{
		Title:        req.Title,
		Stage:        req.Stage,
		AssignedToID: req.AssignedToID,
		SLAAt:        req.SLAAt,
		ActorID:      claims.UserID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

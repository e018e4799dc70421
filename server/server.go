// Package server exposes the gateway HTTP API.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"deedgateway/auth"
	"deedgateway/cases"
	"deedgateway/escrow"
	"deedgateway/idempotency"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	DB       *gorm.DB
	Cases    *cases.Service
	Escrows  *escrow.Service
	Verifier *auth.Verifier
	Idem     idempotency.Reserver
	Logger   *slog.Logger
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	db      *gorm.DB
	cases   *cases.Service
	escrows *escrow.Service
	logger  *slog.Logger

	router http.Handler
}

// New constructs a configured HTTP router with authentication, idempotency,
// and observability support.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		db:      cfg.DB,
		cases:   cfg.Cases,
		escrows: cfg.Escrows,
		logger:  logger,
	}
	srv.router = srv.buildRouter(cfg)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(cfg Config) http.Handler {
	obs := newObservability("deedgateway")
	requireIdem := idempotency.Require(cfg.Idem, s.logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(obs.middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", obs.metricsHandler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(cfg.Verifier.Middleware)

		api.With(auth.RequireRole(auth.RoleAdmin, auth.RoleConveyancer), requireIdem).
			Post("/cases", s.CreateCase)
		api.Get("/cases", s.ListCases)
		api.Get("/cases/{id}", s.GetCase)
		api.With(auth.RequireRole(auth.RoleAdmin, auth.RoleConveyancer), requireIdem).
			Post("/cases/{id}", s.UpdateCase)

		api.With(auth.RequireRole(auth.RoleAdmin, auth.RoleEscrowManager), requireIdem).
			Post("/escrows", s.CreateEscrow)
		api.Get("/escrows", s.ListEscrows)
		api.Get("/escrows/{id}", s.GetEscrow)
		api.With(auth.RequireRole(auth.RoleAdmin, auth.RoleEscrowManager)).
			Post("/escrows/{id}/fund", s.FundEscrow)
		api.With(auth.RequireRole(auth.RoleAdmin, auth.RoleEscrowManager)).
			Post("/escrows/{id}/approvals/{approverId}", s.RecordApproval)
		api.With(auth.RequireRole(auth.RoleAdmin, auth.RoleEscrowManager)).
			Post("/escrows/{id}/conditions/{code}/satisfy", s.SatisfyCondition)
		api.With(auth.RequireRole(auth.RoleAdmin, auth.RoleEscrowManager), requireIdem).
			Post("/escrows/{id}/release", s.ReleaseEscrow)

		api.With(auth.RequireRole(auth.RoleAuditor, auth.RoleAdmin)).
			Get("/audit", s.ListAudit)
	})

	return r
}

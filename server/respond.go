package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"deedgateway/apierrors"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a typed error with its stable code. Ambiguous ledger
// outcomes and infrastructure failures are logged at elevated severity for
// operator attention; everything else is the caller's to fix.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apierrors.Error
	if !errors.As(err, &apiErr) {
		apiErr = apierrors.Infrastructure("internal error").WithCause(err)
	}
	switch apiErr.Code {
	case apierrors.CodeLedgerOutcomeUnknown, apierrors.CodeInfrastructure:
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"code", apiErr.Code,
			"error", err,
		)
	}
	s.writeJSON(w, apiErr.Status, apiErr)
}

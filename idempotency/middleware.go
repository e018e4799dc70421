package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"deedgateway/apierrors"
)

// Reserver is the reservation surface consumed by the middleware.
type Reserver interface {
	Reserve(ctx context.Context, token string) error
	Release(ctx context.Context, token string) error
}

// Require enforces an Idempotency-Key header on the wrapped handler. The
// token is reserved before the handler runs; a 4xx/5xx outcome releases the
// reservation so the client can retry with the same key. A failed release
// leaves the token held until its TTL expires, so it is logged for operators.
func Require(gate Reserver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("Idempotency-Key")
			if token == "" {
				writeError(w, apierrors.BadRequest(apierrors.CodeIdempotencyKeyRequired, "Provide Idempotency-Key header"))
				return
			}
			if err := gate.Reserve(r.Context(), token); err != nil {
				switch {
				case errors.Is(err, ErrReplay):
					writeError(w, apierrors.Conflict(apierrors.CodeIdempotentReplay, "Duplicate request"))
				default:
					writeError(w, apierrors.Infrastructure("idempotency store unavailable"))
				}
				return
			}

			recorder := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)

			if recorder.status >= http.StatusBadRequest {
				if err := gate.Release(r.Context(), token); err != nil {
					logger.Warn("idempotency reservation not released; token blocked until TTL expiry",
						"token", token,
						"error", err,
					)
				}
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func writeError(w http.ResponseWriter, apiErr *apierrors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(apiErr)
}

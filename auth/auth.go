// Package auth verifies bearer tokens and exposes the request identity to
// the gateway handlers. Tokens are HS256 JWTs carrying the acting user,
// their tenant, and a single role claim.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const contextKeyClaims contextKey = "auth_claims"

// Role represents an authorized persona within the gateway.
type Role string

// Supported roles.
const (
	RoleAdmin         Role = "admin"
	RoleEscrowManager Role = "escrow_manager"
	RoleConveyancer   Role = "conveyancer"
	RoleAuditor       Role = "auditor"
)

var allowedRoles = map[Role]struct{}{
	RoleAdmin:         {},
	RoleEscrowManager: {},
	RoleConveyancer:   {},
	RoleAuditor:       {},
}

// Claims is the verified identity attached to a request.
type Claims struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     Role
}

type tokenClaims struct {
	TenantID string `json:"tenantId"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// ErrNoIdentity is returned when the context holds no verified claims.
var ErrNoIdentity = errors.New("auth: no identity in context")

// Verifier validates bearer tokens against a shared HS256 secret.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a verifier for the supplied secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Middleware authenticates the request and stores the claims in its context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := v.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// Parse verifies the raw token and extracts gateway claims from it.
func (v *Verifier) Parse(raw string) (Claims, error) {
	var parsed tokenClaims
	token, err := jwt.ParseWithClaims(raw, &parsed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid {
		return Claims{}, errors.New("auth: token invalid")
	}
	userID, err := uuid.Parse(parsed.Subject)
	if err != nil {
		return Claims{}, fmt.Errorf("auth: invalid subject: %w", err)
	}
	tenantID, err := uuid.Parse(parsed.TenantID)
	if err != nil {
		return Claims{}, fmt.Errorf("auth: invalid tenant: %w", err)
	}
	role := Role(parsed.Role)
	if _, ok := allowedRoles[role]; !ok {
		return Claims{}, fmt.Errorf("auth: unknown role %q", parsed.Role)
	}
	return Claims{UserID: userID, TenantID: tenantID, Role: role}, nil
}

// WithClaims attaches claims to a context.
func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, contextKeyClaims, claims)
}

// FromContext retrieves the verified claims from the request context.
func FromContext(ctx context.Context) (Claims, error) {
	claims, ok := ctx.Value(contextKeyClaims).(Claims)
	if !ok {
		return Claims{}, ErrNoIdentity
	}
	return claims, nil
}

// RequireRole rejects requests whose identity does not hold one of the roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := FromContext(r.Context())
			if err != nil {
				http.Error(w, "missing identity", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Package apierrors defines the typed error surface shared by the gateway
// services. Every client-visible failure carries a stable code and the HTTP
// status it maps to; handlers unwrap with errors.As and render the code.
package apierrors

import (
	"fmt"
	"net/http"
)

// Stable error codes.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeCaseNotFound           = "CASE_NOT_FOUND"
	CodeEscrowNotFound         = "ESCROW_NOT_FOUND"
	CodeNotFound               = "NOT_FOUND"
	CodeInvalidStageTransition = "INVALID_STAGE_TRANSITION"
	CodeInvalidEscrowState     = "INVALID_ESCROW_STATE"
	CodeEscrowExists           = "ESCROW_EXISTS"
	CodeEscrowNotFunded        = "ESCROW_NOT_FUNDED"
	CodeApprovalsIncomplete    = "APPROVALS_INCOMPLETE"
	CodeContractIDMissing      = "CONTRACT_ID_MISSING"
	CodeIdempotencyKeyRequired = "IDEMPOTENCY_KEY_REQUIRED"
	CodeIdempotentReplay       = "IDEMPOTENT_REPLAY"
	CodeLedgerRejected         = "LEDGER_REJECTED"
	CodeLedgerOutcomeUnknown   = "LEDGER_OUTCOME_UNKNOWN"
	CodeInfrastructure         = "INFRASTRUCTURE_ERROR"
)

// Error is a client-visible failure with a stable code.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is chains.
func (e *Error) Unwrap() error { return e.cause }

// WithCause attaches an underlying error and returns the receiver.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// BadRequest builds a 400 error with the supplied code.
func BadRequest(code, message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: code, Message: message}
}

// NotFound builds a 404 error.
func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// Conflict builds a 409 error with the supplied code.
func Conflict(code, message string) *Error {
	return &Error{Status: http.StatusConflict, Code: code, Message: message}
}

// LedgerRejected reports a confirmed refusal from the external ledger. The
// escrow remains FUNDED and the caller may correct and retry.
func LedgerRejected(reason string) *Error {
	return &Error{Status: http.StatusBadGateway, Code: CodeLedgerRejected, Message: reason}
}

// LedgerOutcomeUnknown reports an ambiguous external result. Not retryable
// until an operator reconciles the transaction out of band.
func LedgerOutcomeUnknown(message string) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeLedgerOutcomeUnknown, Message: message}
}

// Infrastructure reports an unreachable collaborator; callers retry with backoff.
func Infrastructure(message string) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Code: CodeInfrastructure, Message: message}
}

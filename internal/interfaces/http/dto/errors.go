package dto

import "net/http"

// Domain error kinds grouped by the HTTP status they map to. The core
// emits stable kind codes only; this table is the single place where
// kinds become status codes.

// Transport-level error codes emitted by the HTTP layer itself.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeInvalidJSON   = "INVALID_JSON"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMIT_EXCEEDED"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeTokenExpired  = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid  = "TOKEN_INVALID"
	ErrCodeTokenRevoked  = "TOKEN_REVOKED"
	ErrCodePayloadLimit  = "REQUEST_TOO_LARGE"
	ErrCodeNotFoundRoute = "ROUTE_NOT_FOUND"

	// Shared with the domain layer, re-exported for handler convenience
	ErrCodeNotFound  = "NOT_FOUND"
	ErrCodeForbidden = "INSUFFICIENT_PERMISSIONS"
)

// errorCodeStatus maps domain error kinds to HTTP status codes.
// Kinds not listed here fall through to the prefix rules in
// GetHTTPStatus, and unknown kinds answer 500 so a missing mapping
// never silently succeeds.
var errorCodeStatus = map[string]int{
	// Authentication
	"UNAUTHORIZED":        http.StatusUnauthorized,
	"INVALID_CREDENTIALS": http.StatusUnauthorized,
	"TOKEN_EXPIRED":       http.StatusUnauthorized,
	"TOKEN_INVALID":       http.StatusUnauthorized,
	"TOKEN_REUSED":        http.StatusUnauthorized,
	"TOKEN_REVOKED":       http.StatusUnauthorized,
	"SESSION_SUSPECT":     http.StatusUnauthorized,
	"TWO_FA_INVALID":      http.StatusUnauthorized,
	"ACCOUNT_LOCKED":      http.StatusUnauthorized,

	// Authorization
	"INSUFFICIENT_PERMISSIONS": http.StatusForbidden,
	"CROSS_TENANT_FORBIDDEN":   http.StatusForbidden,
	"KYC_REQUIRED":             http.StatusForbidden,
	"LEDGER_QUARANTINED":       http.StatusForbidden,
	"TENANT_INACTIVE":          http.StatusForbidden,

	// Missing resources
	"NOT_FOUND":        http.StatusNotFound,
	"USER_NOT_FOUND":   http.StatusNotFound,
	"TENANT_NOT_FOUND": http.StatusNotFound,

	// Conflicts
	"ALREADY_EXISTS":          http.StatusConflict,
	"CODE_EXISTS":             http.StatusConflict,
	"USERNAME_EXISTS":         http.StatusConflict,
	"EMAIL_EXISTS":            http.StatusConflict,
	"CONCURRENT_MODIFICATION": http.StatusConflict,
	"CONTENTION":              http.StatusConflict,
	"IDEMPOTENCY_CONFLICT":    http.StatusConflict,

	// Business rule refusals
	"STATE_CONFLICT":        http.StatusUnprocessableEntity,
	"ACCOUNT_FROZEN":        http.StatusUnprocessableEntity,
	"ACCOUNT_CLOSED":        http.StatusUnprocessableEntity,
	"ACCOUNT_INACTIVE":      http.StatusUnprocessableEntity,
	"ACCOUNT_NOT_ACTIVE":    http.StatusUnprocessableEntity,
	"ACCOUNT_PENDING":       http.StatusUnprocessableEntity,
	"ACCOUNT_DEACTIVATED":   http.StatusUnprocessableEntity,
	"USER_DEACTIVATED":      http.StatusForbidden,
	"KYC_ALREADY_APPROVED":  http.StatusUnprocessableEntity,
	"KYC_ALREADY_REJECTED":  http.StatusUnprocessableEntity,
	"ROLE_UNCHANGED":        http.StatusUnprocessableEntity,
	"ALREADY_RECONCILED":    http.StatusUnprocessableEntity,
	"UNSUPPORTED_CURRENCY":  http.StatusBadRequest,
	"REASON_REQUIRED":       http.StatusBadRequest,
	"COUNTERPARTY_REQUIRED": http.StatusBadRequest,
	"INSUFFICIENT_FUNDS":    http.StatusUnprocessableEntity,
	"RESERVATION_MISSING":   http.StatusUnprocessableEntity,
	"UNBALANCED_ENTRY":      http.StatusUnprocessableEntity,
	"CURRENCY_MISMATCH":     http.StatusUnprocessableEntity,
	"LIMIT_EXCEEDED":        http.StatusUnprocessableEntity,
	"MAX_BALANCE_EXCEEDED":  http.StatusUnprocessableEntity,
	"BALANCE_NOT_ZERO":      http.StatusUnprocessableEntity,
	"RATE_STALE":            http.StatusUnprocessableEntity,
	"RATE_UNAVAILABLE":      http.StatusUnprocessableEntity,
	"RATE_OUT_OF_RANGE":     http.StatusUnprocessableEntity,
	"DEBIT_NOT_ALLOWED":     http.StatusUnprocessableEntity,
	"CREDIT_NOT_ALLOWED":    http.StatusUnprocessableEntity,

	// Tenant quotas
	"TENANT_LIMIT_EXCEEDED": http.StatusUnprocessableEntity,
	"USER_LIMIT_REACHED":    http.StatusUnprocessableEntity,
	"BRANCH_LIMIT_REACHED":  http.StatusUnprocessableEntity,

	// Ledger integrity is a server-side fault, not a client mistake
	"INTEGRITY_VIOLATION": http.StatusInternalServerError,
	"INTERNAL_ERROR":      http.StatusInternalServerError,
	"PASSWORD_HASH_ERROR": http.StatusInternalServerError,

	// Transport-level
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,
	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeRateLimited:  http.StatusTooManyRequests,
	ErrCodePayloadLimit: http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status for a domain error kind.
// INVALID_* kinds not individually listed are client input faults;
// ALREADY_* and NOT_* kinds are state conflicts. Anything else is a
// 500 so an unmapped kind shows up loudly.
func GetHTTPStatus(code string) int {
	if status, ok := errorCodeStatus[code]; ok {
		return status
	}
	if len(code) > 8 && code[:8] == "INVALID_" {
		return http.StatusBadRequest
	}
	if len(code) > 8 && code[:8] == "ALREADY_" {
		return http.StatusUnprocessableEntity
	}
	if len(code) > 4 && code[:4] == "NOT_" {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

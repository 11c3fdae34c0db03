package shared

// DomainError is a domain-level error with a stable kind code.
// The core emits kinds only; transport layers map them to status codes.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENT_MODIFICATION", "Resource was modified by another process")
	ErrContention          = NewDomainError("CONTENTION", "Operation failed after repeated concurrent modification")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrForbidden           = NewDomainError("INSUFFICIENT_PERMISSIONS", "Missing required capability")
	ErrCrossTenant         = NewDomainError("CROSS_TENANT_FORBIDDEN", "Operation targets another tenant")
	ErrTenantInactive      = NewDomainError("TENANT_INACTIVE", "Tenant is not active")
	ErrTenantLimit         = NewDomainError("TENANT_LIMIT_EXCEEDED", "Tenant limit exceeded")
	ErrInvalidState        = NewDomainError("STATE_CONFLICT", "Operation not allowed in current state")
	ErrInsufficientFunds   = NewDomainError("INSUFFICIENT_FUNDS", "Insufficient available balance")
	ErrIntegrityViolation  = NewDomainError("INTEGRITY_VIOLATION", "Ledger invariant violated")
)

// IsCode reports whether err is a DomainError carrying the given kind code.
func IsCode(err error, code string) bool {
	de, ok := err.(*DomainError)
	return ok && de.Code == code
}

package persistence

import (
	"strings"

	"github.com/kambio/backend/internal/domain/shared"
)

// ValidateSortOrder normalizes a requested sort direction. Anything
// that is not ASC, in any casing, sorts descending.
func ValidateSortOrder(orderDir string) string {
	if strings.EqualFold(strings.TrimSpace(orderDir), "ASC") {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField checks a requested sort column against a
// whitelist. Unknown or empty input falls back to defaultField; the
// result is safe to splice into an ORDER BY clause.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	if field := strings.TrimSpace(sortField); allowedFields[field] {
		return field
	}
	return defaultField
}

// SortClause builds the ORDER BY fragment for a list filter, with both
// column and direction validated.
func SortClause(filter shared.Filter, allowedFields map[string]bool, defaultField string) string {
	return ValidateSortField(filter.OrderBy, allowedFields, defaultField) + " " + ValidateSortOrder(filter.OrderDir)
}

// CommonSortFields contains fields common to most entities
var CommonSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// UserSortFields contains allowed sort fields for users
var UserSortFields = map[string]bool{
	"id":            true,
	"created_at":    true,
	"updated_at":    true,
	"username":      true,
	"email":         true,
	"display_name":  true,
	"role":          true,
	"status":        true,
	"kyc_status":    true,
	"last_login_at": true,
}

// TenantSortFields contains allowed sort fields for tenants
var TenantSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"code":       true,
	"name":       true,
	"status":     true,
	"plan":       true,
	"expires_at": true,
}

// AccountSortFields contains allowed sort fields for ledger accounts
var AccountSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"updated_at":     true,
	"account_number": true,
	"currency":       true,
	"type":           true,
	"status":         true,
	"balance":        true,
}

// TransactionSortFields contains allowed sort fields for money transactions
var TransactionSortFields = map[string]bool{
	"id":          true,
	"created_at":  true,
	"updated_at":  true,
	"reference":   true,
	"type":        true,
	"status":      true,
	"from_amount": true,
	"settled_at":  true,
}

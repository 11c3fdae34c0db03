package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/identity"
)

// CreateTenantRequest represents a request to provision a tenant
type CreateTenantRequest struct {
	Code         string `json:"code" binding:"required,min=2,max=50"`
	Name         string `json:"name" binding:"required,min=1,max=200"`
	BaseCurrency string `json:"base_currency" binding:"required,len=3"`
	Plan         string `json:"plan" binding:"omitempty,oneof=free basic pro enterprise"`
	ContactName  string `json:"contact_name" binding:"max=100"`
	ContactPhone string `json:"contact_phone" binding:"max=50"`
	ContactEmail string `json:"contact_email" binding:"omitempty,email,max=200"`
	Notes        string `json:"notes" binding:"max=2000"`
	TrialDays    int    `json:"trial_days" binding:"omitempty,min=1,max=365"`
}

// CreateBranchRequest represents a request to open a branch under a tenant
type CreateBranchRequest struct {
	Code string `json:"code" binding:"required,min=2,max=50"`
	Name string `json:"name" binding:"required,min=1,max=200"`
}

// UpdateTenantRequest represents a request to update tenant contact data
type UpdateTenantRequest struct {
	Name         *string `json:"name" binding:"omitempty,min=1,max=200"`
	ContactName  *string `json:"contact_name" binding:"omitempty,max=100"`
	ContactPhone *string `json:"contact_phone" binding:"omitempty,max=50"`
	ContactEmail *string `json:"contact_email" binding:"omitempty,email,max=200"`
	Notes        *string `json:"notes" binding:"omitempty,max=2000"`
}

// SetPlanRequest represents a request to change the subscription plan
type SetPlanRequest struct {
	Plan string `json:"plan" binding:"required,oneof=free basic pro enterprise"`
}

// UpdateLimitsRequest represents a request to change tenant limits
type UpdateLimitsRequest struct {
	MaxUsers               int             `json:"max_users" binding:"required,min=1"`
	MaxBranches            int             `json:"max_branches" binding:"required,min=0"`
	DailyTransactionCap    decimal.Decimal `json:"daily_transaction_cap" binding:"required"`
	SingleTransactionLimit decimal.Decimal `json:"single_transaction_limit" binding:"required"`
}

// QuarantineRequest represents a request to quarantine a tenant ledger
type QuarantineRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

// TenantLimitsResponse represents tenant limits in API responses
type TenantLimitsResponse struct {
	MaxUsers               int             `json:"max_users"`
	MaxBranches            int             `json:"max_branches"`
	DailyTransactionCap    decimal.Decimal `json:"daily_transaction_cap"`
	SingleTransactionLimit decimal.Decimal `json:"single_transaction_limit"`
}

// TenantResponse represents a tenant in API responses
type TenantResponse struct {
	ID                uuid.UUID            `json:"id"`
	Code              string               `json:"code"`
	Name              string               `json:"name"`
	Status            string               `json:"status"`
	Plan              string               `json:"plan"`
	BaseCurrency      string               `json:"base_currency"`
	ParentTenantID    *uuid.UUID           `json:"parent_tenant_id,omitempty"`
	ContactName       string               `json:"contact_name,omitempty"`
	ContactPhone      string               `json:"contact_phone,omitempty"`
	ContactEmail      string               `json:"contact_email,omitempty"`
	ExpiresAt         *time.Time           `json:"expires_at,omitempty"`
	TrialEndsAt       *time.Time           `json:"trial_ends_at,omitempty"`
	Limits            TenantLimitsResponse `json:"limits"`
	LedgerQuarantined bool                 `json:"ledger_quarantined"`
	QuarantinedAt     *time.Time           `json:"quarantined_at,omitempty"`
	QuarantineReason  string               `json:"quarantine_reason,omitempty"`
	Notes             string               `json:"notes,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
	Version           int                  `json:"version"`
}

func toTenantResponse(t *identity.Tenant) TenantResponse {
	return TenantResponse{
		ID:             t.ID,
		Code:           t.Code,
		Name:           t.Name,
		Status:         string(t.Status),
		Plan:           string(t.Plan),
		BaseCurrency:   t.BaseCurrency,
		ParentTenantID: t.ParentTenantID,
		ContactName:    t.ContactName,
		ContactPhone:   t.ContactPhone,
		ContactEmail:   t.ContactEmail,
		ExpiresAt:      t.ExpiresAt,
		TrialEndsAt:    t.TrialEndsAt,
		Limits: TenantLimitsResponse{
			MaxUsers:               t.Limits.MaxUsers,
			MaxBranches:            t.Limits.MaxBranches,
			DailyTransactionCap:    t.Limits.DailyTransactionCap,
			SingleTransactionLimit: t.Limits.SingleTransactionLimit,
		},
		LedgerQuarantined: t.LedgerQuarantined,
		QuarantinedAt:     t.QuarantinedAt,
		QuarantineReason:  t.QuarantineReason,
		Notes:             t.Notes,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		Version:           t.Version,
	}
}

func toTenantResponses(tenants []identity.Tenant) []TenantResponse {
	out := make([]TenantResponse, 0, len(tenants))
	for i := range tenants {
		out = append(out, toTenantResponse(&tenants[i]))
	}
	return out
}

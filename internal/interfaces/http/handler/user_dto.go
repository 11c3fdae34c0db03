package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/kambio/backend/internal/domain/identity"
)

// CreateUserRequest represents a request to create a user
type CreateUserRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=50"`
	Password    string `json:"password" binding:"required,min=8,max=128"`
	Role        string `json:"role" binding:"required,oneof=super_admin tenant_admin manager staff customer"`
	Email       string `json:"email" binding:"omitempty,email,max=200"`
	Phone       string `json:"phone" binding:"omitempty,max=50"`
	DisplayName string `json:"display_name" binding:"max=100"`
	Active      bool   `json:"active"`
}

// UpdateUserRequest represents a request to update a user's profile
type UpdateUserRequest struct {
	Email       *string `json:"email" binding:"omitempty,email,max=200"`
	Phone       *string `json:"phone" binding:"omitempty,max=50"`
	DisplayName *string `json:"display_name" binding:"omitempty,max=100"`
	Notes       *string `json:"notes" binding:"omitempty,max=2000"`
}

// ChangeRoleRequest represents a request to change a user's role
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=super_admin tenant_admin manager staff customer"`
}

// ResetPasswordRequest represents an administrative password reset
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required,min=8,max=128"`
}

// ReviewKYCRequest represents a KYC review verdict
type ReviewKYCRequest struct {
	Verdict string `json:"verdict" binding:"required,oneof=approved rejected"`
}

// ListUsersRequest represents user list query parameters
type ListUsersRequest struct {
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Search    string `form:"search"`
	Status    string `form:"status" binding:"omitempty,oneof=pending active locked deactivated"`
	Role      string `form:"role" binding:"omitempty,oneof=super_admin tenant_admin manager staff customer"`
	KYCStatus string `form:"kyc_status" binding:"omitempty,oneof=pending approved rejected"`
	OrderBy   string `form:"order_by"`
	OrderDir  string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         uuid.UUID  `json:"tenant_id"`
	Username         string     `json:"username"`
	DisplayName      string     `json:"display_name,omitempty"`
	Email            string     `json:"email,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	Role             string     `json:"role"`
	Status           string     `json:"status"`
	KYCStatus        string     `json:"kyc_status"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	LockedUntil      *time.Time `json:"locked_until,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Version          int        `json:"version"`
}

func toUserResponse(u *identity.User) UserResponse {
	return UserResponse{
		ID:               u.ID,
		TenantID:         u.TenantID,
		Username:         u.Username,
		DisplayName:      u.DisplayName,
		Email:            u.Email,
		Phone:            u.Phone,
		Role:             string(u.Role),
		Status:           string(u.Status),
		KYCStatus:        string(u.KYCStatus),
		TwoFactorEnabled: u.TwoFactor == identity.TwoFactorEnabled,
		LastLoginAt:      u.LastLoginAt,
		LockedUntil:      u.LockedUntil,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
		Version:          u.Version,
	}
}

func toUserResponses(users []*identity.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out
}

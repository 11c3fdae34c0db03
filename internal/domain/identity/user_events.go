package identity

import (
	"time"

	"github.com/kambio/backend/internal/domain/shared"
)

const AggregateTypeUser = "User"

const (
	EventTypeUserCreated          = "UserCreated"
	EventTypeUserPasswordChanged  = "UserPasswordChanged"
	EventTypeUserRoleChanged      = "UserRoleChanged"
	EventTypeUserStatusChanged    = "UserStatusChanged"
	EventTypeUserKYCChanged       = "UserKYCChanged"
	EventTypeUserTwoFactorChanged = "UserTwoFactorChanged"
)

func userEvent(eventType string, u *User) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, AggregateTypeUser, u.ID, u.TenantID)
}

// UserCreatedEvent fires when a user account is provisioned
type UserCreatedEvent struct {
	shared.BaseDomainEvent
	Username string     `json:"username"`
	Role     UserRole   `json:"role"`
	Status   UserStatus `json:"status"`
}

func NewUserCreatedEvent(user *User) *UserCreatedEvent {
	return &UserCreatedEvent{
		BaseDomainEvent: userEvent(EventTypeUserCreated, user),
		Username:        user.Username,
		Role:            user.Role,
		Status:          user.Status,
	}
}

// UserPasswordChangedEvent fires on password change or reset
type UserPasswordChangedEvent struct {
	shared.BaseDomainEvent
	Username  string    `json:"username"`
	ChangedAt time.Time `json:"changed_at"`
}

func NewUserPasswordChangedEvent(user *User) *UserPasswordChangedEvent {
	changedAt := time.Now()
	if user.PasswordChangedAt != nil {
		changedAt = *user.PasswordChangedAt
	}
	return &UserPasswordChangedEvent{
		BaseDomainEvent: userEvent(EventTypeUserPasswordChanged, user),
		Username:        user.Username,
		ChangedAt:       changedAt,
	}
}

// UserRoleChangedEvent fires when a user's role moves
type UserRoleChangedEvent struct {
	shared.BaseDomainEvent
	Username string   `json:"username"`
	OldRole  UserRole `json:"old_role"`
	NewRole  UserRole `json:"new_role"`
}

func NewUserRoleChangedEvent(user *User, oldRole, newRole UserRole) *UserRoleChangedEvent {
	return &UserRoleChangedEvent{
		BaseDomainEvent: userEvent(EventTypeUserRoleChanged, user),
		Username:        user.Username,
		OldRole:         oldRole,
		NewRole:         newRole,
	}
}

// UserStatusChangedEvent fires on activation, deactivation and lockout
type UserStatusChangedEvent struct {
	shared.BaseDomainEvent
	Username  string     `json:"username"`
	OldStatus UserStatus `json:"old_status"`
	NewStatus UserStatus `json:"new_status"`
}

func NewUserStatusChangedEvent(user *User, oldStatus, newStatus UserStatus) *UserStatusChangedEvent {
	return &UserStatusChangedEvent{
		BaseDomainEvent: userEvent(EventTypeUserStatusChanged, user),
		Username:        user.Username,
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
	}
}

// UserKYCChangedEvent fires when a reviewer records a KYC verdict
type UserKYCChangedEvent struct {
	shared.BaseDomainEvent
	Username string    `json:"username"`
	Verdict  KYCStatus `json:"verdict"`
}

func NewUserKYCChangedEvent(user *User, verdict KYCStatus) *UserKYCChangedEvent {
	return &UserKYCChangedEvent{
		BaseDomainEvent: userEvent(EventTypeUserKYCChanged, user),
		Username:        user.Username,
		Verdict:         verdict,
	}
}

// UserTwoFactorChangedEvent fires when the second factor is enabled or
// disabled
type UserTwoFactorChangedEvent struct {
	shared.BaseDomainEvent
	Username string `json:"username"`
	Enabled  bool   `json:"enabled"`
}

func NewUserTwoFactorChangedEvent(user *User, enabled bool) *UserTwoFactorChangedEvent {
	return &UserTwoFactorChangedEvent{
		BaseDomainEvent: userEvent(EventTypeUserTwoFactorChanged, user),
		Username:        user.Username,
		Enabled:         enabled,
	}
}

package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/shared"
	"github.com/kambio/backend/internal/domain/shared/valueobject"
)

// TenantStatus represents the status of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusInactive  TenantStatus = "inactive"
	TenantStatusSuspended TenantStatus = "suspended" // Suspended due to compliance/payment issues
	TenantStatusTrial     TenantStatus = "trial"     // Trial period
)

// TenantPlan represents the subscription plan of a tenant
type TenantPlan string

const (
	TenantPlanFree       TenantPlan = "free"
	TenantPlanBasic      TenantPlan = "basic"
	TenantPlanPro        TenantPlan = "pro"
	TenantPlanEnterprise TenantPlan = "enterprise"
)

// TenantLimits holds the operational limits of a tenant
type TenantLimits struct {
	MaxUsers               int             `json:"max_users"`                // Maximum number of users allowed
	MaxBranches            int             `json:"max_branches"`             // Maximum number of branch offices
	DailyTransactionCap    decimal.Decimal `json:"daily_transaction_cap"`    // Per-user rolling 24h volume cap, in base currency
	SingleTransactionLimit decimal.Decimal `json:"single_transaction_limit"` // Maximum single transaction amount, in base currency
}

// planLimits maps each subscription plan to the limits it grants.
var planLimits = map[TenantPlan]TenantLimits{
	TenantPlanFree: {
		MaxUsers:               5,
		MaxBranches:            1,
		DailyTransactionCap:    decimal.NewFromInt(10000),
		SingleTransactionLimit: decimal.NewFromInt(5000),
	},
	TenantPlanBasic: {
		MaxUsers:               10,
		MaxBranches:            3,
		DailyTransactionCap:    decimal.NewFromInt(50000),
		SingleTransactionLimit: decimal.NewFromInt(20000),
	},
	TenantPlanPro: {
		MaxUsers:               50,
		MaxBranches:            20,
		DailyTransactionCap:    decimal.NewFromInt(500000),
		SingleTransactionLimit: decimal.NewFromInt(100000),
	},
	TenantPlanEnterprise: {
		MaxUsers:               9999,
		MaxBranches:            9999,
		DailyTransactionCap:    decimal.NewFromInt(10000000),
		SingleTransactionLimit: decimal.NewFromInt(1000000),
	},
}

// DefaultTenantLimits returns the limits assigned to a new tenant
func DefaultTenantLimits() TenantLimits {
	return planLimits[TenantPlanFree]
}

// Tenant represents an exchange business in the multi-tenant platform.
// It is the aggregate root for tenant-related operations.
type Tenant struct {
	shared.BaseAggregateRoot
	Code           string       `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name           string       `gorm:"type:varchar(200);not null"`
	Status         TenantStatus `gorm:"type:varchar(20);not null;default:'active'"`
	Plan           TenantPlan   `gorm:"type:varchar(20);not null;default:'free'"`
	BaseCurrency   string       `gorm:"type:varchar(10);not null;default:'USD'"`
	ParentTenantID *uuid.UUID   `gorm:"type:uuid;index"` // Hierarchical link for branch networks
	ContactName    string       `gorm:"type:varchar(100)"`
	ContactPhone   string       `gorm:"type:varchar(50)"`
	ContactEmail   string       `gorm:"type:varchar(200)"`
	ExpiresAt      *time.Time   `gorm:"index"` // Subscription expiry date
	TrialEndsAt    *time.Time   // Trial period end date
	Limits         TenantLimits `gorm:"embedded;embeddedPrefix:limits_"`
	// LedgerQuarantined marks the tenant's ledger read-only after a
	// detected integrity violation, pending operator review.
	LedgerQuarantined bool `gorm:"not null;default:false"`
	QuarantinedAt     *time.Time
	QuarantineReason  string `gorm:"type:text"`
	Notes             string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (Tenant) TableName() string {
	return "tenants"
}

// touch stamps the aggregate as modified.
func (t *Tenant) touch() {
	t.UpdatedAt = time.Now()
	t.IncrementVersion()
}

// NewTenant creates a new tenant with required fields
func NewTenant(code, name, baseCurrency string) (*Tenant, error) {
	if err := validateTenantCode(code); err != nil {
		return nil, err
	}
	if err := validateTenantName(name); err != nil {
		return nil, err
	}
	if !valueobject.IsSupportedCurrency(baseCurrency) {
		return nil, shared.NewDomainError("UNSUPPORTED_CURRENCY", "Base currency is not supported")
	}

	tenant := &Tenant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              strings.ToUpper(code),
		Name:              name,
		Status:            TenantStatusActive,
		Plan:              TenantPlanFree,
		BaseCurrency:      strings.ToUpper(baseCurrency),
		Limits:            DefaultTenantLimits(),
	}
	tenant.AddDomainEvent(NewTenantCreatedEvent(tenant))
	return tenant, nil
}

// NewTrialTenant creates a new tenant in trial status
func NewTrialTenant(code, name, baseCurrency string, trialDays int) (*Tenant, error) {
	if trialDays <= 0 {
		return nil, shared.NewDomainError("INVALID_TRIAL_DAYS", "Trial days must be positive")
	}

	tenant, err := NewTenant(code, name, baseCurrency)
	if err != nil {
		return nil, err
	}

	tenant.Status = TenantStatusTrial
	trialEnds := time.Now().AddDate(0, 0, trialDays)
	tenant.TrialEndsAt = &trialEnds
	return tenant, nil
}

// NewBranchTenant creates a tenant linked under a parent tenant.
// Branches inherit the parent's base currency.
func NewBranchTenant(code, name string, parent *Tenant) (*Tenant, error) {
	if parent == nil {
		return nil, shared.NewDomainError("INVALID_PARENT", "Parent tenant is required")
	}
	tenant, err := NewTenant(code, name, parent.BaseCurrency)
	if err != nil {
		return nil, err
	}
	parentID := parent.ID
	tenant.ParentTenantID = &parentID
	return tenant, nil
}

// Update updates the tenant's basic information
func (t *Tenant) Update(name string) error {
	if err := validateTenantName(name); err != nil {
		return err
	}

	t.Name = name
	t.touch()
	t.AddDomainEvent(NewTenantUpdatedEvent(t))
	return nil
}

// SetContact sets the tenant's contact information
func (t *Tenant) SetContact(contactName, phone, email string) error {
	if contactName != "" && len(contactName) > 100 {
		return shared.NewDomainError("INVALID_CONTACT_NAME", "Contact name cannot exceed 100 characters")
	}
	if phone != "" && len(phone) > 50 {
		return shared.NewDomainError("INVALID_PHONE", "Phone cannot exceed 50 characters")
	}
	if email != "" && len(email) > 200 {
		return shared.NewDomainError("INVALID_EMAIL", "Email cannot exceed 200 characters")
	}

	t.ContactName = contactName
	t.ContactPhone = phone
	t.ContactEmail = email
	t.touch()
	return nil
}

// SetPlan sets the tenant's subscription plan and applies the limits the
// plan grants. Upgrading a trial tenant to a paid plan ends the trial.
func (t *Tenant) SetPlan(plan TenantPlan) error {
	limits, ok := planLimits[plan]
	if !ok {
		return shared.NewDomainError("INVALID_PLAN", "Invalid tenant plan")
	}

	oldPlan := t.Plan
	t.Plan = plan
	t.Limits = limits
	if t.Status == TenantStatusTrial && plan != TenantPlanFree {
		t.Status = TenantStatusActive
		t.TrialEndsAt = nil
	}
	t.touch()

	t.AddDomainEvent(NewTenantPlanChangedEvent(t, oldPlan, plan))
	return nil
}

// SetExpiration sets the subscription expiration date
func (t *Tenant) SetExpiration(expiresAt time.Time) {
	t.ExpiresAt = &expiresAt
	t.touch()
}

// ClearExpiration clears the expiration date (e.g., for lifetime plans)
func (t *Tenant) ClearExpiration() {
	t.ExpiresAt = nil
	t.touch()
}

// UpdateLimits replaces the tenant's operational limits
func (t *Tenant) UpdateLimits(limits TenantLimits) error {
	if limits.MaxUsers < 0 {
		return shared.NewDomainError("INVALID_MAX_USERS", "Max users cannot be negative")
	}
	if limits.MaxBranches < 0 {
		return shared.NewDomainError("INVALID_MAX_BRANCHES", "Max branches cannot be negative")
	}
	if limits.DailyTransactionCap.IsNegative() {
		return shared.NewDomainError("INVALID_DAILY_CAP", "Daily transaction cap cannot be negative")
	}
	if limits.SingleTransactionLimit.IsNegative() {
		return shared.NewDomainError("INVALID_TXN_LIMIT", "Single transaction limit cannot be negative")
	}

	t.Limits = limits
	t.touch()
	return nil
}

// SetNotes sets the tenant's notes
func (t *Tenant) SetNotes(notes string) {
	t.Notes = notes
	t.touch()
}

// transition moves the tenant to a new status, rejecting no-op changes.
func (t *Tenant) transition(to TenantStatus, rejectCode, rejectMsg string) error {
	if t.Status == to {
		return shared.NewDomainError(rejectCode, rejectMsg)
	}

	from := t.Status
	t.Status = to
	t.touch()

	t.AddDomainEvent(NewTenantStatusChangedEvent(t, from, to))
	return nil
}

// Activate activates the tenant
func (t *Tenant) Activate() error {
	return t.transition(TenantStatusActive, "ALREADY_ACTIVE", "Tenant is already active")
}

// Deactivate deactivates the tenant
func (t *Tenant) Deactivate() error {
	return t.transition(TenantStatusInactive, "ALREADY_INACTIVE", "Tenant is already inactive")
}

// Suspend suspends the tenant (e.g., due to compliance issues)
func (t *Tenant) Suspend() error {
	return t.transition(TenantStatusSuspended, "ALREADY_SUSPENDED", "Tenant is already suspended")
}

// QuarantineLedger marks the tenant's ledger read-only after an
// integrity violation. Posting is refused until the quarantine is lifted
// by an operator.
func (t *Tenant) QuarantineLedger(reason string) error {
	if t.LedgerQuarantined {
		return shared.NewDomainError("ALREADY_QUARANTINED", "Ledger is already quarantined")
	}

	now := time.Now()
	t.LedgerQuarantined = true
	t.QuarantinedAt = &now
	t.QuarantineReason = reason
	t.touch()

	t.AddDomainEvent(NewTenantLedgerQuarantinedEvent(t, reason))
	return nil
}

// LiftQuarantine clears the ledger quarantine after operator review
func (t *Tenant) LiftQuarantine() error {
	if !t.LedgerQuarantined {
		return shared.NewDomainError("NOT_QUARANTINED", "Ledger is not quarantined")
	}

	t.LedgerQuarantined = false
	t.QuarantinedAt = nil
	t.QuarantineReason = ""
	t.touch()
	return nil
}

// ConvertFromTrial converts a trial tenant to a paid tenant
func (t *Tenant) ConvertFromTrial(plan TenantPlan) error {
	if t.Status != TenantStatusTrial {
		return shared.NewDomainError("NOT_TRIAL", "Tenant is not in trial status")
	}
	if plan == TenantPlanFree {
		return shared.NewDomainError("INVALID_PLAN", "Cannot convert to free plan from trial")
	}
	return t.SetPlan(plan)
}

// IsActive returns true if the tenant is active
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// IsSuspended returns true if the tenant is suspended
func (t *Tenant) IsSuspended() bool {
	return t.Status == TenantStatusSuspended
}

// IsTrial returns true if the tenant is in trial period
func (t *Tenant) IsTrial() bool {
	return t.Status == TenantStatusTrial
}

// IsTrialExpired returns true if the trial period has ended
func (t *Tenant) IsTrialExpired() bool {
	return t.Status == TenantStatusTrial && t.TrialEndsAt != nil && time.Now().After(*t.TrialEndsAt)
}

// IsSubscriptionExpired returns true if the subscription has expired
func (t *Tenant) IsSubscriptionExpired() bool {
	return t.ExpiresAt != nil && time.Now().After(*t.ExpiresAt)
}

// CanTransact reports whether the tenant may initiate money movements.
// Trial tenants may transact until the trial expires.
func (t *Tenant) CanTransact() bool {
	switch t.Status {
	case TenantStatusActive:
		return !t.IsSubscriptionExpired()
	case TenantStatusTrial:
		return !t.IsTrialExpired()
	default:
		return false
	}
}

// CanAddUser returns true if the tenant can add more users
func (t *Tenant) CanAddUser(currentUserCount int) bool {
	return currentUserCount < t.Limits.MaxUsers
}

// CanAddBranch returns true if the tenant can add more branches
func (t *Tenant) CanAddBranch(currentBranchCount int) bool {
	return currentBranchCount < t.Limits.MaxBranches
}

func validateTenantCode(code string) error {
	if code == "" {
		return shared.NewDomainError("INVALID_CODE", "Tenant code cannot be empty")
	}
	if len(code) > 50 {
		return shared.NewDomainError("INVALID_CODE", "Tenant code cannot exceed 50 characters")
	}
	for _, r := range code {
		if !((r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-') {
			return shared.NewDomainError("INVALID_CODE", "Tenant code can only contain letters, numbers, underscores, and hyphens")
		}
	}
	return nil
}

func validateTenantName(name string) error {
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Tenant name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewDomainError("INVALID_NAME", "Tenant name cannot exceed 200 characters")
	}
	return nil
}

package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/kambio/backend/internal/domain/shared"
)

// RiskLevel classifies how sensitive an audited action is
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Action names for audited operations
const (
	ActionLoginSuccess        = "auth.login.success"
	ActionLoginFailure        = "auth.login.failure"
	ActionLoginLocked         = "auth.login.locked"
	ActionTokenRefreshed      = "auth.token.refreshed"
	ActionTokenReused         = "auth.token.reused"
	ActionSessionSuspect      = "auth.session.suspect"
	ActionLogoutAll           = "auth.logout_all"
	ActionTwoFactorChanged    = "auth.2fa.changed"
	ActionPasswordChanged     = "auth.password.changed"
	ActionAccountOpened       = "account.opened"
	ActionAccountFrozen       = "account.frozen"
	ActionAccountUnfrozen     = "account.unfrozen"
	ActionAccountClosed       = "account.closed"
	ActionAccountLimitsSet    = "account.limits_set"
	ActionBalanceAdjusted     = "balance.adjusted"
	ActionJournalPosted       = "journal.posted"
	ActionJournalReversed     = "journal.reversed"
	ActionTxnTransition       = "transaction.transition"
	ActionCrossTenantView     = "tenant.cross_view"
	ActionCrossTenantDenied   = "tenant.cross_denied"
	ActionPermissionDenied    = "auth.permission_denied"
	ActionLedgerQuarantined   = "ledger.quarantined"
	ActionIntegrityViolation  = "ledger.integrity_violation"
	ActionRatePublished       = "rate.published"
	ActionTenantStatusChanged = "tenant.status_changed"
	ActionUserKYCReviewed     = "user.kyc_reviewed"
)

// riskByAction fixes the classification per audited action; unknown
// actions default to low.
var riskByAction = map[string]RiskLevel{
	ActionLoginSuccess:        RiskLow,
	ActionLoginFailure:        RiskMedium,
	ActionLoginLocked:         RiskCritical,
	ActionTokenRefreshed:      RiskLow,
	ActionTokenReused:         RiskCritical,
	ActionSessionSuspect:      RiskHigh,
	ActionLogoutAll:           RiskMedium,
	ActionTwoFactorChanged:    RiskHigh,
	ActionPasswordChanged:     RiskMedium,
	ActionAccountOpened:       RiskLow,
	ActionAccountFrozen:       RiskMedium,
	ActionAccountUnfrozen:     RiskMedium,
	ActionAccountClosed:       RiskMedium,
	ActionAccountLimitsSet:    RiskMedium,
	ActionBalanceAdjusted:     RiskHigh,
	ActionJournalPosted:       RiskLow,
	ActionJournalReversed:     RiskHigh,
	ActionTxnTransition:       RiskLow,
	ActionCrossTenantView:     RiskHigh,
	ActionCrossTenantDenied:   RiskMedium,
	ActionPermissionDenied:    RiskMedium,
	ActionLedgerQuarantined:   RiskCritical,
	ActionIntegrityViolation:  RiskCritical,
	ActionRatePublished:       RiskLow,
	ActionTenantStatusChanged: RiskMedium,
	ActionUserKYCReviewed:     RiskMedium,
}

// RiskOf returns the fixed risk level for an action
func RiskOf(action string) RiskLevel {
	if level, ok := riskByAction[action]; ok {
		return level
	}
	return RiskLow
}

// Event is one append-only audit record. Events are never updated or
// deleted inside the retention window.
type Event struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_audit_tenant_ts"`
	ActorID    *uuid.UUID `gorm:"type:uuid;index:idx_audit_actor_ts"`
	Action     string     `gorm:"type:varchar(60);not null"`
	EntityType string     `gorm:"type:varchar(40)"`
	EntityID   *uuid.UUID `gorm:"type:uuid"`
	OldValues  map[string]any `gorm:"serializer:json"`
	NewValues  map[string]any `gorm:"serializer:json"`
	Risk       RiskLevel  `gorm:"type:varchar(10);not null"`
	IPAddress  string     `gorm:"type:varchar(45)"`
	UserAgent  string     `gorm:"type:varchar(255)"`
	Duration   time.Duration
	OccurredAt time.Time `gorm:"not null;index:idx_audit_tenant_ts;index:idx_audit_actor_ts"`
}

// TableName returns the table name for GORM
func (Event) TableName() string {
	return "audit_events"
}

// Record builds an audit event for an action, deriving the risk level
// from the classification table.
func Record(tenantID uuid.UUID, actorID *uuid.UUID, action string) *Event {
	return &Event{
		ID:         uuid.New(),
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     action,
		Risk:       RiskOf(action),
		OccurredAt: time.Now(),
	}
}

// WithEntity attaches the affected entity
func (e *Event) WithEntity(entityType string, entityID uuid.UUID) *Event {
	e.EntityType = entityType
	e.EntityID = &entityID
	return e
}

// WithChange attaches before and after snapshots
func (e *Event) WithChange(oldValues, newValues map[string]any) *Event {
	e.OldValues = oldValues
	e.NewValues = newValues
	return e
}

// WithRequest attaches the caller's network context
func (e *Event) WithRequest(ip, userAgent string) *Event {
	e.IPAddress = ip
	e.UserAgent = userAgent
	return e
}

// WithDuration records how long the audited operation ran
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// WithRisk overrides the table-derived risk level
func (e *Event) WithRisk(level RiskLevel) *Event {
	e.Risk = level
	return e
}

// Validate checks the record before persisting
func (e *Event) Validate() error {
	if e.TenantID == uuid.Nil {
		return shared.NewDomainError("INVALID_AUDIT", "Audit event requires a tenant")
	}
	if e.Action == "" {
		return shared.NewDomainError("INVALID_AUDIT", "Audit event requires an action")
	}
	switch e.Risk {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
	default:
		return shared.NewDomainError("INVALID_AUDIT", "Invalid risk level")
	}
	return nil
}

package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity holds the identity and audit timestamps every persisted
// domain object carries.
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBaseEntity assigns a fresh ID and stamps both timestamps.
func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

func (e *BaseEntity) GetID() uuid.UUID        { return e.ID }
func (e *BaseEntity) GetCreatedAt() time.Time { return e.CreatedAt }
func (e *BaseEntity) GetUpdatedAt() time.Time { return e.UpdatedAt }

// BaseAggregateRoot adds optimistic-lock versioning and a pending
// event list on top of BaseEntity. Events accumulate here until the
// application layer publishes and clears them after a successful save.
type BaseAggregateRoot struct {
	BaseEntity
	Version int `gorm:"not null;default:1"`

	pendingEvents []DomainEvent `gorm:"-"`
}

// NewBaseAggregateRoot starts an aggregate at version 1.
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntity(), Version: 1}
}

// GetVersion returns the optimistic-lock version.
func (a *BaseAggregateRoot) GetVersion() int { return a.Version }

// IncrementVersion bumps the optimistic-lock version before a save.
func (a *BaseAggregateRoot) IncrementVersion() { a.Version++ }

// AddDomainEvent queues an event for publication after the next save.
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.pendingEvents = append(a.pendingEvents, event)
}

// GetDomainEvents returns the queued, not yet published events.
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent { return a.pendingEvents }

// ClearDomainEvents drops the queue once the events are published.
func (a *BaseAggregateRoot) ClearDomainEvents() { a.pendingEvents = nil }

// TenantAggregateRoot pins an aggregate to the tenant that owns it.
// CreatedBy records the user who brought the record into existence,
// which row-level scoping rules consult.
type TenantAggregateRoot struct {
	BaseAggregateRoot
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedBy *uuid.UUID `gorm:"type:uuid;index"`
}

// NewTenantAggregateRoot creates an aggregate owned by tenantID.
func NewTenantAggregateRoot(tenantID uuid.UUID) TenantAggregateRoot {
	return TenantAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(),
		TenantID:          tenantID,
	}
}

// NewTenantAggregateRootWithCreator also records who created the record.
func NewTenantAggregateRootWithCreator(tenantID, createdBy uuid.UUID) TenantAggregateRoot {
	root := NewTenantAggregateRoot(tenantID)
	root.CreatedBy = &createdBy
	return root
}

// SetCreatedBy records the creating user after the fact.
func (t *TenantAggregateRoot) SetCreatedBy(userID uuid.UUID) { t.CreatedBy = &userID }

// GetCreatedBy returns the creating user, or nil for system records.
func (t *TenantAggregateRoot) GetCreatedBy() *uuid.UUID { return t.CreatedBy }

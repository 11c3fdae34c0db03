package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is what an aggregate records when its state changes.
// Every event carries the tenant it belongs to so downstream handlers
// can stay tenant-scoped without inspecting payloads.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	TenantID() uuid.UUID
}

// BaseDomainEvent carries the envelope fields shared by all events.
// Concrete events embed it and add their own payload.
type BaseDomainEvent struct {
	id            uuid.UUID
	eventType     string
	occurredAt    time.Time
	aggregateID   uuid.UUID
	aggregateType string
	tenantID      uuid.UUID
}

// NewBaseDomainEvent stamps a fresh envelope for an aggregate change.
func NewBaseDomainEvent(eventType, aggregateType string, aggregateID, tenantID uuid.UUID) BaseDomainEvent {
	return BaseDomainEvent{
		id:            uuid.New(),
		eventType:     eventType,
		occurredAt:    time.Now(),
		aggregateID:   aggregateID,
		aggregateType: aggregateType,
		tenantID:      tenantID,
	}
}

func (e *BaseDomainEvent) EventID() uuid.UUID     { return e.id }
func (e *BaseDomainEvent) EventType() string      { return e.eventType }
func (e *BaseDomainEvent) OccurredAt() time.Time  { return e.occurredAt }
func (e *BaseDomainEvent) AggregateID() uuid.UUID { return e.aggregateID }
func (e *BaseDomainEvent) AggregateType() string  { return e.aggregateType }
func (e *BaseDomainEvent) TenantID() uuid.UUID    { return e.tenantID }

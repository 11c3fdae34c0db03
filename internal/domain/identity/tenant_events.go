package identity

import (
	"github.com/kambio/backend/internal/domain/shared"
)

const AggregateTypeTenant = "Tenant"

const (
	EventTypeTenantCreated           = "TenantCreated"
	EventTypeTenantUpdated           = "TenantUpdated"
	EventTypeTenantStatusChanged     = "TenantStatusChanged"
	EventTypeTenantPlanChanged       = "TenantPlanChanged"
	EventTypeTenantLedgerQuarantined = "TenantLedgerQuarantined"
)

// tenantEvent builds the base event for a tenant aggregate. Tenants
// are their own tenant scope, so aggregate and tenant ID coincide.
func tenantEvent(eventType string, t *Tenant) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, AggregateTypeTenant, t.ID, t.ID)
}

// TenantCreatedEvent fires when a new tenant is registered
type TenantCreatedEvent struct {
	shared.BaseDomainEvent
	Code         string       `json:"code"`
	Name         string       `json:"name"`
	Status       TenantStatus `json:"status"`
	Plan         TenantPlan   `json:"plan"`
	BaseCurrency string       `json:"base_currency"`
}

func NewTenantCreatedEvent(tenant *Tenant) *TenantCreatedEvent {
	return &TenantCreatedEvent{
		BaseDomainEvent: tenantEvent(EventTypeTenantCreated, tenant),
		Code:            tenant.Code,
		Name:            tenant.Name,
		Status:          tenant.Status,
		Plan:            tenant.Plan,
		BaseCurrency:    tenant.BaseCurrency,
	}
}

// TenantUpdatedEvent fires when profile or contact details change
type TenantUpdatedEvent struct {
	shared.BaseDomainEvent
	Code         string `json:"code"`
	Name         string `json:"name"`
	ContactName  string `json:"contact_name,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
}

func NewTenantUpdatedEvent(tenant *Tenant) *TenantUpdatedEvent {
	return &TenantUpdatedEvent{
		BaseDomainEvent: tenantEvent(EventTypeTenantUpdated, tenant),
		Code:            tenant.Code,
		Name:            tenant.Name,
		ContactName:     tenant.ContactName,
		ContactPhone:    tenant.ContactPhone,
		ContactEmail:    tenant.ContactEmail,
	}
}

// TenantStatusChangedEvent fires on every lifecycle transition
type TenantStatusChangedEvent struct {
	shared.BaseDomainEvent
	Code      string       `json:"code"`
	OldStatus TenantStatus `json:"old_status"`
	NewStatus TenantStatus `json:"new_status"`
}

func NewTenantStatusChangedEvent(tenant *Tenant, oldStatus, newStatus TenantStatus) *TenantStatusChangedEvent {
	return &TenantStatusChangedEvent{
		BaseDomainEvent: tenantEvent(EventTypeTenantStatusChanged, tenant),
		Code:            tenant.Code,
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
	}
}

// TenantPlanChangedEvent fires when the subscription plan moves
type TenantPlanChangedEvent struct {
	shared.BaseDomainEvent
	Code    string     `json:"code"`
	OldPlan TenantPlan `json:"old_plan"`
	NewPlan TenantPlan `json:"new_plan"`
}

func NewTenantPlanChangedEvent(tenant *Tenant, oldPlan, newPlan TenantPlan) *TenantPlanChangedEvent {
	return &TenantPlanChangedEvent{
		BaseDomainEvent: tenantEvent(EventTypeTenantPlanChanged, tenant),
		Code:            tenant.Code,
		OldPlan:         oldPlan,
		NewPlan:         newPlan,
	}
}

// TenantLedgerQuarantinedEvent fires when an integrity violation puts
// the tenant's ledger into read-only quarantine
type TenantLedgerQuarantinedEvent struct {
	shared.BaseDomainEvent
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func NewTenantLedgerQuarantinedEvent(tenant *Tenant, reason string) *TenantLedgerQuarantinedEvent {
	return &TenantLedgerQuarantinedEvent{
		BaseDomainEvent: tenantEvent(EventTypeTenantLedgerQuarantined, tenant),
		Code:            tenant.Code,
		Reason:          reason,
	}
}

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists audit events. Append-only: there is no update or
// single-row delete; PurgeBefore enforces retention only.
type Repository interface {
	Append(ctx context.Context, events ...*Event) error
	FindByFilter(ctx context.Context, tenantID uuid.UUID, filter *Filter) ([]*Event, error)
	CountByFilter(ctx context.Context, tenantID uuid.UUID, filter *Filter) (int64, error)
	FindByEntity(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]*Event, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Filter narrows audit queries
type Filter struct {
	ActorID  *uuid.UUID
	Action   string
	Risk     *RiskLevel
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// NewFilter creates a filter with default pagination
func NewFilter() *Filter {
	return &Filter{Page: 1, PageSize: 50}
}

// WithActor filters by acting user
func (f *Filter) WithActor(actorID uuid.UUID) *Filter {
	f.ActorID = &actorID
	return f
}

// WithAction filters by action name
func (f *Filter) WithAction(action string) *Filter {
	f.Action = action
	return f
}

// WithRisk filters by risk level
func (f *Filter) WithRisk(level RiskLevel) *Filter {
	f.Risk = &level
	return f
}

// WithTimeRange filters by occurrence time
func (f *Filter) WithTimeRange(from, to time.Time) *Filter {
	f.From = &from
	f.To = &to
	return f
}

// WithPagination sets the page window
func (f *Filter) WithPagination(page, pageSize int) *Filter {
	if page > 0 {
		f.Page = page
	}
	if pageSize > 0 {
		f.PageSize = pageSize
	}
	return f
}

// Offset returns the query offset
func (f *Filter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Limit returns the query limit
func (f *Filter) Limit() int {
	if f.PageSize <= 0 || f.PageSize > 200 {
		return 50
	}
	return f.PageSize
}

package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kambio/backend/internal/domain/audit"
)

// AuditHandler handles audit trail query endpoints. The trail is
// append-only; this surface is read-only by construction.
type AuditHandler struct {
	BaseHandler
	auditRepo audit.Repository
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(auditRepo audit.Repository) *AuditHandler {
	return &AuditHandler{auditRepo: auditRepo}
}

// ListAuditRequest represents audit list query parameters
type ListAuditRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	ActorID  string `form:"actor_id" binding:"omitempty,uuid"`
	Action   string `form:"action"`
	Risk     string `form:"risk" binding:"omitempty,oneof=low medium high critical"`
	From     string `form:"from"`
	To       string `form:"to"`
}

// AuditEventResponse represents an audit event in API responses
type AuditEventResponse struct {
	ID         uuid.UUID      `json:"id"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	ActorID    *uuid.UUID     `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   *uuid.UUID     `json:"entity_id,omitempty"`
	OldValues  map[string]any `json:"old_values,omitempty"`
	NewValues  map[string]any `json:"new_values,omitempty"`
	Risk       string         `json:"risk"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func toAuditEventResponse(e *audit.Event) AuditEventResponse {
	return AuditEventResponse{
		ID:         e.ID,
		TenantID:   e.TenantID,
		ActorID:    e.ActorID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		OldValues:  e.OldValues,
		NewValues:  e.NewValues,
		Risk:       string(e.Risk),
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		OccurredAt: e.OccurredAt,
	}
}

func toAuditEventResponses(events []*audit.Event) []AuditEventResponse {
	out := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toAuditEventResponse(e))
	}
	return out
}

// List returns audit events for the caller's tenant, newest first
func (h *AuditHandler) List(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	var req ListAuditRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	filter := audit.NewFilter()
	if req.Page > 0 {
		filter.Page = req.Page
	}
	if req.PageSize > 0 {
		filter.PageSize = req.PageSize
	}
	if req.ActorID != "" {
		actorID, err := uuid.Parse(req.ActorID)
		if err != nil {
			h.BadRequest(c, "Invalid actor ID")
			return
		}
		filter.ActorID = &actorID
	}
	filter.Action = req.Action
	if req.Risk != "" {
		risk := audit.RiskLevel(req.Risk)
		filter.Risk = &risk
	}
	if req.From != "" {
		from, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			h.BadRequest(c, "from must be RFC 3339")
			return
		}
		filter.From = &from
	}
	if req.To != "" {
		to, err := time.Parse(time.RFC3339, req.To)
		if err != nil {
			h.BadRequest(c, "to must be RFC 3339")
			return
		}
		filter.To = &to
	}

	events, err := h.auditRepo.FindByFilter(c.Request.Context(), scope.TenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	total, err := h.auditRepo.CountByFilter(c.Request.Context(), scope.TenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, toAuditEventResponses(events), total, filter.Page, filter.PageSize)
}

// ListByEntity returns the audit trail of a single entity
func (h *AuditHandler) ListByEntity(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	entityType := c.Param("entity_type")
	entityID, err := uuid.Parse(c.Param("entity_id"))
	if err != nil {
		h.BadRequest(c, "Invalid entity ID")
		return
	}

	events, err := h.auditRepo.FindByEntity(c.Request.Context(), scope.TenantID, entityType, entityID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toAuditEventResponses(events))
}

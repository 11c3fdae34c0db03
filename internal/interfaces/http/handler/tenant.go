package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appidentity "github.com/kambio/backend/internal/application/identity"
	"github.com/kambio/backend/internal/application/tenantctx"
	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/domain/shared"
	"github.com/kambio/backend/internal/interfaces/http/dto"
)

// TenantHandler handles tenant management endpoints
type TenantHandler struct {
	BaseHandler
	tenantService *appidentity.TenantService
}

// NewTenantHandler creates a new TenantHandler
func NewTenantHandler(tenantService *appidentity.TenantService) *TenantHandler {
	return &TenantHandler{tenantService: tenantService}
}

// Create provisions a new tenant
func (h *TenantHandler) Create(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	tenant, err := h.tenantService.Create(c.Request.Context(), scope, appidentity.CreateTenantInput{
		Code:         req.Code,
		Name:         req.Name,
		BaseCurrency: req.BaseCurrency,
		Plan:         req.Plan,
		ContactName:  req.ContactName,
		ContactPhone: req.ContactPhone,
		ContactEmail: req.ContactEmail,
		Notes:        req.Notes,
		TrialDays:    req.TrialDays,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toTenantResponse(tenant))
}

// CreateBranch opens a branch office under an existing tenant
func (h *TenantHandler) CreateBranch(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	parentID, ok := h.bindID(c)
	if !ok {
		return
	}

	var req CreateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	branch, err := h.tenantService.CreateBranch(c.Request.Context(), scope, parentID, req.Code, req.Name)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toTenantResponse(branch))
}

// Get returns a tenant by ID
func (h *TenantHandler) Get(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	tenant, err := h.tenantService.Get(c.Request.Context(), scope, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTenantResponse(tenant))
}

// List returns tenants visible to the caller
func (h *TenantHandler) List(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	listReq := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	filter := shared.Filter{
		Page:     listReq.Page,
		PageSize: listReq.PageSize,
		OrderBy:  listReq.OrderBy,
		OrderDir: listReq.OrderDir,
		Search:   listReq.Search,
	}

	tenants, total, err := h.tenantService.List(c.Request.Context(), scope, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, toTenantResponses(tenants), total, listReq.Page, listReq.PageSize)
}

// Update changes a tenant's contact details
func (h *TenantHandler) Update(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	tenant, err := h.tenantService.Update(c.Request.Context(), scope, id, appidentity.UpdateTenantInput{
		Name:         req.Name,
		ContactName:  req.ContactName,
		ContactPhone: req.ContactPhone,
		ContactEmail: req.ContactEmail,
		Notes:        req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTenantResponse(tenant))
}

// SetPlan changes a tenant's subscription plan
func (h *TenantHandler) SetPlan(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req SetPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	tenant, err := h.tenantService.SetPlan(c.Request.Context(), scope, id, req.Plan)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTenantResponse(tenant))
}

// UpdateLimits changes a tenant's operational limits
func (h *TenantHandler) UpdateLimits(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req UpdateLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	tenant, err := h.tenantService.UpdateLimits(c.Request.Context(), scope, id, identity.TenantLimits{
		MaxUsers:               req.MaxUsers,
		MaxBranches:            req.MaxBranches,
		DailyTransactionCap:    req.DailyTransactionCap,
		SingleTransactionLimit: req.SingleTransactionLimit,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTenantResponse(tenant))
}

// Activate sets a tenant active
func (h *TenantHandler) Activate(c *gin.Context) {
	h.transition(c, h.tenantService.Activate)
}

// Deactivate sets a tenant inactive
func (h *TenantHandler) Deactivate(c *gin.Context) {
	h.transition(c, h.tenantService.Deactivate)
}

// Suspend suspends a tenant
func (h *TenantHandler) Suspend(c *gin.Context) {
	h.transition(c, h.tenantService.Suspend)
}

// Quarantine marks a tenant's ledger read-only pending review
func (h *TenantHandler) Quarantine(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req QuarantineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	tenant, err := h.tenantService.QuarantineLedger(c.Request.Context(), scope, id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTenantResponse(tenant))
}

// LiftQuarantine restores a quarantined ledger to full operation
func (h *TenantHandler) LiftQuarantine(c *gin.Context) {
	h.transition(c, h.tenantService.LiftQuarantine)
}

func (h *TenantHandler) bindID(c *gin.Context) (uuid.UUID, bool) {
	var idReq dto.IDRequest
	if err := c.ShouldBindUri(&idReq); err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idReq.ID)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return uuid.Nil, false
	}
	return id, true
}

type tenantTransition func(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) (*identity.Tenant, error)

func (h *TenantHandler) transition(c *gin.Context, op tenantTransition) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	tenant, err := op(c.Request.Context(), scope, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTenantResponse(tenant))
}

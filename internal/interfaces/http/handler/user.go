package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appidentity "github.com/kambio/backend/internal/application/identity"
	"github.com/kambio/backend/internal/application/tenantctx"
	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/interfaces/http/dto"
)

// UserHandler handles user management endpoints
type UserHandler struct {
	BaseHandler
	userService *appidentity.UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService *appidentity.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// Create adds a user to the caller's tenant
func (h *UserHandler) Create(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	user, err := h.userService.Create(c.Request.Context(), scope, appidentity.CreateUserInput{
		Username:    req.Username,
		Password:    req.Password,
		Role:        identity.UserRole(req.Role),
		Email:       req.Email,
		Phone:       req.Phone,
		DisplayName: req.DisplayName,
		Active:      req.Active,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toUserResponse(user))
}

// Get returns a user by ID
func (h *UserHandler) Get(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	user, err := h.userService.Get(c.Request.Context(), scope, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toUserResponse(user))
}

// List returns users in the caller's tenant
func (h *UserHandler) List(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	var req ListUsersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	filter := identity.NewUserFilter()
	if req.Page > 0 {
		filter.Page = req.Page
	}
	if req.PageSize > 0 {
		filter.PageSize = req.PageSize
	}
	filter.Keyword = req.Search
	if req.Status != "" {
		status := identity.UserStatus(req.Status)
		filter.Status = &status
	}
	if req.Role != "" {
		role := identity.UserRole(req.Role)
		filter.Role = &role
	}
	if req.KYCStatus != "" {
		kyc := identity.KYCStatus(req.KYCStatus)
		filter.KYCStatus = &kyc
	}
	if req.OrderBy != "" {
		filter.SortBy = req.OrderBy
	}
	if req.OrderDir != "" {
		filter.SortOrder = req.OrderDir
	}

	users, total, err := h.userService.List(c.Request.Context(), scope, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, toUserResponses(users), total, filter.Page, filter.PageSize)
}

// Update changes a user's profile fields
func (h *UserHandler) Update(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	user, err := h.userService.Update(c.Request.Context(), scope, id, appidentity.UpdateUserInput{
		Email:       req.Email,
		Phone:       req.Phone,
		DisplayName: req.DisplayName,
		Notes:       req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toUserResponse(user))
}

// ChangeRole assigns a different role to a user
func (h *UserHandler) ChangeRole(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	user, err := h.userService.ChangeRole(c.Request.Context(), scope, id, identity.UserRole(req.Role))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toUserResponse(user))
}

// Activate activates a pending or deactivated user
func (h *UserHandler) Activate(c *gin.Context) {
	h.transition(c, h.userService.Activate)
}

// Deactivate deactivates a user
func (h *UserHandler) Deactivate(c *gin.Context) {
	h.transition(c, h.userService.Deactivate)
}

// Unlock clears a lockout before its natural expiry
func (h *UserHandler) Unlock(c *gin.Context) {
	h.transition(c, h.userService.Unlock)
}

// ResetPassword sets a new password administratively
func (h *UserHandler) ResetPassword(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	if err := h.userService.ResetPassword(c.Request.Context(), scope, id, req.NewPassword); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// ReviewKYC records a KYC verdict for a user
func (h *UserHandler) ReviewKYC(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req ReviewKYCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	user, err := h.userService.ReviewKYC(c.Request.Context(), scope, id, identity.KYCStatus(req.Verdict))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toUserResponse(user))
}

func (h *UserHandler) bindID(c *gin.Context) (uuid.UUID, bool) {
	var idReq dto.IDRequest
	if err := c.ShouldBindUri(&idReq); err != nil {
		h.BadRequest(c, "Invalid user ID")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idReq.ID)
	if err != nil {
		h.BadRequest(c, "Invalid user ID")
		return uuid.Nil, false
	}
	return id, true
}

type userTransition func(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) (*identity.User, error)

func (h *UserHandler) transition(c *gin.Context, op userTransition) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	user, err := op(c.Request.Context(), scope, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toUserResponse(user))
}

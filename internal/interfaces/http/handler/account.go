package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appledger "github.com/kambio/backend/internal/application/ledger"
	"github.com/kambio/backend/internal/application/tenantctx"
	"github.com/kambio/backend/internal/domain/ledger"
	"github.com/kambio/backend/internal/interfaces/http/dto"
)

// AccountHandler handles account registry and balance endpoints
type AccountHandler struct {
	BaseHandler
	accountService *appledger.AccountService
	balanceService *appledger.BalanceService
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(accountService *appledger.AccountService, balanceService *appledger.BalanceService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		balanceService: balanceService,
	}
}

// Open opens an account. Without an explicit owner the account belongs
// to the caller.
func (h *AccountHandler) Open(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	var req OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	owner := scope.UserID
	if req.OwnerUserID != "" {
		parsed, err := uuid.Parse(req.OwnerUserID)
		if err != nil {
			h.BadRequest(c, "Invalid owner user ID")
			return
		}
		owner = parsed
	}

	account, err := h.accountService.Open(c.Request.Context(), scope, appledger.OpenAccountInput{
		OwnerUserID: owner,
		Currency:    req.Currency,
		Type:        ledger.AccountType(req.Type),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toAccountResponse(account))
}

// Get returns an account by ID
func (h *AccountHandler) Get(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	account, err := h.accountService.Get(c.Request.Context(), scope, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toAccountResponse(account))
}

// List returns accounts by owner. Without an owner query parameter the
// caller's own accounts are listed.
func (h *AccountHandler) List(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	owner := scope.UserID
	if raw := c.Query("owner_user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid owner user ID")
			return
		}
		owner = parsed
	}

	accounts, err := h.accountService.ListByOwner(c.Request.Context(), scope, owner)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toAccountResponses(accounts))
}

// Freeze freezes an account
func (h *AccountHandler) Freeze(c *gin.Context) {
	h.statusChange(c, h.accountService.Freeze)
}

// Unfreeze unfreezes a frozen account
func (h *AccountHandler) Unfreeze(c *gin.Context) {
	h.statusChange(c, h.accountService.Unfreeze)
}

// Close closes an account. The balance must be zero.
func (h *AccountHandler) Close(c *gin.Context) {
	h.statusChange(c, h.accountService.Close)
}

// Reserve freezes funds under a reference
func (h *AccountHandler) Reserve(c *gin.Context) {
	h.balanceOp(c, h.balanceService.Reserve)
}

// Release returns reserved funds to the free balance
func (h *AccountHandler) Release(c *gin.Context) {
	h.balanceOp(c, h.balanceService.Release)
}

// SettleDebit consumes reserved funds permanently
func (h *AccountHandler) SettleDebit(c *gin.Context) {
	h.balanceOp(c, h.balanceService.SettleDebit)
}

// Credit adds funds to the free balance
func (h *AccountHandler) Credit(c *gin.Context) {
	h.balanceOp(c, h.balanceService.Credit)
}

// SetLimits replaces the account's balance bounds and posting flags
func (h *AccountHandler) SetLimits(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req SetAccountLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	account, err := h.accountService.SetLimits(c.Request.Context(), scope, id, appledger.SetAccountLimitsInput{
		MinBalance:  req.MinBalance,
		MaxBalance:  req.MaxBalance,
		AllowDebit:  *req.AllowDebit,
		AllowCredit: *req.AllowCredit,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toAccountResponse(account))
}

// Adjust applies a manual signed correction
func (h *AccountHandler) Adjust(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	account, err := h.balanceService.Adjust(c.Request.Context(), scope, appledger.AdjustInput{
		AccountID: id,
		Delta:     req.Delta,
		Reason:    req.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toAccountResponse(account))
}

func (h *AccountHandler) bindID(c *gin.Context) (uuid.UUID, bool) {
	var idReq dto.IDRequest
	if err := c.ShouldBindUri(&idReq); err != nil {
		h.BadRequest(c, "Invalid account ID")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idReq.ID)
	if err != nil {
		h.BadRequest(c, "Invalid account ID")
		return uuid.Nil, false
	}
	return id, true
}

type accountStatusOp func(ctx context.Context, scope tenantctx.Scope, accountID uuid.UUID, reason string) error

func (h *AccountHandler) statusChange(c *gin.Context, op accountStatusOp) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req AccountActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	if err := op(c.Request.Context(), scope, id, req.Reason); err != nil {
		h.HandleError(c, err)
		return
	}

	account, err := h.accountService.Get(c.Request.Context(), scope, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toAccountResponse(account))
}

type balanceOp func(ctx context.Context, scope tenantctx.Scope, input appledger.BalanceOpInput) (*ledger.Account, error)

func (h *AccountHandler) balanceOp(c *gin.Context, op balanceOp) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req BalanceOpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	account, err := op(c.Request.Context(), scope, appledger.BalanceOpInput{
		AccountID: id,
		Amount:    req.Amount,
		Reference: req.Reference,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toAccountResponse(account))
}

package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appexchange "github.com/kambio/backend/internal/application/exchange"
	"github.com/kambio/backend/internal/domain/exchange"
	"github.com/kambio/backend/internal/interfaces/http/dto"
)

// IdempotencyKeyHeader carries the client-chosen key that deduplicates
// transaction create retries
const IdempotencyKeyHeader = "Idempotency-Key"

// TransactionHandler handles transaction lifecycle endpoints
type TransactionHandler struct {
	BaseHandler
	txnService *appexchange.TransactionService
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(txnService *appexchange.TransactionService) *TransactionHandler {
	return &TransactionHandler{txnService: txnService}
}

// Create initiates a money movement and runs it through the workflow
func (h *TransactionHandler) Create(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	// a tenant named in the body must match the caller's own tenant
	if req.TenantID != nil {
		target, err := uuid.Parse(*req.TenantID)
		if err != nil {
			h.BadRequest(c, "Invalid tenant ID")
			return
		}
		if err := scope.EnsureTenant(target); err != nil {
			h.HandleError(c, err)
			return
		}
	}

	input := appexchange.CreateTransactionInput{
		Type:           exchange.TransactionType(req.Type),
		FromCurrency:   req.FromCurrency,
		ToCurrency:     req.ToCurrency,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
	}

	if req.CustomerID != "" {
		customerID, err := uuid.Parse(req.CustomerID)
		if err != nil {
			h.BadRequest(c, "Invalid customer ID")
			return
		}
		input.CustomerID = customerID
	}
	if req.CounterpartyUserID != nil {
		counterparty, err := uuid.Parse(*req.CounterpartyUserID)
		if err != nil {
			h.BadRequest(c, "Invalid counterparty user ID")
			return
		}
		input.CounterpartyUserID = &counterparty
	}
	if req.CorrelationID != nil {
		correlation, err := uuid.Parse(*req.CorrelationID)
		if err != nil {
			h.BadRequest(c, "Invalid correlation ID")
			return
		}
		input.CorrelationID = &correlation
	}

	txn, err := h.txnService.Create(c.Request.Context(), scope, input)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toTransactionResponse(txn))
}

// Review resolves an on-hold transaction
func (h *TransactionHandler) Review(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req ReviewTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	txn, err := h.txnService.Review(c.Request.Context(), scope, appexchange.ReviewInput{
		TransactionID: id,
		Approve:       req.Approve,
		Reason:        req.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTransactionResponse(txn))
}

// Cancel cancels a non-terminal transaction
func (h *TransactionHandler) Cancel(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req CancelTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	txn, err := h.txnService.Cancel(c.Request.Context(), scope, appexchange.CancelInput{
		TransactionID: id,
		Reason:        req.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTransactionResponse(txn))
}

// Get returns a transaction with its status history
func (h *TransactionHandler) Get(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	txn, err := h.txnService.Get(c.Request.Context(), scope, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTransactionResponse(txn))
}

// List returns transactions matching the filter
func (h *TransactionHandler) List(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	var req ListTransactionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	filter := exchange.NewTransactionFilter()
	if req.Page > 0 {
		filter.Page = req.Page
	}
	if req.PageSize > 0 {
		filter.PageSize = req.PageSize
	}
	if req.Status != "" {
		status := exchange.TransactionStatus(req.Status)
		filter.Status = &status
	}
	if req.Type != "" {
		txnType := exchange.TransactionType(req.Type)
		filter.Type = &txnType
	}
	filter.Currency = req.Currency
	filter.Keyword = req.Search
	if req.DateFrom != "" {
		from, err := time.Parse(time.RFC3339, req.DateFrom)
		if err != nil {
			h.BadRequest(c, "date_from must be RFC 3339")
			return
		}
		filter.DateFrom = &from
	}
	if req.DateTo != "" {
		to, err := time.Parse(time.RFC3339, req.DateTo)
		if err != nil {
			h.BadRequest(c, "date_to must be RFC 3339")
			return
		}
		filter.DateTo = &to
	}

	txns, err := h.txnService.List(c.Request.Context(), scope, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTransactionResponses(txns))
}

func (h *TransactionHandler) bindID(c *gin.Context) (uuid.UUID, bool) {
	var idReq dto.IDRequest
	if err := c.ShouldBindUri(&idReq); err != nil {
		h.BadRequest(c, "Invalid transaction ID")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idReq.ID)
	if err != nil {
		h.BadRequest(c, "Invalid transaction ID")
		return uuid.Nil, false
	}
	return id, true
}

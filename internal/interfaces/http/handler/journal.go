package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appledger "github.com/kambio/backend/internal/application/ledger"
	"github.com/kambio/backend/internal/domain/ledger"
	"github.com/kambio/backend/internal/interfaces/http/dto"
)

// JournalHandler handles journal and trial-balance endpoints
type JournalHandler struct {
	BaseHandler
	journalService *appledger.JournalService
}

// NewJournalHandler creates a new JournalHandler
func NewJournalHandler(journalService *appledger.JournalService) *JournalHandler {
	return &JournalHandler{journalService: journalService}
}

// Post creates and posts a balanced entry atomically
func (h *JournalHandler) Post(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	var req PostEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	lines := make([]appledger.LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		accountID, err := uuid.Parse(l.AccountID)
		if err != nil {
			h.BadRequest(c, "Invalid line account ID")
			return
		}
		lines = append(lines, appledger.LineInput{
			AccountID:          accountID,
			Side:               ledger.LineSide(l.Side),
			Amount:             l.Amount,
			Currency:           l.Currency,
			ExchangeRateToBase: l.ExchangeRateToBase,
			Description:        l.Description,
		})
	}

	var settle map[uuid.UUID]decimal.Decimal
	if len(req.SettleReservations) > 0 {
		settle = make(map[uuid.UUID]decimal.Decimal, len(req.SettleReservations))
		for raw, amount := range req.SettleReservations {
			accountID, err := uuid.Parse(raw)
			if err != nil {
				h.BadRequest(c, "Invalid settle account ID")
				return
			}
			settle[accountID] = amount
		}
	}

	input := appledger.PostEntryInput{
		Description:        req.Description,
		Type:               ledger.JournalEntryType(req.Type),
		Lines:              lines,
		SettleReservations: settle,
	}
	if req.EntryDate != nil {
		input.EntryDate = *req.EntryDate
	} else {
		input.EntryDate = time.Now()
	}
	if req.SourceTxnID != nil {
		txnID, err := uuid.Parse(*req.SourceTxnID)
		if err != nil {
			h.BadRequest(c, "Invalid source transaction ID")
			return
		}
		input.SourceTxnID = &txnID
	}

	entry, err := h.journalService.Post(c.Request.Context(), scope, input)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toJournalEntryResponse(entry))
}

// Reverse reverses a posted entry with a compensating entry
func (h *JournalHandler) Reverse(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req ReverseEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	reversal, err := h.journalService.Reverse(c.Request.Context(), scope, appledger.ReverseEntryInput{
		EntryID: id,
		Reason:  req.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toJournalEntryResponse(reversal))
}

// Get returns a journal entry with its lines
func (h *JournalHandler) Get(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	id, ok := h.bindID(c)
	if !ok {
		return
	}

	entry, err := h.journalService.Get(c.Request.Context(), scope, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toJournalEntryResponse(entry))
}

// List returns entries by accounting period (year and month query
// params) or by source transaction (transaction_id query param).
func (h *JournalHandler) List(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	if raw := c.Query("transaction_id"); raw != "" {
		txnID, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid transaction ID")
			return
		}
		entries, err := h.journalService.ListBySourceTransaction(c.Request.Context(), scope, txnID)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, toJournalEntryResponses(entries))
		return
	}

	var q PeriodQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	entries, err := h.journalService.ListByPeriod(c.Request.Context(), scope, q.Year, q.Month)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toJournalEntryResponses(entries))
}

// TrialBalance computes per-account net positions as of a moment.
// Defaults to now.
func (h *JournalHandler) TrialBalance(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	asOf := time.Now()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.BadRequest(c, "as_of must be RFC 3339")
			return
		}
		asOf = parsed
	}

	result, err := h.journalService.TrialBalance(c.Request.Context(), scope, appledger.TrialBalanceInput{AsOf: asOf})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

func (h *JournalHandler) bindID(c *gin.Context) (uuid.UUID, bool) {
	var idReq dto.IDRequest
	if err := c.ShouldBindUri(&idReq); err != nil {
		h.BadRequest(c, "Invalid entry ID")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idReq.ID)
	if err != nil {
		h.BadRequest(c, "Invalid entry ID")
		return uuid.Nil, false
	}
	return id, true
}

package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kambio/backend/internal/application/tenantctx"
	"github.com/kambio/backend/internal/domain/identity"
)

func performCreateTransaction(t *testing.T, scope tenantctx.Scope, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	// a nil service makes any call past the guards fail loudly
	h := NewTransactionHandler(nil)
	router := gin.New()
	router.POST("/transactions", func(c *gin.Context) {
		c.Request = c.Request.WithContext(tenantctx.WithScope(c.Request.Context(), scope))
		h.Create(c)
	})

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTransactionHandler_CreateRejectsForeignTenant(t *testing.T) {
	scope := tenantctx.NewScope(uuid.New(), uuid.New(), identity.RoleCustomer)

	w := performCreateTransaction(t, scope, map[string]any{
		"type":          "deposit",
		"tenant_id":     uuid.New().String(),
		"from_currency": "USD",
		"to_currency":   "USD",
		"amount":        "100",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CROSS_TENANT_FORBIDDEN", resp.Error.Code)
}

func TestTransactionHandler_CreateRejectsMalformedTenant(t *testing.T) {
	scope := tenantctx.NewScope(uuid.New(), uuid.New(), identity.RoleCustomer)

	w := performCreateTransaction(t, scope, map[string]any{
		"type":          "deposit",
		"tenant_id":     "not-a-uuid",
		"from_currency": "USD",
		"to_currency":   "USD",
		"amount":        "100",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

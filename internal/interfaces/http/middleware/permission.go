package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kambio/backend/internal/application/tenantctx"
	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/interfaces/http/dto"
)

// RequireCapability rejects requests whose authenticated role does not
// hold the capability. It must run after JWT authentication; requests
// without a scope are refused outright.
func RequireCapability(cap identity.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, err := tenantctx.FromContext(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponse(dto.ErrCodeUnauthorized, "Authentication required"))
			return
		}
		if err := scope.Require(cap); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden,
				dto.NewErrorResponse("INSUFFICIENT_PERMISSIONS", "Missing required capability"))
			return
		}
		c.Next()
	}
}

// RequireAnyCapability passes when the role holds at least one of the
// capabilities.
func RequireAnyCapability(caps ...identity.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, err := tenantctx.FromContext(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponse(dto.ErrCodeUnauthorized, "Authentication required"))
			return
		}
		for _, cap := range caps {
			if scope.Require(cap) == nil {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden,
			dto.NewErrorResponse("INSUFFICIENT_PERMISSIONS", "Missing required capability"))
	}
}

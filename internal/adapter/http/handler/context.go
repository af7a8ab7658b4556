package handler

import (
	"wallet-ledger/internal/adapter/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// tenantFromContext returns the tenant id the auth middleware stored on
// the request context.
func tenantFromContext(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(middleware.CtxTenantID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

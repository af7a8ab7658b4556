package handler

import (
	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuditHandler exposes hash-chain verification for the caller's tenant.
type AuditHandler struct {
	auditSvc ports.AuditService
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(auditSvc ports.AuditService) *AuditHandler {
	return &AuditHandler{auditSvc: auditSvc}
}

// VerifyChain handles GET /v1/audit/verify. A corrupted chain is reported
// as an error naming the first broken sequence number.
func (h *AuditHandler) VerifyChain(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	valid, brokenSeq, err := h.auditSvc.VerifyChain(c.Request.Context(), tenantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !valid {
		response.Error(c, apperror.ErrChainCorrupted(brokenSeq))
		return
	}

	response.OK(c, dto.AuditVerifyResponse{
		TenantID: tenantID.String(),
		Valid:    true,
	})
}

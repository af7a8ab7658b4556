package handler

import (
	"strings"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LedgerHandler exposes read access to balances. Writes only ever happen
// through the transaction lifecycle and the webhook gate.
type LedgerHandler struct {
	ledgerSvc ports.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerSvc ports.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerSvc: ledgerSvc}
}

// GetBalance handles GET /v1/balances/:account_id?currency=USD.
// An account with no ledger activity reports zero in every bucket.
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	accountID, err := uuid.Parse(c.Param("account_id"))
	if err != nil {
		response.Error(c, apperror.Validation("account_id must be a UUID"))
		return
	}

	currency := strings.ToUpper(c.Query("currency"))
	if len(currency) != 3 {
		response.Error(c, apperror.Validation("currency must be a 3-letter code"))
		return
	}

	bal, err := h.ledgerSvc.GetBalance(c.Request.Context(), tenantID, accountID, currency)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		AccountID: accountID.String(),
		Currency:  currency,
		Available: bal.Available,
		Held:      bal.Held,
		Pending:   bal.Pending,
		Total:     bal.Total(),
	})
}

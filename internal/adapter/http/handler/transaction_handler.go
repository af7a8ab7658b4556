package handler

import (
	"time"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransactionHandler exposes the deposit/withdrawal lifecycle.
type TransactionHandler struct {
	txSvc ports.TransactionService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(txSvc ports.TransactionService) *TransactionHandler {
	return &TransactionHandler{txSvc: txSvc}
}

// Create handles POST /v1/transactions. Resubmitting the same
// (tenant, idempotency key) returns the original transaction.
func (h *TransactionHandler) Create(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		response.Error(c, apperror.Validation("account_id must be a UUID"))
		return
	}

	txn, err := h.txSvc.Create(c.Request.Context(), ports.CreateTransactionRequest{
		TenantID:       tenantID,
		AccountID:      accountID,
		Type:           domain.TxType(req.Type),
		Amount:         req.Amount,
		Currency:       req.Currency,
		IdempotencyKey: req.IdempotencyKey,
		Provider:       req.Provider,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(txn))
}

// Transition handles POST /v1/transactions/:id/transition.
func (h *TransactionHandler) Transition(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("transaction id must be a UUID"))
		return
	}

	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := h.txSvc.Transition(c.Request.Context(), txID, domain.TxState(req.To), req.ProviderRef)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransactionResponse(txn))
}

// Get handles GET /v1/transactions/:id.
func (h *TransactionHandler) Get(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("transaction id must be a UUID"))
		return
	}

	txn, err := h.txSvc.Get(c.Request.Context(), txID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransactionResponse(txn))
}

// toTransactionResponse converts domain.Transaction to its DTO.
func toTransactionResponse(txn *domain.Transaction) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:             txn.ID.String(),
		TenantID:       txn.TenantID.String(),
		AccountID:      txn.AccountID.String(),
		Type:           string(txn.Type),
		Amount:         txn.Amount,
		Currency:       txn.Currency,
		State:          string(txn.State),
		IdempotencyKey: txn.IdempotencyKey,
		Provider:       txn.Provider,
		CreatedAt:      txn.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      txn.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for _, a := range txn.Attempts {
		resp.Attempts = append(resp.Attempts, dto.AttemptResponse{
			From:        string(a.From),
			To:          string(a.To),
			ProviderRef: a.ProviderRef,
			At:          a.At.UTC().Format(time.RFC3339),
		})
	}
	return resp
}

package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("LEDGER_001", "Insufficient available balance", http.StatusPaymentRequired),
			expected: "[LEDGER_001] Insufficient available balance",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New("LEDGER_002", "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestSecurityErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"SignatureMissing", ErrSignatureMissing(), "SEC_001", 400},
		{"TimestampInvalid", ErrTimestampInvalid(), "SEC_002", 401},
		{"SignatureInvalid", ErrSignatureInvalid(), "SEC_003", 401},
		{"InvalidPayload", ErrInvalidPayload(fmt.Errorf("bad json")), "SEC_004", 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestLedgerErrors(t *testing.T) {
	assert.Equal(t, "LEDGER_001", ErrInsufficientFunds().Code)
	assert.Equal(t, http.StatusPaymentRequired, ErrInsufficientFunds().HTTPStatus)
	assert.Equal(t, "LEDGER_003", ErrMissingIdempotencyKey().Code)
	assert.Equal(t, http.StatusBadRequest, ErrMissingIdempotencyKey().HTTPStatus)
}

func TestValidation_HasOwnCode(t *testing.T) {
	err := Validation("currency is required")
	assert.Equal(t, "REQ_001", err.Code)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
	assert.NotEqual(t, ErrInvalidAmount().Code, err.Code,
		"generic validation must be distinguishable from a bad amount")
}

func TestIllegalStateTransition_CarriesEdge(t *testing.T) {
	err := ErrIllegalStateTransition("withdrawal", "paid", "approved")
	assert.Equal(t, "TX_001", err.Code)
	assert.Equal(t, http.StatusConflict, err.HTTPStatus)
	assert.Contains(t, err.Message, "withdrawal")
	assert.Contains(t, err.Message, "paid")
	assert.Contains(t, err.Message, "approved")
}

func TestChainCorrupted_CarriesSequence(t *testing.T) {
	err := ErrChainCorrupted(42)
	assert.Equal(t, "AUDIT_001", err.Code)
	assert.Contains(t, err.Message, "42")
}

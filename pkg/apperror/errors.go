package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Ledger business rules (LEDGER) ----

// ErrInsufficientFunds: the delta would drive available below zero.
// Never retried automatically.
func ErrInsufficientFunds() *AppError {
	return New("LEDGER_001", "Insufficient available balance", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New("LEDGER_002", "Invalid amount", http.StatusBadRequest)
}

// ErrMissingIdempotencyKey: player-facing mutations must carry a key.
func ErrMissingIdempotencyKey() *AppError {
	return New("LEDGER_003", "Idempotency key is required", http.StatusBadRequest)
}

func ErrBalanceNotFound() *AppError {
	return New("LEDGER_004", "Balance not found", http.StatusNotFound)
}

// ---- Transaction lifecycle (TX) ----

// ErrIllegalStateTransition carries the attempted edge for diagnosis.
func ErrIllegalStateTransition(txType, from, to string) *AppError {
	return New("TX_001",
		fmt.Sprintf("Illegal state transition: %s %s -> %s", txType, from, to),
		http.StatusConflict)
}

func ErrTransactionNotFound() *AppError {
	return New("TX_002", "Transaction not found", http.StatusNotFound)
}

// ---- Webhook security (SEC) ----
// Security rejections are always logged and never silently retried. The
// 4xx statuses below are chosen so well-behaved providers back off
// instead of retrying forever.

func ErrSignatureMissing() *AppError {
	return New("SEC_001", "Signature or timestamp header missing", http.StatusBadRequest)
}

func ErrTimestampInvalid() *AppError {
	return New("SEC_002", "Request timestamp outside tolerance", http.StatusUnauthorized)
}

func ErrSignatureInvalid() *AppError {
	return New("SEC_003", "Invalid signature", http.StatusUnauthorized)
}

func ErrInvalidPayload(err error) *AppError {
	return Wrap("SEC_004", "Malformed provider event payload", http.StatusBadRequest, err)
}

// ---- Reconciliation (RECON) ----

func ErrReconciliationJobFailed(err error) *AppError {
	return Wrap("RECON_001", "Reconciliation run failed", http.StatusInternalServerError, err)
}

func ErrFindingNotFound() *AppError {
	return New("RECON_002", "Finding not found", http.StatusNotFound)
}

func ErrFindingNotOpen() *AppError {
	return New("RECON_003", "Finding is not open", http.StatusConflict)
}

func ErrInvalidWindow() *AppError {
	return New("RECON_004", "Invalid reconciliation window", http.StatusBadRequest)
}

func ErrRunNotFound() *AppError {
	return New("RECON_005", "Reconciliation run not found", http.StatusNotFound)
}

// ---- Audit chain (AUDIT) ----

// ErrChainCorrupted: fatal to compliance reporting, not to live traffic.
func ErrChainCorrupted(seq int64) *AppError {
	return New("AUDIT_001",
		fmt.Sprintf("Audit chain corrupted at sequence %d", seq),
		http.StatusInternalServerError)
}

// ---- Operator auth (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a generic request validation error. Malformed
// amounts keep their own LEDGER_002 code via ErrInvalidAmount.
func Validation(message string) *AppError {
	return New("REQ_001", message, http.StatusBadRequest)
}

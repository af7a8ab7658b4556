package dto

// CreateTransactionRequest is the request body for creating a deposit or
// withdrawal transaction.
type CreateTransactionRequest struct {
	AccountID      string `json:"account_id" binding:"required,uuid"`
	Type           string `json:"type" binding:"required,oneof=deposit withdrawal"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	Currency       string `json:"currency" binding:"required,len=3"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,max=128,safe_id"`
	Provider       string `json:"provider" binding:"omitempty,max=64,safe_id"`
}

// TransitionRequest is the request body for moving a transaction along
// one lifecycle edge.
type TransitionRequest struct {
	To          string `json:"to" binding:"required,oneof=created pending_provider completed failed requested approved paid rejected"`
	ProviderRef string `json:"provider_ref" binding:"omitempty,max=128"`
}

// AttemptResponse is one recorded transition of a transaction.
type AttemptResponse struct {
	From        string `json:"from"`
	To          string `json:"to"`
	ProviderRef string `json:"provider_ref,omitempty"`
	At          string `json:"at"`
}

// TransactionResponse is the response body for transaction endpoints.
type TransactionResponse struct {
	ID             string            `json:"id"`
	TenantID       string            `json:"tenant_id"`
	AccountID      string            `json:"account_id"`
	Type           string            `json:"type"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	State          string            `json:"state"`
	IdempotencyKey string            `json:"idempotency_key"`
	Provider       *string           `json:"provider,omitempty"`
	Attempts       []AttemptResponse `json:"attempts,omitempty"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
}

// BalanceResponse is the response for a balance query. Amounts are minor
// units (cents).
type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Currency  string `json:"currency"`
	Available int64  `json:"available"`
	Held      int64  `json:"held"`
	Pending   int64  `json:"pending"`
	Total     int64  `json:"total"`
}

// CreateReconRunRequest is the request body for registering a
// reconciliation run over a provider window.
type CreateReconRunRequest struct {
	Provider    string `json:"provider" binding:"required,max=64,safe_id"`
	WindowStart string `json:"window_start" binding:"required"` // RFC 3339
	WindowEnd   string `json:"window_end" binding:"required"`   // RFC 3339
}

// ReconRunResponse is the response body for reconciliation runs.
type ReconRunResponse struct {
	ID           string  `json:"id"`
	Provider     string  `json:"provider"`
	WindowStart  string  `json:"window_start"`
	WindowEnd    string  `json:"window_end"`
	Status       string  `json:"status"`
	FindingCount int     `json:"finding_count"`
	Reason       *string `json:"reason,omitempty"`
	StartedAt    *string `json:"started_at,omitempty"`
	FinishedAt   *string `json:"finished_at,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// FindingResponse is one reconciliation discrepancy.
type FindingResponse struct {
	ID              string  `json:"id"`
	RunID           string  `json:"run_id"`
	Provider        string  `json:"provider"`
	TenantID        *string `json:"tenant_id,omitempty"`
	AccountID       *string `json:"account_id,omitempty"`
	ProviderEventID string  `json:"provider_event_id"`
	Type            string  `json:"finding_type"`
	Severity        string  `json:"severity"`
	Status          string  `json:"status"`
	Message         string  `json:"message"`
	CreatedAt       string  `json:"created_at"`
}

// FindingListResponse wraps a filtered finding listing.
type FindingListResponse struct {
	Items  []FindingResponse `json:"items"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// AuditVerifyResponse reports the result of a chain verification pass.
type AuditVerifyResponse struct {
	TenantID string `json:"tenant_id"`
	Valid    bool   `json:"valid"`
}

package ports

import (
	"context"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SignatureService handles HMAC-SHA256 signing and verification of
// provider callbacks and outbound PSP requests.
type SignatureService interface {
	Sign(secret []byte, payload string) string
	// Verify compares in constant time.
	Verify(secret []byte, payload string, signature string) bool
	// BuildWebhookPayload is the canonical signed string for callbacks:
	// "<unix timestamp>.<raw body>".
	BuildWebhookPayload(timestamp int64, body []byte) string
}

// SecretService derives per-(provider, tenant) webhook secrets from the
// configured master key.
type SecretService interface {
	WebhookSecret(provider string, tenantID uuid.UUID) ([]byte, error)
}

// NonceStore manages provider event id uniqueness for replay detection.
type NonceStore interface {
	// CheckAndSet atomically claims an event id. Returns true if it was
	// unseen, false if a delivery already claimed it.
	CheckAndSet(ctx context.Context, provider, eventID string, ttl time.Duration) (bool, error)
}

// IdempotencyCache caches the serialized response of a processed provider
// event so replays can short-circuit before touching the database.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil, nil on miss
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// TokenService issues and validates operator tokens for the ops surface.
type TokenService interface {
	Generate(operator string, tenantID uuid.UUID) (string, time.Time, error)
	Validate(token string) (*TokenClaims, error)
}

// TokenClaims holds parsed operator token claims.
type TokenClaims struct {
	Operator string
	TenantID uuid.UUID
}

// --- Ledger core ---

// ApplyRequest is the input to LedgerService.ApplyDelta.
type ApplyRequest struct {
	TenantID        uuid.UUID
	AccountID       uuid.UUID
	Currency        string
	Type            domain.EntryType
	Direction       domain.Direction
	Amount          int64 // Positive magnitude, minor units
	DeltaAvailable  int64
	DeltaHeld       int64
	DeltaPending    int64
	IdempotencyKey  string // Required unless Type is adjustment
	Provider        string
	ProviderRef     string
	ProviderEventID string
	Actor           string
}

// ApplyResult is the typed outcome of an apply. A duplicate is a normal,
// successful outcome, not an error.
type ApplyResult struct {
	Entry          *domain.LedgerEntry
	AlreadyApplied bool
}

// LedgerService owns all balance mutation. Nothing else writes balances.
type LedgerService interface {
	ApplyDelta(ctx context.Context, req ApplyRequest) (*ApplyResult, error)
	// ApplyDeltaInTx runs the apply inside a caller-owned transaction so a
	// state transition and its ledger effect commit atomically. On
	// ErrDuplicateEntry the caller must roll back and re-read.
	ApplyDeltaInTx(ctx context.Context, tx pgx.Tx, req ApplyRequest) (*ApplyResult, error)
	GetBalance(ctx context.Context, tenantID, accountID uuid.UUID, currency string) (*domain.Balance, error)
}

// CreateTransactionRequest is the input to TransactionService.Create.
type CreateTransactionRequest struct {
	TenantID       uuid.UUID
	AccountID      uuid.UUID
	Type           domain.TxType
	Amount         int64
	Currency       string
	IdempotencyKey string
	Provider       string
}

// TransactionService governs the deposit/withdrawal lifecycle.
type TransactionService interface {
	Create(ctx context.Context, req CreateTransactionRequest) (*domain.Transaction, error)
	// Transition moves a transaction along an allowed edge, applying the
	// edge's balance effect in the same atomic unit as the state write.
	// Transitioning to the current state is an idempotent no-op.
	Transition(ctx context.Context, txID uuid.UUID, to domain.TxState, providerRef string) (*domain.Transaction, error)
	Get(ctx context.Context, txID uuid.UUID) (*domain.Transaction, error)
}

// --- Webhook security gate ---

// WebhookHeaders are the authentication headers of a provider callback.
type WebhookHeaders struct {
	Signature string
	Timestamp string
}

// WebhookResult is the response body of an accepted callback. Replays of
// an already-processed event return the original result with Replayed set.
type WebhookResult struct {
	EventID  string          `json:"event_id"`
	Status   string          `json:"status"` // "applied" or "replayed"
	EntryID  *uuid.UUID      `json:"entry_id,omitempty"`
	TxState  *domain.TxState `json:"tx_state,omitempty"`
	Replayed bool            `json:"replayed"`
}

// WebhookGate authenticates, deduplicates, and dispatches provider events.
type WebhookGate interface {
	HandleProviderEvent(ctx context.Context, provider string, headers WebhookHeaders, rawBody []byte) (*WebhookResult, error)
}

// --- Reconciliation ---

// ExportFeed enumerates a provider's exported events for a window.
type ExportFeed interface {
	Fetch(ctx context.Context, provider string, start, end time.Time) ([]domain.ExportRecord, error)
}

// ReconService diffs the ledger against provider exports.
type ReconService interface {
	// CreateRun registers a (provider, window) run, returning the existing
	// run when one was already created for the same window.
	CreateRun(ctx context.Context, provider string, start, end time.Time) (*domain.ReconRun, error)
	// Execute drives a queued run to a terminal state.
	Execute(ctx context.Context, runID uuid.UUID) (*domain.ReconRun, error)
	ListFindings(ctx context.Context, params FindingListParams) ([]domain.Finding, error)
	ResolveFinding(ctx context.Context, id uuid.UUID) (*domain.Finding, error)
}

// --- Audit chain ---

// AuditService appends to and verifies per-tenant hash chains.
type AuditService interface {
	// Append writes the next chain link inside the caller's transaction so
	// it commits atomically with the mutation it describes.
	Append(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, actor, action, resourceType, resourceID string, details interface{}) (*domain.AuditEvent, error)
	// VerifyChain recomputes every hash in sequence order. On corruption it
	// returns the first breaking sequence number and ok=false.
	VerifyChain(ctx context.Context, tenantID uuid.UUID) (ok bool, brokenSeq int64, err error)
}

// --- External collaborators ---

// PSPClient is the outbound payment-provider API.
type PSPClient interface {
	Authorize(ctx context.Context, amount int64, currency string, accountID uuid.UUID, idemKey string) (*domain.ProviderResult, error)
	Payout(ctx context.Context, amount int64, currency string, accountID uuid.UUID, idemKey string) (*domain.ProviderResult, error)
	Refund(ctx context.Context, providerRef string, amount int64, idemKey string) (*domain.ProviderResult, error)
}

// EventPublisher publishes committed ledger entries for downstream
// consumers. Publish failures are logged, never propagated: the ledger
// commit is the source of truth.
type EventPublisher interface {
	PublishEntry(ctx context.Context, e *domain.LedgerEntry) error
}

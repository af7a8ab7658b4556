package ports

import (
	"context"
	"errors"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrDuplicateEntry signals that an insert hit one of the ledger's two
// deduplication keys. Callers treat it as "already applied", not a failure.
var ErrDuplicateEntry = errors.New("duplicate ledger entry")

// BalanceRepository defines persistence for balance rows.
// Methods accepting pgx.Tx run inside transaction blocks; GetForUpdate
// takes the row-level exclusive lock that serializes all writes to one
// (tenant, account, currency).
type BalanceRepository interface {
	Get(ctx context.Context, tenantID, accountID uuid.UUID, currency string) (*domain.Balance, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, tenantID, accountID uuid.UUID, currency string) (*domain.Balance, error)
	// EnsureRow inserts a zero balance row if none exists. Safe to call
	// before GetForUpdate; conflicts are ignored.
	EnsureRow(ctx context.Context, tx pgx.Tx, tenantID, accountID uuid.UUID, currency string) error
	Update(ctx context.Context, tx pgx.Tx, b *domain.Balance) error
}

// LedgerRepository defines persistence for the append-only ledger log.
type LedgerRepository interface {
	// Insert appends an entry. Returns apperror duplicate sentinel when the
	// unique index on (tenant, account, type, idempotency_key) or
	// (provider, provider_event_id) rejects the row.
	Insert(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error
	GetByIdempotencyKey(ctx context.Context, tenantID, accountID uuid.UUID, typ domain.EntryType, key string) (*domain.LedgerEntry, error)
	GetByProviderEvent(ctx context.Context, provider, providerEventID string) (*domain.LedgerEntry, error)
	// ListByProviderWindow returns provider-correlated entries committed
	// within [start, end), for reconciliation.
	ListByProviderWindow(ctx context.Context, provider string, start, end time.Time) ([]domain.LedgerEntry, error)
}

// TransactionRepository defines persistence for transaction records.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, typ domain.TxType, key string) (*domain.Transaction, error)
	// UpdateState persists the new state and the appended attempt list.
	UpdateState(ctx context.Context, tx pgx.Tx, id uuid.UUID, state domain.TxState, attempts []domain.Attempt) error
}

// ReconRepository defines persistence for reconciliation runs and findings.
type ReconRepository interface {
	// CreateRun inserts a run. The unique (provider, window) index makes
	// this the run-level idempotency check.
	CreateRun(ctx context.Context, run *domain.ReconRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*domain.ReconRun, error)
	GetRunByWindow(ctx context.Context, provider string, start, end time.Time) (*domain.ReconRun, error)
	// ClaimRun flips a queued run to running. Returns false when the run
	// is not queued, so exactly one caller wins a concurrent claim.
	ClaimRun(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error)
	UpdateRun(ctx context.Context, run *domain.ReconRun) error
	InsertFinding(ctx context.Context, f *domain.Finding) error
	GetFinding(ctx context.Context, id uuid.UUID) (*domain.Finding, error)
	ListFindings(ctx context.Context, params FindingListParams) ([]domain.Finding, error)
	// ResolveFinding flips status open→resolved. Returns false if the
	// finding was not open.
	ResolveFinding(ctx context.Context, id uuid.UUID) (bool, error)
}

// FindingListParams filters finding listings.
type FindingListParams struct {
	Provider string
	RunID    *uuid.UUID
	Type     *domain.FindingType
	Status   *domain.FindingStatus
	Limit    int
	Offset   int
}

// AuditRepository defines persistence for the append-only audit chain.
// Events are only ever inserted; there is no update or delete path.
type AuditRepository interface {
	// Head returns the last event of a tenant's chain, locking it so
	// concurrent appends serialize. Returns nil for an empty chain.
	Head(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID) (*domain.AuditEvent, error)
	Insert(ctx context.Context, tx pgx.Tx, e *domain.AuditEvent) error
	// ListChain returns a tenant's events in sequence order.
	ListChain(ctx context.Context, tenantID uuid.UUID) ([]domain.AuditEvent, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

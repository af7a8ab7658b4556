package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// LedgerRepo implements ports.LedgerRepository. The ledger_entries table
// is append-only: this repo has no update or delete statements.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

const ledgerColumns = `id, tenant_id, account_id, type, direction, amount, currency, status,
		idempotency_key, provider, provider_ref, provider_event_id, created_at`

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{}
	err := row.Scan(
		&e.ID, &e.TenantID, &e.AccountID, &e.Type, &e.Direction,
		&e.Amount, &e.Currency, &e.Status,
		&e.IdempotencyKey, &e.Provider, &e.ProviderRef, &e.ProviderEventID,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// Insert appends a ledger entry within a database transaction. The unique
// partial indexes on (tenant_id, account_id, type, idempotency_key) and
// (provider, provider_event_id) are the authoritative dedup check:
// a conflict surfaces as ports.ErrDuplicateEntry.
func (r *LedgerRepo) Insert(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.TenantID, e.AccountID, e.Type, e.Direction,
		e.Amount, e.Currency, e.Status,
		e.IdempotencyKey, e.Provider, e.ProviderRef, e.ProviderEventID,
		e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ports.ErrDuplicateEntry
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// GetByIdempotencyKey fetches an entry by its caller-scoped dedup key.
func (r *LedgerRepo) GetByIdempotencyKey(ctx context.Context, tenantID, accountID uuid.UUID, typ domain.EntryType, key string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE tenant_id = $1 AND account_id = $2 AND type = $3 AND idempotency_key = $4`

	e, err := scanEntry(r.pool.QueryRow(ctx, query, tenantID, accountID, typ, key))
	if err != nil {
		return nil, fmt.Errorf("get entry by idempotency key: %w", err)
	}
	return e, nil
}

// GetByProviderEvent fetches an entry by its provider-scoped dedup key.
func (r *LedgerRepo) GetByProviderEvent(ctx context.Context, provider, providerEventID string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE provider = $1 AND provider_event_id = $2`

	e, err := scanEntry(r.pool.QueryRow(ctx, query, provider, providerEventID))
	if err != nil {
		return nil, fmt.Errorf("get entry by provider event: %w", err)
	}
	return e, nil
}

// ListByProviderWindow returns provider-correlated entries committed in
// [start, end), ordered by creation time. Used by reconciliation.
func (r *LedgerRepo) ListByProviderWindow(ctx context.Context, provider string, start, end time.Time) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE provider = $1 AND provider_event_id IS NOT NULL
		  AND created_at >= $2 AND created_at < $3
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, provider, start, end)
	if err != nil {
		return nil, fmt.Errorf("list entries by provider window: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e := domain.LedgerEntry{}
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.AccountID, &e.Type, &e.Direction,
			&e.Amount, &e.Currency, &e.Status,
			&e.IdempotencyKey, &e.Provider, &e.ProviderRef, &e.ProviderEventID,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

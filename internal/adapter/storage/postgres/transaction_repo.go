package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const txColumns = `id, tenant_id, account_id, type, amount, currency, state,
		idempotency_key, provider, provider_event_id, attempts, created_at, updated_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var attempts []byte
	err := row.Scan(
		&t.ID, &t.TenantID, &t.AccountID, &t.Type, &t.Amount, &t.Currency, &t.State,
		&t.IdempotencyKey, &t.Provider, &t.ProviderEventID, &attempts,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &t.Attempts); err != nil {
			return nil, fmt.Errorf("decode attempts: %w", err)
		}
	}
	return t, nil
}

// Create inserts a new transaction record. The unique index on
// (tenant_id, type, idempotency_key) surfaces as ports.ErrDuplicateEntry.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	attempts, err := json.Marshal(t.Attempts)
	if err != nil {
		return fmt.Errorf("encode attempts: %w", err)
	}

	query := `INSERT INTO transactions (` + txColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = tx.Exec(ctx, query,
		t.ID, t.TenantID, t.AccountID, t.Type, t.Amount, t.Currency, t.State,
		t.IdempotencyKey, t.Provider, t.ProviderEventID, attempts,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ports.ErrDuplicateEntry
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction without locking.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// GetForUpdate fetches a transaction with a row lock so concurrent
// transitions on the same record serialize. MUST be called within a
// transaction.
func (r *TransactionRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`

	t, err := scanTransaction(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get transaction for update: %w", err)
	}
	return t, nil
}

// GetByIdempotencyKey fetches a transaction by its creation dedup key.
func (r *TransactionRepo) GetByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, typ domain.TxType, key string) (*domain.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions
		WHERE tenant_id = $1 AND type = $2 AND idempotency_key = $3`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, tenantID, typ, key))
	if err != nil {
		return nil, fmt.Errorf("get transaction by idempotency key: %w", err)
	}
	return t, nil
}

// UpdateState persists a transition within a database transaction.
func (r *TransactionRepo) UpdateState(ctx context.Context, tx pgx.Tx, id uuid.UUID, state domain.TxState, attempts []domain.Attempt) error {
	encoded, err := json.Marshal(attempts)
	if err != nil {
		return fmt.Errorf("encode attempts: %w", err)
	}

	query := `UPDATE transactions SET state = $1, attempts = $2, updated_at = NOW() WHERE id = $3`

	tag, err := tx.Exec(ctx, query, state, encoded, id)
	if err != nil {
		return fmt.Errorf("update transaction state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

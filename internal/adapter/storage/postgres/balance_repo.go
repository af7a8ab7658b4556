package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BalanceRepo implements ports.BalanceRepository.
type BalanceRepo struct {
	pool Pool
}

// NewBalanceRepo creates a new BalanceRepo.
func NewBalanceRepo(pool Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

const balanceColumns = `tenant_id, account_id, currency, available, held, pending, created_at, updated_at`

func scanBalance(row pgx.Row) (*domain.Balance, error) {
	b := &domain.Balance{}
	err := row.Scan(
		&b.TenantID, &b.AccountID, &b.Currency,
		&b.Available, &b.Held, &b.Pending,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// Get fetches a balance row without locking.
func (r *BalanceRepo) Get(ctx context.Context, tenantID, accountID uuid.UUID, currency string) (*domain.Balance, error) {
	query := `SELECT ` + balanceColumns + ` FROM account_balances
		WHERE tenant_id = $1 AND account_id = $2 AND currency = $3`

	b, err := scanBalance(r.pool.QueryRow(ctx, query, tenantID, accountID, currency))
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// GetForUpdate fetches a balance row with a row-level exclusive lock.
// This is the single serialization point for all writes to one
// (tenant, account, currency). MUST be called within a transaction.
func (r *BalanceRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, tenantID, accountID uuid.UUID, currency string) (*domain.Balance, error) {
	query := `SELECT ` + balanceColumns + ` FROM account_balances
		WHERE tenant_id = $1 AND account_id = $2 AND currency = $3 FOR UPDATE`

	b, err := scanBalance(tx.QueryRow(ctx, query, tenantID, accountID, currency))
	if err != nil {
		return nil, fmt.Errorf("get balance for update: %w", err)
	}
	return b, nil
}

// EnsureRow inserts a zero balance row, ignoring conflicts. Called before
// GetForUpdate so first-time credits find a row to lock.
func (r *BalanceRepo) EnsureRow(ctx context.Context, tx pgx.Tx, tenantID, accountID uuid.UUID, currency string) error {
	query := `INSERT INTO account_balances (tenant_id, account_id, currency, available, held, pending, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, 0, NOW(), NOW())
		ON CONFLICT (tenant_id, account_id, currency) DO NOTHING`

	if _, err := tx.Exec(ctx, query, tenantID, accountID, currency); err != nil {
		return fmt.Errorf("ensure balance row: %w", err)
	}
	return nil
}

// Update persists new totals for a locked balance row.
func (r *BalanceRepo) Update(ctx context.Context, tx pgx.Tx, b *domain.Balance) error {
	query := `UPDATE account_balances
		SET available = $1, held = $2, pending = $3, updated_at = NOW()
		WHERE tenant_id = $4 AND account_id = $5 AND currency = $6`

	tag, err := tx.Exec(ctx, query,
		b.Available, b.Held, b.Pending,
		b.TenantID, b.AccountID, b.Currency,
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("balance row not found: %s/%s/%s", b.TenantID, b.AccountID, b.Currency)
	}
	return nil
}

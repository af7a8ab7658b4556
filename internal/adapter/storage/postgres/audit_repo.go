package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AuditRepo implements ports.AuditRepository. audit_events is append-only:
// there is no update or delete path, and the table carries a trigger that
// rejects UPDATE/DELETE at the database level.
type AuditRepo struct {
	pool Pool
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(pool Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

const auditColumns = `tenant_id, sequence, row_hash, prev_row_hash, actor, action,
		resource_type, resource_id, details, created_at`

// Head returns the latest event in a tenant's chain, locked so concurrent
// appends to the same chain serialize. Returns nil for an empty chain.
func (r *AuditRepo) Head(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID) (*domain.AuditEvent, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_events
		WHERE tenant_id = $1 ORDER BY sequence DESC LIMIT 1 FOR UPDATE`

	e := &domain.AuditEvent{}
	err := tx.QueryRow(ctx, query, tenantID).Scan(
		&e.TenantID, &e.Sequence, &e.RowHash, &e.PrevRowHash,
		&e.Actor, &e.Action, &e.ResourceType, &e.ResourceID,
		&e.Details, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get audit chain head: %w", err)
	}
	return e, nil
}

// Insert appends an event within a database transaction.
func (r *AuditRepo) Insert(ctx context.Context, tx pgx.Tx, e *domain.AuditEvent) error {
	query := `INSERT INTO audit_events (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		e.TenantID, e.Sequence, e.RowHash, e.PrevRowHash,
		e.Actor, e.Action, e.ResourceType, e.ResourceID,
		e.Details, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListChain returns a tenant's events in sequence order for verification.
func (r *AuditRepo) ListChain(ctx context.Context, tenantID uuid.UUID) ([]domain.AuditEvent, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_events
		WHERE tenant_id = $1 ORDER BY sequence`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list audit chain: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		e := domain.AuditEvent{}
		if err := rows.Scan(
			&e.TenantID, &e.Sequence, &e.RowHash, &e.PrevRowHash,
			&e.Actor, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.Details, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

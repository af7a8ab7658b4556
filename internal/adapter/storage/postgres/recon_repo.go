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

// ReconRepo implements ports.ReconRepository.
type ReconRepo struct {
	pool Pool
}

// NewReconRepo creates a new ReconRepo.
func NewReconRepo(pool Pool) *ReconRepo {
	return &ReconRepo{pool: pool}
}

const runColumns = `id, provider, window_start, window_end, status, finding_count, reason,
		started_at, finished_at, created_at`

func scanRun(row pgx.Row) (*domain.ReconRun, error) {
	run := &domain.ReconRun{}
	err := row.Scan(
		&run.ID, &run.Provider, &run.WindowStart, &run.WindowEnd,
		&run.Status, &run.FindingCount, &run.Reason,
		&run.StartedAt, &run.FinishedAt, &run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

// CreateRun inserts a run. The unique index on
// (provider, window_start, window_end) makes re-triggering the same window
// surface as ports.ErrDuplicateEntry instead of a second run.
func (r *ReconRepo) CreateRun(ctx context.Context, run *domain.ReconRun) error {
	query := `INSERT INTO recon_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		run.ID, run.Provider, run.WindowStart, run.WindowEnd,
		run.Status, run.FindingCount, run.Reason,
		run.StartedAt, run.FinishedAt, run.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ports.ErrDuplicateEntry
		}
		return fmt.Errorf("insert recon run: %w", err)
	}
	return nil
}

// GetRun fetches a run by id.
func (r *ReconRepo) GetRun(ctx context.Context, id uuid.UUID) (*domain.ReconRun, error) {
	query := `SELECT ` + runColumns + ` FROM recon_runs WHERE id = $1`

	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get recon run: %w", err)
	}
	return run, nil
}

// GetRunByWindow fetches the run registered for a (provider, window).
func (r *ReconRepo) GetRunByWindow(ctx context.Context, provider string, start, end time.Time) (*domain.ReconRun, error) {
	query := `SELECT ` + runColumns + ` FROM recon_runs
		WHERE provider = $1 AND window_start = $2 AND window_end = $3`

	run, err := scanRun(r.pool.QueryRow(ctx, query, provider, start, end))
	if err != nil {
		return nil, fmt.Errorf("get recon run by window: %w", err)
	}
	return run, nil
}

// ClaimRun is the compare-and-swap that serializes run execution: only
// the caller whose UPDATE moves queued→running may diff the window.
func (r *ReconRepo) ClaimRun(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	query := `UPDATE recon_runs
		SET status = $1, started_at = $2
		WHERE id = $3 AND status = $4`

	tag, err := r.pool.Exec(ctx, query,
		domain.RunStatusRunning, startedAt, id, domain.RunStatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("claim recon run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateRun persists run lifecycle fields.
func (r *ReconRepo) UpdateRun(ctx context.Context, run *domain.ReconRun) error {
	query := `UPDATE recon_runs
		SET status = $1, finding_count = $2, reason = $3, started_at = $4, finished_at = $5
		WHERE id = $6`

	tag, err := r.pool.Exec(ctx, query,
		run.Status, run.FindingCount, run.Reason, run.StartedAt, run.FinishedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update recon run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recon run not found: %s", run.ID)
	}
	return nil
}

const findingColumns = `id, run_id, provider, tenant_id, account_id, tx_id, provider_event_id,
		finding_type, severity, status, message, raw_payload, created_at`

// InsertFinding appends a finding.
func (r *ReconRepo) InsertFinding(ctx context.Context, f *domain.Finding) error {
	query := `INSERT INTO recon_findings (` + findingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		f.ID, f.RunID, f.Provider, f.TenantID, f.AccountID, f.TxID, f.ProviderEventID,
		f.Type, f.Severity, f.Status, f.Message, f.RawPayload, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

func scanFinding(row pgx.Row) (*domain.Finding, error) {
	f := &domain.Finding{}
	err := row.Scan(
		&f.ID, &f.RunID, &f.Provider, &f.TenantID, &f.AccountID, &f.TxID, &f.ProviderEventID,
		&f.Type, &f.Severity, &f.Status, &f.Message, &f.RawPayload, &f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

// GetFinding fetches a finding by id.
func (r *ReconRepo) GetFinding(ctx context.Context, id uuid.UUID) (*domain.Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM recon_findings WHERE id = $1`

	f, err := scanFinding(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get finding: %w", err)
	}
	return f, nil
}

// ListFindings returns findings matching the filter, newest first.
func (r *ReconRepo) ListFindings(ctx context.Context, params ports.FindingListParams) ([]domain.Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM recon_findings WHERE provider = $1`
	args := []any{params.Provider}

	if params.RunID != nil {
		args = append(args, *params.RunID)
		query += fmt.Sprintf(" AND run_id = $%d", len(args))
	}
	if params.Type != nil {
		args = append(args, *params.Type)
		query += fmt.Sprintf(" AND finding_type = $%d", len(args))
	}
	if params.Status != nil {
		args = append(args, *params.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"
	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var findings []domain.Finding
	for rows.Next() {
		f := domain.Finding{}
		if err := rows.Scan(
			&f.ID, &f.RunID, &f.Provider, &f.TenantID, &f.AccountID, &f.TxID, &f.ProviderEventID,
			&f.Type, &f.Severity, &f.Status, &f.Message, &f.RawPayload, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings: %w", err)
	}
	return findings, nil
}

// ResolveFinding flips status open→resolved. The WHERE clause makes the
// check-and-update atomic; false means the finding was missing or already
// resolved.
func (r *ReconRepo) ResolveFinding(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE recon_findings SET status = $1 WHERE id = $2 AND status = $3`

	tag, err := r.pool.Exec(ctx, query, domain.FindingStatusResolved, id, domain.FindingStatusOpen)
	if err != nil {
		return false, fmt.Errorf("resolve finding: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

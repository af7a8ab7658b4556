package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runColumnNames() []string {
	return []string{"id", "provider", "window_start", "window_end", "status", "finding_count", "reason",
		"started_at", "finished_at", "created_at"}
}

func findingColumnNames() []string {
	return []string{"id", "run_id", "provider", "tenant_id", "account_id", "tx_id", "provider_event_id",
		"finding_type", "severity", "status", "message", "raw_payload", "created_at"}
}

func newTestRun() *domain.ReconRun {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.ReconRun{
		ID:          uuid.New(),
		Provider:    "acmepay",
		WindowStart: now.Add(-time.Hour),
		WindowEnd:   now,
		Status:      domain.RunStatusQueued,
		CreatedAt:   now,
	}
}

func runRow(run *domain.ReconRun) *pgxmock.Rows {
	return pgxmock.NewRows(runColumnNames()).AddRow(
		run.ID, run.Provider, run.WindowStart, run.WindowEnd,
		run.Status, run.FindingCount, run.Reason,
		run.StartedAt, run.FinishedAt, run.CreatedAt,
	)
}

func TestReconRepo_CreateRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReconRepo(mock)
	run := newTestRun()

	mock.ExpectExec("INSERT INTO recon_runs").
		WithArgs(
			run.ID, run.Provider, run.WindowStart, run.WindowEnd,
			run.Status, run.FindingCount, run.Reason,
			run.StartedAt, run.FinishedAt, run.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.CreateRun(context.Background(), run)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconRepo_CreateRun_WindowAlreadyRegistered(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReconRepo(mock)
	run := newTestRun()

	mock.ExpectExec("INSERT INTO recon_runs").
		WithArgs(
			run.ID, run.Provider, run.WindowStart, run.WindowEnd,
			run.Status, run.FindingCount, run.Reason,
			run.StartedAt, run.FinishedAt, run.CreatedAt,
		).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "recon_runs_provider_window"})

	err = repo.CreateRun(context.Background(), run)
	assert.True(t, errors.Is(err, ports.ErrDuplicateEntry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconRepo_GetRunByWindow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReconRepo(mock)
	run := newTestRun()

	mock.ExpectQuery("SELECT .+ FROM recon_runs").
		WithArgs(run.Provider, run.WindowStart, run.WindowEnd).
		WillReturnRows(runRow(run))

	result, err := repo.GetRunByWindow(context.Background(), run.Provider, run.WindowStart, run.WindowEnd)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, run.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconRepo_UpdateRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReconRepo(mock)
	run := newTestRun()
	now := time.Now().UTC()
	run.Status = domain.RunStatusCompleted
	run.FindingCount = 3
	run.StartedAt = &now
	run.FinishedAt = &now

	mock.ExpectExec("UPDATE recon_runs").
		WithArgs(run.Status, run.FindingCount, run.Reason, run.StartedAt, run.FinishedAt, run.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.UpdateRun(context.Background(), run)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconRepo_InsertFinding(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReconRepo(mock)
	f := &domain.Finding{
		ID:              uuid.New(),
		RunID:           uuid.New(),
		Provider:        "acmepay",
		ProviderEventID: "evt-1",
		Type:            domain.FindingMissingInLedger,
		Severity:        domain.SeverityWarn,
		Status:          domain.FindingStatusOpen,
		Message:         "event present in provider export, absent in ledger",
		CreatedAt:       time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO recon_findings").
		WithArgs(
			f.ID, f.RunID, f.Provider, f.TenantID, f.AccountID, f.TxID, f.ProviderEventID,
			f.Type, f.Severity, f.Status, f.Message, f.RawPayload, f.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.InsertFinding(context.Background(), f)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconRepo_ResolveFinding(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReconRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE recon_findings SET status").
		WithArgs(domain.FindingStatusResolved, id, domain.FindingStatusOpen).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.ResolveFinding(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconRepo_ResolveFinding_NotOpen(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReconRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE recon_findings SET status").
		WithArgs(domain.FindingStatusResolved, id, domain.FindingStatusOpen).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.ResolveFinding(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

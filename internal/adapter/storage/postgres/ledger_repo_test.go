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

func strPtr(s string) *string { return &s }

func ledgerColumnNames() []string {
	return []string{"id", "tenant_id", "account_id", "type", "direction", "amount", "currency", "status",
		"idempotency_key", "provider", "provider_ref", "provider_event_id", "created_at"}
}

func newTestEntry(tenantID, accountID uuid.UUID) *domain.LedgerEntry {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.LedgerEntry{
		ID:              uuid.New(),
		TenantID:        tenantID,
		AccountID:       accountID,
		Type:            domain.EntryTypeDeposit,
		Direction:       domain.DirectionCredit,
		Amount:          10000,
		Currency:        "USD",
		Status:          domain.EntryStatusApplied,
		IdempotencyKey:  strPtr("dep-001"),
		Provider:        strPtr("acmepay"),
		ProviderRef:     strPtr("ref-9"),
		ProviderEventID: strPtr("evt-123"),
		CreatedAt:       now,
	}
}

func entryRow(e *domain.LedgerEntry) *pgxmock.Rows {
	return pgxmock.NewRows(ledgerColumnNames()).AddRow(
		e.ID, e.TenantID, e.AccountID, e.Type, e.Direction,
		e.Amount, e.Currency, e.Status,
		e.IdempotencyKey, e.Provider, e.ProviderRef, e.ProviderEventID,
		e.CreatedAt,
	)
}

func TestLedgerRepo_Insert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	e := newTestEntry(uuid.New(), uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(
			e.ID, e.TenantID, e.AccountID, e.Type, e.Direction,
			e.Amount, e.Currency, e.Status,
			e.IdempotencyKey, e.Provider, e.ProviderRef, e.ProviderEventID,
			e.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Insert(context.Background(), dbTx, e)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_Insert_DuplicateKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	e := newTestEntry(uuid.New(), uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(
			e.ID, e.TenantID, e.AccountID, e.Type, e.Direction,
			e.Amount, e.Currency, e.Status,
			e.IdempotencyKey, e.Provider, e.ProviderRef, e.ProviderEventID,
			e.CreatedAt,
		).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ledger_entries_idem_key"})

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Insert(context.Background(), dbTx, e)
	assert.True(t, errors.Is(err, ports.ErrDuplicateEntry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_GetByIdempotencyKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	e := newTestEntry(uuid.New(), uuid.New())

	mock.ExpectQuery("SELECT .+ FROM ledger_entries").
		WithArgs(e.TenantID, e.AccountID, e.Type, "dep-001").
		WillReturnRows(entryRow(e))

	result, err := repo.GetByIdempotencyKey(context.Background(), e.TenantID, e.AccountID, e.Type, "dep-001")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, e.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_GetByProviderEvent_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM ledger_entries").
		WithArgs("acmepay", "evt-missing").
		WillReturnRows(pgxmock.NewRows(ledgerColumnNames()))

	result, err := repo.GetByProviderEvent(context.Background(), "acmepay", "evt-missing")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_ListByProviderWindow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	e1 := newTestEntry(uuid.New(), uuid.New())
	e2 := newTestEntry(e1.TenantID, e1.AccountID)
	e2.ProviderEventID = strPtr("evt-456")

	start := time.Now().UTC().Add(-time.Hour)
	end := time.Now().UTC()

	rows := entryRow(e1).AddRow(
		e2.ID, e2.TenantID, e2.AccountID, e2.Type, e2.Direction,
		e2.Amount, e2.Currency, e2.Status,
		e2.IdempotencyKey, e2.Provider, e2.ProviderRef, e2.ProviderEventID,
		e2.CreatedAt,
	)

	mock.ExpectQuery("SELECT .+ FROM ledger_entries").
		WithArgs("acmepay", start, end).
		WillReturnRows(rows)

	entries, err := repo.ListByProviderWindow(context.Background(), "acmepay", start, end)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "evt-123", *entries[0].ProviderEventID)
	assert.Equal(t, "evt-456", *entries[1].ProviderEventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package service

import (
	"context"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestLogger() zerolog.Logger {
	return zerolog.Nop()
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func TestAuditService_Append_FirstEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	ctx := context.Background()
	tenantID := uuid.New()
	tx := &mockTx{}

	mockRepo.EXPECT().Head(ctx, tx, tenantID).Return(nil, nil)
	mockRepo.EXPECT().Insert(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.AuditEvent) error {
			assert.Equal(t, int64(1), e.Sequence)
			assert.Equal(t, domain.GenesisHash, e.PrevRowHash)
			expected, err := e.ComputeRowHash()
			require.NoError(t, err)
			assert.Equal(t, expected, e.RowHash)
			return nil
		},
	)

	event, err := svc.Append(ctx, tx, tenantID, "ops", "transaction.create", "transaction", uuid.New().String(), map[string]interface{}{"amount": 100})
	require.NoError(t, err)
	assert.Equal(t, int64(1), event.Sequence)
	assert.Regexp(t, `^[0-9a-f]{64}$`, event.RowHash)
}

func TestAuditService_Append_LinksToHead(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	ctx := context.Background()
	tenantID := uuid.New()
	tx := &mockTx{}

	head := &domain.AuditEvent{
		TenantID: tenantID,
		Sequence: 7,
		RowHash:  "ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12",
	}
	mockRepo.EXPECT().Head(ctx, tx, tenantID).Return(head, nil)
	mockRepo.EXPECT().Insert(ctx, tx, gomock.Any()).Return(nil)

	event, err := svc.Append(ctx, tx, tenantID, "ops", "ledger.apply", "ledger_entry", uuid.New().String(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(8), event.Sequence)
	assert.Equal(t, head.RowHash, event.PrevRowHash)
}

// buildChain produces a valid n-event chain for a tenant.
func buildChain(t *testing.T, tenantID uuid.UUID, n int) []domain.AuditEvent {
	t.Helper()
	events := make([]domain.AuditEvent, 0, n)
	prev := domain.GenesisHash
	for i := 1; i <= n; i++ {
		e := domain.AuditEvent{
			TenantID:     tenantID,
			Sequence:     int64(i),
			PrevRowHash:  prev,
			Actor:        "ops",
			Action:       "ledger.apply",
			ResourceType: "ledger_entry",
			ResourceID:   uuid.New().String(),
			CreatedAt:    time.Now().UTC(),
		}
		hash, err := e.ComputeRowHash()
		require.NoError(t, err)
		e.RowHash = hash
		prev = hash
		events = append(events, e)
	}
	return events
}

func TestAuditService_VerifyChain_Valid(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	tenantID := uuid.New()
	mockRepo.EXPECT().ListChain(gomock.Any(), tenantID).Return(buildChain(t, tenantID, 5), nil)

	ok, broken, err := svc.VerifyChain(context.Background(), tenantID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0), broken)
}

func TestAuditService_VerifyChain_EmptyIsValid(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	tenantID := uuid.New()
	mockRepo.EXPECT().ListChain(gomock.Any(), tenantID).Return(nil, nil)

	ok, _, err := svc.VerifyChain(context.Background(), tenantID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuditService_VerifyChain_DetectsTampering(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	tenantID := uuid.New()
	chain := buildChain(t, tenantID, 5)
	chain[2].Actor = "attacker" // in-place edit, hash no longer matches
	mockRepo.EXPECT().ListChain(gomock.Any(), tenantID).Return(chain, nil)

	ok, broken, err := svc.VerifyChain(context.Background(), tenantID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(3), broken)
}

func TestAuditService_VerifyChain_DetectsBrokenLink(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	tenantID := uuid.New()
	chain := buildChain(t, tenantID, 4)
	chain[3].PrevRowHash = domain.GenesisHash
	mockRepo.EXPECT().ListChain(gomock.Any(), tenantID).Return(chain, nil)

	ok, broken, err := svc.VerifyChain(context.Background(), tenantID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(4), broken)
}

func TestAuditService_VerifyChain_DetectsGapInSequence(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	tenantID := uuid.New()
	chain := buildChain(t, tenantID, 5)
	chain = append(chain[:2], chain[3:]...) // delete event 3

	mockRepo.EXPECT().ListChain(gomock.Any(), tenantID).Return(chain, nil)

	ok, broken, err := svc.VerifyChain(context.Background(), tenantID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(4), broken)
}

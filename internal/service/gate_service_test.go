package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/core/ports/mocks"
	"wallet-ledger/internal/metrics"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type gateTestDeps struct {
	svc        *WebhookGateImpl
	nonceStore *mocks.MockNonceStore
	respCache  *mocks.MockIdempotencyCache
	ledgerSvc  *mocks.MockLedgerService
	txSvc      *mocks.MockTransactionService
	ledgerRepo *mocks.MockLedgerRepository
	sigSvc     *HMACSignatureService
	secretSvc  *HKDFSecretService
	ctrl       *gomock.Controller
}

// setupGate uses the real signature and secret services so tests exercise
// actual HMAC verification, with mocks behind the gate.
func setupGate(t *testing.T) *gateTestDeps {
	ctrl := gomock.NewController(t)
	d := &gateTestDeps{
		nonceStore: mocks.NewMockNonceStore(ctrl),
		respCache:  mocks.NewMockIdempotencyCache(ctrl),
		ledgerSvc:  mocks.NewMockLedgerService(ctrl),
		txSvc:      mocks.NewMockTransactionService(ctrl),
		ledgerRepo: mocks.NewMockLedgerRepository(ctrl),
		sigSvc:     NewHMACSignatureService(),
		secretSvc:  NewHKDFSecretService("gate-test-master"),
		ctrl:       ctrl,
	}
	d.svc = NewWebhookGate(
		d.sigSvc, d.secretSvc, d.nonceStore, d.respCache,
		d.ledgerSvc, d.txSvc, d.ledgerRepo,
		5*time.Minute, 24*time.Hour, 24*time.Hour,
		metrics.New(), newTestLogger(),
	)
	return d
}

func eventBody(t *testing.T, ev domain.ProviderEvent) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

// sign produces valid headers for a body as the provider would.
func (d *gateTestDeps) sign(t *testing.T, provider string, tenantID uuid.UUID, body []byte) ports.WebhookHeaders {
	t.Helper()
	ts := time.Now().Unix()
	secret, err := d.secretSvc.WebhookSecret(provider, tenantID)
	require.NoError(t, err)
	return ports.WebhookHeaders{
		Timestamp: strconv.FormatInt(ts, 10),
		Signature: d.sigSvc.Sign(secret, d.sigSvc.BuildWebhookPayload(ts, body)),
	}
}

func betPlacedEvent(tenantID, accountID uuid.UUID) domain.ProviderEvent {
	return domain.ProviderEvent{
		EventID:   "evt-bet-1",
		Type:      domain.ProviderEventBetPlaced,
		TenantID:  tenantID,
		AccountID: accountID,
		Amount:    500,
		Currency:  "EUR",
		Ref:       "round-77",
	}
}

func assertGateError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr := &apperror.AppError{}
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestWebhookGate_MissingSignature(t *testing.T) {
	d := setupGate(t)
	defer d.ctrl.Finish()

	_, err := d.svc.HandleProviderEvent(context.Background(), "acmepay", ports.WebhookHeaders{}, []byte("{}"))
	assertGateError(t, err, "SEC_001")
}

func TestWebhookGate_UnparseableTimestamp(t *testing.T) {
	d := setupGate(t)
	defer d.ctrl.Finish()

	headers := ports.WebhookHeaders{Signature: "sig", Timestamp: "yesterday"}
	_, err := d.svc.HandleProviderEvent(context.Background(), "acmepay", headers, []byte("{}"))
	assertGateError(t, err, "SEC_002")
}

func TestWebhookGate_StaleTimestamp(t *testing.T) {
	d := setupGate(t)
	defer d.ctrl.Finish()

	stale := time.Now().Add(-10 * time.Minute).Unix()
	headers := ports.WebhookHeaders{Signature: "sig", Timestamp: strconv.FormatInt(stale, 10)}
	_, err := d.svc.HandleProviderEvent(context.Background(), "acmepay", headers, []byte("{}"))
	assertGateError(t, err, "SEC_002")
}

func TestWebhookGate_FutureTimestamp(t *testing.T) {
	d := setupGate(t)
	defer d.ctrl.Finish()

	future := time.Now().Add(10 * time.Minute).Unix()
	headers := ports.WebhookHeaders{Signature: "sig", Timestamp: strconv.FormatInt(future, 10)}
	_, err := d.svc.HandleProviderEvent(context.Background(), "acmepay", headers, []byte("{}"))
	assertGateError(t, err, "SEC_002")
}

func TestWebhookGate_MalformedBody(t *testing.T) {
	d := setupGate(t)
	defer d.ctrl.Finish()

	headers := ports.WebhookHeaders{Signature: "sig", Timestamp: strconv.FormatInt(time.Now().Unix(), 10)}
	_, err := d.svc.HandleProviderEvent(context.Background(), "acmepay", headers, []byte("not json"))
	assertGateError(t, err, "SEC_004")
}

func TestWebhookGate_InvalidSignature(t *testing.T) {
	d := setupGate(t)
	defer d.ctrl.Finish()

	tenantID := uuid.New()
	body := eventBody(t, betPlacedEvent(tenantID, uuid.New()))
	headers := ports.WebhookHeaders{
		Signature: "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
		Timestamp: strconv.FormatInt(time.Now().Unix(), 10),
	}

	_, err := d.svc.HandleProviderEvent(context.Background(), "acmepay", headers, body)
	assertGateError(t, err, "SEC_003")
}

func TestWebhookGate_SignatureFromWrongTenantSecret(t *testing.T) {
	d := setupGate(t)
	defer d.ctrl.Finish()

	tenantID := uuid.New()
	body := eventBody(t, betPlacedEvent(tenantID, uuid.New()))
	// Signed with another tenant's derived key.
	headers := d.sign(t, "acmepay", uuid.New(), body)

	_, err := d.svc.HandleProviderEvent(context.Background(), "acmepay", headers, body)
	assertGateError(t, err, "SEC_003")
}

func TestWebhookGate_BetPlaced_AppliesDebit(t *testing.T) {
	d := setupGate(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()
	accountID := uuid.New()
	ev := betPlacedEvent(tenantID, accountID)
	body := eventBody(t, ev)
	headers := d.sign(t, "acmepay", tenantID, body)

	entryID := uuid.New()
	d.respCache.EXPECT().Get(ctx, "webhook:acmepay:evt-bet-1").Return(nil, nil)
	d.nonceStore.EXPECT().CheckAndSet(ctx, "acmepay", "evt-bet-1", 24*time.Hour).Return(true, nil)
	d.ledgerSvc.EXPECT().ApplyDelta(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.ApplyRequest) (*ports.ApplyResult, error) {
			assert.Equal(t, domain.EntryTypeBet, req.Type)
			assert.Equal(t, domain.DirectionDebit, req.Direction)
			assert.Equal(t, int64(-500), req.DeltaAvailable)
			assert.Equal(t, "evt-bet-1", req.ProviderEventID)
			assert.Equal(t, "acmepay", req.Provider)
			return &ports.ApplyResult{Entry: &domain.LedgerEntry{ID: entryID}}, nil
		},
	)
	d.respCache.EXPECT().Set(ctx, "webhook:acmepay:evt-bet-1", gomock.Any(), 24*time.Hour).Return(nil)

	result, err := d.svc.HandleProviderEvent(ctx, "acmepay", headers, body)
	require.NoError(t, err)
	assert.Equal(t, "applied", result.Status)
	require.NotNil(t, result.EntryID)
	assert.Equal(t, entryID, *result.EntryID)
}

func TestWebhookGate_BetSettled_CreditsWin(t *testing.T) {
	d := setupGate(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()
	ev := domain.ProviderEvent{
		EventID:   "evt-win-1",
		Type:      domain.ProviderEventBetSettled,
		TenantID:  tenantID,
		AccountID: uuid.New(),
		Amount:    1200,
		Currency:  "EUR",
	}
	body := eventBody(t, ev)
	headers := d.sign(t, "acmepay", tenantID, body)

	d.respCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.nonceStore.EXPECT().CheckAndSet(ctx, "acmepay", "evt-win-1", gomock.Any()).Return(true, nil)
	d.ledgerSvc.EXPECT().ApplyDelta(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.ApplyRequest) (*ports.ApplyResult, error) {
			assert.Equal(t, domain.EntryTypeWin, req.Type)
			assert.Equal(t, int64(1200), req.DeltaAvailable)
			return &ports.ApplyResult{Entry: &domain.LedgerEntry{ID: uuid.New()}}, nil
		},
	)
	d.respCache.EXPECT().Set(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := d.svc.HandleProviderEvent(ctx, "acmepay", headers, body)
	require.NoError(t, err)
	assert.Equal(t, "applied", result.Status)
}

func TestWebhookGate_DepositCompleted_TransitionsTx(t *testing.T) {
	d := setupGate(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()
	txID := uuid.New()
	ev := domain.ProviderEvent{
		EventID:   "evt-dep-1",
		Type:      domain.ProviderEventDepositCompleted,
		TenantID:  tenantID,
		AccountID: uuid.New(),
		TxID:      &txID,
		Amount:    5000,
		Currency:  "EUR",
		Ref:       "psp-ref-9",
	}
	body := eventBody(t, ev)
	headers := d.sign(t, "acmepay", tenantID, body)

	d.respCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.nonceStore.EXPECT().CheckAndSet(ctx, "acmepay", "evt-dep-1", gomock.Any()).Return(true, nil)
	d.txSvc.EXPECT().Transition(ctx, txID, domain.TxStateCompleted, "psp-ref-9").Return(&domain.Transaction{
		ID: txID, State: domain.TxStateCompleted,
	}, nil)
	d.respCache.EXPECT().Set(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := d.svc.HandleProviderEvent(ctx, "acmepay", headers, body)
	require.NoError(t, err)
	assert.Equal(t, "applied", result.Status)
	require.NotNil(t, result.TxState)
	assert.Equal(t, domain.TxStateCompleted, *result.TxState)
}

func TestWebhookGate_LifecycleEventWithoutTxID(t *testing.T) {
	d := setupGate(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()
	ev := domain.ProviderEvent{
		EventID:   "evt-dep-2",
		Type:      domain.ProviderEventWithdrawalPaid,
		TenantID:  tenantID,
		AccountID: uuid.New(),
		Amount:    5000,
		Currency:  "EUR",
	}
	body := eventBody(t, ev)
	headers := d.sign(t, "acmepay", tenantID, body)

	d.respCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.nonceStore.EXPECT().CheckAndSet(ctx, "acmepay", "evt-dep-2", gomock.Any()).Return(true, nil)

	_, err := d.svc.HandleProviderEvent(ctx, "acmepay", headers, body)
	assertGateError(t, err, "SEC_004")
}

func TestWebhookGate_CachedReplay(t *testing.T) {
	d := setupGate(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()
	ev := betPlacedEvent(tenantID, uuid.New())
	body := eventBody(t, ev)
	headers := d.sign(t, "acmepay", tenantID, body)

	entryID := uuid.New()
	cached, err := json.Marshal(ports.WebhookResult{
		EventID: "evt-bet-1", Status: "applied", EntryID: &entryID,
	})
	require.NoError(t, err)
	d.respCache.EXPECT().Get(ctx, "webhook:acmepay:evt-bet-1").Return(cached, nil)

	// No nonce check, no ledger touch: the cached response is final.
	result, err := d.svc.HandleProviderEvent(ctx, "acmepay", headers, body)
	require.NoError(t, err)
	assert.Equal(t, "replayed", result.Status)
	assert.True(t, result.Replayed)
	assert.Equal(t, entryID, *result.EntryID)
}

func TestWebhookGate_NonceReplayServedFromLedger(t *testing.T) {
	d := setupGate(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()
	ev := betPlacedEvent(tenantID, uuid.New())
	body := eventBody(t, ev)
	headers := d.sign(t, "acmepay", tenantID, body)

	entryID := uuid.New()
	d.respCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.nonceStore.EXPECT().CheckAndSet(ctx, "acmepay", "evt-bet-1", gomock.Any()).Return(false, nil)
	d.ledgerRepo.EXPECT().GetByProviderEvent(ctx, "acmepay", "evt-bet-1").Return(&domain.LedgerEntry{ID: entryID}, nil)

	result, err := d.svc.HandleProviderEvent(ctx, "acmepay", headers, body)
	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.Equal(t, entryID, *result.EntryID)
}

func TestWebhookGate_NonceSetButNeverCommitted_Reprocesses(t *testing.T) {
	d := setupGate(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()
	ev := betPlacedEvent(tenantID, uuid.New())
	body := eventBody(t, ev)
	headers := d.sign(t, "acmepay", tenantID, body)

	d.respCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.nonceStore.EXPECT().CheckAndSet(ctx, "acmepay", "evt-bet-1", gomock.Any()).Return(false, nil)
	// First delivery died before committing: no ledger row.
	d.ledgerRepo.EXPECT().GetByProviderEvent(ctx, "acmepay", "evt-bet-1").Return(nil, nil)
	d.ledgerSvc.EXPECT().ApplyDelta(ctx, gomock.Any()).Return(&ports.ApplyResult{
		Entry: &domain.LedgerEntry{ID: uuid.New()},
	}, nil)
	d.respCache.EXPECT().Set(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := d.svc.HandleProviderEvent(ctx, "acmepay", headers, body)
	require.NoError(t, err)
	assert.Equal(t, "applied", result.Status)
}

func TestWebhookGate_RedisDownFallsThroughToDB(t *testing.T) {
	d := setupGate(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()
	ev := betPlacedEvent(tenantID, uuid.New())
	body := eventBody(t, ev)
	headers := d.sign(t, "acmepay", tenantID, body)

	redisErr := fmt.Errorf("connection refused")
	d.respCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, redisErr)
	d.nonceStore.EXPECT().CheckAndSet(ctx, "acmepay", "evt-bet-1", gomock.Any()).Return(false, redisErr)
	// DB dedup inside ApplyDelta is the authority when redis is down.
	d.ledgerSvc.EXPECT().ApplyDelta(ctx, gomock.Any()).Return(&ports.ApplyResult{
		Entry:          &domain.LedgerEntry{ID: uuid.New()},
		AlreadyApplied: true,
	}, nil)
	d.respCache.EXPECT().Set(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := d.svc.HandleProviderEvent(ctx, "acmepay", headers, body)
	require.NoError(t, err)
	assert.Equal(t, "replayed", result.Status)
	assert.True(t, result.Replayed)
}

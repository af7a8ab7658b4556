package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/metrics"
	"wallet-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// WebhookGateImpl implements ports.WebhookGate: the single entry point
// for provider callbacks. Checks run strictly in order — header
// presence, timestamp freshness, HMAC signature, then deduplication —
// so an attacker learns nothing past the first failing gate.
type WebhookGateImpl struct {
	sigSvc      ports.SignatureService
	secretSvc   ports.SecretService
	nonceStore  ports.NonceStore
	respCache   ports.IdempotencyCache
	ledgerSvc   ports.LedgerService
	txSvc       ports.TransactionService
	ledgerRepo  ports.LedgerRepository
	tolerance   time.Duration
	nonceTTL    time.Duration
	responseTTL time.Duration
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewWebhookGate creates a new WebhookGateImpl.
func NewWebhookGate(
	sigSvc ports.SignatureService,
	secretSvc ports.SecretService,
	nonceStore ports.NonceStore,
	respCache ports.IdempotencyCache,
	ledgerSvc ports.LedgerService,
	txSvc ports.TransactionService,
	ledgerRepo ports.LedgerRepository,
	tolerance, nonceTTL, responseTTL time.Duration,
	m *metrics.Metrics,
	log zerolog.Logger,
) *WebhookGateImpl {
	return &WebhookGateImpl{
		sigSvc:      sigSvc,
		secretSvc:   secretSvc,
		nonceStore:  nonceStore,
		respCache:   respCache,
		ledgerSvc:   ledgerSvc,
		txSvc:       txSvc,
		ledgerRepo:  ledgerRepo,
		tolerance:   tolerance,
		nonceTTL:    nonceTTL,
		responseTTL: responseTTL,
		metrics:     m,
		log:         log,
	}
}

func (s *WebhookGateImpl) responseKey(provider, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", provider, eventID)
}

// HandleProviderEvent authenticates, deduplicates, and dispatches one
// provider callback. Replays of processed events succeed with the
// original outcome; they are never an error.
func (s *WebhookGateImpl) HandleProviderEvent(ctx context.Context, provider string, headers ports.WebhookHeaders, rawBody []byte) (*ports.WebhookResult, error) {
	if headers.Signature == "" || headers.Timestamp == "" {
		s.countRejection(provider, "missing_signature")
		return nil, apperror.ErrSignatureMissing()
	}

	ts, err := strconv.ParseInt(headers.Timestamp, 10, 64)
	if err != nil {
		s.countRejection(provider, "bad_timestamp")
		return nil, apperror.ErrTimestampInvalid()
	}
	if drift := time.Since(time.Unix(ts, 0)); drift > s.tolerance || drift < -s.tolerance {
		s.countRejection(provider, "stale_timestamp")
		return nil, apperror.ErrTimestampInvalid()
	}

	ev, err := domain.ParseProviderEvent(rawBody)
	if err != nil {
		s.countRejection(provider, "bad_payload")
		return nil, apperror.ErrInvalidPayload(err)
	}

	secret, err := s.secretSvc.WebhookSecret(provider, ev.TenantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("derive webhook secret: %w", err))
	}
	payload := s.sigSvc.BuildWebhookPayload(ts, rawBody)
	if !s.sigSvc.Verify(secret, payload, headers.Signature) {
		s.countRejection(provider, "bad_signature")
		return nil, apperror.ErrSignatureInvalid()
	}

	// Fast replay path: serve the cached response without touching the
	// database.
	if cached, cerr := s.respCache.Get(ctx, s.responseKey(provider, ev.EventID)); cerr != nil {
		s.log.Warn().Err(cerr).Str("event_id", ev.EventID).Msg("response cache read failed, falling through to DB")
	} else if cached != nil {
		var result ports.WebhookResult
		if uerr := json.Unmarshal(cached, &result); uerr == nil {
			result.Status = "replayed"
			result.Replayed = true
			s.countDuplicate("cache")
			return &result, nil
		}
	}

	fresh, err := s.nonceStore.CheckAndSet(ctx, provider, ev.EventID, s.nonceTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", ev.EventID).Msg("nonce store unavailable, relying on DB dedup")
		fresh = true
	}
	if !fresh {
		// Seen before but not in the response cache. The ledger's unique
		// (provider, event_id) row is the authority on whether processing
		// actually finished.
		if entry, gerr := s.ledgerRepo.GetByProviderEvent(ctx, provider, ev.EventID); gerr == nil && entry != nil {
			s.countDuplicate("nonce")
			return &ports.WebhookResult{
				EventID:  ev.EventID,
				Status:   "replayed",
				EntryID:  &entry.ID,
				Replayed: true,
			}, nil
		}
		// Nonce set but no entry committed: the first delivery died
		// mid-flight. Process this one.
	}

	result, err := s.dispatch(ctx, provider, ev)
	if err != nil {
		return nil, err
	}

	if body, merr := json.Marshal(result); merr == nil {
		if cerr := s.respCache.Set(ctx, s.responseKey(provider, ev.EventID), body, s.responseTTL); cerr != nil {
			s.log.Warn().Err(cerr).Str("event_id", ev.EventID).Msg("failed to cache webhook response")
		}
	}

	s.log.Info().
		Str("provider", provider).
		Str("event_id", ev.EventID).
		Str("type", string(ev.Type)).
		Str("status", result.Status).
		Msg("provider event processed")

	return result, nil
}

// dispatch routes a verified event to the ledger or the transaction
// lifecycle.
func (s *WebhookGateImpl) dispatch(ctx context.Context, provider string, ev *domain.ProviderEvent) (*ports.WebhookResult, error) {
	switch ev.Type {
	case domain.ProviderEventDepositCompleted:
		return s.transitionTx(ctx, ev, domain.TxStateCompleted)
	case domain.ProviderEventDepositFailed:
		return s.transitionTx(ctx, ev, domain.TxStateFailed)
	case domain.ProviderEventWithdrawalPaid:
		return s.transitionTx(ctx, ev, domain.TxStatePaid)
	case domain.ProviderEventBetPlaced:
		return s.applyGameEvent(ctx, provider, ev, domain.EntryTypeBet, domain.DirectionDebit, -ev.Amount)
	case domain.ProviderEventBetSettled:
		return s.applyGameEvent(ctx, provider, ev, domain.EntryTypeWin, domain.DirectionCredit, ev.Amount)
	case domain.ProviderEventRefundIssued:
		return s.applyGameEvent(ctx, provider, ev, domain.EntryTypeRefund, domain.DirectionCredit, ev.Amount)
	default:
		return nil, apperror.ErrInvalidPayload(fmt.Errorf("undispatchable event type %q", ev.Type))
	}
}

func (s *WebhookGateImpl) transitionTx(ctx context.Context, ev *domain.ProviderEvent, to domain.TxState) (*ports.WebhookResult, error) {
	if ev.TxID == nil {
		return nil, apperror.ErrInvalidPayload(fmt.Errorf("lifecycle event %q missing tx_id", ev.Type))
	}
	txn, err := s.txSvc.Transition(ctx, *ev.TxID, to, ev.Ref)
	if err != nil {
		return nil, err
	}
	return &ports.WebhookResult{
		EventID: ev.EventID,
		Status:  "applied",
		TxState: &txn.State,
	}, nil
}

func (s *WebhookGateImpl) applyGameEvent(ctx context.Context, provider string, ev *domain.ProviderEvent, typ domain.EntryType, dir domain.Direction, deltaAvailable int64) (*ports.WebhookResult, error) {
	res, err := s.ledgerSvc.ApplyDelta(ctx, ports.ApplyRequest{
		TenantID:        ev.TenantID,
		AccountID:       ev.AccountID,
		Currency:        ev.Currency,
		Type:            typ,
		Direction:       dir,
		Amount:          ev.Amount,
		DeltaAvailable:  deltaAvailable,
		IdempotencyKey:  fmt.Sprintf("evt:%s:%s", provider, ev.EventID),
		Provider:        provider,
		ProviderRef:     ev.Ref,
		ProviderEventID: ev.EventID,
		Actor:           "webhook",
	})
	if err != nil {
		return nil, err
	}

	status := "applied"
	if res.AlreadyApplied {
		status = "replayed"
	}
	return &ports.WebhookResult{
		EventID:  ev.EventID,
		Status:   status,
		EntryID:  &res.Entry.ID,
		Replayed: res.AlreadyApplied,
	}, nil
}

func (s *WebhookGateImpl) countRejection(provider, reason string) {
	if s.metrics != nil {
		s.metrics.WebhookRejections.WithLabelValues(provider, reason).Inc()
	}
}

func (s *WebhookGateImpl) countDuplicate(source string) {
	if s.metrics != nil {
		s.metrics.DuplicatesReplayed.WithLabelValues(source).Inc()
	}
}

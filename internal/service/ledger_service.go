package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/metrics"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService. It is the only
// writer of balance rows: every movement takes the balance row lock,
// appends a ledger entry, applies the bucket deltas, and records an
// audit event in one database transaction.
type LedgerServiceImpl struct {
	balanceRepo ports.BalanceRepository
	ledgerRepo  ports.LedgerRepository
	auditSvc    ports.AuditService
	transactor  ports.DBTransactor
	publisher   ports.EventPublisher
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl. publisher may be nil
// when no event bus is configured.
func NewLedgerService(
	balanceRepo ports.BalanceRepository,
	ledgerRepo ports.LedgerRepository,
	auditSvc ports.AuditService,
	transactor ports.DBTransactor,
	publisher ports.EventPublisher,
	m *metrics.Metrics,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		balanceRepo: balanceRepo,
		ledgerRepo:  ledgerRepo,
		auditSvc:    auditSvc,
		transactor:  transactor,
		publisher:   publisher,
		metrics:     m,
		log:         log,
	}
}

func validateApply(req ports.ApplyRequest) error {
	if req.Amount <= 0 {
		return apperror.ErrInvalidAmount()
	}
	if req.Currency == "" {
		return apperror.Validation("currency is required")
	}
	if req.Type.RequiresIdempotencyKey() && req.IdempotencyKey == "" {
		return apperror.ErrMissingIdempotencyKey()
	}
	if req.DeltaAvailable == 0 && req.DeltaHeld == 0 && req.DeltaPending == 0 {
		return apperror.Validation("apply must move at least one balance bucket")
	}
	return nil
}

// ApplyDelta applies one balance movement in its own transaction.
// Replays of an already-applied key return the original entry with
// AlreadyApplied set; a duplicate is never an error.
func (s *LedgerServiceImpl) ApplyDelta(ctx context.Context, req ports.ApplyRequest) (*ports.ApplyResult, error) {
	if err := validateApply(req); err != nil {
		return nil, err
	}
	start := time.Now()

	// Fast path: both dedup keys are readable without the row lock.
	if existing, err := s.findExisting(ctx, req); err != nil {
		return nil, err
	} else if existing != nil {
		s.countDuplicate("precheck")
		return &ports.ApplyResult{Entry: existing, AlreadyApplied: true}, nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	result, err := s.ApplyDeltaInTx(ctx, dbTx, req)
	if errors.Is(err, ports.ErrDuplicateEntry) {
		// A concurrent apply won the insert race. Roll back our lock and
		// serve its committed entry.
		_ = dbTx.Rollback(ctx)
		existing, ferr := s.findExisting(ctx, req)
		if ferr != nil {
			return nil, ferr
		}
		if existing == nil {
			return nil, apperror.InternalError(fmt.Errorf("duplicate entry vanished for key %q", req.IdempotencyKey))
		}
		s.countDuplicate("insert_race")
		return &ports.ApplyResult{Entry: existing, AlreadyApplied: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.afterCommit(ctx, result.Entry, time.Since(start))
	return result, nil
}

// ApplyDeltaInTx runs the movement inside a caller-owned transaction so
// a lifecycle transition and its ledger effect commit atomically.
// Returns ports.ErrDuplicateEntry unwrapped when the insert loses a
// dedup race; the caller must roll back and re-read.
func (s *LedgerServiceImpl) ApplyDeltaInTx(ctx context.Context, tx pgx.Tx, req ports.ApplyRequest) (*ports.ApplyResult, error) {
	if err := validateApply(req); err != nil {
		return nil, err
	}

	if err := s.balanceRepo.EnsureRow(ctx, tx, req.TenantID, req.AccountID, req.Currency); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("ensure balance row: %w", err))
	}

	bal, err := s.balanceRepo.GetForUpdate(ctx, tx, req.TenantID, req.AccountID, req.Currency)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock balance: %w", err))
	}

	before := *bal
	bal.Available += req.DeltaAvailable
	bal.Held += req.DeltaHeld
	bal.Pending += req.DeltaPending
	// Operator adjustments may drive available negative to correct a
	// prior error; every other entry type is floored at zero.
	if bal.Available < 0 && req.Type != domain.EntryTypeAdjustment {
		return nil, apperror.ErrInsufficientFunds()
	}
	if bal.Held < 0 || bal.Pending < 0 {
		return nil, apperror.ErrInsufficientFunds()
	}

	entry := &domain.LedgerEntry{
		ID:              uuid.New(),
		TenantID:        req.TenantID,
		AccountID:       req.AccountID,
		Type:            req.Type,
		Direction:       req.Direction,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Status:          domain.EntryStatusApplied,
		IdempotencyKey:  optStr(req.IdempotencyKey),
		Provider:        optStr(req.Provider),
		ProviderRef:     optStr(req.ProviderRef),
		ProviderEventID: optStr(req.ProviderEventID),
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.ledgerRepo.Insert(ctx, tx, entry); err != nil {
		if errors.Is(err, ports.ErrDuplicateEntry) {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("insert ledger entry: %w", err))
	}

	if err := s.balanceRepo.Update(ctx, tx, bal); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}

	actor := req.Actor
	if actor == "" {
		actor = "system"
	}
	_, err = s.auditSvc.Append(ctx, tx, req.TenantID, actor, "ledger.apply", "ledger_entry", entry.ID.String(), map[string]interface{}{
		"type":            entry.Type,
		"direction":       entry.Direction,
		"amount":          entry.Amount,
		"currency":        entry.Currency,
		"delta_available": req.DeltaAvailable,
		"delta_held":      req.DeltaHeld,
		"delta_pending":   req.DeltaPending,
		"before": map[string]int64{
			"available": before.Available,
			"held":      before.Held,
			"pending":   before.Pending,
		},
		"after": map[string]int64{
			"available": bal.Available,
			"held":      bal.Held,
			"pending":   bal.Pending,
		},
	})
	if err != nil {
		return nil, err
	}

	return &ports.ApplyResult{Entry: entry}, nil
}

// GetBalance returns the balance row, or the zero balance when the
// account has never moved funds in this currency.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, tenantID, accountID uuid.UUID, currency string) (*domain.Balance, error) {
	bal, err := s.balanceRepo.Get(ctx, tenantID, accountID, currency)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get balance: %w", err))
	}
	if bal == nil {
		return &domain.Balance{
			TenantID:  tenantID,
			AccountID: accountID,
			Currency:  currency,
		}, nil
	}
	return bal, nil
}

func (s *LedgerServiceImpl) findExisting(ctx context.Context, req ports.ApplyRequest) (*domain.LedgerEntry, error) {
	if req.IdempotencyKey != "" {
		e, err := s.ledgerRepo.GetByIdempotencyKey(ctx, req.TenantID, req.AccountID, req.Type, req.IdempotencyKey)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("idempotency lookup: %w", err))
		}
		if e != nil {
			return e, nil
		}
	}
	if req.Provider != "" && req.ProviderEventID != "" {
		e, err := s.ledgerRepo.GetByProviderEvent(ctx, req.Provider, req.ProviderEventID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("provider event lookup: %w", err))
		}
		if e != nil {
			return e, nil
		}
	}
	return nil, nil
}

func (s *LedgerServiceImpl) afterCommit(ctx context.Context, entry *domain.LedgerEntry, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.EntriesApplied.WithLabelValues(string(entry.Type), string(entry.Direction)).Inc()
		s.metrics.ApplyDuration.Observe(elapsed.Seconds())
	}
	if s.publisher != nil {
		if err := s.publisher.PublishEntry(ctx, entry); err != nil {
			s.log.Warn().Err(err).Str("entry_id", entry.ID.String()).Msg("failed to publish ledger entry")
		}
	}
	s.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("tenant_id", entry.TenantID.String()).
		Str("type", string(entry.Type)).
		Int64("amount", entry.Amount).
		Msg("ledger entry applied")
}

func (s *LedgerServiceImpl) countDuplicate(source string) {
	if s.metrics != nil {
		s.metrics.DuplicatesReplayed.WithLabelValues(source).Inc()
	}
}

func optStr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

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
	"github.com/rs/zerolog"
)

// edgeEffect is the balance movement a lifecycle edge carries. A nil
// effect means the edge moves no funds.
type edgeEffect struct {
	EntryType      domain.EntryType
	Direction      domain.Direction
	DeltaAvailable func(amount int64) int64
	DeltaHeld      func(amount int64) int64
	DeltaPending   func(amount int64) int64
}

func neg(a int64) int64  { return -a }
func pos(a int64) int64  { return a }
func zero(_ int64) int64 { return 0 }

// edgeEffects maps each allowed edge to its funds movement. Edges absent
// from this table (deposit created→failed, withdrawal requested→rejected)
// change state only.
var edgeEffects = map[txEdgeKey]edgeEffect{
	{domain.TxTypeDeposit, domain.TxStateCreated, domain.TxStatePendingProvider}: {
		EntryType: domain.EntryTypeDeposit, Direction: domain.DirectionCredit,
		DeltaAvailable: zero, DeltaHeld: zero, DeltaPending: pos,
	},
	{domain.TxTypeDeposit, domain.TxStatePendingProvider, domain.TxStateCompleted}: {
		EntryType: domain.EntryTypeDeposit, Direction: domain.DirectionCredit,
		DeltaAvailable: pos, DeltaHeld: zero, DeltaPending: neg,
	},
	{domain.TxTypeDeposit, domain.TxStatePendingProvider, domain.TxStateFailed}: {
		EntryType: domain.EntryTypeDeposit, Direction: domain.DirectionDebit,
		DeltaAvailable: zero, DeltaHeld: zero, DeltaPending: neg,
	},
	{domain.TxTypeWithdrawal, domain.TxStateRequested, domain.TxStateApproved}: {
		EntryType: domain.EntryTypeWithdraw, Direction: domain.DirectionDebit,
		DeltaAvailable: neg, DeltaHeld: pos, DeltaPending: zero,
	},
	{domain.TxTypeWithdrawal, domain.TxStateApproved, domain.TxStatePaid}: {
		EntryType: domain.EntryTypeWithdraw, Direction: domain.DirectionDebit,
		DeltaAvailable: zero, DeltaHeld: neg, DeltaPending: zero,
	},
}

type txEdgeKey struct {
	Type domain.TxType
	From domain.TxState
	To   domain.TxState
}

// TransactionServiceImpl implements ports.TransactionService. State
// writes and their balance effects share one database transaction; the
// transaction row lock serializes competing transitions.
type TransactionServiceImpl struct {
	txRepo     ports.TransactionRepository
	ledgerSvc  ports.LedgerService
	auditSvc   ports.AuditService
	pspClient  ports.PSPClient
	transactor ports.DBTransactor
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewTransactionService creates a new TransactionServiceImpl. pspClient
// may be nil; deposits then stay in created until transitioned externally.
func NewTransactionService(
	txRepo ports.TransactionRepository,
	ledgerSvc ports.LedgerService,
	auditSvc ports.AuditService,
	pspClient ports.PSPClient,
	transactor ports.DBTransactor,
	m *metrics.Metrics,
	log zerolog.Logger,
) *TransactionServiceImpl {
	return &TransactionServiceImpl{
		txRepo:     txRepo,
		ledgerSvc:  ledgerSvc,
		auditSvc:   auditSvc,
		pspClient:  pspClient,
		transactor: transactor,
		metrics:    m,
		log:        log,
	}
}

// Create registers a deposit or withdrawal request. Re-sending the same
// (tenant, type, idempotency key) returns the existing record. Deposits
// are handed to the PSP after commit and advanced to pending_provider.
func (s *TransactionServiceImpl) Create(ctx context.Context, req ports.CreateTransactionRequest) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.Currency == "" {
		return nil, apperror.Validation("currency is required")
	}
	if req.IdempotencyKey == "" {
		return nil, apperror.ErrMissingIdempotencyKey()
	}
	if req.Type != domain.TxTypeDeposit && req.Type != domain.TxTypeWithdrawal {
		return nil, apperror.Validation(fmt.Sprintf("unknown transaction type %q", req.Type))
	}

	if existing, err := s.txRepo.GetByIdempotencyKey(ctx, req.TenantID, req.Type, req.IdempotencyKey); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("idempotency lookup: %w", err))
	} else if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:             uuid.New(),
		TenantID:       req.TenantID,
		AccountID:      req.AccountID,
		Type:           req.Type,
		Amount:         req.Amount,
		Currency:       req.Currency,
		State:          domain.InitialState(req.Type),
		IdempotencyKey: req.IdempotencyKey,
		Provider:       optStr(req.Provider),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		if errors.Is(err, ports.ErrDuplicateEntry) {
			_ = dbTx.Rollback(ctx)
			existing, ferr := s.txRepo.GetByIdempotencyKey(ctx, req.TenantID, req.Type, req.IdempotencyKey)
			if ferr != nil {
				return nil, apperror.InternalError(fmt.Errorf("idempotency re-read: %w", ferr))
			}
			if existing == nil {
				return nil, apperror.InternalError(fmt.Errorf("duplicate transaction vanished for key %q", req.IdempotencyKey))
			}
			return existing, nil
		}
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	if _, err := s.auditSvc.Append(ctx, dbTx, req.TenantID, "api", "transaction.create", "transaction", txn.ID.String(), map[string]interface{}{
		"type":     txn.Type,
		"amount":   txn.Amount,
		"currency": txn.Currency,
		"state":    txn.State,
	}); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("type", string(txn.Type)).
		Int64("amount", txn.Amount).
		Msg("transaction created")

	if txn.Type == domain.TxTypeDeposit && s.pspClient != nil {
		return s.authorizeDeposit(ctx, txn)
	}
	return txn, nil
}

// authorizeDeposit hands a fresh deposit to the PSP and advances it to
// pending_provider, or to failed when the PSP declines.
func (s *TransactionServiceImpl) authorizeDeposit(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, error) {
	res, err := s.pspClient.Authorize(ctx, txn.Amount, txn.Currency, txn.AccountID, "authorize:"+txn.ID.String())
	if err != nil {
		s.log.Warn().Err(err).Str("tx_id", txn.ID.String()).Msg("psp authorize failed")
		return s.Transition(ctx, txn.ID, domain.TxStateFailed, "")
	}
	return s.Transition(ctx, txn.ID, domain.TxStatePendingProvider, res.ProviderRef)
}

// Transition moves a transaction along one allowed edge, applying the
// edge's balance effect atomically with the state write. Transitioning
// to the current state returns the record unchanged.
func (s *TransactionServiceImpl) Transition(ctx context.Context, txID uuid.UUID, to domain.TxState, providerRef string) (*domain.Transaction, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	txn, err := s.txRepo.GetForUpdate(ctx, dbTx, txID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrTransactionNotFound()
	}

	if txn.State == to {
		// Idempotent no-op, e.g. a provider retrying a settled callback.
		return txn, nil
	}

	from := txn.State
	if !domain.CanTransition(txn.Type, from, to) {
		if s.metrics != nil {
			s.metrics.TransitionErrors.WithLabelValues(string(txn.Type)).Inc()
		}
		return nil, apperror.ErrIllegalStateTransition(string(txn.Type), string(from), string(to))
	}

	if effect, ok := edgeEffects[txEdgeKey{txn.Type, from, to}]; ok {
		req := ports.ApplyRequest{
			TenantID:  txn.TenantID,
			AccountID: txn.AccountID,
			Currency:  txn.Currency,
			Type:      effect.EntryType,
			Direction: effect.Direction,
			Amount:    txn.Amount,
			// Deterministic per (transaction, target state): a replayed
			// transition can never double-apply the movement.
			IdempotencyKey: fmt.Sprintf("tx:%s:%s", txn.ID, to),
			ProviderRef:    providerRef,
			Actor:          "lifecycle",
			DeltaAvailable: effect.DeltaAvailable(txn.Amount),
			DeltaHeld:      effect.DeltaHeld(txn.Amount),
			DeltaPending:   effect.DeltaPending(txn.Amount),
		}
		if txn.Provider != nil {
			req.Provider = *txn.Provider
		}
		if _, err := s.ledgerSvc.ApplyDeltaInTx(ctx, dbTx, req); err != nil {
			if errors.Is(err, ports.ErrDuplicateEntry) {
				// The effect already committed under a competing delivery.
				_ = dbTx.Rollback(ctx)
				return s.Get(ctx, txID)
			}
			return nil, err
		}
	}

	attempts := append(txn.Attempts, domain.Attempt{
		From:        from,
		To:          to,
		ProviderRef: providerRef,
		At:          time.Now().UTC(),
	})
	if err := s.txRepo.UpdateState(ctx, dbTx, txn.ID, to, attempts); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update state: %w", err))
	}

	if _, err := s.auditSvc.Append(ctx, dbTx, txn.TenantID, "lifecycle", "transaction.transition", "transaction", txn.ID.String(), map[string]interface{}{
		"from":         from,
		"to":           to,
		"provider_ref": providerRef,
	}); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	txn.State = to
	txn.Attempts = attempts
	txn.UpdatedAt = time.Now().UTC()

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("transaction transitioned")

	if txn.Type == domain.TxTypeWithdrawal && to == domain.TxStateApproved && s.pspClient != nil {
		// Fire the payout; the provider's withdrawal.paid callback moves
		// approved→paid once settled.
		res, err := s.pspClient.Payout(ctx, txn.Amount, txn.Currency, txn.AccountID, "payout:"+txn.ID.String())
		if err != nil {
			s.log.Warn().Err(err).Str("tx_id", txn.ID.String()).Msg("psp payout request failed")
		} else {
			s.log.Info().Str("tx_id", txn.ID.String()).Str("provider_ref", res.ProviderRef).Msg("psp payout requested")
		}
	}

	return txn, nil
}

// Get returns a transaction by id.
func (s *TransactionServiceImpl) Get(ctx context.Context, txID uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrTransactionNotFound()
	}
	return txn, nil
}

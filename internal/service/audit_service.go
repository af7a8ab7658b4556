package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// AuditServiceImpl implements ports.AuditService over a per-tenant
// hash chain. Appends run inside the caller's transaction so the chain
// link commits atomically with the mutation it describes; the Head lock
// serializes concurrent appends for a tenant.
type AuditServiceImpl struct {
	auditRepo ports.AuditRepository
	log       zerolog.Logger
}

// NewAuditService creates a new AuditServiceImpl.
func NewAuditService(auditRepo ports.AuditRepository, log zerolog.Logger) *AuditServiceImpl {
	return &AuditServiceImpl{auditRepo: auditRepo, log: log}
}

// Append writes the next link of the tenant's chain.
func (s *AuditServiceImpl) Append(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, actor, action, resourceType, resourceID string, details interface{}) (*domain.AuditEvent, error) {
	var raw json.RawMessage
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("marshal audit details: %w", err))
		}
		raw = b
	}

	head, err := s.auditRepo.Head(ctx, tx, tenantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read audit head: %w", err))
	}

	event := &domain.AuditEvent{
		TenantID:     tenantID,
		Sequence:     1,
		PrevRowHash:  domain.GenesisHash,
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      raw,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
	if head != nil {
		event.Sequence = head.Sequence + 1
		event.PrevRowHash = head.RowHash
	}

	event.RowHash, err = event.ComputeRowHash()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("compute row hash: %w", err))
	}

	if err := s.auditRepo.Insert(ctx, tx, event); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("insert audit event: %w", err))
	}

	return event, nil
}

// VerifyChain recomputes every hash of a tenant's chain in sequence
// order. Returns ok=false plus the first breaking sequence number when
// any link fails to recompute or the prev pointers do not line up.
func (s *AuditServiceImpl) VerifyChain(ctx context.Context, tenantID uuid.UUID) (bool, int64, error) {
	events, err := s.auditRepo.ListChain(ctx, tenantID)
	if err != nil {
		return false, 0, apperror.InternalError(fmt.Errorf("list audit chain: %w", err))
	}

	prev := domain.GenesisHash
	for i := range events {
		e := &events[i]
		if e.Sequence != int64(i)+1 {
			return false, e.Sequence, nil
		}
		if e.PrevRowHash != prev {
			return false, e.Sequence, nil
		}
		computed, err := e.ComputeRowHash()
		if err != nil {
			return false, e.Sequence, apperror.InternalError(fmt.Errorf("recompute row hash: %w", err))
		}
		if computed != e.RowHash {
			s.log.Warn().
				Str("tenant_id", tenantID.String()).
				Int64("sequence", e.Sequence).
				Msg("audit chain hash mismatch")
			return false, e.Sequence, nil
		}
		prev = e.RowHash
	}

	return true, 0, nil
}

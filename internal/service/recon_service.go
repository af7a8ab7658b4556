package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/metrics"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// currencyExponent maps ISO currency codes to their minor-unit exponent.
// Anything unlisted uses two decimal places.
var currencyExponent = map[string]int32{
	"JPY": 0, "KRW": 0, "VND": 0,
	"BHD": 3, "KWD": 3, "OMR": 3, "JOD": 3, "TND": 3,
}

func minorUnitExponent(currency string) int32 {
	if exp, ok := currencyExponent[currency]; ok {
		return exp
	}
	return 2
}

const (
	defaultFindingLimit = 50
	maxFindingLimit     = 200
)

// ReconServiceImpl implements ports.ReconService. It diffs committed
// ledger entries against a provider's export feed and records findings;
// it never mutates balances itself.
type ReconServiceImpl struct {
	reconRepo  ports.ReconRepository
	ledgerRepo ports.LedgerRepository
	feed       ports.ExportFeed
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewReconService creates a new ReconServiceImpl.
func NewReconService(
	reconRepo ports.ReconRepository,
	ledgerRepo ports.LedgerRepository,
	feed ports.ExportFeed,
	m *metrics.Metrics,
	log zerolog.Logger,
) *ReconServiceImpl {
	return &ReconServiceImpl{
		reconRepo:  reconRepo,
		ledgerRepo: ledgerRepo,
		feed:       feed,
		metrics:    m,
		log:        log,
	}
}

// CreateRun registers a run for (provider, window). A second request for
// the same window returns the run the first one created.
func (s *ReconServiceImpl) CreateRun(ctx context.Context, provider string, start, end time.Time) (*domain.ReconRun, error) {
	if provider == "" {
		return nil, apperror.Validation("provider is required")
	}
	if !start.Before(end) {
		return nil, apperror.ErrInvalidWindow()
	}

	run := &domain.ReconRun{
		ID:          uuid.New(),
		Provider:    provider,
		WindowStart: start.UTC(),
		WindowEnd:   end.UTC(),
		Status:      domain.RunStatusQueued,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.reconRepo.CreateRun(ctx, run); err != nil {
		if errors.Is(err, ports.ErrDuplicateEntry) {
			existing, ferr := s.reconRepo.GetRunByWindow(ctx, provider, run.WindowStart, run.WindowEnd)
			if ferr != nil {
				return nil, apperror.InternalError(fmt.Errorf("window re-read: %w", ferr))
			}
			if existing == nil {
				return nil, apperror.InternalError(fmt.Errorf("duplicate run vanished for %s window", provider))
			}
			return existing, nil
		}
		return nil, apperror.InternalError(fmt.Errorf("create run: %w", err))
	}

	s.log.Info().
		Str("run_id", run.ID.String()).
		Str("provider", provider).
		Time("window_start", run.WindowStart).
		Time("window_end", run.WindowEnd).
		Msg("reconciliation run created")

	return run, nil
}

// Execute drives a queued run to completed or failed. Re-executing a
// terminal run returns it unchanged, and of two concurrent callers only
// the one whose claim lands runs the diff.
func (s *ReconServiceImpl) Execute(ctx context.Context, runID uuid.UUID) (*domain.ReconRun, error) {
	run, err := s.reconRepo.GetRun(ctx, runID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get run: %w", err))
	}
	if run == nil {
		return nil, apperror.ErrRunNotFound()
	}
	if run.Status != domain.RunStatusQueued {
		return run, nil
	}

	started := time.Now().UTC()
	claimed, err := s.reconRepo.ClaimRun(ctx, runID, started)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("claim run: %w", err))
	}
	if !claimed {
		// Lost the race: someone else is executing (or finished) this
		// window. Hand back whatever state they left it in.
		current, gerr := s.reconRepo.GetRun(ctx, runID)
		if gerr != nil {
			return nil, apperror.InternalError(fmt.Errorf("re-read run: %w", gerr))
		}
		return current, nil
	}
	run.Status = domain.RunStatusRunning
	run.StartedAt = &started

	count, diffErr := s.diff(ctx, run)
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.FindingCount = count

	if diffErr != nil {
		reason := diffErr.Error()
		run.Status = domain.RunStatusFailed
		run.Reason = &reason
		if uerr := s.reconRepo.UpdateRun(ctx, run); uerr != nil {
			s.log.Error().Err(uerr).Str("run_id", run.ID.String()).Msg("failed to record run failure")
		}
		return run, apperror.ErrReconciliationJobFailed(diffErr)
	}

	run.Status = domain.RunStatusCompleted
	if err := s.reconRepo.UpdateRun(ctx, run); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark run completed: %w", err))
	}

	if s.metrics != nil {
		s.metrics.ReconRunDuration.Observe(finished.Sub(started).Seconds())
	}
	s.log.Info().
		Str("run_id", run.ID.String()).
		Int("findings", count).
		Dur("elapsed", finished.Sub(started)).
		Msg("reconciliation run completed")

	return run, nil
}

// diff compares the provider export against the ledger for the run's
// window and records one finding per discrepancy.
func (s *ReconServiceImpl) diff(ctx context.Context, run *domain.ReconRun) (int, error) {
	records, err := s.feed.Fetch(ctx, run.Provider, run.WindowStart, run.WindowEnd)
	if err != nil {
		return 0, fmt.Errorf("fetch provider export: %w", err)
	}
	entries, err := s.ledgerRepo.ListByProviderWindow(ctx, run.Provider, run.WindowStart, run.WindowEnd)
	if err != nil {
		return 0, fmt.Errorf("list ledger window: %w", err)
	}

	byEventID := make(map[string]*domain.LedgerEntry, len(entries))
	for i := range entries {
		if entries[i].ProviderEventID != nil {
			byEventID[*entries[i].ProviderEventID] = &entries[i]
		}
	}

	count := 0
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		seen[rec.ProviderEventID] = true
		entry, ok := byEventID[rec.ProviderEventID]
		if !ok {
			if err := s.recordFinding(ctx, run, rec.ProviderEventID, domain.FindingMissingInLedger, domain.SeverityWarn, nil,
				fmt.Sprintf("provider reported event %s (%s %s) with no matching ledger entry", rec.ProviderEventID, rec.Amount, rec.Currency), rec); err != nil {
				return count, err
			}
			count++
			continue
		}

		match, detail := amountsMatch(entry, rec)
		if !match {
			if err := s.recordFinding(ctx, run, rec.ProviderEventID, domain.FindingAmountMismatch, domain.SeverityError, entry, detail, rec); err != nil {
				return count, err
			}
			count++
		}
	}

	for eventID, entry := range byEventID {
		if seen[eventID] {
			continue
		}
		if err := s.recordFinding(ctx, run, eventID, domain.FindingMissingInPSP, domain.SeverityWarn, entry,
			fmt.Sprintf("ledger entry %s has no matching event in the provider export", entry.ID), nil); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

// amountsMatch compares a ledger entry against the provider's decimal
// string exactly, via the currency's minor-unit exponent. Sub-minor
// precision in the export is itself a mismatch.
func amountsMatch(entry *domain.LedgerEntry, rec domain.ExportRecord) (bool, string) {
	if entry.Currency != rec.Currency {
		return false, fmt.Sprintf("currency mismatch: ledger %s, provider %s", entry.Currency, rec.Currency)
	}
	d, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		return false, fmt.Sprintf("unparseable provider amount %q", rec.Amount)
	}
	minor := d.Shift(minorUnitExponent(rec.Currency))
	if !minor.IsInteger() {
		return false, fmt.Sprintf("provider amount %s %s is finer than the currency's minor unit", rec.Amount, rec.Currency)
	}
	if minor.IntPart() != entry.Amount {
		return false, fmt.Sprintf("amount mismatch: ledger %d, provider %s %s", entry.Amount, rec.Amount, rec.Currency)
	}
	return true, ""
}

func (s *ReconServiceImpl) recordFinding(ctx context.Context, run *domain.ReconRun, eventID string, typ domain.FindingType, sev domain.Severity, entry *domain.LedgerEntry, message string, raw interface{}) error {
	f := &domain.Finding{
		ID:              uuid.New(),
		RunID:           run.ID,
		Provider:        run.Provider,
		ProviderEventID: eventID,
		Type:            typ,
		Severity:        sev,
		Status:          domain.FindingStatusOpen,
		Message:         message,
		CreatedAt:       time.Now().UTC(),
	}
	if entry != nil {
		f.TenantID = &entry.TenantID
		f.AccountID = &entry.AccountID
	}
	if raw != nil {
		if b, err := json.Marshal(raw); err == nil {
			f.RawPayload = b
		}
	}

	if err := s.reconRepo.InsertFinding(ctx, f); err != nil {
		return fmt.Errorf("insert finding: %w", err)
	}

	if s.metrics != nil {
		s.metrics.FindingsDetected.WithLabelValues(run.Provider, string(typ)).Inc()
	}
	s.log.Warn().
		Str("run_id", run.ID.String()).
		Str("provider_event_id", eventID).
		Str("finding_type", string(typ)).
		Str("severity", string(sev)).
		Msg(message)

	return nil
}

// ListFindings returns findings matching the filter.
func (s *ReconServiceImpl) ListFindings(ctx context.Context, params ports.FindingListParams) ([]domain.Finding, error) {
	if params.Limit <= 0 {
		params.Limit = defaultFindingLimit
	}
	if params.Limit > maxFindingLimit {
		params.Limit = maxFindingLimit
	}
	findings, err := s.reconRepo.ListFindings(ctx, params)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list findings: %w", err))
	}
	return findings, nil
}

// ResolveFinding flips one open finding to resolved. Findings in any
// other status are rejected; resolution is one-way.
func (s *ReconServiceImpl) ResolveFinding(ctx context.Context, id uuid.UUID) (*domain.Finding, error) {
	f, err := s.reconRepo.GetFinding(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get finding: %w", err))
	}
	if f == nil {
		return nil, apperror.ErrFindingNotFound()
	}

	flipped, err := s.reconRepo.ResolveFinding(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("resolve finding: %w", err))
	}
	if !flipped {
		return nil, apperror.ErrFindingNotOpen()
	}

	f.Status = domain.FindingStatusResolved
	s.log.Info().Str("finding_id", id.String()).Msg("finding resolved")
	return f, nil
}

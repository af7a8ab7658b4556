package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a reconciliation run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ReconRun tracks one reconciliation pass over a (provider, window).
// The (provider, window) pair is the run's idempotency key: re-triggering
// the same window returns the existing run instead of starting a second.
type ReconRun struct {
	ID           uuid.UUID  `json:"id"`
	Provider     string     `json:"provider"`
	WindowStart  time.Time  `json:"window_start"`
	WindowEnd    time.Time  `json:"window_end"`
	Status       RunStatus  `json:"status"`
	FindingCount int        `json:"finding_count"`
	Reason       *string    `json:"reason,omitempty"` // Failure reason
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// FindingType classifies a ledger-vs-provider discrepancy.
type FindingType string

const (
	FindingMissingInLedger FindingType = "missing_in_ledger"
	FindingMissingInPSP    FindingType = "missing_in_psp"
	FindingAmountMismatch  FindingType = "amount_mismatch"
)

// Severity grades a finding.
type Severity string

const (
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// FindingStatus is the resolution state of a finding.
type FindingStatus string

const (
	FindingStatusOpen     FindingStatus = "open"
	FindingStatusResolved FindingStatus = "resolved"
)

// Finding is one detected discrepancy between the ledger and a provider
// export. After creation only the status may change, and only open→resolved.
type Finding struct {
	ID              uuid.UUID       `json:"id"`
	RunID           uuid.UUID       `json:"run_id"`
	Provider        string          `json:"provider"`
	TenantID        *uuid.UUID      `json:"tenant_id,omitempty"`
	AccountID       *uuid.UUID      `json:"account_id,omitempty"`
	TxID            *uuid.UUID      `json:"tx_id,omitempty"`
	ProviderEventID string          `json:"provider_event_id"`
	Type            FindingType     `json:"finding_type"`
	Severity        Severity        `json:"severity"`
	Status          FindingStatus   `json:"status"`
	Message         string          `json:"message"`
	RawPayload      json.RawMessage `json:"raw_payload,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ExportRecord is one row of a provider's exported event log, as consumed
// by the reconciliation engine. Amount is the provider's decimal string in
// major units ("10.50"), converted to minor units during comparison.
type ExportRecord struct {
	ProviderEventID string `json:"provider_event_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Ref             string `json:"ref"`
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryType classifies a balance-affecting movement.
type EntryType string

const (
	EntryTypeDeposit    EntryType = "deposit"
	EntryTypeWithdraw   EntryType = "withdraw"
	EntryTypeBet        EntryType = "bet"
	EntryTypeWin        EntryType = "win"
	EntryTypeRefund     EntryType = "refund"
	EntryTypeAdjustment EntryType = "adjustment"
)

// Direction indicates whether an entry credits or debits the account.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// EntryStatus is the status an entry was committed with.
type EntryStatus string

const (
	EntryStatusApplied EntryStatus = "applied"
)

// LedgerEntry is an immutable balance-affecting fact. Entries are only
// ever inserted; corrections are new entries, never updates.
type LedgerEntry struct {
	ID              uuid.UUID   `json:"id"`
	TenantID        uuid.UUID   `json:"tenant_id"`
	AccountID       uuid.UUID   `json:"account_id"`
	Type            EntryType   `json:"type"`
	Direction       Direction   `json:"direction"`
	Amount          int64       `json:"amount"` // Minor units, always positive
	Currency        string      `json:"currency"`
	Status          EntryStatus `json:"status"`
	IdempotencyKey  *string     `json:"idempotency_key,omitempty"`
	Provider        *string     `json:"provider,omitempty"`
	ProviderRef     *string     `json:"provider_ref,omitempty"`
	ProviderEventID *string     `json:"provider_event_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// RequiresIdempotencyKey reports whether entries of this type must carry
// a caller-supplied idempotency key. Only internal adjustments may omit it.
func (t EntryType) RequiresIdempotencyKey() bool {
	return t != EntryTypeAdjustment
}

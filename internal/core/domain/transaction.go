package domain

import (
	"time"

	"github.com/google/uuid"
)

// TxType is the kind of money-movement request a transaction tracks.
type TxType string

const (
	TxTypeDeposit    TxType = "deposit"
	TxTypeWithdrawal TxType = "withdrawal"
)

// TxState is a lifecycle state of a transaction.
type TxState string

const (
	// Deposit states
	TxStateCreated         TxState = "created"
	TxStatePendingProvider TxState = "pending_provider"
	TxStateCompleted       TxState = "completed"
	TxStateFailed          TxState = "failed"

	// Withdrawal states
	TxStateRequested TxState = "requested"
	TxStateApproved  TxState = "approved"
	TxStatePaid      TxState = "paid"
	TxStateRejected  TxState = "rejected"
)

type txEdge struct {
	Type TxType
	From TxState
	To   TxState
}

// allowedEdges is the fixed allow-list of legal lifecycle transitions.
// Anything not in this table is an illegal transition, no exceptions.
var allowedEdges = map[txEdge]bool{
	{TxTypeDeposit, TxStateCreated, TxStatePendingProvider}:   true,
	{TxTypeDeposit, TxStatePendingProvider, TxStateCompleted}: true,
	{TxTypeDeposit, TxStateCreated, TxStateFailed}:            true,
	{TxTypeDeposit, TxStatePendingProvider, TxStateFailed}:    true,

	{TxTypeWithdrawal, TxStateRequested, TxStateApproved}: true,
	{TxTypeWithdrawal, TxStateApproved, TxStatePaid}:      true,
	{TxTypeWithdrawal, TxStateRequested, TxStateRejected}: true,
}

// CanTransition reports whether (type, from, to) is an allowed edge.
// A transition to the current state is not an edge; callers treat it as
// an idempotent no-op before consulting this table.
func CanTransition(t TxType, from, to TxState) bool {
	return allowedEdges[txEdge{t, from, to}]
}

// IsTerminal reports whether a state has no outgoing edges for the type.
func IsTerminal(t TxType, s TxState) bool {
	for edge := range allowedEdges {
		if edge.Type == t && edge.From == s {
			return false
		}
	}
	return true
}

// InitialState returns the state a freshly created transaction starts in.
func InitialState(t TxType) TxState {
	if t == TxTypeWithdrawal {
		return TxStateRequested
	}
	return TxStateCreated
}

// Attempt records one lifecycle transition on a transaction.
type Attempt struct {
	From        TxState   `json:"from"`
	To          TxState   `json:"to"`
	ProviderRef string    `json:"provider_ref,omitempty"`
	At          time.Time `json:"at"`
}

// Transaction is the mutable lifecycle wrapper around a deposit or
// withdrawal request. One transaction may generate several ledger
// entries across its lifecycle; the entries themselves never change.
type Transaction struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	AccountID       uuid.UUID `json:"account_id"`
	Type            TxType    `json:"type"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	State           TxState   `json:"state"`
	IdempotencyKey  string    `json:"idempotency_key"`
	Provider        *string   `json:"provider,omitempty"`
	ProviderEventID *string   `json:"provider_event_id,omitempty"`
	Attempts        []Attempt `json:"attempts"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ProviderEventType classifies an inbound provider callback.
type ProviderEventType string

const (
	ProviderEventDepositCompleted ProviderEventType = "deposit.completed"
	ProviderEventDepositFailed    ProviderEventType = "deposit.failed"
	ProviderEventWithdrawalPaid   ProviderEventType = "withdrawal.paid"
	ProviderEventBetPlaced        ProviderEventType = "bet.placed"
	ProviderEventBetSettled       ProviderEventType = "bet.settled"
	ProviderEventRefundIssued     ProviderEventType = "refund.issued"
)

// ProviderEvent is the parsed body of a provider webhook callback.
// EventID is the provider-side deduplication key; TxID references the
// local transaction for lifecycle events and is empty for game events.
type ProviderEvent struct {
	EventID   string            `json:"event_id"`
	Type      ProviderEventType `json:"type"`
	TenantID  uuid.UUID         `json:"tenant_id"`
	AccountID uuid.UUID         `json:"account_id"`
	TxID      *uuid.UUID        `json:"tx_id,omitempty"`
	Amount    int64             `json:"amount"` // Minor units
	Currency  string            `json:"currency"`
	Ref       string            `json:"ref,omitempty"`
}

// ParseProviderEvent decodes and structurally validates a callback body.
func ParseProviderEvent(raw []byte) (*ProviderEvent, error) {
	var ev ProviderEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode provider event: %w", err)
	}
	if ev.EventID == "" {
		return nil, fmt.Errorf("provider event missing event_id")
	}
	switch ev.Type {
	case ProviderEventDepositCompleted, ProviderEventDepositFailed,
		ProviderEventWithdrawalPaid, ProviderEventBetPlaced,
		ProviderEventBetSettled, ProviderEventRefundIssued:
	default:
		return nil, fmt.Errorf("unknown provider event type %q", ev.Type)
	}
	if ev.TenantID == uuid.Nil || ev.AccountID == uuid.Nil {
		return nil, fmt.Errorf("provider event missing tenant or account")
	}
	if ev.Amount <= 0 {
		return nil, fmt.Errorf("provider event amount must be positive")
	}
	if ev.Currency == "" {
		return nil, fmt.Errorf("provider event missing currency")
	}
	return &ev, nil
}

// ProviderResult is the outcome of an outbound PSP call.
type ProviderResult struct {
	Status      string `json:"status"`
	ProviderRef string `json:"provider_ref"`
}

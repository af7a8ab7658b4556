package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the sentinel prev_row_hash of the first event in a
// tenant's chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// AuditEvent is one link in a tenant's tamper-evident audit chain.
// Sequence is monotonic per tenant; row_hash covers the previous row's
// hash plus a canonical serialization of this event's payload, so any
// in-place edit breaks every later link.
type AuditEvent struct {
	TenantID     uuid.UUID       `json:"tenant_id"`
	Sequence     int64           `json:"sequence"`
	RowHash      string          `json:"row_hash"`
	PrevRowHash  string          `json:"prev_row_hash"`
	Actor        string          `json:"actor"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Details      json.RawMessage `json:"details,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// HashPayload returns the canonical JSON this event's row hash covers.
// encoding/json marshals map keys in sorted order, which is the canonical
// form verify relies on. The timestamp is hashed at microsecond
// precision, matching what timestamptz retains, so a hash computed
// before insert still verifies after the row is read back.
func (e *AuditEvent) HashPayload() ([]byte, error) {
	var details interface{}
	if len(e.Details) > 0 {
		if err := json.Unmarshal(e.Details, &details); err != nil {
			return nil, err
		}
	}
	return json.Marshal(map[string]interface{}{
		"sequence":      e.Sequence,
		"actor":         e.Actor,
		"action":        e.Action,
		"resource_type": e.ResourceType,
		"resource_id":   e.ResourceID,
		"details":       details,
		"created_at":    e.CreatedAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
	})
}

// ComputeRowHash returns hex(sha256(prev_row_hash || canonical payload)).
func (e *AuditEvent) ComputeRowHash() (string, error) {
	payload, err := e.HashPayload()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(e.PrevRowHash))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

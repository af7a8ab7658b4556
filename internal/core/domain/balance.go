package domain

import (
	"time"

	"github.com/google/uuid"
)

// Balance is the per-(tenant, account, currency) funds row.
// All amounts are int64 minor units (cents). available + held + pending
// is the account total and never goes negative.
type Balance struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	AccountID uuid.UUID `json:"account_id"`
	Currency  string    `json:"currency"`
	Available int64     `json:"available"`
	Held      int64     `json:"held"`
	Pending   int64     `json:"pending"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Total returns the sum of all three buckets.
func (b *Balance) Total() int64 {
	return b.Available + b.Held + b.Pending
}

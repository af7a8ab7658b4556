// Package events publishes committed ledger entries to NATS JetStream
// for downstream consumers (analytics, notifications, risk). Publishing
// is strictly post-commit and best-effort: the database is the source of
// truth and consumers can backfill from it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const streamName = "WALLET_LEDGER_ENTRIES"

// NATSPublisher implements ports.EventPublisher over JetStream.
// Subjects follow the pattern wallet.ledger.entries.{entry_type}.
type NATSPublisher struct {
	js  jetstream.JetStream
	log zerolog.Logger
}

// NewNATSPublisher creates a publisher and ensures the entries stream
// exists.
func NewNATSPublisher(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) (*NATSPublisher, error) {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"wallet.ledger.entries.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure entries stream: %w", err)
	}
	return &NATSPublisher{js: js, log: log}, nil
}

// PublishEntry publishes one committed entry.
func (p *NATSPublisher) PublishEntry(ctx context.Context, e *domain.LedgerEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}

	subject := fmt.Sprintf("wallet.ledger.entries.%s", e.Type)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.log.Debug().
		Str("entry_id", e.ID.String()).
		Str("subject", subject).
		Msg("ledger entry published")
	return nil
}

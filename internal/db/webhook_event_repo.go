package db

import (
	"context"

	"github.com/klauspost/compress/zstd"

	"coworkgate/internal/types"
)

// payloadEncoder is safe for concurrent EncodeAll calls.
var payloadEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))

// WebhookEventRepository archives raw gateway notifications in
// webhook_events with a zstd-compressed payload.
type WebhookEventRepository struct {
	db DBTX
}

// NewWebhookEventRepository creates a WebhookEventRepository over db.
func NewWebhookEventRepository(db DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Record inserts e, compressing its payload.
func (r *WebhookEventRepository) Record(ctx context.Context, e *types.WebhookEvent) error {
	compressed := payloadEncoder.EncodeAll(e.Payload, make([]byte, 0, len(e.Payload)/2))
	_, err := r.db.Exec(ctx,
		`INSERT INTO webhook_events (id, provider, topic, provider_payment_id, payload, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID,
		e.Provider,
		e.Topic,
		nilIfEmpty(e.ProviderPaymentID.String()),
		compressed,
		e.ReceivedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record webhook event", err)
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nuntius-io/nuntius/internal/domain"
)

// WebhookEventRepository implements domain.WebhookEventRepository
type WebhookEventRepository struct {
	db *sql.DB
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Create appends one event to the log
func (r *WebhookEventRepository) Create(ctx context.Context, event *domain.WebhookEvent) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO webhook_events (type, message_id, recipient, provider, is_permanent, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		event.Type, event.MessageID, event.Recipient, event.Provider,
		event.IsPermanent, event.RawPayload).
		Scan(&event.ID, &event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to create webhook event: %w", err)
	}
	return nil
}

package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/asaskevich/govalidator"
)

// EmailEventType is the normalised kind of a provider webhook event.
type EmailEventType string

const (
	EmailEventDelivered    EmailEventType = "delivered"
	EmailEventRejected     EmailEventType = "rejected"
	EmailEventFailed       EmailEventType = "failed"
	EmailEventBounced      EmailEventType = "bounced"
	EmailEventComplained   EmailEventType = "complained"
	EmailEventUnsubscribed EmailEventType = "unsubscribed"
	EmailEventOpened       EmailEventType = "opened"
	EmailEventClicked      EmailEventType = "clicked"
)

// WebhookEvent is a normalised delivery event reported by an email
// provider. The provider-specific adapter fills IsPermanent for bounces.
type WebhookEvent struct {
	ID        int64          `json:"id"`
	Type      EmailEventType `json:"type"`
	MessageID string         `json:"message_id"`
	Recipient string         `json:"recipient"`
	Provider  string         `json:"provider"`

	// IsPermanent distinguishes hard bounces from soft ones. Ignored for
	// every other event type.
	IsPermanent bool `json:"is_permanent"`

	RawPayload string    `json:"raw_payload,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate checks the event carries enough to act on.
func (e *WebhookEvent) Validate() error {
	switch e.Type {
	case EmailEventDelivered, EmailEventRejected, EmailEventFailed,
		EmailEventBounced, EmailEventComplained, EmailEventUnsubscribed,
		EmailEventOpened, EmailEventClicked:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.MessageID == "" && e.Recipient == "" {
		return fmt.Errorf("event carries neither message id nor recipient")
	}
	if e.Recipient != "" && !govalidator.IsEmail(e.Recipient) {
		return fmt.Errorf("invalid recipient email %q", e.Recipient)
	}
	return nil
}

// WebhookEventRepository persists the raw event log.
type WebhookEventRepository interface {
	// Create appends one event to the log
	Create(ctx context.Context, event *WebhookEvent) error
}

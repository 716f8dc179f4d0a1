package domain

import (
	"context"
	"time"
)

// SendResult is the delivery outcome of one send record, stored as a short
// code.
type SendResult string

const (
	SendResultPending      SendResult = "P"
	SendResultUnknown      SendResult = "?"
	SendResultRejected     SendResult = "RE"
	SendResultOk           SendResult = "OK"
	SendResultBounced      SendResult = "BC"
	SendResultComplained   SendResult = "C"
	SendResultUnsubscribed SendResult = "U"
	SendResultBlocked      SendResult = "BL"
	SendResultError        SendResult = "E"
)

func (r SendResult) String() string {
	switch r {
	case SendResultPending:
		return "pending"
	case SendResultUnknown:
		return "unknown"
	case SendResultRejected:
		return "rejected"
	case SendResultOk:
		return "ok"
	case SendResultBounced:
		return "bounced"
	case SendResultComplained:
		return "complained"
	case SendResultUnsubscribed:
		return "unsubscribed"
	case SendResultBlocked:
		return "blocked"
	case SendResultError:
		return "error"
	default:
		return string(r)
	}
}

// rank orders results so that transitions only ever move forward. Pending
// sits below the refinable states Unknown and Blocked, which sit below the
// settled outcomes.
func (r SendResult) rank() int {
	switch r {
	case SendResultPending:
		return 0
	case SendResultUnknown, SendResultBlocked:
		return 1
	default:
		return 2
	}
}

// CanTransitionTo reports whether moving from r to next respects the
// monotonic result ordering. Two same-rank refinements are allowed: a soft
// bounce turns Unknown into Blocked, and a late webhook may still refine Ok
// to Bounced or Complained. Blocked never goes back to Unknown.
func (r SendResult) CanTransitionTo(next SendResult) bool {
	if next.rank() > r.rank() {
		return true
	}
	if r == SendResultUnknown {
		return next == SendResultBlocked
	}
	if r == SendResultOk {
		return next == SendResultBounced || next == SendResultComplained
	}
	return false
}

// IsSuccessful reports whether the record counts as a successful contact
// for reputation purposes.
func (r SendResult) IsSuccessful() bool {
	return r == SendResultOk || r == SendResultUnknown
}

// SendRecord is the per-recipient row capturing scheduling, delivery
// outcome, and tracking counters. Records created for webhook events with
// no matching message carry a nil campaign.
type SendRecord struct {
	ID           int64  `json:"id"`
	CampaignID   *int64 `json:"campaign_id,omitempty"`
	SubscriberID *int64 `json:"subscriber_id,omitempty"`

	// Email is frozen at creation so history survives subscriber deletion.
	Email    string    `json:"email"`
	Datetime time.Time `json:"datetime"`

	Result       SendResult `json:"result"`
	ESPMessageID *string    `json:"esp_message_id,omitempty"`
	TrackingID   string     `json:"tracking_id"`
	OpenCount    int64      `json:"open_count"`
	ClickCount   int64      `json:"click_count"`
}

// SendRecordRepository defines methods for send record persistence
type SendRecordRepository interface {
	// GetOrCreate atomically fetches the record for (campaign, subscriber),
	// creating it Pending with a fresh tracking id when absent. The second
	// return value reports whether the record was created.
	GetOrCreate(ctx context.Context, campaignID, subscriberID int64, email string) (*SendRecord, bool, error)

	// GetByID retrieves a record by its primary key
	GetByID(ctx context.Context, id int64) (*SendRecord, error)

	// GetByTrackingID retrieves a record by its public tracking token
	GetByTrackingID(ctx context.Context, trackingID string) (*SendRecord, error)

	// GetByESPMessageID retrieves a record by the provider-side message id
	GetByESPMessageID(ctx context.Context, messageID string) (*SendRecord, error)

	// CreateSynthetic records a webhook event whose message id matches no
	// known record, so late-bouncing addresses still enter the history.
	CreateSynthetic(ctx context.Context, email string, espMessageID *string, result SendResult) (*SendRecord, error)

	// SetResultFromPending moves a record out of Pending, optionally
	// attaching the provider message id. Returns false without modifying
	// anything when the record is no longer Pending.
	SetResultFromPending(ctx context.Context, id int64, result SendResult, espMessageID *string) (bool, error)

	// TransitionResult applies a webhook outcome under a row-level lock,
	// enforcing the monotonic result ordering. Returns false when the
	// transition is not allowed.
	TransitionResult(ctx context.Context, id int64, result SendResult) (bool, error)

	// IncrementOpenCount bumps open_count for the record with the given
	// tracking id and returns the updated record
	IncrementOpenCount(ctx context.Context, trackingID string) (*SendRecord, error)

	// IncrementClickCount bumps click_count for the record with the given
	// tracking id and returns the updated record
	IncrementClickCount(ctx context.Context, trackingID string) (*SendRecord, error)

	// RecentResultsByEmail returns the most recent results for an email,
	// newest first, up to limit
	RecentResultsByEmail(ctx context.Context, email string, limit int) ([]SendResult, error)

	// HasResultByEmail reports whether any record for the email, optionally
	// restricted to datetime >= since, carries one of the given results
	HasResultByEmail(ctx context.Context, email string, results []SendResult, since *time.Time) (bool, error)

	// CountResultsByEmail counts records for the email with one of the
	// given results and datetime >= since
	CountResultsByEmail(ctx context.Context, email string, results []SendResult, since time.Time) (int64, error)
}

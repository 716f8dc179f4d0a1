package domain

import (
	"context"
	"fmt"
	"time"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus int

const (
	CampaignStatusWaiting CampaignStatus = 0
	CampaignStatusSending CampaignStatus = 1
	CampaignStatusSent    CampaignStatus = 2
	CampaignStatusError   CampaignStatus = 3
)

func (s CampaignStatus) String() string {
	switch s {
	case CampaignStatusWaiting:
		return "waiting"
	case CampaignStatusSending:
		return "sending"
	case CampaignStatusSent:
		return "sent"
	case CampaignStatusError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Campaign is a message template plus a target audience and send window.
type Campaign struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	UTMName      string         `json:"utm_name"`
	FromName     string         `json:"from_name"`
	FromEmail    string         `json:"from_email"`
	ReplyToName  string         `json:"reply_to_name"`
	ReplyToEmail string         `json:"reply_to_email"`
	Subject      string         `json:"subject"`
	HTMLBody     string         `json:"html_body"`
	TextBody     string         `json:"text_body"`
	SegmentID    *int64         `json:"segment_id,omitempty"`
	Status       CampaignStatus `json:"status"`
	StartDate    *time.Time     `json:"start_date,omitempty"`
	EndDate      *time.Time     `json:"end_date,omitempty"`
	FirstSent    *time.Time     `json:"first_sent,omitempty"`

	// SignatureKey signs rewritten link targets. 20 random bytes,
	// generated at creation and never rotated.
	SignatureKey []byte `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FromHeader returns the RFC 5322 From value, "Name <email>" when a display
// name is set.
func (c *Campaign) FromHeader() string {
	if c.FromName != "" {
		return fmt.Sprintf("%s <%s>", c.FromName, c.FromEmail)
	}
	return c.FromEmail
}

// ReplyToHeader returns the Reply-To value, empty when the campaign has no
// reply-to address.
func (c *Campaign) ReplyToHeader() string {
	if c.ReplyToEmail == "" {
		return ""
	}
	if c.ReplyToName != "" {
		return fmt.Sprintf("%s <%s>", c.ReplyToName, c.ReplyToEmail)
	}
	return c.ReplyToEmail
}

// CampaignStats aggregates send outcomes and engagement counters for one
// campaign.
type CampaignStats struct {
	CampaignID   int64 `json:"campaign_id"`
	Total        int64 `json:"total"`
	Pending      int64 `json:"pending"`
	Sent         int64 `json:"sent"`
	Ok           int64 `json:"ok"`
	Bounced      int64 `json:"bounced"`
	Complained   int64 `json:"complained"`
	Blocked      int64 `json:"blocked"`
	Opens        int64 `json:"opens"`
	Clicks       int64 `json:"clicks"`
	UniqueOpens  int64 `json:"unique_opens"`
	UniqueClicks int64 `json:"unique_clicks"`
}

// CampaignRepository defines methods for campaign persistence
type CampaignRepository interface {
	// GetByID retrieves one campaign
	GetByID(ctx context.Context, id int64) (*Campaign, error)

	// Outbox returns the campaigns the supervisor considers active:
	// status < Sent and now within [start_date, end_date].
	Outbox(ctx context.Context, now time.Time) ([]*Campaign, error)

	// UpdateStatus transitions a campaign's lifecycle state
	UpdateStatus(ctx context.Context, id int64, status CampaignStatus) error

	// MarkSent sets status to Sent and backfills first_sent when unset
	MarkSent(ctx context.Context, id int64, now time.Time) error

	// Stats computes the aggregate counters shown for a campaign
	Stats(ctx context.Context, id int64) (*CampaignStats, error)
}

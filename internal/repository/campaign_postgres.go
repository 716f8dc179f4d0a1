package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nuntius-io/nuntius/internal/domain"
)

// CampaignRepository implements domain.CampaignRepository
type CampaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// campaignSelectFields returns the common SELECT fields for campaign queries
func campaignSelectFields() string {
	return `id, name, utm_name, from_name, from_email, reply_to_name, reply_to_email,
			subject, html_body, text_body, segment_id, status, start_date, end_date,
			first_sent, signature_key, created_at, updated_at`
}

func scanCampaign(scanner interface {
	Scan(dest ...interface{}) error
}, campaign *domain.Campaign) error {
	return scanner.Scan(
		&campaign.ID,
		&campaign.Name,
		&campaign.UTMName,
		&campaign.FromName,
		&campaign.FromEmail,
		&campaign.ReplyToName,
		&campaign.ReplyToEmail,
		&campaign.Subject,
		&campaign.HTMLBody,
		&campaign.TextBody,
		&campaign.SegmentID,
		&campaign.Status,
		&campaign.StartDate,
		&campaign.EndDate,
		&campaign.FirstSent,
		&campaign.SignatureKey,
		&campaign.CreatedAt,
		&campaign.UpdatedAt,
	)
}

// GetByID retrieves one campaign
func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*domain.Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM campaigns WHERE id = $1`, campaignSelectFields())

	campaign := &domain.Campaign{}
	err := scanCampaign(r.db.QueryRowContext(ctx, query, id), campaign)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "campaign", ID: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}

// Outbox returns the active campaigns: status below Sent, inside the send
// window.
func (r *CampaignRepository) Outbox(ctx context.Context, now time.Time) ([]*domain.Campaign, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM campaigns
		WHERE status < $1
		  AND (start_date IS NULL OR start_date <= $2)
		  AND (end_date IS NULL OR end_date >= $2)
		ORDER BY id`, campaignSelectFields())

	rows, err := r.db.QueryContext(ctx, query, domain.CampaignStatusSent, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var campaigns []*domain.Campaign
	for rows.Next() {
		campaign := &domain.Campaign{}
		if err := scanCampaign(rows, campaign); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}
	return campaigns, rows.Err()
}

// UpdateStatus transitions a campaign's lifecycle state
func (r *CampaignRepository) UpdateStatus(ctx context.Context, id int64, status domain.CampaignStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &domain.ErrNotFound{Entity: "campaign", ID: fmt.Sprintf("%d", id)}
	}
	return nil
}

// MarkSent sets status to Sent and backfills first_sent when unset
func (r *CampaignRepository) MarkSent(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $1, first_sent = COALESCE(first_sent, $2), updated_at = NOW()
		WHERE id = $3`,
		domain.CampaignStatusSent, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark campaign sent: %w", err)
	}
	return nil
}

// Stats computes the aggregate counters shown for a campaign
func (r *CampaignRepository) Stats(ctx context.Context, id int64) (*domain.CampaignStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE result = 'P'),
			COUNT(*) FILTER (WHERE result <> 'P'),
			COUNT(*) FILTER (WHERE result = 'OK'),
			COUNT(*) FILTER (WHERE result = 'BC'),
			COUNT(*) FILTER (WHERE result = 'C'),
			COUNT(*) FILTER (WHERE result = 'BL'),
			COALESCE(SUM(open_count), 0),
			COALESCE(SUM(click_count), 0),
			COUNT(*) FILTER (WHERE open_count > 0),
			COUNT(*) FILTER (WHERE click_count > 0)
		FROM send_records
		WHERE campaign_id = $1`

	stats := &domain.CampaignStats{CampaignID: id}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Sent,
		&stats.Ok,
		&stats.Bounced,
		&stats.Complained,
		&stats.Blocked,
		&stats.Opens,
		&stats.Clicks,
		&stats.UniqueOpens,
		&stats.UniqueClicks,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute campaign stats: %w", err)
	}
	return stats, nil
}

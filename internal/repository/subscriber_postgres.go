package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/nuntius-io/nuntius/internal/domain"
)

func init() {
	domain.RegisterSubscriberRepository("postgres", func(db *sql.DB) domain.SubscriberRepository {
		return NewSubscriberRepository(db)
	})
}

// SubscriberRepository implements domain.SubscriberRepository over the
// built-in subscribers table. Deployments with their own subscriber store
// register an alternative constructor and select it by configuration.
type SubscriberRepository struct {
	db *sql.DB
}

// NewSubscriberRepository creates a new subscriber repository
func NewSubscriberRepository(db *sql.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

func subscriberSelectFields() string {
	return `id, email, status, attributes`
}

func scanSubscriber(scanner interface {
	Scan(dest ...interface{}) error
}, subscriber *domain.Subscriber) error {
	return scanner.Scan(
		&subscriber.ID,
		&subscriber.Email,
		&subscriber.Status,
		&subscriber.Attributes,
	)
}

// GetByID retrieves one subscriber
func (r *SubscriberRepository) GetByID(ctx context.Context, id int64) (*domain.Subscriber, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscribers WHERE id = $1`, subscriberSelectFields())

	subscriber := &domain.Subscriber{}
	err := scanSubscriber(r.db.QueryRowContext(ctx, query, id), subscriber)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "subscriber", ID: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return subscriber, nil
}

// GetByEmail retrieves one subscriber by its unique email
func (r *SubscriberRepository) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscribers WHERE email = $1`, subscriberSelectFields())

	subscriber := &domain.Subscriber{}
	err := scanSubscriber(r.db.QueryRowContext(ctx, query, email), subscriber)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "subscriber", ID: email}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return subscriber, nil
}

// SetStatusByEmail updates the delivery standing of an address. Unknown
// addresses are ignored.
func (r *SubscriberRepository) SetStatusByEmail(ctx context.Context, email string, status domain.SubscriberStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subscribers SET status = $1, updated_at = NOW() WHERE email = $2`,
		status, email)
	if err != nil {
		return fmt.Errorf("failed to update subscriber status: %w", err)
	}
	return nil
}

// eligibleBuilder builds the streaming anti-join: subscribers of the
// segment that have no settled send record for the campaign. Records still
// Pending do not disqualify, the dispatcher resumes them.
func eligibleBuilder(columns string, campaignID int64, segmentID *int64) sq.SelectBuilder {
	builder := sq.Select(columns).
		From("subscribers s").
		LeftJoin(
			"send_records r ON r.subscriber_id = s.id AND r.campaign_id = ? AND r.result <> ?",
			campaignID, string(domain.SendResultPending)).
		Where("r.id IS NULL").
		PlaceholderFormat(sq.Dollar)
	if segmentID != nil {
		builder = builder.
			Join("segment_subscribers m ON m.subscriber_id = s.id").
			Where(sq.Eq{"m.segment_id": *segmentID})
	}
	return builder
}

// ForEachEligible streams the eligible subscribers of a campaign in id
// order.
func (r *SubscriberRepository) ForEachEligible(ctx context.Context, campaignID int64, segmentID *int64, fn func(*domain.Subscriber) error) error {
	query, args, err := eligibleBuilder(
		"s.id, s.email, s.status, s.attributes", campaignID, segmentID).
		OrderBy("s.id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query eligible subscribers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		subscriber := &domain.Subscriber{}
		if err := scanSubscriber(rows, subscriber); err != nil {
			return fmt.Errorf("failed to scan subscriber: %w", err)
		}
		if err := fn(subscriber); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountEligible returns the size of the ForEachEligible sequence
func (r *SubscriberRepository) CountEligible(ctx context.Context, campaignID int64, segmentID *int64) (int64, error) {
	query, args, err := eligibleBuilder("COUNT(*)", campaignID, segmentID).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count eligible subscribers: %w", err)
	}
	return count, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/nuntius-io/nuntius/internal/domain"
	"github.com/nuntius-io/nuntius/pkg/crypto"
)

// SendRecordRepository implements domain.SendRecordRepository
type SendRecordRepository struct {
	db *sql.DB

	// newTrackingID is split off for tests.
	newTrackingID func() (string, error)
}

// NewSendRecordRepository creates a new send record repository
func NewSendRecordRepository(db *sql.DB) *SendRecordRepository {
	return &SendRecordRepository{
		db:            db,
		newTrackingID: crypto.GenerateTrackingID,
	}
}

func sendRecordSelectFields() string {
	return `id, campaign_id, subscriber_id, email, datetime, result,
			esp_message_id, tracking_id, open_count, click_count`
}

func scanSendRecord(scanner interface {
	Scan(dest ...interface{}) error
}, record *domain.SendRecord) error {
	var result string
	err := scanner.Scan(
		&record.ID,
		&record.CampaignID,
		&record.SubscriberID,
		&record.Email,
		&record.Datetime,
		&result,
		&record.ESPMessageID,
		&record.TrackingID,
		&record.OpenCount,
		&record.ClickCount,
	)
	if err != nil {
		return err
	}
	// CHAR(2) columns come back space padded.
	record.Result = domain.SendResult(strings.TrimRight(result, " "))
	record.TrackingID = strings.TrimRight(record.TrackingID, " ")
	return nil
}

// GetOrCreate atomically fetches the record for (campaign, subscriber),
// creating it Pending when absent.
func (r *SendRecordRepository) GetOrCreate(ctx context.Context, campaignID, subscriberID int64, email string) (*domain.SendRecord, bool, error) {
	trackingID, err := r.newTrackingID()
	if err != nil {
		return nil, false, err
	}

	insert := fmt.Sprintf(`
		INSERT INTO send_records (campaign_id, subscriber_id, email, result, tracking_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (campaign_id, subscriber_id)
			WHERE campaign_id IS NOT NULL AND subscriber_id IS NOT NULL
			DO NOTHING
		RETURNING %s`, sendRecordSelectFields())

	record := &domain.SendRecord{}
	err = scanSendRecord(
		r.db.QueryRowContext(ctx, insert, campaignID, subscriberID, email, domain.SendResultPending, trackingID),
		record)
	if err == nil {
		return record, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to create send record: %w", err)
	}

	// Conflict: the record already exists.
	query := fmt.Sprintf(`SELECT %s FROM send_records WHERE campaign_id = $1 AND subscriber_id = $2`,
		sendRecordSelectFields())
	err = scanSendRecord(r.db.QueryRowContext(ctx, query, campaignID, subscriberID), record)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get send record: %w", err)
	}
	return record, false, nil
}

// GetByID retrieves a record by its primary key
func (r *SendRecordRepository) GetByID(ctx context.Context, id int64) (*domain.SendRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM send_records WHERE id = $1`, sendRecordSelectFields())

	record := &domain.SendRecord{}
	err := scanSendRecord(r.db.QueryRowContext(ctx, query, id), record)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "send record", ID: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get send record: %w", err)
	}
	return record, nil
}

// GetByTrackingID retrieves a record by its public tracking token
func (r *SendRecordRepository) GetByTrackingID(ctx context.Context, trackingID string) (*domain.SendRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM send_records WHERE tracking_id = $1`, sendRecordSelectFields())

	record := &domain.SendRecord{}
	err := scanSendRecord(r.db.QueryRowContext(ctx, query, trackingID), record)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "send record", ID: trackingID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get send record: %w", err)
	}
	return record, nil
}

// GetByESPMessageID retrieves a record by the provider-side message id
func (r *SendRecordRepository) GetByESPMessageID(ctx context.Context, messageID string) (*domain.SendRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM send_records WHERE esp_message_id = $1`, sendRecordSelectFields())

	record := &domain.SendRecord{}
	err := scanSendRecord(r.db.QueryRowContext(ctx, query, messageID), record)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "send record", ID: messageID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get send record: %w", err)
	}
	return record, nil
}

// CreateSynthetic records a webhook event whose message id matches no known
// record. The record has no campaign and no subscriber.
func (r *SendRecordRepository) CreateSynthetic(ctx context.Context, email string, espMessageID *string, result domain.SendResult) (*domain.SendRecord, error) {
	trackingID, err := r.newTrackingID()
	if err != nil {
		return nil, err
	}

	insert := fmt.Sprintf(`
		INSERT INTO send_records (email, result, esp_message_id, tracking_id)
		VALUES ($1, $2, $3, $4)
		RETURNING %s`, sendRecordSelectFields())

	record := &domain.SendRecord{}
	err = scanSendRecord(
		r.db.QueryRowContext(ctx, insert, email, result, espMessageID, trackingID),
		record)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthetic send record: %w", err)
	}
	return record, nil
}

// SetResultFromPending moves a record out of Pending. The WHERE clause is
// the idempotence guard: a record some other actor already settled is left
// untouched.
func (r *SendRecordRepository) SetResultFromPending(ctx context.Context, id int64, result domain.SendResult, espMessageID *string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE send_records
		SET result = $1, esp_message_id = COALESCE($2, esp_message_id)
		WHERE id = $3 AND result = $4`,
		result, espMessageID, id, domain.SendResultPending)
	if err != nil {
		return false, fmt.Errorf("failed to update send record result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// TransitionResult applies a webhook outcome under a row-level lock,
// enforcing the monotonic result ordering.
func (r *SendRecordRepository) TransitionResult(ctx context.Context, id int64, result domain.SendResult) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT result FROM send_records WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return false, &domain.ErrNotFound{Entity: "send record", ID: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock send record: %w", err)
	}

	from := domain.SendResult(strings.TrimRight(current, " "))
	if !from.CanTransitionTo(result) {
		return false, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE send_records SET result = $1 WHERE id = $2`, result, id); err != nil {
		return false, fmt.Errorf("failed to update send record result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// IncrementOpenCount bumps open_count for the record with the given
// tracking id and returns the updated record
func (r *SendRecordRepository) IncrementOpenCount(ctx context.Context, trackingID string) (*domain.SendRecord, error) {
	return r.incrementCounter(ctx, "open_count", trackingID)
}

// IncrementClickCount bumps click_count for the record with the given
// tracking id and returns the updated record
func (r *SendRecordRepository) IncrementClickCount(ctx context.Context, trackingID string) (*domain.SendRecord, error) {
	return r.incrementCounter(ctx, "click_count", trackingID)
}

func (r *SendRecordRepository) incrementCounter(ctx context.Context, column, trackingID string) (*domain.SendRecord, error) {
	query := fmt.Sprintf(`
		UPDATE send_records SET %s = %s + 1
		WHERE tracking_id = $1
		RETURNING %s`, column, column, sendRecordSelectFields())

	record := &domain.SendRecord{}
	err := scanSendRecord(r.db.QueryRowContext(ctx, query, trackingID), record)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "send record", ID: trackingID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment %s: %w", column, err)
	}
	return record, nil
}

// RecentResultsByEmail returns the most recent results for an email, newest
// first.
func (r *SendRecordRepository) RecentResultsByEmail(ctx context.Context, email string, limit int) ([]domain.SendResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT result FROM send_records
		WHERE email = $1
		ORDER BY datetime DESC
		LIMIT $2`, email, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent results: %w", err)
	}
	defer rows.Close()

	var results []domain.SendResult
	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, domain.SendResult(strings.TrimRight(result, " ")))
	}
	return results, rows.Err()
}

// HasResultByEmail reports whether any record for the email carries one of
// the given results, optionally restricted to datetime >= since.
func (r *SendRecordRepository) HasResultByEmail(ctx context.Context, email string, results []domain.SendResult, since *time.Time) (bool, error) {
	builder := sq.Select("1").
		From("send_records").
		Where(sq.Eq{"email": email, "result": resultStrings(results)}).
		Limit(1).
		PlaceholderFormat(sq.Dollar)
	if since != nil {
		builder = builder.Where(sq.GtOrEq{"datetime": *since})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query results by email: %w", err)
	}
	return true, nil
}

// CountResultsByEmail counts records for the email with one of the given
// results and datetime >= since.
func (r *SendRecordRepository) CountResultsByEmail(ctx context.Context, email string, results []domain.SendResult, since time.Time) (int64, error) {
	query, args, err := sq.Select("COUNT(*)").
		From("send_records").
		Where(sq.Eq{"email": email, "result": resultStrings(results)}).
		Where(sq.GtOrEq{"datetime": since}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count results by email: %w", err)
	}
	return count, nil
}

func resultStrings(results []domain.SendResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = string(r)
	}
	return out
}

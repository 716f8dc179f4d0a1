package http

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nuntius-io/nuntius/internal/domain"
)

type memCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int64]*domain.Campaign
}

func newMemCampaignRepo() *memCampaignRepo {
	return &memCampaignRepo{campaigns: make(map[int64]*domain.Campaign)}
}

func (r *memCampaignRepo) add(c *domain.Campaign) { r.campaigns[c.ID] = c }

func (r *memCampaignRepo) GetByID(ctx context.Context, id int64) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[id]; ok {
		return c, nil
	}
	return nil, &domain.ErrNotFound{Entity: "campaign", ID: fmt.Sprintf("%d", id)}
}

func (r *memCampaignRepo) Outbox(ctx context.Context, now time.Time) ([]*domain.Campaign, error) {
	return nil, nil
}

func (r *memCampaignRepo) UpdateStatus(ctx context.Context, id int64, status domain.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[id]; ok {
		c.Status = status
		return nil
	}
	return &domain.ErrNotFound{Entity: "campaign", ID: fmt.Sprintf("%d", id)}
}

func (r *memCampaignRepo) MarkSent(ctx context.Context, id int64, now time.Time) error {
	return r.UpdateStatus(ctx, id, domain.CampaignStatusSent)
}

func (r *memCampaignRepo) Stats(ctx context.Context, id int64) (*domain.CampaignStats, error) {
	return &domain.CampaignStats{CampaignID: id, Total: 3, Ok: 2, Bounced: 1}, nil
}

type memSendRecordRepo struct {
	mu      sync.Mutex
	records map[int64]*domain.SendRecord
	nextID  int64
}

func newMemSendRecordRepo() *memSendRecordRepo {
	return &memSendRecordRepo{records: make(map[int64]*domain.SendRecord)}
}

func (r *memSendRecordRepo) add(record *domain.SendRecord) *domain.SendRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	record.ID = r.nextID
	if record.TrackingID == "" {
		record.TrackingID = fmt.Sprintf("TRACK%07d", r.nextID)
	}
	r.records[record.ID] = record
	return record
}

func (r *memSendRecordRepo) GetOrCreate(ctx context.Context, campaignID, subscriberID int64, email string) (*domain.SendRecord, bool, error) {
	return nil, false, fmt.Errorf("not implemented")
}

func (r *memSendRecordRepo) GetByID(ctx context.Context, id int64) (*domain.SendRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[id]; ok {
		return record, nil
	}
	return nil, &domain.ErrNotFound{Entity: "send record", ID: fmt.Sprintf("%d", id)}
}

func (r *memSendRecordRepo) GetByTrackingID(ctx context.Context, trackingID string) (*domain.SendRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.TrackingID == trackingID {
			return record, nil
		}
	}
	return nil, &domain.ErrNotFound{Entity: "send record", ID: trackingID}
}

func (r *memSendRecordRepo) GetByESPMessageID(ctx context.Context, messageID string) (*domain.SendRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.ESPMessageID != nil && *record.ESPMessageID == messageID {
			return record, nil
		}
	}
	return nil, &domain.ErrNotFound{Entity: "send record", ID: messageID}
}

func (r *memSendRecordRepo) CreateSynthetic(ctx context.Context, email string, espMessageID *string, result domain.SendResult) (*domain.SendRecord, error) {
	return r.add(&domain.SendRecord{
		Email:        email,
		ESPMessageID: espMessageID,
		Result:       result,
		Datetime:     time.Now(),
	}), nil
}

func (r *memSendRecordRepo) SetResultFromPending(ctx context.Context, id int64, result domain.SendResult, espMessageID *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok || record.Result != domain.SendResultPending {
		return false, nil
	}
	record.Result = result
	if espMessageID != nil {
		record.ESPMessageID = espMessageID
	}
	return true, nil
}

func (r *memSendRecordRepo) TransitionResult(ctx context.Context, id int64, result domain.SendResult) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return false, &domain.ErrNotFound{Entity: "send record", ID: fmt.Sprintf("%d", id)}
	}
	if !record.Result.CanTransitionTo(result) {
		return false, nil
	}
	record.Result = result
	return true, nil
}

func (r *memSendRecordRepo) IncrementOpenCount(ctx context.Context, trackingID string) (*domain.SendRecord, error) {
	record, err := r.GetByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	record.OpenCount++
	return record, nil
}

func (r *memSendRecordRepo) IncrementClickCount(ctx context.Context, trackingID string) (*domain.SendRecord, error) {
	record, err := r.GetByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	record.ClickCount++
	return record, nil
}

func (r *memSendRecordRepo) RecentResultsByEmail(ctx context.Context, email string, limit int) ([]domain.SendResult, error) {
	return nil, nil
}

func (r *memSendRecordRepo) HasResultByEmail(ctx context.Context, email string, results []domain.SendResult, since *time.Time) (bool, error) {
	return false, nil
}

func (r *memSendRecordRepo) CountResultsByEmail(ctx context.Context, email string, results []domain.SendResult, since time.Time) (int64, error) {
	return 0, nil
}

type memSubscriberRepo struct {
	mu       sync.Mutex
	statuses map[string]domain.SubscriberStatus
}

func newMemSubscriberRepo() *memSubscriberRepo {
	return &memSubscriberRepo{statuses: make(map[string]domain.SubscriberStatus)}
}

func (r *memSubscriberRepo) GetByID(ctx context.Context, id int64) (*domain.Subscriber, error) {
	return nil, &domain.ErrNotFound{Entity: "subscriber", ID: fmt.Sprintf("%d", id)}
}

func (r *memSubscriberRepo) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	return nil, &domain.ErrNotFound{Entity: "subscriber", ID: email}
}

func (r *memSubscriberRepo) SetStatusByEmail(ctx context.Context, email string, status domain.SubscriberStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[email] = status
	return nil
}

func (r *memSubscriberRepo) ForEachEligible(ctx context.Context, campaignID int64, segmentID *int64, fn func(*domain.Subscriber) error) error {
	return nil
}

func (r *memSubscriberRepo) CountEligible(ctx context.Context, campaignID int64, segmentID *int64) (int64, error) {
	return 0, nil
}

type memEventRepo struct {
	mu     sync.Mutex
	events []*domain.WebhookEvent
}

func (r *memEventRepo) Create(ctx context.Context, event *domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

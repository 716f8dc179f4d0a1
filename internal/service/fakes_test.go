package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nuntius-io/nuntius/internal/domain"
)

// memorySendRecordRepo is an in-memory domain.SendRecordRepository.
type memorySendRecordRepo struct {
	mu      sync.Mutex
	records map[int64]*domain.SendRecord
	nextID  int64
}

func newMemorySendRecordRepo() *memorySendRecordRepo {
	return &memorySendRecordRepo{records: make(map[int64]*domain.SendRecord)}
}

func (r *memorySendRecordRepo) add(record *domain.SendRecord) *domain.SendRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	record.ID = r.nextID
	if record.TrackingID == "" {
		record.TrackingID = fmt.Sprintf("TRACK%07d", r.nextID)
	}
	if record.Datetime.IsZero() {
		record.Datetime = time.Now()
	}
	r.records[record.ID] = record
	return record
}

func (r *memorySendRecordRepo) GetOrCreate(ctx context.Context, campaignID, subscriberID int64, email string) (*domain.SendRecord, bool, error) {
	r.mu.Lock()
	for _, rec := range r.records {
		if rec.CampaignID != nil && *rec.CampaignID == campaignID &&
			rec.SubscriberID != nil && *rec.SubscriberID == subscriberID {
			r.mu.Unlock()
			return rec, false, nil
		}
	}
	r.mu.Unlock()
	record := &domain.SendRecord{
		CampaignID:   &campaignID,
		SubscriberID: &subscriberID,
		Email:        email,
		Result:       domain.SendResultPending,
	}
	return r.add(record), true, nil
}

func (r *memorySendRecordRepo) GetByID(ctx context.Context, id int64) (*domain.SendRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		return rec, nil
	}
	return nil, &domain.ErrNotFound{Entity: "send record", ID: fmt.Sprintf("%d", id)}
}

func (r *memorySendRecordRepo) GetByTrackingID(ctx context.Context, trackingID string) (*domain.SendRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.TrackingID == trackingID {
			return rec, nil
		}
	}
	return nil, &domain.ErrNotFound{Entity: "send record", ID: trackingID}
}

func (r *memorySendRecordRepo) GetByESPMessageID(ctx context.Context, messageID string) (*domain.SendRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ESPMessageID != nil && *rec.ESPMessageID == messageID {
			return rec, nil
		}
	}
	return nil, &domain.ErrNotFound{Entity: "send record", ID: messageID}
}

func (r *memorySendRecordRepo) CreateSynthetic(ctx context.Context, email string, espMessageID *string, result domain.SendResult) (*domain.SendRecord, error) {
	return r.add(&domain.SendRecord{
		Email:        email,
		ESPMessageID: espMessageID,
		Result:       result,
	}), nil
}

func (r *memorySendRecordRepo) SetResultFromPending(ctx context.Context, id int64, result domain.SendResult, espMessageID *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Result != domain.SendResultPending {
		return false, nil
	}
	rec.Result = result
	if espMessageID != nil {
		rec.ESPMessageID = espMessageID
	}
	return true, nil
}

func (r *memorySendRecordRepo) TransitionResult(ctx context.Context, id int64, result domain.SendResult) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return false, &domain.ErrNotFound{Entity: "send record", ID: fmt.Sprintf("%d", id)}
	}
	if !rec.Result.CanTransitionTo(result) {
		return false, nil
	}
	rec.Result = result
	return true, nil
}

func (r *memorySendRecordRepo) IncrementOpenCount(ctx context.Context, trackingID string) (*domain.SendRecord, error) {
	rec, err := r.GetByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.OpenCount++
	return rec, nil
}

func (r *memorySendRecordRepo) IncrementClickCount(ctx context.Context, trackingID string) (*domain.SendRecord, error) {
	rec, err := r.GetByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.ClickCount++
	return rec, nil
}

func (r *memorySendRecordRepo) byEmail(email string) []*domain.SendRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SendRecord
	for _, rec := range r.records {
		if rec.Email == email {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Datetime.After(out[j].Datetime) })
	return out
}

func (r *memorySendRecordRepo) RecentResultsByEmail(ctx context.Context, email string, limit int) ([]domain.SendResult, error) {
	var results []domain.SendResult
	for _, rec := range r.byEmail(email) {
		results = append(results, rec.Result)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func (r *memorySendRecordRepo) HasResultByEmail(ctx context.Context, email string, results []domain.SendResult, since *time.Time) (bool, error) {
	for _, rec := range r.byEmail(email) {
		if since != nil && rec.Datetime.Before(*since) {
			continue
		}
		for _, want := range results {
			if rec.Result == want {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *memorySendRecordRepo) CountResultsByEmail(ctx context.Context, email string, results []domain.SendResult, since time.Time) (int64, error) {
	var count int64
	for _, rec := range r.byEmail(email) {
		if rec.Datetime.Before(since) {
			continue
		}
		for _, want := range results {
			if rec.Result == want {
				count++
			}
		}
	}
	return count, nil
}

// memorySubscriberRepo is an in-memory domain.SubscriberRepository.
type memorySubscriberRepo struct {
	mu          sync.Mutex
	subscribers map[string]*domain.Subscriber
}

func newMemorySubscriberRepo() *memorySubscriberRepo {
	return &memorySubscriberRepo{subscribers: make(map[string]*domain.Subscriber)}
}

func (r *memorySubscriberRepo) add(s *domain.Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[s.Email] = s
}

func (r *memorySubscriberRepo) GetByID(ctx context.Context, id int64) (*domain.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subscribers {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, &domain.ErrNotFound{Entity: "subscriber", ID: fmt.Sprintf("%d", id)}
}

func (r *memorySubscriberRepo) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subscribers[email]; ok {
		return s, nil
	}
	return nil, &domain.ErrNotFound{Entity: "subscriber", ID: email}
}

func (r *memorySubscriberRepo) SetStatusByEmail(ctx context.Context, email string, status domain.SubscriberStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subscribers[email]; ok {
		s.Status = status
	}
	return nil
}

func (r *memorySubscriberRepo) ForEachEligible(ctx context.Context, campaignID int64, segmentID *int64, fn func(*domain.Subscriber) error) error {
	r.mu.Lock()
	var all []*domain.Subscriber
	for _, s := range r.subscribers {
		all = append(all, s)
	}
	r.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	for _, s := range all {
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *memorySubscriberRepo) CountEligible(ctx context.Context, campaignID int64, segmentID *int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.subscribers)), nil
}

// memoryEventRepo is an in-memory domain.WebhookEventRepository.
type memoryEventRepo struct {
	mu     sync.Mutex
	events []*domain.WebhookEvent
}

func (r *memoryEventRepo) Create(ctx context.Context, event *domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.ID = int64(len(r.events) + 1)
	event.Timestamp = time.Now()
	r.events = append(r.events, event)
	return nil
}

package mailer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nuntius-io/nuntius/internal/domain"
	pkgmailer "github.com/nuntius-io/nuntius/pkg/mailer"
)

// store is the shared in-memory state behind the repository fakes.
type store struct {
	mu          sync.Mutex
	campaigns   map[int64]*domain.Campaign
	segments    map[int64]*domain.Segment
	subscribers []*domain.Subscriber
	records     map[int64]*domain.SendRecord
	nextRecord  int64
}

func newStore() *store {
	return &store{
		campaigns: make(map[int64]*domain.Campaign),
		segments:  make(map[int64]*domain.Segment),
		records:   make(map[int64]*domain.SendRecord),
	}
}

func (s *store) addCampaign(c *domain.Campaign) { s.campaigns[c.ID] = c }

func (s *store) addSubscriber(id int64, email string, status domain.SubscriberStatus) {
	s.subscribers = append(s.subscribers, &domain.Subscriber{
		ID: id, Email: email, Status: status, Attributes: domain.Attributes{},
	})
}

func (s *store) recordFor(campaignID, subscriberID int64) *domain.SendRecord {
	for _, r := range s.records {
		if r.CampaignID != nil && *r.CampaignID == campaignID &&
			r.SubscriberID != nil && *r.SubscriberID == subscriberID {
			return r
		}
	}
	return nil
}

type campaignStore struct{ *store }

func (s campaignStore) GetByID(ctx context.Context, id int64) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[id]; ok {
		return c, nil
	}
	return nil, &domain.ErrNotFound{Entity: "campaign", ID: fmt.Sprintf("%d", id)}
}

func (s campaignStore) Outbox(ctx context.Context, now time.Time) ([]*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Campaign
	for _, c := range s.campaigns {
		if c.Status < domain.CampaignStatusSent {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s campaignStore) UpdateStatus(ctx context.Context, id int64, status domain.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[id]; ok {
		c.Status = status
		return nil
	}
	return &domain.ErrNotFound{Entity: "campaign", ID: fmt.Sprintf("%d", id)}
}

func (s campaignStore) MarkSent(ctx context.Context, id int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[id]; ok {
		c.Status = domain.CampaignStatusSent
		if c.FirstSent == nil {
			c.FirstSent = &now
		}
		return nil
	}
	return &domain.ErrNotFound{Entity: "campaign", ID: fmt.Sprintf("%d", id)}
}

func (s campaignStore) Stats(ctx context.Context, id int64) (*domain.CampaignStats, error) {
	return &domain.CampaignStats{CampaignID: id}, nil
}

type segmentStore struct{ *store }

func (s segmentStore) GetByID(ctx context.Context, id int64) (*domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seg, ok := s.segments[id]; ok {
		return seg, nil
	}
	return nil, &domain.ErrNotFound{Entity: "segment", ID: fmt.Sprintf("%d", id)}
}

type subscriberStore struct{ *store }

func (s subscriberStore) GetByID(ctx context.Context, id int64) (*domain.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscribers {
		if sub.ID == id {
			return sub, nil
		}
	}
	return nil, &domain.ErrNotFound{Entity: "subscriber", ID: fmt.Sprintf("%d", id)}
}

func (s subscriberStore) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscribers {
		if sub.Email == email {
			return sub, nil
		}
	}
	return nil, &domain.ErrNotFound{Entity: "subscriber", ID: email}
}

func (s subscriberStore) SetStatusByEmail(ctx context.Context, email string, status domain.SubscriberStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscribers {
		if sub.Email == email {
			sub.Status = status
		}
	}
	return nil
}

func (s subscriberStore) eligible(campaignID int64) []*domain.Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Subscriber
	for _, sub := range s.subscribers {
		record := s.recordFor(campaignID, sub.ID)
		if record != nil && record.Result != domain.SendResultPending {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s subscriberStore) ForEachEligible(ctx context.Context, campaignID int64, segmentID *int64, fn func(*domain.Subscriber) error) error {
	for _, sub := range s.eligible(campaignID) {
		if err := fn(sub); err != nil {
			return err
		}
	}
	return nil
}

func (s subscriberStore) CountEligible(ctx context.Context, campaignID int64, segmentID *int64) (int64, error) {
	return int64(len(s.eligible(campaignID))), nil
}

type sendRecordStore struct{ *store }

func (s sendRecordStore) GetOrCreate(ctx context.Context, campaignID, subscriberID int64, email string) (*domain.SendRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record := s.recordFor(campaignID, subscriberID); record != nil {
		return record, false, nil
	}
	s.nextRecord++
	record := &domain.SendRecord{
		ID:           s.nextRecord,
		CampaignID:   &campaignID,
		SubscriberID: &subscriberID,
		Email:        email,
		Result:       domain.SendResultPending,
		TrackingID:   fmt.Sprintf("TRACK%07d", s.nextRecord),
		Datetime:     time.Now(),
	}
	s.records[record.ID] = record
	return record, true, nil
}

func (s sendRecordStore) GetByID(ctx context.Context, id int64) (*domain.SendRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[id]; ok {
		return record, nil
	}
	return nil, &domain.ErrNotFound{Entity: "send record", ID: fmt.Sprintf("%d", id)}
}

func (s sendRecordStore) GetByTrackingID(ctx context.Context, trackingID string) (*domain.SendRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.TrackingID == trackingID {
			return record, nil
		}
	}
	return nil, &domain.ErrNotFound{Entity: "send record", ID: trackingID}
}

func (s sendRecordStore) GetByESPMessageID(ctx context.Context, messageID string) (*domain.SendRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.ESPMessageID != nil && *record.ESPMessageID == messageID {
			return record, nil
		}
	}
	return nil, &domain.ErrNotFound{Entity: "send record", ID: messageID}
}

func (s sendRecordStore) CreateSynthetic(ctx context.Context, email string, espMessageID *string, result domain.SendResult) (*domain.SendRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRecord++
	record := &domain.SendRecord{
		ID:           s.nextRecord,
		Email:        email,
		ESPMessageID: espMessageID,
		Result:       result,
		TrackingID:   fmt.Sprintf("TRACK%07d", s.nextRecord),
		Datetime:     time.Now(),
	}
	s.records[record.ID] = record
	return record, nil
}

func (s sendRecordStore) SetResultFromPending(ctx context.Context, id int64, result domain.SendResult, espMessageID *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok || record.Result != domain.SendResultPending {
		return false, nil
	}
	record.Result = result
	if espMessageID != nil {
		record.ESPMessageID = espMessageID
	}
	return true, nil
}

func (s sendRecordStore) TransitionResult(ctx context.Context, id int64, result domain.SendResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return false, &domain.ErrNotFound{Entity: "send record", ID: fmt.Sprintf("%d", id)}
	}
	if !record.Result.CanTransitionTo(result) {
		return false, nil
	}
	record.Result = result
	return true, nil
}

func (s sendRecordStore) IncrementOpenCount(ctx context.Context, trackingID string) (*domain.SendRecord, error) {
	record, err := s.GetByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record.OpenCount++
	return record, nil
}

func (s sendRecordStore) IncrementClickCount(ctx context.Context, trackingID string) (*domain.SendRecord, error) {
	record, err := s.GetByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record.ClickCount++
	return record, nil
}

func (s sendRecordStore) RecentResultsByEmail(ctx context.Context, email string, limit int) ([]domain.SendResult, error) {
	return nil, nil
}

func (s sendRecordStore) HasResultByEmail(ctx context.Context, email string, results []domain.SendResult, since *time.Time) (bool, error) {
	return false, nil
}

func (s sendRecordStore) CountResultsByEmail(ctx context.Context, email string, results []domain.SendResult, since time.Time) (int64, error) {
	return 0, nil
}

// recordingBackend is a scriptable pkgmailer.Backend.
type recordingBackend struct {
	mu        sync.Mutex
	sent      []*pkgmailer.Message
	sendErrs  []error
	info      pkgmailer.SendInfo
	sendDelay time.Duration
	nextID    int
}

func (b *recordingBackend) Open() error { return nil }

func (b *recordingBackend) Send(msg *pkgmailer.Message) (*pkgmailer.SendInfo, error) {
	if b.sendDelay > 0 {
		time.Sleep(b.sendDelay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sendErrs) > 0 {
		err := b.sendErrs[0]
		b.sendErrs = b.sendErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	b.sent = append(b.sent, msg)
	b.nextID++
	info := b.info
	if info.MessageID == "" {
		info.MessageID = fmt.Sprintf("esp-%d", b.nextID)
	}
	return &info, nil
}

func (b *recordingBackend) Close() error { return nil }

func (b *recordingBackend) sentMessages() []*pkgmailer.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*pkgmailer.Message(nil), b.sent...)
}

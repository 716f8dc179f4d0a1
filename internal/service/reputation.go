package service

import (
	"context"
	"time"

	"github.com/nuntius-io/nuntius/config"
	"github.com/nuntius-io/nuntius/internal/domain"
	"github.com/nuntius-io/nuntius/pkg/logger"
)

// successfulResults are the record outcomes that count as reaching the
// recipient.
var successfulResults = []domain.SendResult{
	domain.SendResultOk,
	domain.SendResultUnknown,
}

// ReputationService decides what a delivery event means for a subscriber's
// standing. Complaints and unsubscribes apply directly; bounces run through
// a tolerance cascade so a single soft failure does not burn an address
// with a good history.
type ReputationService struct {
	sendRecordRepo domain.SendRecordRepository
	subscriberRepo domain.SubscriberRepository
	params         config.BounceConfig
	logger         logger.Logger

	nowFunc func() time.Time
}

// NewReputationService creates a new reputation service
func NewReputationService(
	sendRecordRepo domain.SendRecordRepository,
	subscriberRepo domain.SubscriberRepository,
	params config.BounceConfig,
	log logger.Logger,
) *ReputationService {
	return &ReputationService{
		sendRecordRepo: sendRecordRepo,
		subscriberRepo: subscriberRepo,
		params:         params,
		logger:         log,
		nowFunc:        time.Now,
	}
}

// HandleComplaint marks the subscriber as complained.
func (s *ReputationService) HandleComplaint(ctx context.Context, email string) error {
	return s.subscriberRepo.SetStatusByEmail(ctx, email, domain.SubscriberStatusComplained)
}

// HandleUnsubscribe marks the subscriber as unsubscribed.
func (s *ReputationService) HandleUnsubscribe(ctx context.Context, email string) error {
	return s.subscriberRepo.SetStatusByEmail(ctx, email, domain.SubscriberStatusUnsubscribed)
}

// HandleBounce runs the bounce cascade for one address and returns whether
// the subscriber was classified as bounced.
//
// The cascade, evaluated in order:
//  1. an address that never reached the recipient bounces immediately
//  2. a recent success plus a bounce count within the limit spares it
//  3. a success among the most recent consecutive+1 records spares it
//  4. otherwise the address is classified as bounced
func (s *ReputationService) HandleBounce(ctx context.Context, email string) (bool, error) {
	everSucceeded, err := s.sendRecordRepo.HasResultByEmail(ctx, email, successfulResults, nil)
	if err != nil {
		return false, err
	}
	if !everSucceeded {
		return true, s.markBounced(ctx, email, "no successful contact on record")
	}

	since := s.nowFunc().AddDate(0, 0, -s.params.Duration)
	recentSuccess, err := s.sendRecordRepo.HasResultByEmail(ctx, email, successfulResults, &since)
	if err != nil {
		return false, err
	}
	if recentSuccess {
		bounces, err := s.sendRecordRepo.CountResultsByEmail(ctx, email,
			[]domain.SendResult{domain.SendResultBounced}, since)
		if err != nil {
			return false, err
		}
		if bounces <= int64(s.params.Limit) {
			return false, nil
		}
	}

	recent, err := s.sendRecordRepo.RecentResultsByEmail(ctx, email, s.params.Consecutive+1)
	if err != nil {
		return false, err
	}
	for _, result := range recent {
		if result.IsSuccessful() {
			return false, nil
		}
	}

	return true, s.markBounced(ctx, email, "bounce tolerance exhausted")
}

func (s *ReputationService) markBounced(ctx context.Context, email, reason string) error {
	s.logger.WithField("email", email).WithField("reason", reason).
		Info("Classifying subscriber as bounced")
	return s.subscriberRepo.SetStatusByEmail(ctx, email, domain.SubscriberStatusBounced)
}

package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/nuntius-io/nuntius/internal/domain"
	"github.com/nuntius-io/nuntius/pkg/logger"
)

// EventService ingests normalised delivery events from email providers and
// applies them to send records and subscriber reputation.
type EventService struct {
	sendRecordRepo domain.SendRecordRepository
	eventRepo      domain.WebhookEventRepository
	reputation     *ReputationService
	logger         logger.Logger

	// limiter caps ingest throughput, nil means unlimited.
	limiter *rate.Limiter
}

// NewEventService creates a new event service. maxEventsPerSecond of zero
// or less disables the ingest cap.
func NewEventService(
	sendRecordRepo domain.SendRecordRepository,
	eventRepo domain.WebhookEventRepository,
	reputation *ReputationService,
	maxEventsPerSecond int,
	log logger.Logger,
) *EventService {
	var limiter *rate.Limiter
	if maxEventsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(maxEventsPerSecond), maxEventsPerSecond)
	}
	return &EventService{
		sendRecordRepo: sendRecordRepo,
		eventRepo:      eventRepo,
		reputation:     reputation,
		logger:         log,
		limiter:        limiter,
	}
}

// ProcessEvent validates, persists and applies one webhook event. Invalid
// events are rejected without mutating any state.
func (s *EventService) ProcessEvent(ctx context.Context, event *domain.WebhookEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid webhook event: %w", err)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if err := s.eventRepo.Create(ctx, event); err != nil {
		// The event log is best effort, the state update still runs.
		s.logger.WithField("error", err.Error()).Warn("Failed to persist webhook event")
	}

	record, err := s.resolveRecord(ctx, event)
	if err != nil {
		return err
	}

	return s.apply(ctx, event, record)
}

// resolveRecord finds the send record the event refers to, falling back to
// a synthetic record so addresses we never contacted still build history.
func (s *EventService) resolveRecord(ctx context.Context, event *domain.WebhookEvent) (*domain.SendRecord, error) {
	if event.MessageID != "" {
		record, err := s.sendRecordRepo.GetByESPMessageID(ctx, event.MessageID)
		if err == nil {
			return record, nil
		}
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	if event.Recipient == "" {
		return nil, fmt.Errorf("event for unknown message %q carries no recipient", event.MessageID)
	}

	var messageID *string
	if event.MessageID != "" {
		messageID = &event.MessageID
	}
	return s.sendRecordRepo.CreateSynthetic(ctx, event.Recipient, messageID, domain.SendResultUnknown)
}

func (s *EventService) apply(ctx context.Context, event *domain.WebhookEvent, record *domain.SendRecord) error {
	email := record.Email
	if email == "" {
		email = event.Recipient
	}

	switch event.Type {
	case domain.EmailEventDelivered:
		return s.transition(ctx, record, domain.SendResultOk)

	case domain.EmailEventRejected:
		return s.transition(ctx, record, domain.SendResultRejected)

	case domain.EmailEventFailed:
		return s.transition(ctx, record, domain.SendResultError)

	case domain.EmailEventBounced:
		if !event.IsPermanent {
			return s.transition(ctx, record, domain.SendResultBlocked)
		}
		if err := s.transition(ctx, record, domain.SendResultBounced); err != nil {
			return err
		}
		_, err := s.reputation.HandleBounce(ctx, email)
		return err

	case domain.EmailEventComplained:
		if err := s.transition(ctx, record, domain.SendResultComplained); err != nil {
			return err
		}
		return s.reputation.HandleComplaint(ctx, email)

	case domain.EmailEventUnsubscribed:
		if err := s.transition(ctx, record, domain.SendResultUnsubscribed); err != nil {
			return err
		}
		return s.reputation.HandleUnsubscribe(ctx, email)

	case domain.EmailEventOpened:
		_, err := s.sendRecordRepo.IncrementOpenCount(ctx, record.TrackingID)
		return err

	case domain.EmailEventClicked:
		_, err := s.sendRecordRepo.IncrementClickCount(ctx, record.TrackingID)
		return err
	}
	return nil
}

func (s *EventService) transition(ctx context.Context, record *domain.SendRecord, result domain.SendResult) error {
	applied, err := s.sendRecordRepo.TransitionResult(ctx, record.ID, result)
	if err != nil {
		return err
	}
	if !applied {
		s.logger.WithField("record_id", record.ID).
			WithField("from", record.Result.String()).
			WithField("to", result.String()).
			Debug("Skipped non-monotonic result transition")
	}
	return nil
}

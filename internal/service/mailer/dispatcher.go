package mailer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nuntius-io/nuntius/internal/domain"
	"github.com/nuntius-io/nuntius/internal/service"
	"github.com/nuntius-io/nuntius/pkg/logger"
)

// errStopped unwinds the subscriber stream when the dispatcher is told to
// stop.
var errStopped = errors.New("dispatcher stopped")

// Dispatcher walks the eligible subscribers of one Sending campaign,
// creates their send records and feeds rendered messages into the work
// queue. One dispatcher runs per in-flight campaign.
type Dispatcher struct {
	campaign *domain.Campaign
	segment  *domain.Segment

	queue          *Queue
	renderer       *service.Renderer
	campaignRepo   domain.CampaignRepository
	sendRecordRepo domain.SendRecordRepository
	subscriberRepo domain.SubscriberRepository
	logger         logger.Logger

	quit     chan struct{}
	stopOnce sync.Once

	nowFunc func() time.Time
}

// NewDispatcher creates a dispatcher for one campaign. segment may be nil
// for campaigns targeting all subscribers.
func NewDispatcher(
	campaign *domain.Campaign,
	segment *domain.Segment,
	queue *Queue,
	renderer *service.Renderer,
	campaignRepo domain.CampaignRepository,
	sendRecordRepo domain.SendRecordRepository,
	subscriberRepo domain.SubscriberRepository,
	log logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		campaign:       campaign,
		segment:        segment,
		queue:          queue,
		renderer:       renderer,
		campaignRepo:   campaignRepo,
		sendRecordRepo: sendRecordRepo,
		subscriberRepo: subscriberRepo,
		logger:         log.WithField("campaign_id", campaign.ID),
		quit:           make(chan struct{}),
		nowFunc:        time.Now,
	}
}

// Stop signals the dispatcher to unwind. Safe to call more than once.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.quit) })
}

// Run streams the campaign's eligible subscribers and enqueues one message
// per Pending record. On clean completion the campaign is marked Sent; when
// stopped early the campaign stays Sending so a later run resumes where
// this one left off.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Dispatcher starting")

	var segmentID *int64
	if d.segment != nil {
		segmentID = &d.segment.ID
	}

	enqueued := 0
	err := d.subscriberRepo.ForEachEligible(ctx, d.campaign.ID, segmentID, func(subscriber *domain.Subscriber) error {
		select {
		case <-d.quit:
			return errStopped
		default:
		}

		if subscriber.Status != domain.SubscriberStatusSubscribed {
			return nil
		}

		record, _, err := d.sendRecordRepo.GetOrCreate(ctx, d.campaign.ID, subscriber.ID, subscriber.Email)
		if err != nil {
			return newSendingError(ErrCodeScheduling, d.campaign.ID, err)
		}
		if record.Result != domain.SendResultPending {
			return nil
		}

		message, err := d.renderer.Render(d.campaign, d.segment, subscriber, record)
		if err != nil {
			return newSendingError(ErrCodeRenderFailed, d.campaign.ID, err)
		}

		item := Item{Message: message, RecordID: record.ID, CampaignID: d.campaign.ID}
		if err := d.queue.Put(item, d.quit); err != nil {
			return errStopped
		}
		enqueued++
		return nil
	})

	if errors.Is(err, errStopped) {
		d.logger.WithField("enqueued", enqueued).Info("Dispatcher stopped before completion")
		return nil
	}
	if err != nil {
		d.logger.WithField("error", err.Error()).Error("Dispatcher failed")
		return err
	}

	if err := d.campaignRepo.MarkSent(ctx, d.campaign.ID, d.nowFunc()); err != nil {
		return newSendingError(ErrCodeCampaignState, d.campaign.ID, err)
	}
	d.logger.WithField("enqueued", enqueued).Info("Dispatcher finished, campaign sent")
	return nil
}

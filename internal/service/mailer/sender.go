package mailer

import (
	"context"
	"errors"

	"github.com/nuntius-io/nuntius/internal/domain"
	"github.com/nuntius-io/nuntius/pkg/logger"
	pkgmailer "github.com/nuntius-io/nuntius/pkg/mailer"
	"github.com/nuntius-io/nuntius/pkg/ratelimiter"
)

// refusedRecipientStatuses are the synchronous per-recipient verdicts an
// API transport can report for a message it accepted but will not deliver.
var refusedRecipientStatuses = map[string]bool{
	"invalid":  true,
	"rejected": true,
	"failed":   true,
}

// Worker is one sender loop. Workers share the queue, the token bucket and
// the rate meter; each owns its connection manager exclusively.
type Worker struct {
	id             int
	queue          *Queue
	limiter        ratelimiter.RateLimiter
	meter          *ratelimiter.RateMeter
	connection     *pkgmailer.ConnectionManager
	sendRecordRepo domain.SendRecordRepository
	campaignErrors chan<- int64
	quit           <-chan struct{}
	logger         logger.Logger
}

// NewWorker creates a sender worker.
func NewWorker(
	id int,
	queue *Queue,
	limiter ratelimiter.RateLimiter,
	meter *ratelimiter.RateMeter,
	connection *pkgmailer.ConnectionManager,
	sendRecordRepo domain.SendRecordRepository,
	campaignErrors chan<- int64,
	quit <-chan struct{},
	log logger.Logger,
) *Worker {
	return &Worker{
		id:             id,
		queue:          queue,
		limiter:        limiter,
		meter:          meter,
		connection:     connection,
		sendRecordRepo: sendRecordRepo,
		campaignErrors: campaignErrors,
		quit:           quit,
		logger:         log.WithField("worker", id),
	}
}

// Run processes queue items until the shutdown signal fires and the queue
// is drained. The connection closes on the way out.
func (w *Worker) Run(ctx context.Context) {
	defer func() {
		if err := w.connection.Close(); err != nil {
			w.logger.WithField("error", err.Error()).Warn("Failed to close connection")
		}
	}()

	w.logger.Info("Sender worker starting")
	for {
		w.limiter.Take(1)

		item, err := w.queue.Get(w.quit)
		if err != nil {
			w.logger.Info("Sender worker draining complete, exiting")
			return
		}
		w.process(ctx, item)
	}
}

// process transmits one message and settles its record.
func (w *Worker) process(ctx context.Context, item Item) {
	// Another actor may have settled the record while it sat in the queue.
	record, err := w.sendRecordRepo.GetByID(ctx, item.RecordID)
	if err != nil {
		w.logger.WithField("record_id", item.RecordID).
			WithField("error", err.Error()).
			Warn("Skipping message with unknown send record")
		return
	}
	if record.Result != domain.SendResultPending {
		return
	}

	info, err := w.connection.Send(item.Message)
	switch {
	case err == nil:
		w.meter.CountUp(1)
		w.settle(ctx, item, sendOutcome(info), messageID(info))

	case pkgmailer.IsRecipientRefused(err):
		w.logger.WithField("record_id", item.RecordID).
			WithField("error", err.Error()).
			Info("Recipient refused, blocking record")
		w.settle(ctx, item, domain.SendResultBlocked, nil)

	case errors.Is(err, pkgmailer.ErrQuit):
		// Shutdown fired mid-send. The record stays Pending for the next
		// run.

	default:
		sendErr := newSendingError(ErrCodeTransport, item.CampaignID, err)
		w.logger.WithField("record_id", item.RecordID).
			WithField("error", sendErr.Error()).
			Error("Unexpected send failure")
		select {
		case w.campaignErrors <- item.CampaignID:
		default:
			w.logger.Warn("Campaign error channel full, dropping report")
		}
	}
}

func (w *Worker) settle(ctx context.Context, item Item, result domain.SendResult, espMessageID *string) {
	updated, err := w.sendRecordRepo.SetResultFromPending(ctx, item.RecordID, result, espMessageID)
	if err != nil {
		updateErr := newSendingError(ErrCodeRecordUpdate, item.CampaignID, err)
		w.logger.WithField("record_id", item.RecordID).
			WithField("error", updateErr.Error()).
			Error("Failed to update send record")
		return
	}
	if !updated {
		w.logger.WithField("record_id", item.RecordID).
			Debug("Send record settled elsewhere, leaving it")
	}
}

// sendOutcome interprets the transport's synchronous feedback: a refusal
// verdict maps to Rejected, anything else is Unknown until a webhook
// refines it.
func sendOutcome(info *pkgmailer.SendInfo) domain.SendResult {
	if info != nil && refusedRecipientStatuses[info.RecipientStatus] {
		return domain.SendResultRejected
	}
	return domain.SendResultUnknown
}

func messageID(info *pkgmailer.SendInfo) *string {
	if info == nil || info.MessageID == "" {
		return nil
	}
	return &info.MessageID
}

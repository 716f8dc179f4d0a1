package mailer

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/nuntius-io/nuntius/config"
	"github.com/nuntius-io/nuntius/internal/domain"
	"github.com/nuntius-io/nuntius/internal/service"
	"github.com/nuntius-io/nuntius/pkg/logger"
	pkgmailer "github.com/nuntius-io/nuntius/pkg/mailer"
	"github.com/nuntius-io/nuntius/pkg/ratelimiter"
)

// BackendFactory creates one transport backend per sender worker.
type BackendFactory func() (pkgmailer.Backend, error)

// Stats is a point-in-time snapshot of the delivery engine.
type Stats struct {
	QueueLength   int     `json:"queue_length"`
	QueueCapacity int     `json:"queue_capacity"`
	Workers       int     `json:"workers"`
	Dispatchers   []int64 `json:"dispatchers"`
	BucketTokens  float64 `json:"bucket_tokens"`
	SendingRate   float64 `json:"sending_rate"`
}

type dispatcherHandle struct {
	dispatcher *Dispatcher
	done       chan struct{}
}

// Supervisor runs the delivery control loop: it keeps the sender pool at
// size, starts and stops dispatchers as campaigns move through the outbox,
// and drains the workers' error channel. Cancelling the context shuts the
// whole engine down cleanly.
type Supervisor struct {
	cfg            config.SendingConfig
	campaignRepo   domain.CampaignRepository
	sendRecordRepo domain.SendRecordRepository
	subscriberRepo domain.SubscriberRepository
	segmentRepo    domain.SegmentRepository
	renderer       *service.Renderer
	newBackend     BackendFactory
	logger         logger.Logger

	queue  *Queue
	bucket ratelimiter.RateLimiter
	meter  *ratelimiter.RateMeter

	sendersQuit    chan struct{}
	quitOnce       sync.Once
	campaignErrors chan int64
	workerExits    chan int

	mu            sync.Mutex
	dispatchers   map[int64]*dispatcherHandle
	failed        map[int64]bool
	activeWorkers int
	nextWorkerID  int
	shuttingDown  bool

	workerWG     sync.WaitGroup
	dispatcherWG sync.WaitGroup
}

// NewSupervisor wires the delivery engine together.
func NewSupervisor(
	cfg config.SendingConfig,
	campaignRepo domain.CampaignRepository,
	sendRecordRepo domain.SendRecordRepository,
	subscriberRepo domain.SubscriberRepository,
	segmentRepo domain.SegmentRepository,
	renderer *service.Renderer,
	newBackend BackendFactory,
	log logger.Logger,
) *Supervisor {
	return &Supervisor{
		cfg:            cfg,
		campaignRepo:   campaignRepo,
		sendRecordRepo: sendRecordRepo,
		subscriberRepo: subscriberRepo,
		segmentRepo:    segmentRepo,
		renderer:       renderer,
		newBackend:     newBackend,
		logger:         log,
		queue:          NewQueue(2*cfg.MaxConcurrentSenders, cfg.PollingInterval),
		bucket:         ratelimiter.NewTokenBucket(cfg.MaxSendingRate, float64(cfg.MaxSendingRate)),
		meter:          ratelimiter.NewRateMeter(0.2, 1.0),
		sendersQuit:    make(chan struct{}),
		campaignErrors: make(chan int64, 2*cfg.MaxConcurrentSenders),
		workerExits:    make(chan int, 2*cfg.MaxConcurrentSenders),
		dispatchers:    make(map[int64]*dispatcherHandle),
		failed:         make(map[int64]bool),
	}
}

// Run executes the control loop until ctx is cancelled, then shuts down:
// dispatchers stop enqueuing, workers drain the queue and close their
// connections, and Run returns once everything has exited.
func (s *Supervisor) Run(ctx context.Context) error {
	statsSignals := make(chan os.Signal, 1)
	signal.Notify(statsSignals, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(statsSignals)

	ticker := time.NewTicker(s.cfg.PollingInterval)
	defer ticker.Stop()

	s.logger.WithField("senders", s.cfg.MaxConcurrentSenders).
		WithField("rate", s.cfg.MaxSendingRate).
		Info("Supervisor starting")

	s.maintainWorkers(ctx)
	s.watchCampaigns(ctx)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			s.logger.Info("Supervisor stopped")
			return nil

		case sig := <-statsSignals:
			s.handleSignal(sig)

		case campaignID := <-s.campaignErrors:
			s.failCampaign(ctx, campaignID)

		case workerID := <-s.workerExits:
			s.onWorkerExit(workerID)

		case <-ticker.C:
			s.maintainWorkers(ctx)
			s.watchCampaigns(ctx)
		}
	}
}

// Stats returns a snapshot of the engine.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	dispatchers := make([]int64, 0, len(s.dispatchers))
	for id := range s.dispatchers {
		dispatchers = append(dispatchers, id)
	}
	return Stats{
		QueueLength:   s.queue.Len(),
		QueueCapacity: s.queue.Cap(),
		Workers:       s.activeWorkers,
		Dispatchers:   dispatchers,
		BucketTokens:  s.bucket.Peek(),
		SendingRate:   s.meter.CurrentRate(),
	}
}

func (s *Supervisor) handleSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGUSR1:
		stats := s.Stats()
		s.logger.WithFields(map[string]interface{}{
			"queue_length":   stats.QueueLength,
			"queue_capacity": stats.QueueCapacity,
			"workers":        stats.Workers,
			"dispatchers":    stats.Dispatchers,
			"bucket_tokens":  stats.BucketTokens,
			"sending_rate":   stats.SendingRate,
		}).Info("Supervisor statistics")

	case syscall.SIGUSR2:
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		s.logger.WithField("stack", string(buf[:n])).Info("Supervisor stack dump")
	}
}

// maintainWorkers keeps the sender pool at the configured size.
func (s *Supervisor) maintainWorkers(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return
	}

	for s.activeWorkers < s.cfg.MaxConcurrentSenders {
		backend, err := s.newBackend()
		if err != nil {
			s.logger.WithField("error", err.Error()).Error("Failed to create email backend")
			return
		}

		s.nextWorkerID++
		workerID := s.nextWorkerID
		connection := pkgmailer.NewConnectionManager(
			backend, s.cfg.MaxMessagesPerConnection, s.logger, s.sendersQuit)
		worker := NewWorker(workerID, s.queue, s.bucket, s.meter, connection,
			s.sendRecordRepo, s.campaignErrors, s.sendersQuit, s.logger)

		s.activeWorkers++
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			worker.Run(ctx)
			select {
			case s.workerExits <- workerID:
			default:
			}
		}()
	}
}

func (s *Supervisor) onWorkerExit(workerID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeWorkers--
	if !s.shuttingDown {
		s.logger.WithField("worker", workerID).Warn("Sender worker exited unexpectedly")
	}
}

// watchCampaigns reconciles running dispatchers against the outbox.
func (s *Supervisor) watchCampaigns(ctx context.Context) {
	s.reapDispatchers()

	campaigns, err := s.campaignRepo.Outbox(ctx, time.Now())
	if err != nil {
		s.logger.WithField("error", err.Error()).Error("Failed to read campaign outbox")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return
	}

	for _, campaign := range campaigns {
		handle, running := s.dispatchers[campaign.ID]
		switch {
		case campaign.Status == domain.CampaignStatusSending && !running && !s.failed[campaign.ID]:
			s.spawnDispatcher(ctx, campaign)

		case campaign.Status == domain.CampaignStatusWaiting && running:
			s.logger.WithField("campaign_id", campaign.ID).Info("Campaign paused, stopping dispatcher")
			handle.dispatcher.Stop()
		}
	}
}

// spawnDispatcher starts a dispatcher goroutine. Callers hold s.mu.
func (s *Supervisor) spawnDispatcher(ctx context.Context, campaign *domain.Campaign) {
	var segment *domain.Segment
	if campaign.SegmentID != nil {
		var err error
		segment, err = s.segmentRepo.GetByID(ctx, *campaign.SegmentID)
		if err != nil {
			s.logger.WithField("campaign_id", campaign.ID).
				WithField("error", err.Error()).
				Error("Failed to resolve campaign segment")
			return
		}
	}

	dispatcher := NewDispatcher(campaign, segment, s.queue, s.renderer,
		s.campaignRepo, s.sendRecordRepo, s.subscriberRepo, s.logger)
	handle := &dispatcherHandle{dispatcher: dispatcher, done: make(chan struct{})}
	s.dispatchers[campaign.ID] = handle

	s.dispatcherWG.Add(1)
	go func() {
		defer s.dispatcherWG.Done()
		defer close(handle.done)
		if err := dispatcher.Run(ctx); err != nil {
			s.logger.WithField("campaign_id", campaign.ID).
				WithField("error", err.Error()).
				Error("Dispatcher exited abnormally")
			s.mu.Lock()
			s.failed[campaign.ID] = true
			s.mu.Unlock()
		}
	}()
}

// reapDispatchers forgets dispatchers whose goroutine has finished.
func (s *Supervisor) reapDispatchers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, handle := range s.dispatchers {
		select {
		case <-handle.done:
			delete(s.dispatchers, id)
		default:
		}
	}
}

// failCampaign handles a campaign id from the workers' error channel.
func (s *Supervisor) failCampaign(ctx context.Context, campaignID int64) {
	s.logger.WithField("campaign_id", campaignID).
		Error("Campaign reported by sender, marking as errored")

	if err := s.campaignRepo.UpdateStatus(ctx, campaignID, domain.CampaignStatusError); err != nil {
		s.logger.WithField("campaign_id", campaignID).
			WithField("error", err.Error()).
			Error("Failed to mark campaign as errored")
	}

	s.mu.Lock()
	s.failed[campaignID] = true
	handle, running := s.dispatchers[campaignID]
	s.mu.Unlock()
	if running {
		handle.dispatcher.Stop()
	}
}

// shutdown stops dispatchers and workers and waits for them.
func (s *Supervisor) shutdown() {
	s.logger.Info("Supervisor shutting down")

	s.mu.Lock()
	s.shuttingDown = true
	handles := make([]*dispatcherHandle, 0, len(s.dispatchers))
	for _, handle := range s.dispatchers {
		handles = append(handles, handle)
	}
	s.mu.Unlock()

	for _, handle := range handles {
		handle.dispatcher.Stop()
	}
	s.dispatcherWG.Wait()

	s.quitOnce.Do(func() { close(s.sendersQuit) })
	s.workerWG.Wait()
}

package service

import (
	"context"
	"fmt"

	"github.com/nuntius-io/nuntius/internal/domain"
	"github.com/nuntius-io/nuntius/pkg/logger"
)

// CampaignService exposes the operator-facing campaign operations.
type CampaignService struct {
	campaignRepo domain.CampaignRepository
	logger       logger.Logger
}

// NewCampaignService creates a new campaign service
func NewCampaignService(campaignRepo domain.CampaignRepository, log logger.Logger) *CampaignService {
	return &CampaignService{campaignRepo: campaignRepo, logger: log}
}

// Get retrieves one campaign
func (s *CampaignService) Get(ctx context.Context, id int64) (*domain.Campaign, error) {
	return s.campaignRepo.GetByID(ctx, id)
}

// Stats computes the aggregate counters for one campaign
func (s *CampaignService) Stats(ctx context.Context, id int64) (*domain.CampaignStats, error) {
	if _, err := s.campaignRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.campaignRepo.Stats(ctx, id)
}

// Start moves a campaign into Sending so the supervisor picks it up on its
// next poll.
func (s *CampaignService) Start(ctx context.Context, id int64) error {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if campaign.Status == domain.CampaignStatusSent {
		return fmt.Errorf("campaign %d is already sent", id)
	}
	s.logger.WithField("campaign_id", id).Info("Starting campaign")
	return s.campaignRepo.UpdateStatus(ctx, id, domain.CampaignStatusSending)
}

// Pause moves a campaign back to Waiting. The supervisor stops its
// dispatcher on the next poll; records already queued still go out.
func (s *CampaignService) Pause(ctx context.Context, id int64) error {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if campaign.Status != domain.CampaignStatusSending {
		return fmt.Errorf("campaign %d is not sending", id)
	}
	s.logger.WithField("campaign_id", id).Info("Pausing campaign")
	return s.campaignRepo.UpdateStatus(ctx, id, domain.CampaignStatusWaiting)
}

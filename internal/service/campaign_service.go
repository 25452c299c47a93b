// internal/service/campaign_service.go
package service

import (
	"context"
	"math"
	"time"

	appErrors "github.com/unclebandit/mailcampaign-sender/internal/errors"
	"github.com/unclebandit/mailcampaign-sender/internal/logx"
	"github.com/unclebandit/mailcampaign-sender/internal/model"
	"github.com/unclebandit/mailcampaign-sender/internal/queue"
	"github.com/unclebandit/mailcampaign-sender/internal/repository"
)

const recentEventLimit = 20

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	EventRepo     repository.EventRepositoryInterface
	Queue         queue.Queue
	Topic         string
	Now           func() time.Time
}

type CampaignStatus struct {
	Campaign            *model.Campaign        `json:"campaign"`
	Stats               map[string]int         `json:"stats"`
	Progress            int                    `json:"progress"`
	EstimatedCompletion *time.Time             `json:"estimated_completion,omitempty"`
	RecentEvents        []*model.CampaignEvent `json:"recent_events"`
}

// StartSend launches a background run for the campaign and returns at once.
func (s *CampaignService) StartSend(ctx context.Context, campaignID string) error {
	if err := s.Queue.Publish(ctx, s.topic(), queue.SendJob{CampaignID: campaignID}); err != nil {
		return err
	}
	logx.L().Infow("campaign_send_launched", "campaign_id", campaignID)
	return nil
}

func (s *CampaignService) GetCampaignStatus(ctx context.Context, campaignID string) (*CampaignStatus, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.RecipientRepo.StatusCounts(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	events, err := s.EventRepo.Recent(ctx, campaignID, recentEventLimit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*model.CampaignEvent{}
	}

	total := campaign.TotalRecipients
	if total <= 0 {
		total = stats["total"]
	}
	sent := stats[model.RecipientSent]

	status := &CampaignStatus{
		Campaign:     campaign,
		Stats:        stats,
		RecentEvents: events,
	}
	if total > 0 {
		status.Progress = int(math.Round(float64(sent) * 100 / float64(total)))
	}
	if campaign.Status == model.CampaignSending && campaign.StartedAt != nil {
		status.EstimatedCompletion = estimateCompletion(*campaign.StartedAt, s.now(), sent, total)
	}
	return status, nil
}

// estimateCompletion extrapolates the observed send rate over the remaining recipients.
func estimateCompletion(startedAt, now time.Time, sent, total int) *time.Time {
	elapsed := now.Sub(startedAt)
	if sent <= 0 || elapsed <= 0 || total <= sent {
		return nil
	}
	perRecipient := elapsed / time.Duration(sent)
	eta := now.Add(perRecipient * time.Duration(total-sent))
	return &eta
}

// RetryFailedRecipients re-enqueues failed recipients that have retries left
// and launches a run when any were re-enqueued. A campaign that is being sent
// or was cancelled cannot be retried.
func (s *CampaignService) RetryFailedRecipients(ctx context.Context, campaignID string) (int, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if campaign.Status == model.CampaignCancelled || campaign.Status == model.CampaignSending {
		return 0, appErrors.NewInvalidTransition(campaignID, campaign.Status, "retry")
	}

	n, err := s.RecipientRepo.RequeueFailed(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	if err := s.CampaignRepo.UpdateStatus(ctx, campaignID, model.CampaignScheduled); err != nil {
		return n, err
	}
	logx.L().Infow("campaign_recipients_requeued", "campaign_id", campaignID, "count", n)
	return n, s.StartSend(ctx, campaignID)
}

func (s *CampaignService) PauseCampaign(ctx context.Context, campaignID string) error {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != model.CampaignScheduled && campaign.Status != model.CampaignSending {
		return appErrors.NewInvalidTransition(campaignID, campaign.Status, "pause")
	}
	if err := s.CampaignRepo.UpdateStatus(ctx, campaignID, model.CampaignPaused); err != nil {
		return err
	}
	logx.L().Infow("campaign_paused", "campaign_id", campaignID, "from", campaign.Status)
	return nil
}

func (s *CampaignService) ResumeCampaign(ctx context.Context, campaignID string) error {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != model.CampaignPaused {
		return appErrors.NewInvalidTransition(campaignID, campaign.Status, "resume")
	}
	if err := s.CampaignRepo.UpdateStatus(ctx, campaignID, model.CampaignScheduled); err != nil {
		return err
	}
	logx.L().Infow("campaign_resumed", "campaign_id", campaignID)
	return s.StartSend(ctx, campaignID)
}

// CancelCampaign cancels a non-terminal campaign and its pending recipients.
// Jobs already dispatched in a running batch are not interrupted.
func (s *CampaignService) CancelCampaign(ctx context.Context, campaignID string) (int, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if campaign.IsTerminal() {
		return 0, appErrors.NewInvalidTransition(campaignID, campaign.Status, "cancel")
	}
	if err := s.CampaignRepo.UpdateStatus(ctx, campaignID, model.CampaignCancelled); err != nil {
		return 0, err
	}
	n, err := s.RecipientRepo.CancelPending(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	logx.L().Infow("campaign_cancelled", "campaign_id", campaignID, "recipients_cancelled", n)
	return n, nil
}

func (s *CampaignService) topic() string {
	if s.Topic == "" {
		return queue.CampaignSendsTopic
	}
	return s.Topic
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

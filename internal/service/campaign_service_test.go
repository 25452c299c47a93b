package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/mailcampaign-sender/internal/errors"
	"github.com/unclebandit/mailcampaign-sender/internal/model"
)

func newCampaignService(c *model.Campaign) (*CampaignService, *MockCampaignRepo, *MockRecipientRepo, *MockQueue) {
	campaigns := newMockCampaignRepo(c)
	recipients := newMockRecipientRepo()
	q := &MockQueue{}
	svc := &CampaignService{
		CampaignRepo:  campaigns,
		RecipientRepo: recipients,
		EventRepo:     &MockEventRepo{},
		Queue:         q,
		Now:           func() time.Time { return fixedNow },
	}
	return svc, campaigns, recipients, q
}

func campaignWithStatus(status string) *model.Campaign {
	return &model.Campaign{ID: "c-1", Status: status, UserTokenID: "ut-1"}
}

func TestGetCampaignStatus_ProgressAndEstimate(t *testing.T) {
	started := fixedNow.Add(-10 * time.Minute)
	c := campaignWithStatus(model.CampaignSending)
	c.TotalRecipients = 40
	c.StartedAt = &started

	svc, _, recipients, _ := newCampaignService(c)
	recipients.counts = map[string]int{"total": 40, "pending": 30, "sent": 10}

	status, err := svc.GetCampaignStatus(context.Background(), "c-1")
	require.NoError(t, err)

	assert.Equal(t, 25, status.Progress)
	require.NotNil(t, status.EstimatedCompletion)
	assert.Equal(t, fixedNow.Add(30*time.Minute), *status.EstimatedCompletion)
	assert.NotNil(t, status.RecentEvents)
}

func TestGetCampaignStatus_NoEstimateWhenNotSending(t *testing.T) {
	c := campaignWithStatus(model.CampaignSent)
	svc, _, recipients, _ := newCampaignService(c)
	recipients.counts = map[string]int{"total": 3, "sent": 3}

	status, err := svc.GetCampaignStatus(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, 100, status.Progress)
	assert.Nil(t, status.EstimatedCompletion)
}

func TestGetCampaignStatus_NotFound(t *testing.T) {
	svc, _, _, _ := newCampaignService(campaignWithStatus(model.CampaignSent))
	_, err := svc.GetCampaignStatus(context.Background(), "nope")
	assert.True(t, appErrors.IsNotFound(err))
}

func TestStartSend_PublishError(t *testing.T) {
	svc, _, _, q := newCampaignService(campaignWithStatus(model.CampaignScheduled))
	q.err = errors.New("broker unavailable")
	assert.Error(t, svc.StartSend(context.Background(), "c-1"))
}

func TestRetryFailedRecipients(t *testing.T) {
	svc, campaigns, recipients, q := newCampaignService(campaignWithStatus(model.CampaignSent))
	recipients.requeued = 4

	n, err := svc.RetryFailedRecipients(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, model.CampaignScheduled, campaigns.campaigns["c-1"].Status)
	require.Len(t, q.published, 1)
	assert.Equal(t, "c-1", q.published[0].CampaignID)
}

func TestRetryFailedRecipients_NothingToRetry(t *testing.T) {
	svc, campaigns, _, q := newCampaignService(campaignWithStatus(model.CampaignSent))

	n, err := svc.RetryFailedRecipients(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, model.CampaignSent, campaigns.campaigns["c-1"].Status)
	assert.Empty(t, q.published)
}

func TestRetryFailedRecipients_CancelledRejected(t *testing.T) {
	svc, _, recipients, _ := newCampaignService(campaignWithStatus(model.CampaignCancelled))
	recipients.requeued = 2

	_, err := svc.RetryFailedRecipients(context.Background(), "c-1")
	var te *appErrors.ErrInvalidTransition
	assert.ErrorAs(t, err, &te)
}

func TestRetryFailedRecipients_SendingRejected(t *testing.T) {
	svc, campaigns, recipients, q := newCampaignService(campaignWithStatus(model.CampaignSending))
	recipients.requeued = 2

	n, err := svc.RetryFailedRecipients(context.Background(), "c-1")
	var te *appErrors.ErrInvalidTransition
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 0, n)
	assert.Equal(t, model.CampaignSending, campaigns.campaigns["c-1"].Status)
	assert.Empty(t, q.published)
}

func TestPauseResume(t *testing.T) {
	svc, campaigns, _, q := newCampaignService(campaignWithStatus(model.CampaignSending))

	require.NoError(t, svc.PauseCampaign(context.Background(), "c-1"))
	assert.Equal(t, model.CampaignPaused, campaigns.campaigns["c-1"].Status)

	err := svc.PauseCampaign(context.Background(), "c-1")
	var te *appErrors.ErrInvalidTransition
	assert.ErrorAs(t, err, &te, "pausing twice is rejected")

	require.NoError(t, svc.ResumeCampaign(context.Background(), "c-1"))
	assert.Equal(t, model.CampaignScheduled, campaigns.campaigns["c-1"].Status)
	assert.Len(t, q.published, 1)

	err = svc.ResumeCampaign(context.Background(), "c-1")
	assert.ErrorAs(t, err, &te)
}

func TestCancelCampaign(t *testing.T) {
	svc, campaigns, recipients, _ := newCampaignService(campaignWithStatus(model.CampaignPaused))
	recipients.cancelled = 7

	n, err := svc.CancelCampaign(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, model.CampaignCancelled, campaigns.campaigns["c-1"].Status)

	_, err = svc.CancelCampaign(context.Background(), "c-1")
	var te *appErrors.ErrInvalidTransition
	assert.ErrorAs(t, err, &te, "cancelled is terminal")
}

func TestEstimateCompletion(t *testing.T) {
	start := fixedNow.Add(-time.Minute)
	assert.Nil(t, estimateCompletion(start, fixedNow, 0, 10))
	assert.Nil(t, estimateCompletion(start, fixedNow, 10, 10))

	eta := estimateCompletion(start, fixedNow, 5, 10)
	require.NotNil(t, eta)
	assert.Equal(t, fixedNow.Add(time.Minute), *eta)
}

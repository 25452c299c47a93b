package service

import (
	"context"
	"errors"

	appErrors "github.com/unclebandit/mailcampaign-sender/internal/errors"
	"github.com/unclebandit/mailcampaign-sender/internal/logx"
	"github.com/unclebandit/mailcampaign-sender/internal/queue"
)

// Worker processes campaign send jobs
type Worker struct {
	Runner CampaignRunnerInterface
}

// Constructor
func NewWorker(runner CampaignRunnerInterface) *Worker {
	return &Worker{Runner: runner}
}

// Start subscribes the worker to topic.
func (w *Worker) Start(q queue.Queue, topic string) error {
	return q.Subscribe(topic, w.Handle)
}

// Handle runs one job. A run already in progress elsewhere and a campaign
// that no longer exists are not retryable, so they are reported as handled.
func (w *Worker) Handle(ctx context.Context, job queue.SendJob) error {
	log := logx.L().With("campaign_id", job.CampaignID)

	res, err := w.Runner.Run(ctx, job.CampaignID)
	switch {
	case errors.Is(err, appErrors.ErrRunInProgress):
		log.Infow("campaign_job_skipped", "reason", "run_in_progress")
		return nil
	case appErrors.IsNotFound(err):
		log.Warnw("campaign_job_dropped", "error", err)
		return nil
	case err != nil:
		return err
	}

	log.Infow("campaign_job_done",
		"status", res.Status,
		"processed", res.Processed,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"skipped", res.Skipped,
	)
	return nil
}

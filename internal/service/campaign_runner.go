package service

import (
	"context"
	"time"

	appErrors "github.com/unclebandit/mailcampaign-sender/internal/errors"
	"github.com/unclebandit/mailcampaign-sender/internal/lock"
	"github.com/unclebandit/mailcampaign-sender/internal/logx"
)

// LockFactory hands out per-key run locks.
type LockFactory interface {
	New(key string) lock.DistLock
}

type CampaignRunnerInterface interface {
	Run(ctx context.Context, campaignID string) (*SendResult, error)
}

// CampaignRunner wraps a send run with the campaign's run lock and heartbeat.
type CampaignRunner struct {
	Sender    CampaignSenderInterface
	Heartbeat *Heartbeat
	Locks     LockFactory
}

// Run executes one send run. It returns ErrRunInProgress without touching any
// state when another run holds the campaign's lock.
func (r *CampaignRunner) Run(ctx context.Context, campaignID string) (*SendResult, error) {
	var l lock.DistLock
	if r.Locks != nil {
		l = r.Locks.New(lock.CampaignKey(campaignID))
		ok, err := l.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			logx.L().Infow("campaign_run_locked", "campaign_id", campaignID)
			return nil, appErrors.ErrRunInProgress
		}
		defer func() {
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := l.Release(relCtx); err != nil {
				logx.L().Warnw("campaign_lock_release_failed", "campaign_id", campaignID, "error", err)
			}
		}()
	}

	if r.Heartbeat != nil {
		hb := r.Heartbeat.Start(ctx, campaignID, func(ctx context.Context) {
			if l == nil {
				return
			}
			if err := l.Extend(ctx); err != nil {
				logx.L().Warnw("campaign_lock_extend_failed", "campaign_id", campaignID, "error", err)
			}
		})
		defer hb.Stop()
	}

	return r.Sender.SendCampaign(ctx, campaignID)
}

var _ CampaignRunnerInterface = (*CampaignRunner)(nil)

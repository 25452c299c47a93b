package service

import (
	"context"
	"time"

	"github.com/unclebandit/mailcampaign-sender/internal/logx"
	"github.com/unclebandit/mailcampaign-sender/internal/metrics"
	"github.com/unclebandit/mailcampaign-sender/internal/model"
	"github.com/unclebandit/mailcampaign-sender/internal/repository"
)

const DefaultHeartbeatInterval = 20 * time.Second

// Heartbeat appends a liveness row for a campaign on a fixed interval.
type Heartbeat struct {
	Logs     repository.CampaignLogRepositoryInterface
	Interval time.Duration
	Now      func() time.Time
}

// HeartbeatHandle stops a running heartbeat.
type HeartbeatHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Start begins beating until the returned handle is stopped or ctx ends.
// onBeat, if non-nil, runs after every written row.
func (h *Heartbeat) Start(ctx context.Context, campaignID string, onBeat func(context.Context)) *HeartbeatHandle {
	ctx, cancel := context.WithCancel(ctx)
	hh := &HeartbeatHandle{cancel: cancel, done: make(chan struct{})}

	interval := h.Interval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	go func() {
		defer close(hh.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.Logs.Append(ctx, campaignID, model.HeartbeatMessage, h.now()); err != nil {
					if ctx.Err() != nil {
						return
					}
					logx.L().Warnw("heartbeat_write_failed", "campaign_id", campaignID, "error", err)
				} else {
					metrics.Heartbeats.Inc()
				}
				if onBeat != nil {
					onBeat(ctx)
				}
			}
		}
	}()

	return hh
}

// Stop cancels the heartbeat and waits for its goroutine to exit.
func (hh *HeartbeatHandle) Stop() {
	hh.cancel()
	<-hh.done
}

func (h *Heartbeat) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
